package chat

// Package chat routes user messages between repository research and
// answer generation. A message that looks like a code question pulls
// search context from the indexed repository first; everything else
// goes straight to the generator.
import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/internal/answer"
	"github.com/openflux/openflux/internal/metrics"
	"github.com/openflux/openflux/pkg/types"
)

// Researcher is the slice of the research facade chat needs.
type Researcher interface {
	Search(ctx context.Context, repository, query string, limit int) (*types.SearchResult, error)
}

// Message is one chat turn. Role is "user", "assistant", or "tool".
type Message struct {
	Role      string    `json:"role"`
	Name      string    `json:"name,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds one conversation's in-memory history.
type Session struct {
	ID         string    `json:"id"`
	Repository string    `json:"repository,omitempty"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Orchestrator routes messages and keeps live sessions. History is
// process memory only.
type Orchestrator struct {
	research  Researcher
	generator answer.Generator
	collector *metrics.Collector

	mu          sync.Mutex
	sessions    map[string]*Session
	searchLimit int
}

// New builds an orchestrator. generator may be nil; chat then answers
// with raw search excerpts only.
func New(research Researcher, generator answer.Generator, collector *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		research:    research,
		generator:   generator,
		collector:   collector,
		sessions:    make(map[string]*Session),
		searchLimit: 5,
	}
}

// snapshot copies the session so callers can read and marshal it while
// Respond keeps appending to the live one. Caller holds the lock.
func (s *Session) snapshot() *Session {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	return &out
}

// OpenSession creates a session bound to a repository (may be empty).
func (o *Orchestrator) OpenSession(repository string) *Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.New().String(),
		Repository: repository,
		CreatedAt:  now,
		LastActive: now,
	}

	o.mu.Lock()
	o.sessions[s.ID] = s
	snap := s.snapshot()
	o.mu.Unlock()

	o.collector.SessionOpened()
	log.Info().Str("session", s.ID).Str("repository", repository).Msg("Chat session opened")
	return snap
}

// GetSession looks a session up by id and returns a point-in-time copy.
func (o *Orchestrator) GetSession(id string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[id]
	if !ok {
		return nil, false
	}
	return s.snapshot(), true
}

// lookup returns the live session for internal mutation under o.mu.
func (o *Orchestrator) lookup(id string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[id]
	return s, ok
}

// CloseSession drops a session and its history.
func (o *Orchestrator) CloseSession(id string) {
	o.mu.Lock()
	_, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()

	if ok {
		o.collector.SessionClosed()
		log.Info().Str("session", id).Msg("Chat session closed")
	}
}

// searchHints marks a message as a code question worth a repository
// search before generation.
var searchHints = []string{"search", "find", "look for", "code", "function", "class"}

func wantsSearch(message string) bool {
	lower := strings.ToLower(message)
	for _, hint := range searchHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// Respond handles one user message in the given session and returns the
// assistant reply. Research failures degrade to generation without
// context rather than failing the turn.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, message string) (string, error) {
	session, ok := o.lookup(sessionID)
	if !ok {
		return "", fmt.Errorf("unknown session %q", sessionID)
	}

	o.appendMessage(session, Message{Role: "user", Content: message})

	var evidence []types.SearchMatch
	if wantsSearch(message) && session.Repository != "" {
		result, err := o.research.Search(ctx, session.Repository, message, o.searchLimit)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("session", sessionID).Msg("Repository search failed, answering without context")
		case len(result.Matches) == 0:
			log.Debug().Str("session", sessionID).Msg("Repository search returned no matches")
		default:
			evidence = result.Matches
			o.appendMessage(session, Message{
				Role:    "tool",
				Name:    "repository_search",
				Content: renderMatches(result.Matches),
			})
		}
	}

	reply, err := o.generate(ctx, message, evidence)
	if err != nil {
		return "", err
	}

	o.appendMessage(session, Message{Role: "assistant", Content: reply})
	return reply, nil
}

func (o *Orchestrator) generate(ctx context.Context, message string, evidence []types.SearchMatch) (string, error) {
	if o.generator == nil {
		if len(evidence) == 0 {
			return "No answer provider is configured and no repository context matched this message.", nil
		}
		return "Relevant repository excerpts:\n\n" + renderMatches(evidence), nil
	}

	reply, err := o.generator.Generate(ctx, message, evidence)
	if err != nil {
		if len(evidence) > 0 {
			log.Warn().Err(err).Msg("Answer generation failed, returning raw excerpts")
			return "Answer generation is unavailable. Relevant repository excerpts:\n\n" + renderMatches(evidence), nil
		}
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return reply, nil
}

func (o *Orchestrator) appendMessage(session *Session, msg Message) {
	msg.Timestamp = time.Now()
	o.mu.Lock()
	session.Messages = append(session.Messages, msg)
	session.LastActive = msg.Timestamp
	o.mu.Unlock()
}

func renderMatches(matches []types.SearchMatch) string {
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s (score %.2f)\n%s\n\n", m.FilePath, m.Score, m.Snippet)
	}
	return strings.TrimSpace(b.String())
}
