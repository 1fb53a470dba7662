package answer

// Package answer turns retrieved repository context into a natural
// language reply. Generation is delegated to an LLM provider; when no
// provider is configured or all providers fail, the caller falls back
// to rendering the raw search matches.
import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/types"
)

// Generator produces an answer to a question given supporting context
// extracted from an indexed repository.
type Generator interface {
	Generate(ctx context.Context, question string, evidence []types.SearchMatch) (string, error)
	HealthCheck(ctx context.Context) error
	Model() string
}

// FromConfig builds a generator chain from configuration. Returns nil
// when no provider is configured; chat then degrades to raw excerpts.
func FromConfig(cfg types.LLMConfig) Generator {
	primary := buildProvider(cfg.Primary)
	fallback := buildProvider(cfg.Fallback)

	switch {
	case primary == nil && fallback == nil:
		return nil
	case primary == nil:
		return fallback
	case fallback == nil:
		return primary
	default:
		return NewFallbackGenerator(primary, fallback)
	}
}

func buildProvider(cfg types.LLMProviderConfig) Generator {
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = d
		} else {
			log.Warn().Str("timeout", cfg.Timeout).Msg("Invalid provider timeout, using default")
		}
	}

	switch cfg.Provider {
	case "openai", "openai-compatible":
		return NewOpenAIProvider(cfg.Endpoint, cfg.APIKey, cfg.Model, timeout)
	case "ollama":
		return NewOllamaProvider(cfg.Endpoint, cfg.Model, timeout)
	case "":
		return nil
	default:
		log.Warn().Str("provider", cfg.Provider).Msg("Unknown answer provider, ignoring")
		return nil
	}
}

const systemPrompt = `You are a code research assistant. Answer the user's question about a source repository using ONLY the provided excerpts.

Rules:
- Cite file paths when you reference code
- If the excerpts do not contain the answer, say so plainly
- Keep answers concise and technical`

// buildUserPrompt assembles the question plus its supporting excerpts.
func buildUserPrompt(question string, evidence []types.SearchMatch) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nRepository excerpts:\n")
	for i, m := range evidence {
		fmt.Fprintf(&b, "\n--- excerpt %d (%s) ---\n%s\n", i+1, m.FilePath, m.Snippet)
	}
	return b.String()
}

// FallbackGenerator tries primary, falls back to secondary. The
// switch-over flag is atomic: chat handlers call Generate concurrently.
type FallbackGenerator struct {
	primary     Generator
	fallback    Generator
	useFallback atomic.Bool
}

// NewFallbackGenerator creates a generator with primary/fallback
func NewFallbackGenerator(primary, fallback Generator) *FallbackGenerator {
	return &FallbackGenerator{
		primary:  primary,
		fallback: fallback,
	}
}

// Generate tries primary, falls back to secondary
func (f *FallbackGenerator) Generate(ctx context.Context, question string, evidence []types.SearchMatch) (string, error) {
	if !f.useFallback.Load() {
		text, err := f.primary.Generate(ctx, question, evidence)
		if err == nil {
			return text, nil
		}

		log.Warn().Err(err).Msg("Primary answer provider failed, switching to fallback")
		f.useFallback.Store(true)
	}

	if f.fallback != nil {
		log.Info().Msg("Using fallback answer provider")
		return f.fallback.Generate(ctx, question, evidence)
	}

	return "", fmt.Errorf("all answer providers failed")
}

// HealthCheck checks the active provider
func (f *FallbackGenerator) HealthCheck(ctx context.Context) error {
	if f.useFallback.Load() && f.fallback != nil {
		return f.fallback.HealthCheck(ctx)
	}
	return f.primary.HealthCheck(ctx)
}

// Model returns the active provider's model name
func (f *FallbackGenerator) Model() string {
	if f.useFallback.Load() && f.fallback != nil {
		return f.fallback.Model()
	}
	return f.primary.Model()
}
