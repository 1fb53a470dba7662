package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/mcpclient"
	"github.com/openflux/openflux/pkg/types"
)

// Service is the blocking facade the rest of the application calls.
// Every operation is handed to one dedicated worker goroutine with an
// overall deadline; the caller blocks until the worker finishes or the
// deadline elapses. The worker is deliberately singular: the transport
// forbids concurrent in-flight requests, so this must never become a
// pool. A timed-out call abandons the wait (the late result is
// discarded into a buffered channel); it does not kill the subprocess.
type Service struct {
	inv *Invoker

	jobs      chan job
	quit      chan struct{}
	closeOnce sync.Once

	indexTimeout time.Duration
	callTimeout  time.Duration
}

type job struct {
	ctx    context.Context
	run    func(ctx context.Context) (interface{}, error)
	result chan outcome
}

type outcome struct {
	value interface{}
	err   error
}

const (
	defaultIndexTimeout = 120 * time.Second
	defaultCallTimeout  = 60 * time.Second
)

// ErrInvalidArgument rejects malformed caller input before it reaches
// the protocol.
var ErrInvalidArgument = errors.New("invalid argument")

// NewService starts the worker and returns the facade.
func NewService(conn Connection) *Service {
	s := &Service{
		inv:          NewInvoker(conn),
		jobs:         make(chan job),
		quit:         make(chan struct{}),
		indexTimeout: defaultIndexTimeout,
		callTimeout:  defaultCallTimeout,
	}
	go s.worker()
	return s
}

func (s *Service) worker() {
	for {
		select {
		case j := <-s.jobs:
			value, err := j.run(j.ctx)
			// Buffered: delivery never blocks if the caller already
			// abandoned the wait.
			j.result <- outcome{value: value, err: err}
		case <-s.quit:
			return
		}
	}
}

func (s *Service) do(ctx context.Context, timeout time.Duration, run func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	j := job{ctx: ctx, run: run, result: make(chan outcome, 1)}

	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: worker busy", mcpclient.ErrTimeout)
	case <-s.quit:
		return nil, mcpclient.ErrTransportClosed
	}

	select {
	case out := <-j.result:
		return out.value, out.err
	case <-ctx.Done():
		log.Warn().Dur("timeout", timeout).Msg("Facade call deadline elapsed, abandoning wait")
		return nil, fmt.Errorf("%w: operation deadline %s elapsed", mcpclient.ErrTimeout, timeout)
	}
}

// IndexRepository indexes a repository for semantic search. Blocking.
func (s *Service) IndexRepository(ctx context.Context, repository string) (map[string]interface{}, error) {
	if repository == "" {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidArgument)
	}
	value, err := s.do(ctx, s.indexTimeout, func(ctx context.Context) (interface{}, error) {
		return s.inv.Index(ctx, repository)
	})
	if err != nil {
		return nil, err
	}
	return value.(map[string]interface{}), nil
}

// Search performs a semantic search over an indexed repository. Blocking.
func (s *Service) Search(ctx context.Context, repository, query string, limit int) (*types.SearchResult, error) {
	if repository == "" || query == "" {
		return nil, fmt.Errorf("%w: repository and query are required", ErrInvalidArgument)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, limit)
	}
	value, err := s.do(ctx, s.callTimeout, func(ctx context.Context) (interface{}, error) {
		return s.inv.Search(ctx, repository, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return value.(*types.SearchResult), nil
}

// FetchFile retrieves one file from the repository. Blocking.
func (s *Service) FetchFile(ctx context.Context, repository, path string) (*types.FileContent, error) {
	if repository == "" || path == "" {
		return nil, fmt.Errorf("%w: repository and path are required", ErrInvalidArgument)
	}
	value, err := s.do(ctx, s.callTimeout, func(ctx context.Context) (interface{}, error) {
		return s.inv.FetchFile(ctx, repository, path)
	})
	if err != nil {
		return nil, err
	}
	return value.(*types.FileContent), nil
}

// ListStructure lists the repository's file layout. Blocking.
func (s *Service) ListStructure(ctx context.Context, repository string) (*types.StructureListing, error) {
	if repository == "" {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidArgument)
	}
	value, err := s.do(ctx, s.callTimeout, func(ctx context.Context) (interface{}, error) {
		return s.inv.ListStructure(ctx, repository)
	})
	if err != nil {
		return nil, err
	}
	return value.(*types.StructureListing), nil
}

// SearchCode searches for a code pattern. Blocking.
func (s *Service) SearchCode(ctx context.Context, repository, pattern, fileType string) (*types.SearchResult, error) {
	if repository == "" || pattern == "" {
		return nil, fmt.Errorf("%w: repository and pattern are required", ErrInvalidArgument)
	}
	value, err := s.do(ctx, s.callTimeout, func(ctx context.Context) (interface{}, error) {
		return s.inv.SearchCode(ctx, repository, pattern, fileType)
	})
	if err != nil {
		return nil, err
	}
	return value.(*types.SearchResult), nil
}

// Close stops the worker. In-flight work finishes; new calls fail.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}
