package research

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/mcpclient"
	"github.com/openflux/openflux/pkg/types"
)

// Connection is the supervisor surface the invocation layer needs: a
// healthy connection, its catalog, and a way to call a concrete tool.
type Connection interface {
	EnsureConnected(ctx context.Context) error
	Catalog() map[string]*types.Tool
	RefreshCatalog(ctx context.Context) error
	Call(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error)
	NoteIndexed(repository string)
}

// Invoker resolves logical operations against the live catalog and runs
// them with the per-operation retry budget: indexing is retried at most
// once, search up to twice, everything else not at all. Each retry goes
// back through EnsureConnected so a dead subprocess is replaced before
// the next attempt.
type Invoker struct {
	conn       Connection
	retryPause time.Duration
}

// NewInvoker wires an invoker over a supervised connection.
func NewInvoker(conn Connection) *Invoker {
	return &Invoker{
		conn:       conn,
		retryPause: time.Second,
	}
}

// Index clones and indexes a repository on the tool server and records
// it in the per-connection indexed set.
func (inv *Invoker) Index(ctx context.Context, repository string) (map[string]interface{}, error) {
	result, err := inv.invoke(ctx, OpIndex, CallParams{Repository: repository}, 2)
	if err != nil {
		return nil, err
	}
	inv.conn.NoteIndexed(repository)
	return result, nil
}

// Search runs a semantic search. Zero matches yields an empty result,
// not an error.
func (inv *Invoker) Search(ctx context.Context, repository, query string, limit int) (*types.SearchResult, error) {
	result, err := inv.invoke(ctx, OpSearch, CallParams{
		Repository: repository,
		Query:      query,
		Limit:      limit,
	}, 3)
	if err != nil {
		return nil, err
	}
	decoded := DecodeSearchResult(repository, query, result)
	log.Debug().
		Str("repository", repository).
		Int("matches", len(decoded.Matches)).
		Msg("Search completed")
	return decoded, nil
}

// FetchFile retrieves one file from the server's clone of the repository.
func (inv *Invoker) FetchFile(ctx context.Context, repository, path string) (*types.FileContent, error) {
	result, err := inv.invoke(ctx, OpFetchFile, CallParams{
		Repository: repository,
		Path:       path,
	}, 1)
	if err != nil {
		return nil, err
	}
	return DecodeFileContent(repository, path, result), nil
}

// ListStructure lists the repository's file layout.
func (inv *Invoker) ListStructure(ctx context.Context, repository string) (*types.StructureListing, error) {
	result, err := inv.invoke(ctx, OpListStructure, CallParams{Repository: repository}, 1)
	if err != nil {
		return nil, err
	}
	return DecodeStructureListing(repository, result), nil
}

// SearchCode searches the repository for a literal pattern, optionally
// restricted by file type.
func (inv *Invoker) SearchCode(ctx context.Context, repository, pattern, fileType string) (*types.SearchResult, error) {
	result, err := inv.invoke(ctx, OpSearchCode, CallParams{
		Repository: repository,
		Pattern:    pattern,
		FileType:   fileType,
	}, 1)
	if err != nil {
		return nil, err
	}
	return DecodeSearchResult(repository, pattern, result), nil
}

// invoke is the shared resolve/build/call/retry loop. The final
// attempt's failure propagates unmodified.
func (inv *Invoker) invoke(ctx context.Context, op Operation, p CallParams, attempts int) (map[string]interface{}, error) {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			log.Warn().
				Str("operation", string(op)).
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Retrying tool invocation")
			select {
			case <-time.After(inv.retryPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := inv.conn.EnsureConnected(ctx); err != nil {
			lastErr = err
			continue
		}

		catalog := inv.conn.Catalog()
		name, ok := ResolveTool(op, catalog)
		if !ok {
			// A missing capability is not fixed by reconnecting.
			return nil, fmt.Errorf("%w: operation %s, server offers %v",
				mcpclient.ErrNoSuchTool, op, catalogNames(catalog))
		}

		result, err := inv.conn.Call(ctx, name, BuildArgs(op, name, p))
		if err == nil {
			return result, nil
		}
		lastErr = err

		var toolErr *mcpclient.ToolError
		if errors.As(err, &toolErr) && toolErr.Kind == mcpclient.KindUnknownTool {
			// The catalog lied about this name; rebuild it so the next
			// attempt resolves against what the server actually offers.
			log.Warn().Str("tool", name).Msg("Server rejected advertised tool, rediscovering catalog")
			if derr := inv.conn.RefreshCatalog(ctx); derr != nil {
				log.Warn().Err(derr).Msg("Catalog rediscovery failed")
			}
		}
	}
	return nil, lastErr
}

func catalogNames(catalog map[string]*types.Tool) []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
