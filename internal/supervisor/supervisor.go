package supervisor

// Package supervisor owns the tool server subprocess lifecycle: spawn,
// handshake, health monitoring, and reconnect-on-failure. Every state
// transition and every touch of the shared transport or catalog goes
// through one mutex, so a background health sweep racing a user-facing
// call can never interleave connect/disconnect logic.
import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/openflux/openflux/internal/metrics"
	"github.com/openflux/openflux/pkg/mcpclient"
	"github.com/openflux/openflux/pkg/types"
)

// ConnectionState is the supervisor's lifecycle state.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Unhealthy
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

const (
	defaultHealthInterval = 30 * time.Second
	defaultIdleProbeAfter = 5 * time.Minute
	defaultSweepRate      = time.Minute
	handshakeTimeout      = 30 * time.Second
)

// Supervisor supervises exactly one tool server subprocess. Each
// instance owns its own process; instances are independent.
type Supervisor struct {
	cfg       types.ToolServerConfig
	collector *metrics.Collector

	mu     sync.Mutex
	state  ConnectionState
	client *mcpclient.Client

	lastHealthCheck  time.Time
	lastHealthResult bool
	lastActivity     time.Time

	// indexed tracks repositories indexed during this connection's
	// lifetime. Advisory only, cleared on disconnect: the server's own
	// index storage is outside our control and a fresh process may not
	// see prior indexes.
	indexed map[string]struct{}

	// spawnBreaker stops a crashing server binary from being respawned
	// in a tight loop.
	spawnBreaker *gobreaker.CircuitBreaker

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// New builds a supervisor for the given server launch configuration.
// The collector may be nil.
func New(cfg types.ToolServerConfig, collector *metrics.Collector) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		collector: collector,
		state:     Disconnected,
		indexed:   make(map[string]struct{}),
		sweepStop: make(chan struct{}),
	}

	s.spawnBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tool-server-spawn",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Spawn circuit breaker state changed")
		},
	})

	return s
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the subprocess id, or 0 when disconnected.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return 0
	}
	return s.client.PID()
}

// Connect establishes the connection. Idempotent: already connected and
// healthy means no work.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Connected && s.checkHealthLocked() {
		log.Debug().Msg("Already connected and healthy")
		return nil
	}
	return s.connectLocked(ctx)
}

// connectLocked spawns, shakes hands, and discovers tools. Any failure
// tears the partial subprocess down and leaves state Disconnected.
// Caller holds the lock.
func (s *Supervisor) connectLocked(ctx context.Context) error {
	s.teardownLocked()
	s.setStateLocked(Connecting)

	_, err := s.spawnBreaker.Execute(func() (interface{}, error) {
		client, err := mcpclient.NewClient(s.cfg)
		if err != nil {
			return nil, err
		}

		hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()

		if err := client.Initialize(hctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		// Discovery failure degrades to an empty catalog; the
		// connection itself stays usable.
		if err := client.DiscoverTools(hctx); err != nil {
			log.Warn().Err(err).Msg("Connected with empty tool catalog")
		}

		s.client = client
		return nil, nil
	})
	if err != nil {
		s.teardownLocked()
		s.setStateLocked(Disconnected)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: spawn suppressed after repeated failures: %v", mcpclient.ErrSpawnFailed, err)
		}
		return err
	}

	now := time.Now()
	s.lastActivity = now
	s.lastHealthCheck = now
	s.lastHealthResult = true
	s.setStateLocked(Connected)

	log.Info().Int("pid", s.client.PID()).Msg("Tool server connected")
	return nil
}

// Disconnect terminates the subprocess and clears per-connection state.
// Idempotent.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.setStateLocked(Disconnected)
}

// teardownLocked closes the client if present and clears the indexed
// set. Caller holds the lock.
func (s *Supervisor) teardownLocked() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
		log.Info().Msg("Tool server disconnected")
	}
	s.indexed = make(map[string]struct{})
	s.lastHealthResult = false
}

// CheckHealth reports whether the connection is usable. Re-evaluation is
// rate-limited; between evaluations the last known result is returned
// without touching the subprocess.
func (s *Supervisor) CheckHealth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkHealthLocked()
}

func (s *Supervisor) checkHealthLocked() bool {
	if s.state != Connected || s.client == nil {
		return false
	}

	interval := s.cfg.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	if time.Since(s.lastHealthCheck) < interval {
		return s.lastHealthResult
	}
	s.lastHealthCheck = time.Now()

	if !s.client.Alive() {
		log.Warn().Msg("Tool server process died")
		s.setStateLocked(Unhealthy)
		s.lastHealthResult = false
		return false
	}

	idleAfter := s.cfg.IdleProbeAfter
	if idleAfter <= 0 {
		idleAfter = defaultIdleProbeAfter
	}
	if time.Since(s.lastActivity) > idleAfter {
		log.Info().Msg("Connection idle, probing tool server")
		if err := s.client.Ping(); err != nil {
			log.Warn().Err(err).Msg("Idle probe failed")
			s.setStateLocked(Unhealthy)
			s.lastHealthResult = false
			return false
		}
		s.lastActivity = time.Now()
	}

	s.lastHealthResult = true
	return true
}

// EnsureConnected is the composite used before every tool call: connect
// if disconnected, reconnect if unhealthy, otherwise nothing.
func (s *Supervisor) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Connected && s.checkHealthLocked():
		return nil
	case s.state == Connected || s.state == Unhealthy:
		log.Info().Str("state", s.state.String()).Msg("Connection unhealthy, reconnecting")
		if s.collector != nil {
			s.collector.RecordReconnect()
		}
		return s.connectLocked(ctx)
	default:
		return s.connectLocked(ctx)
	}
}

// Call invokes a concrete tool over the supervised connection. A
// transport-level failure marks the connection unhealthy so the next
// EnsureConnected replaces it.
func (s *Supervisor) Call(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected || s.client == nil {
		return nil, fmt.Errorf("%w: not connected", mcpclient.ErrTransportClosed)
	}

	start := time.Now()
	result, err := s.client.CallTool(ctx, tool, args)
	s.lastActivity = time.Now()

	if s.collector != nil {
		s.collector.RecordToolCall(tool, err == nil, time.Since(start))
	}

	if err != nil && isTransportError(err) {
		log.Warn().Err(err).Str("tool", tool).Msg("Transport failure during tool call")
		s.setStateLocked(Unhealthy)
	}
	return result, err
}

// RefreshCatalog re-runs tool discovery on the live connection. Used
// when the server rejects a name the current catalog advertises.
func (s *Supervisor) RefreshCatalog(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected || s.client == nil {
		return fmt.Errorf("%w: not connected", mcpclient.ErrTransportClosed)
	}
	return s.client.DiscoverTools(ctx)
}

// Catalog returns the current connection's tool catalog.
func (s *Supervisor) Catalog() map[string]*types.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return map[string]*types.Tool{}
	}
	return s.client.Tools()
}

// NoteIndexed records a successful index for this connection.
func (s *Supervisor) NoteIndexed(repository string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed[repository] = struct{}{}
}

// IsIndexed reports whether the repository was indexed on this
// connection. Advisory, not a precondition.
func (s *Supervisor) IsIndexed(repository string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indexed[repository]
	return ok
}

// IndexedRepositories lists the repositories indexed on this connection.
func (s *Supervisor) IndexedRepositories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.indexed))
	for repo := range s.indexed {
		out = append(out, repo)
	}
	return out
}

// StartHealthSweep runs periodic health checks until StopHealthSweep.
// A sweep that finds the connection unhealthy triggers the same
// reconnect path a user-facing call would.
func (s *Supervisor) StartHealthSweep() {
	rate := s.cfg.HealthSweepRate
	if rate <= 0 {
		rate = defaultSweepRate
	}

	go func() {
		ticker := time.NewTicker(rate)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if s.CheckHealth() {
					continue
				}
				if s.State() != Unhealthy {
					continue
				}
				log.Info().Msg("Health sweep found unhealthy connection, reconnecting")
				ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout+defaultStartup(s.cfg))
				if err := s.EnsureConnected(ctx); err != nil {
					log.Warn().Err(err).Msg("Health sweep reconnect failed")
				}
				cancel()
			case <-s.sweepStop:
				return
			}
		}
	}()
}

// StopHealthSweep stops the background sweep. Idempotent.
func (s *Supervisor) StopHealthSweep() {
	s.sweepOnce.Do(func() { close(s.sweepStop) })
}

func (s *Supervisor) setStateLocked(next ConnectionState) {
	if s.state == next {
		return
	}
	log.Debug().
		Str("from", s.state.String()).
		Str("to", next.String()).
		Msg("Connection state transition")
	s.state = next
	if s.collector != nil {
		s.collector.SetConnectionState(next.String())
	}
}

// isTransportError reports whether err means the connection itself is
// suspect, as opposed to a domain error the server returned on purpose.
func isTransportError(err error) bool {
	return errors.Is(err, mcpclient.ErrTransportClosed) ||
		errors.Is(err, mcpclient.ErrTimeout) ||
		errors.Is(err, mcpclient.ErrMalformedResponse)
}

func defaultStartup(cfg types.ToolServerConfig) time.Duration {
	if cfg.StartupGrace > 0 {
		return cfg.StartupGrace
	}
	return 2 * time.Second
}
