package mcpclient

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/types"
)

// StdioTransport owns the research tool server subprocess and the line
// connection over its stdin/stdout. Created on connect, destroyed on
// disconnect; never reused after Close.
type StdioTransport struct {
	cfg types.ToolServerConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	conn   *Conn

	startedAt time.Time
	exited    atomic.Bool
	waitDone  chan struct{}
	waitErr   error

	stderrMu   sync.Mutex
	stderrTail []string

	closeOnce sync.Once
}

const (
	defaultStartupGrace  = 2 * time.Second
	defaultShutdownGrace = 5 * time.Second
	stderrTailLines      = 50
)

// NewStdioTransport spawns the configured command with the configured
// environment overrides and verifies it survives the startup grace
// window. On failure the partially started process is torn down and
// ErrSpawnFailed carries whatever the process wrote to stderr.
func NewStdioTransport(cfg types.ToolServerConfig) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrSpawnFailed)
	}

	t := &StdioTransport{
		cfg:      cfg,
		waitDone: make(chan struct{}),
	}
	if err := t.start(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *StdioTransport) start() error {
	log.Info().
		Str("command", t.cfg.Command).
		Strs("args", t.cfg.Args).
		Msg("Starting research tool server process")

	t.cmd = exec.Command(t.cfg.Command, t.cfg.Args...)

	if len(t.cfg.Env) > 0 {
		env := make([]string, 0, len(t.cfg.Env))
		for k, v := range t.cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		t.cmd.Env = append(t.cmd.Environ(), env...)
	}

	stdin, err := t.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err)
	}
	t.stdin = stdin

	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}
	t.stdout = stdout

	stderr, err := t.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailed, err)
	}

	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	t.startedAt = time.Now()

	go t.drainStderr(stderr)
	go func() {
		t.waitErr = t.cmd.Wait()
		t.exited.Store(true)
		close(t.waitDone)
	}()

	grace := t.cfg.StartupGrace
	if grace <= 0 {
		grace = defaultStartupGrace
	}

	select {
	case <-t.waitDone:
		tail := t.StderrTail()
		log.Error().
			Str("command", t.cfg.Command).
			Str("stderr", tail).
			Msg("Tool server process exited during startup")
		return fmt.Errorf("%w: process exited during startup (%v): %s", ErrSpawnFailed, t.waitErr, tail)
	case <-time.After(grace):
	}

	t.conn = NewConn(t.stdin, t.stdout, t.cfg.RequestTimeout)

	log.Info().
		Int("pid", t.cmd.Process.Pid).
		Msg("Research tool server process started")
	return nil
}

// drainStderr keeps the last lines of the subprocess's stderr so spawn
// and crash diagnostics can be surfaced.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug().
			Str("source", "tool-server-stderr").
			Str("line", line).
			Msg("Tool server stderr")

		t.stderrMu.Lock()
		t.stderrTail = append(t.stderrTail, line)
		if len(t.stderrTail) > stderrTailLines {
			t.stderrTail = t.stderrTail[len(t.stderrTail)-stderrTailLines:]
		}
		t.stderrMu.Unlock()
	}
}

// Conn returns the line connection over the process's stdio.
func (t *StdioTransport) Conn() *Conn {
	return t.conn
}

// Alive reports whether the subprocess is still running.
func (t *StdioTransport) Alive() bool {
	return t.cmd != nil && t.cmd.Process != nil && !t.exited.Load()
}

// PID returns the subprocess id, or 0 before it started.
func (t *StdioTransport) PID() int {
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// StartedAt returns when the subprocess was spawned.
func (t *StdioTransport) StartedAt() time.Time {
	return t.startedAt
}

// StderrTail returns the captured tail of the process's stderr.
func (t *StdioTransport) StderrTail() string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()
	return strings.Join(t.stderrTail, "\n")
}

// Ping performs a best-effort liveness probe: a bare write that needs no
// matching response. A write failure means the pipe is gone.
func (t *StdioTransport) Ping() error {
	if !t.Alive() || t.conn == nil {
		return ErrTransportClosed
	}
	return t.conn.Notify(&types.MCPRequest{
		JSONRPC: "2.0",
		Method:  "ping",
	})
}

// Close terminates the process: SIGTERM, a bounded wait, then SIGKILL.
// Idempotent.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.conn != nil {
			t.conn.Close()
		}
		if t.stdin != nil {
			_ = t.stdin.Close()
		}

		if t.cmd == nil || t.cmd.Process == nil || t.exited.Load() {
			return
		}

		grace := t.cfg.ShutdownGrace
		if grace <= 0 {
			grace = defaultShutdownGrace
		}

		log.Info().Int("pid", t.PID()).Msg("Terminating tool server process")
		_ = t.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-t.waitDone:
		case <-time.After(grace):
			log.Warn().Int("pid", t.PID()).Msg("Graceful termination timed out, force killing")
			_ = t.cmd.Process.Kill()
			<-t.waitDone
		}
	})
	return nil
}
