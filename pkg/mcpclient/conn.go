package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/pkg/types"
)

// Conn frames JSON-RPC requests as one JSON object per line over a
// writer/reader pair (the subprocess's stdin/stdout). At most one
// request may be in flight at a time; the protocol is used strictly
// sequentially and responses are never multiplexed by id across
// concurrent calls. Lines that do not belong to the pending request
// (server notifications, orphaned late responses) are logged and
// discarded rather than assumed to pair FIFO.
type Conn struct {
	w       io.Writer
	writeMu sync.Mutex
	callMu  sync.Mutex
	timeout time.Duration

	nextID atomic.Int64

	// lines carries raw response lines from the reader goroutine to the
	// pending Call. Unbuffered: lines queue up in arrival order until the
	// next call consumes them.
	lines    chan []byte
	done     chan struct{}
	closed   atomic.Bool
	stopOnce sync.Once
}

const defaultRequestTimeout = 30 * time.Second

// maximum response line the scanner will accept
const maxLineBytes = 4 * 1024 * 1024

// NewConn starts the reader goroutine over r. timeout bounds each Call;
// zero means the 30s default.
func NewConn(w io.Writer, r io.Reader, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := &Conn{
		w:       w,
		timeout: timeout,
		lines:   make(chan []byte),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// NextID returns a fresh request id, unique for the lifetime of this
// connection.
func (c *Conn) NextID() int64 {
	return c.nextID.Add(1)
}

func (c *Conn) readLoop(r io.Reader) {
	defer close(c.lines)

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Scanner reuses its buffer, copy before handing off.
		out := make([]byte, len(line))
		copy(out, line)

		select {
		case c.lines <- out:
		case <-c.done:
			return
		}
	}

	if err := scanner.Err(); err != nil && !c.closed.Load() {
		log.Debug().Err(err).Msg("Tool server stdout closed")
	}
	c.stopOnce.Do(func() { close(c.done) })
}

// Call writes req as a single line and waits for the response line that
// carries its id. A request without an id is assigned one. Interleaved
// lines with no id or a non-matching id are discarded.
func (c *Conn) Call(ctx context.Context, req *types.MCPRequest) (*types.MCPResponse, error) {
	if c.closed.Load() {
		return nil, ErrTransportClosed
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if req.ID == nil {
		req.ID = c.NextID()
	}
	want := normalizeID(req.ID)

	if err := c.writeLine(req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return nil, ErrTransportClosed
			}
			var resp types.MCPResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			if resp.ID == nil {
				log.Debug().
					Str("method", resp.Method).
					Msg("Discarding unsolicited tool server notification")
				continue
			}
			if normalizeID(resp.ID) != want {
				log.Debug().
					Interface("id", resp.ID).
					Interface("want", req.ID).
					Msg("Discarding response for abandoned request")
				continue
			}
			return &resp, nil

		case <-timer.C:
			return nil, fmt.Errorf("%w: method %s after %s", ErrTimeout, req.Method, c.timeout)

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-c.done:
			return nil, ErrTransportClosed
		}
	}
}

// Notify writes a one-way notification. No id, no response wait.
func (c *Conn) Notify(req *types.MCPRequest) error {
	if c.closed.Load() {
		return ErrTransportClosed
	}
	req.ID = nil
	return c.writeLine(req)
}

func (c *Conn) writeLine(req *types.MCPRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	c.writeMu.Lock()
	_, err = c.w.Write(append(data, '\n'))
	c.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// Close marks the connection unusable. It does not close the underlying
// streams; the transport that owns the subprocess does that.
func (c *Conn) Close() {
	c.closed.Store(true)
	c.stopOnce.Do(func() { close(c.done) })
}

// normalizeID folds the numeric types JSON decoding produces into one
// comparable form (numbers unmarshal as float64).
func normalizeID(id interface{}) interface{} {
	switch v := id.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	default:
		return id
	}
}
