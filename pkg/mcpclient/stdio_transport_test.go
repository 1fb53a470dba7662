package mcpclient

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/openflux/pkg/types"
)

// catConfig spawns cat, which echoes every request line back verbatim.
// An echoed request carries the request's own id, so it doubles as a
// well-formed response for handshake-level tests.
func catConfig() types.ToolServerConfig {
	return types.ToolServerConfig{
		Command:       "cat",
		StartupGrace:  50 * time.Millisecond,
		ShutdownGrace: time.Second,
	}
}

func TestStdioTransportSpawn(t *testing.T) {
	transport, err := NewStdioTransport(catConfig())
	require.NoError(t, err)
	defer transport.Close()

	assert.True(t, transport.Alive())
	assert.NotZero(t, transport.PID())
	assert.False(t, transport.StartedAt().IsZero())
	require.NotNil(t, transport.Conn())
}

func TestStdioTransportEmptyCommand(t *testing.T) {
	_, err := NewStdioTransport(types.ToolServerConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
}

func TestStdioTransportMissingBinary(t *testing.T) {
	_, err := NewStdioTransport(types.ToolServerConfig{
		Command:      "definitely-not-a-real-binary-xyz",
		StartupGrace: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
}

func TestStdioTransportExitDuringGrace(t *testing.T) {
	_, err := NewStdioTransport(types.ToolServerConfig{
		Command:      "false",
		StartupGrace: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
}

func TestStdioTransportSpawnFailureCarriesStderr(t *testing.T) {
	_, err := NewStdioTransport(types.ToolServerConfig{
		Command:      "sh",
		Args:         []string{"-c", "echo 'boom: missing credentials' >&2; exit 3"},
		StartupGrace: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
	assert.Contains(t, err.Error(), "missing credentials")
}

func TestStdioTransportClose(t *testing.T) {
	transport, err := NewStdioTransport(catConfig())
	require.NoError(t, err)

	require.NoError(t, transport.Close())
	assert.False(t, transport.Alive())

	// Idempotent
	require.NoError(t, transport.Close())
}

func TestStdioTransportPing(t *testing.T) {
	transport, err := NewStdioTransport(catConfig())
	require.NoError(t, err)
	defer transport.Close()

	assert.NoError(t, transport.Ping())
}

func TestStdioTransportPingAfterClose(t *testing.T) {
	transport, err := NewStdioTransport(catConfig())
	require.NoError(t, err)
	require.NoError(t, transport.Close())

	assert.True(t, errors.Is(transport.Ping(), ErrTransportClosed))
}
