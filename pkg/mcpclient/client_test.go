package mcpclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/openflux/pkg/types"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := catConfig()
	cfg.RequestTimeout = 2 * time.Second

	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientInitialize(t *testing.T) {
	client := newTestClient(t)

	// cat echoes the initialize request back; the echo carries the
	// request id and no error, which is a valid (if empty) response.
	require.NoError(t, client.Initialize(context.Background()))

	// Idempotent once initialized.
	require.NoError(t, client.Initialize(context.Background()))
}

func TestClientDiscoverToolsEmptyCatalog(t *testing.T) {
	client := newTestClient(t)
	require.NoError(t, client.Initialize(context.Background()))

	require.NoError(t, client.DiscoverTools(context.Background()))
	assert.Empty(t, client.Tools())
}

func TestClientDiscoveryBeforeHandshake(t *testing.T) {
	client := newTestClient(t)

	err := client.DiscoverTools(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshakeFailed))
}

func TestClientCallToolBeforeHandshake(t *testing.T) {
	client := newTestClient(t)

	_, err := client.CallTool(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshakeFailed))
}

func TestClientCallTool(t *testing.T) {
	client := newTestClient(t)
	require.NoError(t, client.Initialize(context.Background()))

	// The echoed tools/call request has a matching id and no result,
	// which classifies as an empty success.
	result, err := client.CallTool(context.Background(), "create_research_repository", map[string]interface{}{
		"repository_path": "https://github.com/golang/go",
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClientLifecycleAccessors(t *testing.T) {
	client := newTestClient(t)

	assert.True(t, client.Alive())
	assert.NotZero(t, client.PID())
	assert.Nil(t, client.ServerInfo())

	require.NoError(t, client.Close())
	assert.False(t, client.Alive())
	assert.Empty(t, client.Tools())
}

func TestClientInitializeFailsWhenServerDead(t *testing.T) {
	client := newTestClient(t)
	require.NoError(t, client.Close())

	err := client.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshakeFailed))
}

func TestClientSpawnFailurePropagates(t *testing.T) {
	_, err := NewClient(types.ToolServerConfig{
		Command:      "false",
		StartupGrace: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
}
