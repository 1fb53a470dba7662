package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/openflux/internal/research"
	"github.com/openflux/openflux/pkg/mcpclient"
	"github.com/openflux/openflux/pkg/types"
)

func errResponse(t *testing.T, app *fiber.App, err error) (int, types.ErrorResponse) {
	t.Helper()
	app.Get("/fail", func(c fiber.Ctx) error {
		return writeError(c, err)
	})

	resp, testErr := app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)

	var parsed types.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	return resp.StatusCode, parsed
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid argument",
			err:        fmt.Errorf("%w: repository is required", research.ErrInvalidArgument),
			wantStatus: 400,
			wantCode:   "bad_request",
		},
		{
			name:       "no such tool",
			err:        fmt.Errorf("%w: operation index", mcpclient.ErrNoSuchTool),
			wantStatus: 501,
			wantCode:   "no_such_tool",
		},
		{
			name:       "timeout",
			err:        fmt.Errorf("%w: deadline elapsed", mcpclient.ErrTimeout),
			wantStatus: 504,
			wantCode:   "timeout",
		},
		{
			name:       "spawn failed",
			err:        mcpclient.ErrSpawnFailed,
			wantStatus: 503,
			wantCode:   "tool_server_unavailable",
		},
		{
			name:       "handshake failed",
			err:        mcpclient.ErrHandshakeFailed,
			wantStatus: 503,
			wantCode:   "tool_server_unavailable",
		},
		{
			name:       "transport closed",
			err:        mcpclient.ErrTransportClosed,
			wantStatus: 503,
			wantCode:   "tool_server_unavailable",
		},
		{
			name:       "tool error",
			err:        &mcpclient.ToolError{Kind: mcpclient.KindNotIndexed, Message: "repository not indexed"},
			wantStatus: 502,
			wantCode:   "tool_error",
		},
		{
			name:       "unclassified",
			err:        fmt.Errorf("something else"),
			wantStatus: 500,
			wantCode:   "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, parsed := errResponse(t, fiber.New(), tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, parsed.Code)
			assert.NotEmpty(t, parsed.Error)
			assert.False(t, parsed.Timestamp.IsZero())
		})
	}
}

func TestBadRequestHelper(t *testing.T) {
	app := fiber.New()
	app.Get("/bad", func(c fiber.Ctx) error {
		return badRequest(c, "Invalid request body")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/bad", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestNotFoundHelper(t *testing.T) {
	app := fiber.New()
	app.Get("/missing", func(c fiber.Ctx) error {
		return notFound(c, "Session not found")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}
