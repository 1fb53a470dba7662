package mcpclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/openflux/pkg/types"
)

func TestClassifyCallResultSuccess(t *testing.T) {
	resp := &types.MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Result: map[string]interface{}{
			"content": []interface{}{
				map[string]interface{}{"type": "text", "text": "indexed"},
			},
		},
	}

	result, err := ClassifyCallResult(resp)
	require.NoError(t, err)
	assert.Contains(t, result, "content")
}

func TestClassifyCallResultNilResult(t *testing.T) {
	result, err := ClassifyCallResult(&types.MCPResponse{JSONRPC: "2.0", ID: 1})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClassifyCallResultTopLevelError(t *testing.T) {
	resp := &types.MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Error: &types.MCPError{
			Code:    types.MCPErrorMethodNotFound,
			Message: "Unknown tool: semantic_search",
		},
	}

	_, err := ClassifyCallResult(resp)
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, KindUnknownTool, toolErr.Kind)
	assert.Contains(t, toolErr.Message, "semantic_search")
}

func TestClassifyCallResultEmbeddedError(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind ToolErrorKind
	}{
		{"unknown tool", "Error: Unknown tool 'index_repo'", KindUnknownTool},
		{"not indexed", "repository is not indexed yet", KindNotIndexed},
		{"no index", "no index found for this repository", KindNotIndexed},
		{"generic", "upstream clone failed", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &types.MCPResponse{
				JSONRPC: "2.0",
				ID:      1,
				Result: map[string]interface{}{
					"isError": true,
					"content": []interface{}{
						map[string]interface{}{"type": "text", "text": tt.text},
					},
				},
			}

			_, err := ClassifyCallResult(resp)
			require.Error(t, err)

			var toolErr *ToolError
			require.True(t, errors.As(err, &toolErr))
			assert.Equal(t, tt.kind, toolErr.Kind)
			assert.Equal(t, tt.text, toolErr.Message)
		})
	}
}

func TestClassifyCallResultEmbeddedErrorWithoutText(t *testing.T) {
	resp := &types.MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Result: map[string]interface{}{
			"isError": true,
		},
	}

	_, err := ClassifyCallResult(resp)
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, KindGeneric, toolErr.Kind)
}

func TestClassifyCallResultNonObjectResult(t *testing.T) {
	resp := &types.MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Result:  "a bare string",
	}

	_, err := ClassifyCallResult(resp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestClassifyCallResultNilResponse(t *testing.T) {
	_, err := ClassifyCallResult(nil)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}
