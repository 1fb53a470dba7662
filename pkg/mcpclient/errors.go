package mcpclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openflux/openflux/pkg/types"
)

// Sentinel errors for the transport and connection lifecycle. Callers
// match them with errors.Is.
var (
	// ErrSpawnFailed means the server binary was missing or exited during
	// the startup grace window. The wrapped message carries captured stderr.
	ErrSpawnFailed = errors.New("tool server failed to start")

	// ErrHandshakeFailed means the initialize exchange broke.
	ErrHandshakeFailed = errors.New("tool server handshake failed")

	// ErrTransportClosed means the subprocess streams are no longer open.
	ErrTransportClosed = errors.New("transport closed")

	// ErrTimeout means no response line arrived within the request window.
	ErrTimeout = errors.New("timed out waiting for tool server response")

	// ErrMalformedResponse means a response line was not valid JSON.
	ErrMalformedResponse = errors.New("malformed tool server response")

	// ErrNoSuchTool means the connected server advertises none of the
	// candidate names for a logical operation. Reconnecting does not help.
	ErrNoSuchTool = errors.New("no matching tool available on server")
)

// ToolErrorKind classifies a domain error the server reported after
// executing (or refusing) a tool call.
type ToolErrorKind string

const (
	// KindUnknownTool: the server rejected the tool name.
	KindUnknownTool ToolErrorKind = "unknown_tool"
	// KindNotIndexed: the repository has not been indexed on the server.
	KindNotIndexed ToolErrorKind = "not_indexed"
	// KindGeneric: any other server-reported failure.
	KindGeneric ToolErrorKind = "generic"
)

// ToolError is a failure the server itself reported, surfaced verbatim
// plus a classified hint so callers can decide whether to retry,
// reconnect, or give up.
type ToolError struct {
	Kind    ToolErrorKind
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error (%s): %s", e.Kind, e.Message)
}

// ClassifyCallResult inspects a tools/call response for the two error
// conventions servers use: a top-level JSON-RPC error object, or a
// result carrying a content array with isError set. All shape and
// substring heuristics live here and nowhere else.
func ClassifyCallResult(resp *types.MCPResponse) (map[string]interface{}, error) {
	if resp == nil {
		return nil, ErrMalformedResponse
	}
	if resp.Error != nil {
		return nil, &ToolError{
			Kind:    classifyMessage(resp.Error.Message),
			Message: resp.Error.Message,
		}
	}

	if resp.Result == nil {
		return map[string]interface{}{}, nil
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: result is %T, not an object", ErrMalformedResponse, resp.Result)
	}

	if isErr, _ := result["isError"].(bool); isErr {
		msg := firstContentText(result)
		if msg == "" {
			msg = "tool call failed"
		}
		return nil, &ToolError{Kind: classifyMessage(msg), Message: msg}
	}

	return result, nil
}

// classifyMessage maps server error text onto a ToolErrorKind. The
// substrings mirror what the git-repo-research server actually emits.
func classifyMessage(msg string) ToolErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "unknown tool"):
		return KindUnknownTool
	case strings.Contains(lower, "not indexed"), strings.Contains(lower, "no index"):
		return KindNotIndexed
	default:
		return KindGeneric
	}
}

// firstContentText extracts the text of the first content element from a
// tools/call result, the place embedded error messages live.
func firstContentText(result map[string]interface{}) string {
	content, _ := result["content"].([]interface{})
	for _, item := range content {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := entry["text"].(string); ok {
			return text
		}
	}
	return ""
}
