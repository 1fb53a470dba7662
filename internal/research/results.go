package research

import (
	"encoding/json"
	"strings"

	"github.com/openflux/openflux/pkg/types"
)

// Servers answer tools/call with either a structured payload or a
// content array of text blocks, depending on build. The decoders below
// accept both and fall back to the raw text so a response is never
// silently dropped.

// DecodeSearchResult turns a search tool result into typed matches.
// Zero matches is a valid outcome, not an error.
func DecodeSearchResult(repository, query string, result map[string]interface{}) *types.SearchResult {
	out := &types.SearchResult{
		Repository: repository,
		Query:      query,
	}

	hits, ok := result["results"].([]interface{})
	if !ok {
		// Some builds wrap the payload as JSON text inside the content
		// array.
		text := contentText(result)
		var embedded struct {
			Results []map[string]interface{} `json:"results"`
		}
		if text != "" && json.Unmarshal([]byte(text), &embedded) == nil && len(embedded.Results) > 0 {
			for _, hit := range embedded.Results {
				out.Matches = append(out.Matches, decodeMatch(hit))
			}
			return out
		}
		out.Raw = text
		return out
	}

	for _, item := range hits {
		hit, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out.Matches = append(out.Matches, decodeMatch(hit))
	}
	return out
}

func decodeMatch(hit map[string]interface{}) types.SearchMatch {
	m := types.SearchMatch{}
	for _, key := range []string{"file_path", "path", "file"} {
		if v, ok := hit[key].(string); ok && v != "" {
			m.FilePath = v
			break
		}
	}
	if score, ok := hit["score"].(float64); ok {
		m.Score = score
	}
	for _, key := range []string{"snippet", "content", "text", "chunk"} {
		if v, ok := hit[key].(string); ok && v != "" {
			m.Snippet = v
			break
		}
	}
	return m
}

// DecodeFileContent extracts file text from a fetch result.
func DecodeFileContent(repository, path string, result map[string]interface{}) *types.FileContent {
	content := contentText(result)
	if content == "" {
		if v, ok := result["content"].(string); ok {
			content = v
		}
	}
	return &types.FileContent{
		Repository: repository,
		Path:       path,
		Content:    content,
	}
}

// DecodeStructureListing turns a directory listing result into entries,
// one per non-empty line.
func DecodeStructureListing(repository string, result map[string]interface{}) *types.StructureListing {
	out := &types.StructureListing{Repository: repository}

	text := contentText(result)
	if text == "" {
		if v, ok := result["structure"].(string); ok {
			text = v
		}
	}
	out.Raw = text

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out.Entries = append(out.Entries, line)
		}
	}
	return out
}

// contentText joins the text blocks of an MCP content array.
func contentText(result map[string]interface{}) string {
	content, _ := result["content"].([]interface{})
	var parts []string
	for _, item := range content {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := entry["text"].(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
