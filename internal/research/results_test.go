package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textContent(blocks ...string) []interface{} {
	out := make([]interface{}, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, map[string]interface{}{"type": "text", "text": b})
	}
	return out
}

func TestDecodeSearchResultStructured(t *testing.T) {
	result := map[string]interface{}{
		"results": []interface{}{
			map[string]interface{}{
				"file_path": "src/runtime/proc.go",
				"score":     0.91,
				"snippet":   "func schedule() {",
			},
			map[string]interface{}{
				"path": "src/runtime/runtime2.go",
				"text": "type g struct {",
			},
		},
	}

	decoded := DecodeSearchResult("https://github.com/golang/go", "scheduler", result)
	require.Len(t, decoded.Matches, 2)

	assert.Equal(t, "src/runtime/proc.go", decoded.Matches[0].FilePath)
	assert.Equal(t, 0.91, decoded.Matches[0].Score)
	assert.Equal(t, "func schedule() {", decoded.Matches[0].Snippet)

	// alternate key spellings
	assert.Equal(t, "src/runtime/runtime2.go", decoded.Matches[1].FilePath)
	assert.Equal(t, "type g struct {", decoded.Matches[1].Snippet)
}

func TestDecodeSearchResultEmbeddedJSON(t *testing.T) {
	payload := `{"results": [{"file": "main.go", "chunk": "package main", "score": 0.5}]}`
	result := map[string]interface{}{
		"content": textContent(payload),
	}

	decoded := DecodeSearchResult("repo", "query", result)
	require.Len(t, decoded.Matches, 1)
	assert.Equal(t, "main.go", decoded.Matches[0].FilePath)
	assert.Equal(t, "package main", decoded.Matches[0].Snippet)
	assert.Equal(t, 0.5, decoded.Matches[0].Score)
}

func TestDecodeSearchResultNoMatches(t *testing.T) {
	decoded := DecodeSearchResult("repo", "query", map[string]interface{}{
		"content": textContent("No results found."),
	})

	assert.Empty(t, decoded.Matches)
	assert.Equal(t, "No results found.", decoded.Raw)
}

func TestDecodeSearchResultEmpty(t *testing.T) {
	decoded := DecodeSearchResult("repo", "query", map[string]interface{}{})
	assert.Empty(t, decoded.Matches)
	assert.Empty(t, decoded.Raw)
}

func TestDecodeFileContentFromContentArray(t *testing.T) {
	content := DecodeFileContent("repo", "main.go", map[string]interface{}{
		"content": textContent("package main", "func main() {}"),
	})

	assert.Equal(t, "repo", content.Repository)
	assert.Equal(t, "main.go", content.Path)
	assert.Equal(t, "package main\nfunc main() {}", content.Content)
}

func TestDecodeFileContentFromStringField(t *testing.T) {
	content := DecodeFileContent("repo", "main.go", map[string]interface{}{
		"content": "package main",
	})
	assert.Equal(t, "package main", content.Content)
}

func TestDecodeStructureListing(t *testing.T) {
	listing := DecodeStructureListing("repo", map[string]interface{}{
		"content": textContent("cmd/\ninternal/\n\nREADME.md\n"),
	})

	assert.Equal(t, []string{"cmd/", "internal/", "README.md"}, listing.Entries)
	assert.NotEmpty(t, listing.Raw)
}

func TestDecodeStructureListingFromStructureField(t *testing.T) {
	listing := DecodeStructureListing("repo", map[string]interface{}{
		"structure": "a.go\nb.go",
	})
	assert.Equal(t, []string{"a.go", "b.go"}, listing.Entries)
}
