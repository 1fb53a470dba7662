package research

// Package research maps the five logical repository-research operations
// onto whatever concrete tools the connected server actually advertises.
// Different server builds expose different literal tool names and
// argument key names for conceptually identical operations; the ordered
// candidate lists and per-tool argument builders below make the set of
// supported variants explicit.
import (
	"strings"

	"github.com/openflux/openflux/pkg/types"
)

// Operation identifies one caller-facing action independent of the
// concrete tool name that implements it.
type Operation string

const (
	OpIndex         Operation = "index"
	OpSearch        Operation = "search"
	OpFetchFile     Operation = "fetch_file"
	OpListStructure Operation = "list_structure"
	OpSearchCode    Operation = "search_code"
)

// CallParams carries every logical parameter an operation may need.
type CallParams struct {
	Repository string
	Query      string
	Limit      int
	Path       string
	Pattern    string
	FileType   string
}

// Ordered candidate tool names per operation. Order encodes preference:
// the current server build's name first, older and generic spellings
// after.
var (
	indexCandidates = []string{
		"create_research_repository",
		"index_repository",
		"index-repository",
		"index_repo",
		"index-repo",
		"repository_index",
		"repo_index",
		"clone_and_index",
		"clone-and-index",
	}

	searchCandidates = []string{
		"search_research_repository",
		"semantic_search",
		"semantic-search",
		"search",
		"search_repository",
		"search-repository",
		"repo_search",
		"repo-search",
		"query",
		"find",
	}

	fileCandidates = []string{
		"access_file",
		"get_file_content",
		"get-file-content",
		"file_content",
		"file-content",
		"read_file",
		"read-file",
		"get_file",
		"get-file",
	}

	structureCandidates = []string{
		"access_file",
		"get_repository_structure",
		"get-repository-structure",
		"repository_structure",
		"repository-structure",
		"repo_structure",
		"repo-structure",
		"list_files",
		"list-files",
		"tree",
	}

	codeSearchCandidates = []string{
		"search_code",
		"search-code",
		"code_search",
		"code-search",
		"grep",
		"find_code",
		"find-code",
		"pattern_search",
		"pattern-search",
	}
)

func candidatesFor(op Operation) []string {
	switch op {
	case OpIndex:
		return indexCandidates
	case OpSearch:
		return searchCandidates
	case OpFetchFile:
		return fileCandidates
	case OpListStructure:
		return structureCandidates
	case OpSearchCode:
		return codeSearchCandidates
	default:
		return nil
	}
}

// ResolveTool returns the first candidate for op present in the catalog.
// An empty catalog resolves nothing, which downstream surfaces as a
// capability gap, never a crash.
func ResolveTool(op Operation, catalog map[string]*types.Tool) (string, bool) {
	for _, name := range candidatesFor(op) {
		if _, ok := catalog[name]; ok {
			return name, true
		}
	}
	return "", false
}

// argBuilder produces the argument payload for one concrete tool name.
type argBuilder func(p CallParams) map[string]interface{}

// Per-operation builder tables, keyed by resolved tool name. Tools not
// listed take the generic shape the older server builds used.
var indexArgBuilders = map[string]argBuilder{
	// This tool expects the repository locator under repository_path.
	"create_research_repository": func(p CallParams) map[string]interface{} {
		return map[string]interface{}{"repository_path": p.Repository}
	},
}

var searchArgBuilders = map[string]argBuilder{
	// This tool addresses the previously produced index, not the
	// repository locator, and caps results via limit.
	"search_research_repository": func(p CallParams) map[string]interface{} {
		return map[string]interface{}{
			"index_path": p.Repository,
			"query":      p.Query,
			"limit":      p.Limit,
		}
	},
}

var fileArgBuilders = map[string]argBuilder{
	// access_file addresses files relative to where the server cloned
	// the repo, under a fixed "repository" subdirectory.
	"access_file": func(p CallParams) map[string]interface{} {
		return map[string]interface{}{
			"filepath": repoName(p.Repository) + "/repository/" + p.Path,
		}
	},
}

var structureArgBuilders = map[string]argBuilder{
	// Structure listing via the file tool pointed at the clone root.
	"access_file": func(p CallParams) map[string]interface{} {
		return map[string]interface{}{
			"filepath": repoName(p.Repository) + "/repository",
		}
	},
}

func genericIndexArgs(p CallParams) map[string]interface{} {
	return map[string]interface{}{"repository": p.Repository}
}

func genericSearchArgs(p CallParams) map[string]interface{} {
	return map[string]interface{}{
		"repository":  p.Repository,
		"query":       p.Query,
		"max_results": p.Limit,
	}
}

func genericFileArgs(p CallParams) map[string]interface{} {
	return map[string]interface{}{
		"repository": p.Repository,
		"file_path":  p.Path,
	}
}

func genericStructureArgs(p CallParams) map[string]interface{} {
	return map[string]interface{}{"repository": p.Repository}
}

func codeSearchArgs(p CallParams) map[string]interface{} {
	args := map[string]interface{}{
		"repository": p.Repository,
		"pattern":    p.Pattern,
	}
	if p.FileType != "" {
		args["file_type"] = p.FileType
	}
	return args
}

// BuildArgs maps the logical parameters onto the resolved tool's
// expected argument keys.
func BuildArgs(op Operation, toolName string, p CallParams) map[string]interface{} {
	var table map[string]argBuilder
	var generic argBuilder

	switch op {
	case OpIndex:
		table, generic = indexArgBuilders, genericIndexArgs
	case OpSearch:
		table, generic = searchArgBuilders, genericSearchArgs
	case OpFetchFile:
		table, generic = fileArgBuilders, genericFileArgs
	case OpListStructure:
		table, generic = structureArgBuilders, genericStructureArgs
	case OpSearchCode:
		table, generic = nil, codeSearchArgs
	default:
		return nil
	}

	if build, ok := table[toolName]; ok {
		return build(p)
	}
	return generic(p)
}

// repoName reduces a repository locator to the directory name the tool
// server clones into: the last path segment, .git suffix stripped.
func repoName(repository string) string {
	name := repository
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}
