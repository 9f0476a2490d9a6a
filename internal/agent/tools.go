// Package agent runs the tool-calling loop in which a generative model
// searches the corpus and then answers.
package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

const (
	ToolRagSearch        = "rag_search"
	ToolSearchFolder     = "search_folder"
	ToolLiveCorpusSearch = "live_corpus_search"
)

// Tool is one of the closed set of tools the model may request. The
// unexported method keeps the set sealed to this package.
type Tool interface {
	Name() string
	args() map[string]string
}

// RagSearch runs hybrid retrieval over the whole corpus.
type RagSearch struct {
	Query string
}

// SearchFolder runs retrieval restricted to a folder, or lists the folder
// when Query is empty.
type SearchFolder struct {
	FolderPattern string
	Query         string
}

// LiveCorpusSearch looks documents up by name in the live corpus.
type LiveCorpusSearch struct {
	SearchTerm string
}

func (RagSearch) Name() string        { return ToolRagSearch }
func (SearchFolder) Name() string     { return ToolSearchFolder }
func (LiveCorpusSearch) Name() string { return ToolLiveCorpusSearch }

func (t RagSearch) args() map[string]string {
	return map[string]string{"query": t.Query}
}

func (t SearchFolder) args() map[string]string {
	return map[string]string{"folder_pattern": t.FolderPattern, "query": t.Query}
}

func (t LiveCorpusSearch) args() map[string]string {
	return map[string]string{"search_term": t.SearchTerm}
}

// ParseToolCall decodes a model tool call into its typed variant.
func ParseToolCall(call domain.ToolCall) (Tool, error) {
	raw := map[string]any{}
	if s := strings.TrimSpace(call.Arguments); s != "" {
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
		}
	}
	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				switch v := v.(type) {
				case string:
					return strings.TrimSpace(v)
				case nil:
				default:
					return strings.TrimSpace(fmt.Sprint(v))
				}
			}
		}
		return ""
	}

	switch call.Name {
	case ToolRagSearch:
		q := str("query", "q")
		if q == "" {
			return nil, fmt.Errorf("%s requires a non-empty query", ToolRagSearch)
		}
		return RagSearch{Query: q}, nil
	case ToolSearchFolder:
		folder := str("folder_pattern", "folder", "folder_name")
		if folder == "" {
			return nil, fmt.Errorf("%s requires folder_pattern", ToolSearchFolder)
		}
		return SearchFolder{FolderPattern: folder, Query: str("query", "q")}, nil
	case ToolLiveCorpusSearch:
		term := str("search_term", "query", "term")
		if term == "" {
			return nil, fmt.Errorf("%s requires search_term", ToolLiveCorpusSearch)
		}
		return LiveCorpusSearch{SearchTerm: term}, nil
	}
	return nil, fmt.Errorf("%w %q", domain.ErrUnknownTool, call.Name)
}

// CanonicalKey identifies a tool call for duplicate detection. Argument
// values are case-folded and whitespace-collapsed; keys are sorted.
func CanonicalKey(t Tool) string {
	args := t.args()
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(t.Name())
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.ToLower(strings.Join(strings.Fields(args[k]), " ")))
	}
	return b.String()
}

// Specs returns the tool schemas offered to the model.
func Specs() []port.ToolSpec {
	return []port.ToolSpec{
		{
			Name:        ToolRagSearch,
			Description: "Search all indexed documents for passages relevant to a question. Returns a JSON array of {source_path, snippet, relevance} or a status object.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "What to search for, in natural language."},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolSearchFolder,
			Description: "Search within one folder. Omit query to list the files in the folder.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"folder_pattern": map[string]any{"type": "string", "description": "Folder name, path prefix or glob."},
					"query":          map[string]any{"type": "string", "description": "Optional question to search for inside the folder."},
				},
				"required": []string{"folder_pattern"},
			},
		},
		{
			Name:        ToolLiveCorpusSearch,
			Description: "Find documents by name in the live corpus. Returns a JSON array of {name, link}.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"search_term": map[string]any{"type": "string", "description": "Words from the document name."},
				},
				"required": []string{"search_term"},
			},
		},
	}
}
