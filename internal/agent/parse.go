package agent

import (
	"encoding/json"
	"strings"

	"docqa/internal/domain"
)

var knownTools = map[string]struct{}{
	ToolRagSearch:        {},
	ToolSearchFolder:     {},
	ToolLiveCorpusSearch: {},
}

// ExtractToolCalls recovers tool calls that a model wrote as JSON inside
// plain text, e.g. `{"name": "rag_search", "arguments": {"query": "..."}}`.
// Objects naming unknown tools are ignored.
func ExtractToolCalls(text string) []domain.ToolCall {
	var calls []domain.ToolCall
	for i := 0; i < len(text); {
		start := strings.IndexAny(text[i:], "{[")
		if start < 0 {
			break
		}
		start += i

		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var raw any
		if err := dec.Decode(&raw); err != nil {
			i = start + 1
			continue
		}
		calls = append(calls, collectCalls(raw)...)
		i = start + int(dec.InputOffset())
	}
	return calls
}

func collectCalls(v any) []domain.ToolCall {
	switch v := v.(type) {
	case []any:
		var calls []domain.ToolCall
		for _, item := range v {
			calls = append(calls, collectCalls(item)...)
		}
		return calls
	case map[string]any:
		if nested, ok := v["tool_calls"]; ok {
			return collectCalls(nested)
		}
		if fn, ok := v["function"].(map[string]any); ok {
			return collectCalls(fn)
		}
		name := firstString(v, "name", "tool", "tool_name")
		if _, ok := knownTools[name]; !ok {
			return nil
		}
		return []domain.ToolCall{{Name: name, Arguments: argumentsOf(v)}}
	}
	return nil
}

func argumentsOf(obj map[string]any) string {
	for _, key := range []string{"arguments", "args", "parameters", "input"} {
		switch a := obj[key].(type) {
		case string:
			return a
		case map[string]any:
			data, err := json.Marshal(a)
			if err == nil {
				return string(data)
			}
		}
	}
	return "{}"
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
