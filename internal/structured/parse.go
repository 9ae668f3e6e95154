package structured

import (
	"encoding/json"
	"strings"
)

// ParseObject extracts a single JSON object from a model reply. Markdown code
// fences are stripped; if the reply still is not an object, the text between
// the first '{' and the last '}' is tried.
func ParseObject(reply string) (map[string]any, error) {
	text := stripFences(strings.TrimSpace(reply))
	if text == "" {
		return nil, &ValidationError{Reason: "empty reply"}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, &ValidationError{Reason: "reply is not a JSON object"}
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil || obj == nil {
		return nil, &ValidationError{Reason: "reply is not a JSON object"}
	}
	return obj, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag line
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
