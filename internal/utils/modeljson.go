package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseModelJSON unmarshals free-form model output into v. Vision-language
// models routinely wrap their JSON in markdown code fences or surround it
// with prose, so parsing is best-effort in a fixed order: strip fences and
// try the whole string, then fall back to the substring between the first
// '{' and the last '}'. Both failing is a real error.
func ParseModelJSON(raw string, v any) error {
	cleaned := StripCodeFences(raw)

	firstErr := json.Unmarshal([]byte(cleaned), v)
	if firstErr == nil {
		return nil
	}

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first >= 0 && last > first {
		if err := json.Unmarshal([]byte(cleaned[first:last+1]), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("model output is not valid JSON: %w", firstErr)
}

// StripCodeFences removes a surrounding ```json ... ``` (or bare ```) block
// if present. Anything else is returned trimmed but untouched.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	} else {
		return s
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
