package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a model response carries no recognizable JSON value.
var ErrNoJSON = errors.New("llm: no JSON in response")

// StripFences removes a surrounding markdown code fence (```json ... ```).
func StripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		if nl := strings.IndexByte(trimmed, '\n'); nl > 0 {
			trimmed = trimmed[nl+1:]
		} else {
			trimmed = strings.TrimPrefix(trimmed, "```")
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// DecodeJSON parses a model reply into v. Code fences and surrounding prose are
// stripped and malformed JSON is passed through jsonrepair before giving up.
func DecodeJSON(content string, v any) error {
	text := StripFences(content)
	if text == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	if start, end := strings.IndexAny(text, "{["), strings.LastIndexAny(text, "}]"); start >= 0 && end > start {
		text = text[start : end+1]
		if err := json.Unmarshal([]byte(text), v); err == nil {
			return nil
		}
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return fmt.Errorf("repair model JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired model JSON: %w", err)
	}
	return nil
}

// RepairArguments returns args unchanged when it is a JSON object and a
// repaired copy otherwise. Empty arguments become "{}".
func RepairArguments(args json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), nil
	}
	// Some backends send arguments as a JSON string holding the object.
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			trimmed = strings.TrimSpace(inner)
		}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return json.RawMessage(trimmed), nil
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return nil, fmt.Errorf("repair tool arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}
	return json.RawMessage(repaired), nil
}
