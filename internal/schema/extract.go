package schema

import (
	"encoding/json"
	"errors"
)

// ErrNoJSON is returned when no JSON value can be recovered from model output.
var ErrNoJSON = errors.New("schema: no JSON value found in text")

// ExtractJSON leniently parses model output. Strict parsing is tried first;
// if the text is not valid JSON, the first balanced {...} span is extracted
// and parsed instead (models occasionally wrap the object in prose or code
// fences despite the JSON-only directive).
func ExtractJSON(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		return value, nil
	}

	span, ok := firstObjectSpan(text)
	if !ok {
		return nil, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(span), &value); err != nil {
		return nil, ErrNoJSON
	}
	return value, nil
}

// firstObjectSpan returns the first balanced top-level {...} span, tracking
// string literals and escapes so braces inside strings don't count.
func firstObjectSpan(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return "", false
}
