package refine

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

// parsePayload extracts a JSON value from model output. It tries a direct
// decode, then the first balanced object in the text, then a lenient repair.
// A nil result means nothing usable was found.
func parsePayload(content string) any {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if v, ok := decode(content); ok {
		return v
	}

	candidate, found := firstObject(content)
	if found {
		if v, ok := decode(candidate); ok {
			return v
		}
	}

	if !strings.Contains(content, "{") {
		return nil
	}
	if !found {
		candidate = content[strings.Index(content, "{"):]
	}

	repaired, err := jsonrepair.RepairJSON(candidate)
	if err != nil {
		return nil
	}
	if v, ok := decode(repaired); ok {
		return v
	}
	return nil
}

func decode(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// firstObject returns the first brace-balanced object in s, ignoring braces
// inside string literals.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
