package plan

import (
	"encoding/json"
	"strings"
)

// Extract locates the plan JSON inside raw model output. The first balanced
// array that is valid JSON wins; failing that, the first balanced object is
// wrapped as a one-element array. Brackets inside JSON strings are ignored.
func Extract(raw string) (string, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return "", &ParseError{Reason: "empty plan text"}
	}
	if s, ok := firstBalanced(t, '[', ']'); ok {
		return s, nil
	}
	if s, ok := firstBalanced(t, '{', '}'); ok {
		return "[" + s + "]", nil
	}
	return "", &ParseError{Reason: "no JSON array or object found", Excerpt: truncate(t, 120)}
}

func firstBalanced(s string, open, close byte) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != open {
			continue
		}
		end, ok := matchClose(s, i, open, close)
		if !ok {
			continue
		}
		cand := s[i : end+1]
		if json.Valid([]byte(cand)) {
			return cand, true
		}
	}
	return "", false
}

// matchClose returns the index of the bracket closing the one at start.
func matchClose(s string, start int, open, close byte) (int, bool) {
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
