package llm

import (
	"regexp"
	"strings"
)

var reFence = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z0-9_-]*[ \t]*$")

// ExtractJSONObject strips Markdown code fences and surrounding prose from a
// model reply and returns the first balanced top-level {...} object. ok is
// false when the reply holds no object at all.
func ExtractJSONObject(reply string) (string, bool) {
	s := reFence.ReplaceAllString(reply, "")
	s = strings.ReplaceAll(s, "```", "")

	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end := matchBrace(s, start); end > start {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}

	// unbalanced: fall back to first '{' .. last '}'
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		return s[i : j+1], true
	}
	return "", false
}

// matchBrace returns the index of the '}' closing the '{' at start, honoring
// JSON strings, or -1.
func matchBrace(s string, start int) int {
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
				return i
			}
		}
	}
	return -1
}
