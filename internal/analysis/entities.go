package analysis

import (
	"html"
	"strings"
	"unicode/utf8"
)

// placeholders are filler answers models give for "nothing found".
var placeholders = map[string]bool{
	"":                true,
	"-":               true,
	"none":            true,
	"none reported":   true,
	"none noted":      true,
	"n/a":             true,
	"na":              true,
	"nil":             true,
	"null":            true,
	"unknown":         true,
	"not applicable":  true,
	"not mentioned":   true,
	"not specified":   true,
	"not available":   true,
	"not provided":    true,
	"see summary":     true,
	"see report":      true,
	"no data":         true,
	"no information":  true,
	"none documented": true,
}

// clean strips markup and collapses whitespace.
func (e *Engine) clean(s string) string {
	s = html.UnescapeString(e.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// cleanList trims, drops placeholders and removes case-insensitive duplicates,
// keeping the first spelling in original order.
func (e *Engine) cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.Trim(e.clean(it), " .;,")
		key := strings.ToLower(it)
		if isPlaceholder(key) || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

func isPlaceholder(lower string) bool {
	return placeholders[strings.Trim(lower, " .")]
}

func clipRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)[:limit]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)*3/4 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// documentLead is the first sentences of the source text, used when the
// backend gives no summary.
func documentLead(source string) string {
	flat := strings.Join(strings.Fields(strings.ReplaceAll(source, "---", " ")), " ")
	if flat == "" {
		return ""
	}
	if utf8.RuneCountInString(flat) <= leadRunes {
		return flat
	}
	cut := string([]rune(flat)[:leadRunes])
	if i := strings.LastIndex(cut, ". "); i > leadRunes/3 {
		return cut[:i+1]
	}
	return clipRunes(flat, leadRunes)
}
