package ocr

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reDate  = regexp.MustCompile(`\b\d{1,4}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`)
	reDose  = regexp.MustCompile(`\b\d+(\.\d+)?\s?(mg|mcg|ml|units?|iu|g)\b`)
	reVital = regexp.MustCompile(`\b(bp|hr|rr|spo2|pulse|temp|mmhg|bpm)\b|\b\d{2,3}/\d{2,3}\b`)
	reLabel = regexp.MustCompile(`(?m)^\s*[a-z][a-z ]{2,30}:`)
)

func hasDatePattern(s string) bool  { return reDate.MatchString(s) }
func hasDosePattern(s string) bool  { return reDose.MatchString(s) }
func hasVitalPattern(s string) bool { return reVital.MatchString(s) }
func hasLabelPattern(s string) bool { return reLabel.MatchString(s) }

// heuristicConfidence estimates OCR quality for engines that report none:
// a base score boosted by clinical-document artifacts, penalized by junk.
func heuristicConfidence(txt string) float32 {
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return 0
	}
	txtL := strings.ToLower(txt)
	score := float32(0.3) // base
	if hasDatePattern(txtL) {
		score += 0.1
	}
	if hasDosePattern(txtL) {
		score += 0.15
	}
	if hasVitalPattern(txtL) {
		score += 0.15
	}
	if hasLabelPattern(txtL) {
		score += 0.1
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content

	var letters, junk, total int
	for _, r := range txt {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			letters++
		case !unicode.IsPunct(r) && !unicode.IsSymbol(r):
			junk++
		}
	}
	if total > 0 && float32(letters)/float32(total) < 0.6 {
		score -= 0.2
	}
	if junk > 0 {
		score -= 0.1
	}
	switch {
	case score > 1.0:
		score = 1.0
	case score < 0.05:
		score = 0.05
	}
	return score
}
