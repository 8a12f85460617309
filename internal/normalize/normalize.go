// Package normalize merges extracted fragments into the single document text
// handed to entity extraction.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

// Separator is inserted between fragments from different pages, sheets or slides.
const Separator = "\n\n---\n\n"

const (
	defaultMaxChars = 12000
	defaultFloor    = 0.5
)

var (
	reCRLF        = regexp.MustCompile(`\r\n?`)
	reHSpace      = regexp.MustCompile(`[ \t\f\v\x{00A0}\x{2000}-\x{200A}\x{202F}\x{3000}]+`)
	reMultiBlank  = regexp.MustCompile(`\n{3,}`)
	reHyphenBreak = regexp.MustCompile(`(\p{L})-\n[ \t]*(\p{Ll})`)
	reBoxNoise    = regexp.MustCompile(`(?m)^[ \t]*[_\-=~*.·\x{2500}-\x{259F}|]{3,}[ \t]*$`)
	reBoxChars    = regexp.MustCompile(`[\x{2500}-\x{259F}]+`)
)

var ligatures = strings.NewReplacer(
	"\uFB00", "ff",
	"\uFB01", "fi",
	"\uFB02", "fl",
	"\uFB03", "ffi",
	"\uFB04", "ffl",
	"\uFB05", "st",
	"\uFB06", "st",
)

// Normalizer is stateless apart from its configuration; one instance serves all requests.
type Normalizer struct {
	maxChars int
	floor    float32
	logger   *slog.Logger
}

func New(cfg common.NormalizeConfig, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{maxChars: cfg.MaxChars, floor: cfg.ConfidenceFloor, logger: logger}
	if n.maxChars <= 0 {
		n.maxChars = defaultMaxChars
	}
	if n.floor < 0 || n.floor > 1 {
		n.floor = defaultFloor
	}
	return n
}

// Normalize filters fragments by confidence, joins them in document order,
// cleans OCR artifacts and whitespace, and truncates to the configured
// maximum. Identical input always yields identical output.
func (n *Normalizer) Normalize(ctx context.Context, frags []entity.TextFragment) entity.NormalizedText {
	log := common.LoggerFrom(ctx, n.logger)
	kept, notes := n.filter(frags)

	var (
		b       strings.Builder
		prevKey string
	)
	for _, f := range kept {
		text := Clean(f.Text)
		if text == "" {
			continue
		}
		key := f.Locator.Key()
		if b.Len() > 0 {
			if key == prevKey {
				b.WriteString("\n\n")
			} else {
				b.WriteString(Separator)
			}
		}
		b.WriteString(text)
		prevKey = key
	}

	out := truncate(b.String(), n.maxChars)
	out.Notes = notes
	log.Debug("normalize.ok",
		"fragments_in", len(frags),
		"fragments_kept", len(kept),
		"fragments_dropped", len(notes),
		"chars", out.OriginalLength,
		"truncated", out.Truncated,
	)
	return out
}

// filter applies the confidence floor per locator. A fragment below the floor
// is dropped only for a fragment of the same unit that clears the floor and
// carries at least as much text, so a sparse text layer (a page footer, say)
// can't displace the OCR read of the page. A unit with nothing above the
// floor keeps its single best fragment. Order is preserved and every dropped
// fragment yields a note.
func (n *Normalizer) filter(frags []entity.TextFragment) ([]entity.TextFragment, []string) {
	type unit struct {
		best      int
		bestAbove int // length of the longest fragment clearing the floor, -1 if none
	}
	units := make(map[string]*unit)
	lengths := make([]int, len(frags))
	for i, f := range frags {
		lengths[i] = contentLen(f.Text)
		if lengths[i] == 0 {
			continue
		}
		u, ok := units[f.Locator.Key()]
		if !ok {
			u = &unit{best: i, bestAbove: -1}
			units[f.Locator.Key()] = u
		}
		if f.Confidence >= n.floor && lengths[i] > u.bestAbove {
			u.bestAbove = lengths[i]
		}
		if f.Confidence > frags[u.best].Confidence {
			u.best = i
		}
	}

	out := make([]entity.TextFragment, 0, len(frags))
	var notes []string
	for i, f := range frags {
		u, ok := units[f.Locator.Key()]
		if !ok || lengths[i] == 0 {
			continue
		}
		switch {
		case f.Confidence >= n.floor:
		case u.bestAbove >= lengths[i]:
			notes = append(notes, droppedNote(f, "a clearer reading of the same "+string(f.Locator.Kind)+" was used"))
			continue
		case u.bestAbove < 0 && i != u.best:
			notes = append(notes, droppedNote(f, "a higher-confidence reading was used"))
			continue
		}
		out = append(out, f)
	}
	return out, notes
}

func droppedNote(f entity.TextFragment, why string) string {
	return fmt.Sprintf("%s: text at confidence %.2f left out; %s", f.Locator, f.Confidence, why)
}

// contentLen counts letters and digits, the measure of how much a fragment says.
func contentLen(s string) int {
	var n int
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// Clean fixes common OCR and text-layer artifacts in one fragment. Format
// characters (soft hyphens, zero-width spaces, BOMs) and controls other than
// newline and tab are dropped, words hyphenated across a line break are
// rejoined and rule lines vanish. Line breaks are kept; blank lines collapse to one.
func Clean(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = ligatures.Replace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == utf8.RuneError, unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
	s = reHyphenBreak.ReplaceAllString(s, "$1$2")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reBoxChars.ReplaceAllString(s, " ")
	s = reHSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most limit runes, preferring the last line or word
// boundary in the final tenth of the budget.
func truncate(s string, limit int) entity.NormalizedText {
	total := utf8.RuneCountInString(s)
	if total <= limit {
		return entity.NormalizedText{Text: s, OriginalLength: total}
	}
	runes := []rune(s)[:limit]
	cut := limit
	for i := limit - 1; i >= limit-limit/10 && i > 0; i-- {
		if runes[i] == '\n' {
			cut = i
			break
		}
		if unicode.IsSpace(runes[i]) && cut == limit {
			cut = i
		}
	}
	return entity.NormalizedText{
		Text:           strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace),
		Truncated:      true,
		OriginalLength: total,
	}
}
