// Package rules is an offline analyzer that pulls record fields out of
// report text with section headings and vital-sign patterns. It answers in
// the same JSON shape a model would.
package rules

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
)

const maxSummaryRunes = 400

type section struct {
	field   string
	heading *regexp.Regexp
}

var sections = []section{
	{llm.FieldConditions, regexp.MustCompile(`(?i)^(?:final |discharge |primary |secondary )?(?:diagnos[ie]s|impression|assessment|problem list|problems|conditions?|past medical history|pmh)\b`)},
	{llm.FieldMedications, regexp.MustCompile(`(?i)^(?:current |home |discharge )?(?:medications?|meds|prescriptions?|rx)\b`)},
	{llm.FieldTreatments, regexp.MustCompile(`(?i)^(?:treatment(?: plan)?|plan|procedures?(?: performed)?|recommendations?|interventions?|therapy)\b`)},
	{llm.FieldSummary, regexp.MustCompile(`(?i)^(?:summary|clinical summary|history of present illness|hpi|chief complaint|reason for visit)\b`)},
	{"", regexp.MustCompile(`(?i)^(?:vitals?|vital signs|allergies|labs?|laboratory|results|physical exam(?:ination)?|exam|signature|signed)\b`)},
}

var (
	reBullet    = regexp.MustCompile(`^\s*(?:[-*•·>]+|\(?\d{1,2}[.)])\s*`)
	reItemSplit = regexp.MustCompile(`\s*[;]\s*`)
	reDoseLine  = regexp.MustCompile(`\b[A-Za-z][a-z]{3,}(?:\s+[A-Za-z][a-z]+)?\s+\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|mL|units?|IU)\b[^\n.;]*`)
)

var vitalPatterns = []struct {
	vital constants.Vital
	re    *regexp.Regexp
}{
	{constants.BloodPressure, regexp.MustCompile(`(?i)\b(?:bp|blood pressure)\s*[:=]?\s*(\d{2,3}\s*/\s*\d{2,3})\s*(mm\s*hg)?`)},
	{constants.HeartRate, regexp.MustCompile(`(?i)\b(?:hr|heart rate|pulse(?: rate)?)\s*[:=]?\s*(\d{2,3})\s*(bpm|beats/min)?`)},
	{constants.Temperature, regexp.MustCompile(`(?i)\b(?:temp(?:erature)?|t)\s*[:=]?\s*(\d{2,3}(?:\.\d{1,2})?)\s*(°\s*[cf]|deg(?:rees)?\s*[cf]|[cf]\b)?`)},
	{constants.RespiratoryRate, regexp.MustCompile(`(?i)\b(?:rr|resp(?:iratory)? rate|respirations?)\s*[:=]?\s*(\d{1,2})\s*(breaths/min|/min)?`)},
	{constants.OxygenSaturation, regexp.MustCompile(`(?i)\b(?:spo2|sp02|sao2|o2 sat(?:uration)?|oxygen saturation)\s*[:=]?\s*(\d{2,3})\s*(%)?`)},
}

// Analyzer needs no network and never fails on non-empty text.
type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

func (*Analyzer) Name() string { return "rules" }

func (*Analyzer) Analyze(ctx context.Context, req llm.AnalyzeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", llm.ErrEmptyResponse
	}
	rec := Extract(req.Text)
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Record mirrors the JSON reply shape.
type Record struct {
	Summary     string            `json:"summary"`
	Conditions  []string          `json:"conditions"`
	Medications []string          `json:"medications"`
	Vitals      map[string]string `json:"vitals"`
	Treatments  []string          `json:"treatments"`
}

// Extract applies the heading and pattern rules to text.
func Extract(text string) Record {
	rec := Record{
		Conditions:  []string{},
		Medications: []string{},
		Vitals:      map[string]string{},
		Treatments:  []string{},
	}
	items := map[string][]string{}
	current := ""
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "---" {
			current = ""
			continue
		}
		if field, rest, ok := matchHeading(trimmed); ok {
			current = field
			if field != "" && rest != "" {
				items[field] = append(items[field], splitItems(rest)...)
			}
			continue
		}
		if current != "" {
			items[current] = append(items[current], splitItems(trimmed)...)
		}
	}

	rec.Conditions = append(rec.Conditions, items[llm.FieldConditions]...)
	rec.Medications = append(rec.Medications, items[llm.FieldMedications]...)
	rec.Treatments = append(rec.Treatments, items[llm.FieldTreatments]...)
	if len(rec.Medications) == 0 {
		for _, m := range reDoseLine.FindAllString(text, -1) {
			rec.Medications = append(rec.Medications, strings.TrimSpace(m))
		}
	}

	for _, vp := range vitalPatterns {
		m := vp.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		reading := strings.ReplaceAll(m[1], " ", "")
		switch {
		case m[2] == "%":
			reading += "%"
		case m[2] != "":
			reading += " " + normalizeUnit(m[2])
		}
		rec.Vitals[string(vp.vital)] = reading
	}

	if s := strings.Join(items[llm.FieldSummary], " "); s != "" {
		rec.Summary = clip(s)
	} else {
		rec.Summary = lead(text)
	}
	return rec
}

func matchHeading(line string) (field, rest string, ok bool) {
	for _, s := range sections {
		loc := s.heading.FindStringIndex(line)
		if loc == nil {
			continue
		}
		// "Plan: ..." is a heading; "Plan to follow up" is prose
		after := strings.TrimSpace(line[loc[1]:])
		if after != "" && after[0] != ':' && after[0] != '-' {
			continue
		}
		return s.field, strings.TrimSpace(strings.TrimLeft(after, ":-– ")), true
	}
	return "", "", false
}

func splitItems(s string) []string {
	s = reBullet.ReplaceAllString(s, "")
	var out []string
	for _, it := range reItemSplit.Split(s, -1) {
		if it = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(it), ".")); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func normalizeUnit(u string) string {
	u = strings.ToLower(strings.ReplaceAll(u, " ", ""))
	switch {
	case strings.HasPrefix(u, "mm"):
		return "mmHg"
	case strings.HasSuffix(u, "c"):
		return "°C"
	case strings.HasSuffix(u, "f"):
		return "°F"
	case u == "/min":
		return "breaths/min"
	case u == "beats/min":
		return "bpm"
	}
	return u
}

// lead is the opening of the document, cut at a sentence end when possible.
func lead(text string) string {
	flat := strings.Join(strings.Fields(strings.ReplaceAll(text, "---", " ")), " ")
	return clip(flat)
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxSummaryRunes {
		return s
	}
	r := []rune(s)[:maxSummaryRunes]
	cut := string(r)
	if i := strings.LastIndex(cut, ". "); i > maxSummaryRunes/3 {
		return cut[:i+1]
	}
	return strings.TrimSpace(cut) + "…"
}
