package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var synonyms = map[string]string{
	"diagnoses":         FieldConditions,
	"diagnosis":         FieldConditions,
	"problems":          FieldConditions,
	"condition":         FieldConditions,
	"medication":        FieldMedications,
	"medicines":         FieldMedications,
	"meds":              FieldMedications,
	"drugs":             FieldMedications,
	"prescriptions":     FieldMedications,
	"vital_signs":       FieldVitals,
	"vitalsigns":        FieldVitals,
	"vital signs":       FieldVitals,
	"treatment":         FieldTreatments,
	"procedures":        FieldTreatments,
	"treatment_plan":    FieldTreatments,
	"plan":              FieldTreatments,
	"overview":          FieldSummary,
	"impression":        FieldSummary,
	"summary_of_report": FieldSummary,
}

var reListSplit = regexp.MustCompile(`\s*(?:\n|;|•)\s*`)

// NormalizeAndSanitizeJSON
// - Renames known synonyms (diagnoses -> conditions, vital_signs -> vitals)
// - Fills omitted fields with empty values
// - Coerces a bare string list field into a list, flattens object items
// - Removes unknown keys
// It returns the fields it had to empty because their value was unusable.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var renamed, dropped []string
	for k := range maps.Clone(m) {
		key := strings.ToLower(strings.TrimSpace(k))
		to, ok := synonyms[key]
		if !ok && key != k && slices.Contains(recordFields, key) {
			to, ok = key, true
		}
		if !ok {
			continue
		}
		// don't overwrite existing value if already present
		if _, exists := m[to]; !exists {
			m[to] = m[k]
			renamed = append(renamed, k+"->"+to)
		}
		delete(m, k)
	}

	// summary
	switch t := m[FieldSummary].(type) {
	case string:
		m[FieldSummary] = strings.TrimSpace(t)
	case nil:
		m[FieldSummary] = ""
	case []any:
		m[FieldSummary] = strings.Join(flattenList(t), " ")
	default:
		m[FieldSummary] = ""
		dropped = append(dropped, FieldSummary+"(type)")
	}

	for _, k := range ListFields {
		list, ok := coerceList(m[k])
		if !ok {
			dropped = append(dropped, k+"(type)")
		}
		m[k] = list
	}

	vitals, ok := coerceVitals(m[FieldVitals])
	if !ok {
		dropped = append(dropped, FieldVitals+"(type)")
	}
	m[FieldVitals] = vitals

	for k := range maps.Clone(m) {
		if !slices.Contains(recordFields, k) {
			delete(m, k)
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(renamed) > 0 || len(dropped) > 0 {
		logger.Warn("llm.analyze.normalize_sanitize", "renamed", slices.Sorted(slices.Values(renamed)), "dropped", dropped)
	}
	return out, dropped, nil
}

// coerceList turns a list field into []any of strings. ok is false when the
// value had to be discarded.
func coerceList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return []any{}, true
	case string:
		var out []any
		for _, s := range reListSplit.Split(strings.TrimSpace(t), -1) {
			if s = strings.TrimSpace(strings.TrimLeft(s, "-*")); s != "" {
				out = append(out, s)
			}
		}
		if out == nil {
			out = []any{}
		}
		return out, true
	case []any:
		items := flattenList(t)
		out := make([]any, 0, len(items))
		for _, s := range items {
			out = append(out, s)
		}
		return out, true
	}
	return []any{}, false
}

// flattenList renders each list item as a string: objects as their name or
// "k: v" pairs, numbers in shortest form; nulls are skipped.
func flattenList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := scalarString(it); s != "" {
			out = append(out, s)
			continue
		}
		if obj, ok := it.(map[string]any); ok {
			if s := objectString(obj); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func objectString(obj map[string]any) string {
	for _, k := range []string{"name", "condition", "medication", "drug", "treatment", "text", "value"} {
		if s := scalarString(obj[k]); s != "" {
			var extra []string
			for _, d := range []string{"dose", "dosage", "frequency", "unit"} {
				if e := scalarString(obj[d]); e != "" {
					extra = append(extra, e)
				}
			}
			if len(extra) > 0 {
				s += " " + strings.Join(extra, " ")
			}
			return s
		}
	}
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		if s := scalarString(obj[k]); s != "" {
			parts = append(parts, k+": "+s)
		}
	}
	return strings.Join(parts, ", ")
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// coerceVitals keeps vitals as either an object of readings or a list of
// strings. Structured readings stay objects; those with neither a value nor
// a systolic are dropped.
func coerceVitals(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, true
	case string:
		list, _ := coerceList(t)
		return list, true
	case []any:
		list, _ := coerceList(t)
		return list, true
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			switch r := val.(type) {
			case string, float64:
				out[k] = r
			case map[string]any:
				if reading, ok := coerceReading(r); ok {
					out[k] = reading
				}
			}
		}
		return out, true
	}
	return map[string]any{}, false
}

func coerceReading(r map[string]any) (map[string]any, bool) {
	out := map[string]any{}
	for k, val := range r {
		key := strings.ToLower(strings.TrimSpace(k))
		switch key {
		case ReadingValue, ReadingSystolic, ReadingDiastolic:
			switch n := val.(type) {
			case float64:
				out[key] = n
			case string:
				if n = strings.TrimSpace(n); n != "" {
					out[key] = n
				}
			}
		case ReadingUnit, "units":
			if s := scalarString(val); s != "" {
				out[ReadingUnit] = s
			}
		}
	}
	_, hasValue := out[ReadingValue]
	_, hasSystolic := out[ReadingSystolic]
	return out, hasValue || hasSystolic
}
