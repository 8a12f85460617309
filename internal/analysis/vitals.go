package analysis

import (
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
)

var (
	reVitalLine = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 ._\-()]*?)\s*(?:[:=]\s*|\s+)(-?\d.*)$`)
	reBP        = regexp.MustCompile(`(\d{2,3}(?:\.\d+)?)\s*/\s*(\d{2,3}(?:\.\d+)?)`)
	reNumber    = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	reVitalSep  = regexp.MustCompile(`\s*[,;\n]\s*`)
	reThousands = regexp.MustCompile(`(\d),(\d{3})\b`)
)

// parseVitals accepts an object keyed by vital name or a list of "name: reading"
// strings. Names outside the recognized set are dropped. ok is false when the
// value has neither shape.
func (e *Engine) parseVitals(raw json.RawMessage) (map[string]entity.VitalReading, bool) {
	out := map[string]entity.VitalReading{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, true
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range slices.Sorted(maps.Keys(obj)) {
			e.addVital(out, k, obj[k])
		}
		return out, true
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, it := range list {
			s, ok := it.(string)
			if !ok {
				continue
			}
			e.addVitalLines(out, s)
		}
		return out, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		e.addVitalLines(out, s)
		return out, true
	}
	return out, false
}

// addVitalLines reads "name: reading" entries separated by commas, semicolons
// or newlines. Thousands separators inside numbers are not split on.
func (e *Engine) addVitalLines(out map[string]entity.VitalReading, s string) {
	s = reThousands.ReplaceAllString(s, "$1$2")
	for _, line := range reVitalSep.Split(s, -1) {
		if m := reVitalLine.FindStringSubmatch(line); m != nil {
			e.addVital(out, m[1], m[2])
		}
	}
}

// addVital keeps the first reading seen for each vital.
func (e *Engine) addVital(out map[string]entity.VitalReading, name string, v any) {
	vital, ok := constants.CanonicalizeVital(name)
	if !ok {
		e.logger.Debug("analysis.vital_dropped", "name", name)
		return
	}
	if _, dup := out[string(vital)]; dup {
		return
	}
	if r, ok := readingFrom(vital, v); ok {
		out[string(vital)] = r
	}
}

func readingFrom(vital constants.Vital, v any) (entity.VitalReading, bool) {
	switch t := v.(type) {
	case float64:
		return numericReading(vital, t, "")
	case string:
		return parseReading(vital, t)
	case map[string]any:
		return objectReading(vital, t)
	}
	return entity.VitalReading{}, false
}

// objectReading reads {value, unit, diastolic} and, for blood pressure,
// {systolic, diastolic}. Objects with neither a usable value nor a systolic
// are dropped.
func objectReading(vital constants.Vital, obj map[string]any) (entity.VitalReading, bool) {
	unit, _ := obj[llm.ReadingUnit].(string)
	var (
		r  entity.VitalReading
		ok bool
	)
	if s, isText := obj[llm.ReadingValue].(string); isText {
		r, ok = parseReading(vital, s+" "+unit)
	} else if f, isNum := obj[llm.ReadingValue].(float64); isNum {
		r, ok = numericReading(vital, f, unit)
	} else if vital == constants.BloodPressure {
		if f, isNum := readingNumber(obj[llm.ReadingSystolic]); isNum {
			r, ok = numericReading(vital, f, unit)
		}
	}
	if !ok {
		return entity.VitalReading{}, false
	}
	if vital == constants.BloodPressure && r.Diastolic == 0 {
		if d, isNum := readingNumber(obj[llm.ReadingDiastolic]); isNum && d > 0 {
			r.Diastolic = d
		}
	}
	return r, true
}

func readingNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func numericReading(vital constants.Vital, f float64, unitText string) (entity.VitalReading, bool) {
	if f <= 0 {
		return entity.VitalReading{}, false
	}
	return entity.VitalReading{Value: f, Unit: canonicalUnit(vital, unitText, f)}, true
}

// parseReading reads "120/80 mmHg", "98.6 F", "72" and the like.
func parseReading(vital constants.Vital, s string) (entity.VitalReading, bool) {
	if vital == constants.BloodPressure {
		if m := reBP.FindStringSubmatch(s); m != nil {
			sys, _ := strconv.ParseFloat(m[1], 64)
			dia, _ := strconv.ParseFloat(m[2], 64)
			return entity.VitalReading{Value: sys, Diastolic: dia, Unit: constants.DefaultUnits[vital]}, sys > 0
		}
	}
	loc := reNumber.FindStringIndex(s)
	if loc == nil {
		return entity.VitalReading{}, false
	}
	f, err := strconv.ParseFloat(s[loc[0]:loc[1]], 64)
	if err != nil {
		return entity.VitalReading{}, false
	}
	return numericReading(vital, f, s[loc[1]:])
}

// canonicalUnit fixes the unit per vital. Temperature is the only vital
// reported in more than one scale; with no scale given, readings up to 45
// are taken as Celsius.
func canonicalUnit(vital constants.Vital, unitText string, value float64) string {
	if vital != constants.Temperature {
		return constants.DefaultUnits[vital]
	}
	u := strings.ToLower(unitText)
	switch {
	case strings.Contains(u, "f"):
		return "°F"
	case strings.Contains(u, "c"):
		return "°C"
	case value <= 45:
		return "°C"
	}
	return constants.DefaultUnits[vital]
}
