package constants

import (
	"strings"
)

type Vital string

const (
	Temperature      Vital = "temperature"
	BloodPressure    Vital = "blood_pressure"
	HeartRate        Vital = "heart_rate"
	RespiratoryRate  Vital = "respiratory_rate"
	OxygenSaturation Vital = "oxygen_saturation"
)

var allVitals = []Vital{
	Temperature,
	BloodPressure,
	HeartRate,
	RespiratoryRate,
	OxygenSaturation,
}

// DefaultUnits is the unit assumed when a reading carries none.
var DefaultUnits = map[Vital]string{
	Temperature:      "°F",
	BloodPressure:    "mmHg",
	HeartRate:        "bpm",
	RespiratoryRate:  "breaths/min",
	OxygenSaturation: "%",
}

var vitalSynonyms = map[string]Vital{
	"temp":              Temperature,
	"body temperature":  Temperature,
	"t":                 Temperature,
	"bp":                BloodPressure,
	"blood pressure":    BloodPressure,
	"pressure":          BloodPressure,
	"hr":                HeartRate,
	"heart rate":        HeartRate,
	"pulse":             HeartRate,
	"pulse rate":        HeartRate,
	"p":                 HeartRate,
	"rr":                RespiratoryRate,
	"resp":              RespiratoryRate,
	"respiration":       RespiratoryRate,
	"respirations":      RespiratoryRate,
	"respiratory rate":  RespiratoryRate,
	"spo2":              OxygenSaturation,
	"sp02":              OxygenSaturation,
	"o2 sat":            OxygenSaturation,
	"o2 saturation":     OxygenSaturation,
	"o2":                OxygenSaturation,
	"sao2":              OxygenSaturation,
	"oxygen saturation": OxygenSaturation,
	"oxygen sat":        OxygenSaturation,
	"pulse ox":          OxygenSaturation,
	"pulse oximetry":    OxygenSaturation,
	"saturation":        OxygenSaturation,
}

// VitalNames returns the recognized vital names in a stable order.
func VitalNames() []string {
	result := make([]string, len(allVitals))
	for i, v := range allVitals {
		result[i] = string(v)
	}
	return result
}

// CanonicalizeVital maps a free-form vital label onto a recognized name.
// A parenthesized abbreviation, as in "Blood Pressure (BP)", is tried after
// the label around it.
func CanonicalizeVital(input string) (Vital, bool) {
	label := input
	var inner string
	if open := strings.Index(input, "("); open >= 0 {
		if end := strings.Index(input[open:], ")"); end > 0 {
			label = input[:open] + " " + input[open+end+1:]
			inner = input[open+1 : open+end]
		}
	}
	if v, ok := lookupVital(label); ok {
		return v, true
	}
	if inner != "" {
		return lookupVital(inner)
	}
	return "", false
}

func lookupVital(input string) (Vital, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("_", " ", "-", " ", ".", "", ":", "").Replace(normalized)
	normalized = strings.Join(strings.Fields(normalized), " ")
	if normalized == "" {
		return "", false
	}
	if v, ok := vitalSynonyms[normalized]; ok {
		return v, true
	}
	for _, v := range allVitals {
		if normalized == strings.ReplaceAll(string(v), "_", " ") {
			return v, true
		}
	}
	return "", false
}
