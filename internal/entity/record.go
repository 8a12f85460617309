package entity

import (
	"strconv"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

// VitalReading is one measured vital sign. Blood pressure carries the systolic
// reading in Value and the diastolic reading in Diastolic.
type VitalReading struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Diastolic float64 `json:"diastolic,omitempty"`
}

// Display renders the reading the way it appears on a chart, e.g. "120/80 mmHg".
func (v VitalReading) Display() string {
	s := formatValue(v.Value)
	if v.Diastolic != 0 {
		s += "/" + formatValue(v.Diastolic)
	}
	if v.Unit != "" {
		s += " " + v.Unit
	}
	return s
}

// StructuredRecord is the final output of an analysis request.
type StructuredRecord struct {
	Summary          string                     `json:"summary"`
	Conditions       []string                   `json:"conditions"`
	Medications      []string                   `json:"medications"`
	Vitals           map[string]VitalReading    `json:"vitals"`
	Treatments       []string                   `json:"treatments"`
	ExtractionStatus constants.ExtractionStatus `json:"extraction_status"`
	Notes            []string                   `json:"notes,omitempty"`
}

// NewRecord returns an empty record whose collections marshal as [] and {} rather than null.
func NewRecord() StructuredRecord {
	return StructuredRecord{
		Conditions:       []string{},
		Medications:      []string{},
		Vitals:           map[string]VitalReading{},
		Treatments:       []string{},
		ExtractionStatus: constants.StatusOK,
	}
}

// AddNote appends a note and demotes an ok record to partial.
func (r *StructuredRecord) AddNote(note string) {
	if note == "" {
		return
	}
	r.Notes = append(r.Notes, note)
	if r.ExtractionStatus == constants.StatusOK {
		r.ExtractionStatus = constants.StatusPartial
	}
}

// Ensure fills nil collections so the JSON shape is always complete.
func (r *StructuredRecord) Ensure() {
	if r.Conditions == nil {
		r.Conditions = []string{}
	}
	if r.Medications == nil {
		r.Medications = []string{}
	}
	if r.Vitals == nil {
		r.Vitals = map[string]VitalReading{}
	}
	if r.Treatments == nil {
		r.Treatments = []string{}
	}
	if r.ExtractionStatus == "" {
		r.ExtractionStatus = constants.StatusOK
	}
}

func formatValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
