package entity

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

func TestVitalReadingDisplay(t *testing.T) {
	tests := []struct {
		in   VitalReading
		want string
	}{
		{VitalReading{Value: 120, Diastolic: 80, Unit: "mmHg"}, "120/80 mmHg"},
		{VitalReading{Value: 37.8, Unit: "°C"}, "37.8 °C"},
		{VitalReading{Value: 18}, "18"},
		{VitalReading{Value: 96, Unit: "%"}, "96 %"},
	}
	for _, tt := range tests {
		if got := tt.in.Display(); got != tt.want {
			t.Errorf("Display(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAddNote(t *testing.T) {
	rec := NewRecord()
	rec.AddNote("")
	if rec.ExtractionStatus != constants.StatusOK || len(rec.Notes) != 0 {
		t.Fatalf("empty note changed the record: %+v", rec)
	}
	rec.AddNote("page 2 unreadable")
	if rec.ExtractionStatus != constants.StatusPartial || len(rec.Notes) != 1 {
		t.Errorf("record = %+v", rec)
	}

	failed := NewRecord()
	failed.ExtractionStatus = constants.StatusFailed
	failed.AddNote("analysis error")
	if failed.ExtractionStatus != constants.StatusFailed {
		t.Errorf("failed record promoted to %s", failed.ExtractionStatus)
	}
}

func TestEnsureMarshalsEmptyCollections(t *testing.T) {
	var rec StructuredRecord
	rec.Ensure()
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	for _, want := range []string{`"conditions":[]`, `"medications":[]`, `"vitals":{}`, `"treatments":[]`, `"extraction_status":"ok"`} {
		if !strings.Contains(s, want) {
			t.Errorf("%s missing %s", s, want)
		}
	}
	if strings.Contains(s, "notes") {
		t.Errorf("empty notes marshalled: %s", s)
	}
}
