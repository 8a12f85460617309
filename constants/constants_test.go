package constants

import "testing"

func TestMapExtToFormat(t *testing.T) {
	tests := []struct {
		ext  string
		want Format
	}{
		{".PDF", PDF},
		{"docx", WordDocument},
		{".doc", WordDocument},
		{"xls", Spreadsheet},
		{".pptx", Presentation},
		{"TIFF", Image},
		{".csv", PlainText},
		{".rtf", PlainText},
		{".exe", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		if got := MapExtToFormat(tt.ext); got != tt.want {
			t.Errorf("MapExtToFormat(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestMimeTypeForExt(t *testing.T) {
	if got := MimeTypeForExt(".JPG"); got != "image/jpeg" {
		t.Errorf("jpg mime = %q", got)
	}
	if got := MimeTypeForExt("zip"); got != "application/octet-stream" {
		t.Errorf("zip mime = %q", got)
	}
}

func TestCanonicalizeVital(t *testing.T) {
	tests := []struct {
		in   string
		want Vital
		ok   bool
	}{
		{"BP", BloodPressure, true},
		{"Blood Pressure", BloodPressure, true},
		{"blood_pressure", BloodPressure, true},
		{"Pulse", HeartRate, true},
		{"heart-rate", HeartRate, true},
		{"SpO2", OxygenSaturation, true},
		{"Temp.", Temperature, true},
		{"RR:", RespiratoryRate, true},
		{"O2 Saturation", OxygenSaturation, true},
		{"Blood Pressure (BP)", BloodPressure, true},
		{"Sat (SpO2)", OxygenSaturation, true},
		{"Weight (kg)", "", false},
		{"weight", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalizeVital(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalizeVital(%q) = (%q,%v), want (%q,%v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	if !StateCompleted.Terminal() || !StateFailed.Terminal() {
		t.Fatal("completed and failed must be terminal")
	}
	if StateNormalized.Terminal() {
		t.Fatal("normalized is not terminal")
	}
}

func TestExtensionsByFormat(t *testing.T) {
	byFormat := ExtensionsByFormat()
	if len(byFormat) != len(Formats) {
		t.Fatalf("got %d formats, want %d", len(byFormat), len(Formats))
	}
	total := 0
	for f, exts := range byFormat {
		for _, ext := range exts {
			if MapExtToFormat(ext) != f {
				t.Errorf("%s listed under %s", ext, f)
			}
		}
		total += len(exts)
	}
	if total != len(SupportedExtensions()) {
		t.Errorf("grouped %d extensions, want %d", total, len(SupportedExtensions()))
	}
}
