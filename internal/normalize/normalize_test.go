package normalize

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

func page(n int, text string, conf float32) entity.TextFragment {
	return entity.TextFragment{Text: text, Locator: entity.Locator{Kind: entity.LocatorPage, Index: n}, Confidence: conf}
}

func region(n, r int, text string, conf float32) entity.TextFragment {
	f := page(n, text, conf)
	f.Locator.Region = r
	return f
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf and spaces", "BP  120/80\r\nPulse\t\t72  ", "BP 120/80\nPulse 72"},
		{"ligatures", "\uFB01ndings of \uFB02uid", "findings of fluid"},
		{"invisible", "hyper\u00adtension\u200b\ufeff", "hypertension"},
		{"hyphen break", "pneumo-\nnia resolved", "pneumonia resolved"},
		{"keeps real hyphen", "follow-up in\n2 weeks", "follow-up in\n2 weeks"},
		{"box noise", "Vitals\n----------\n────\nTemp 37", "Vitals\n\nTemp 37"},
		{"controls", "Dx:\x00 asthma\x07", "Dx: asthma"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeOrderAndSeparators(t *testing.T) {
	n := New(common.NormalizeConfig{MaxChars: 1000, ConfidenceFloor: 0.5}, nil)
	frags := []entity.TextFragment{
		page(1, "Page one text", 1),
		region(2, 1, "Scanned top", 0.8),
		region(2, 2, "Scanned bottom", 0.7),
		page(3, "Page three text", 1),
	}
	got := n.Normalize(context.Background(), frags)
	want := "Page one text" + Separator + "Scanned top\n\nScanned bottom" + Separator + "Page three text"
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
	if got.Truncated || got.OriginalLength != utf8.RuneCountInString(want) {
		t.Errorf("truncated=%v original=%d", got.Truncated, got.OriginalLength)
	}
}

func TestNormalizeConfidenceFloor(t *testing.T) {
	n := New(common.NormalizeConfig{ConfidenceFloor: 0.6}, nil)
	frags := []entity.TextFragment{
		// page 1: garbled native text loses to a good OCR read
		page(1, "G@rbl#d", 0.3),
		region(1, 1, "Clean OCR", 0.9),
		// page 2: nothing clears the floor, keep the best
		region(2, 1, "weak a", 0.2),
		region(2, 2, "weak b", 0.4),
		// page 3: empty fragments are ignored
		page(3, "   ", 1),
		page(3, "Native", 1),
	}
	got := n.Normalize(context.Background(), frags)
	want := "Clean OCR" + Separator + "weak b" + Separator + "Native"
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
	if len(got.Notes) != 2 || !strings.HasPrefix(got.Notes[0], "page 1: text at confidence 0.30") ||
		!strings.HasPrefix(got.Notes[1], "page 2 region 1: text at confidence 0.20") {
		t.Errorf("notes = %q", got.Notes)
	}
}

func TestNormalizeSparseTextKeepsOCR(t *testing.T) {
	n := New(common.NormalizeConfig{ConfidenceFloor: 0.5}, nil)
	frags := []entity.TextFragment{
		page(1, "Page 1 of 2", 1),
		region(1, 1, "Diagnosis: type 2 diabetes. Metformin 500 mg.", 0.45),
		page(2, "Discharge summary: patient stable, follow up in two weeks.", 1),
		region(2, 1, "Discharge", 0.3),
	}
	got := n.Normalize(context.Background(), frags)
	want := "Page 1 of 2\n\nDiagnosis: type 2 diabetes. Metformin 500 mg." + Separator +
		"Discharge summary: patient stable, follow up in two weeks."
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
	if len(got.Notes) != 1 || !strings.HasPrefix(got.Notes[0], "page 2 region 1:") {
		t.Errorf("notes = %q", got.Notes)
	}
}

func TestNormalizeTruncation(t *testing.T) {
	n := New(common.NormalizeConfig{MaxChars: 50}, nil)
	text := strings.Repeat("word ", 30) // 150 runes
	got := n.Normalize(context.Background(), []entity.TextFragment{page(1, text, 1)})
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if utf8.RuneCountInString(got.Text) > 50 {
		t.Errorf("len = %d, want <= 50", utf8.RuneCountInString(got.Text))
	}
	if got.OriginalLength != 149 {
		t.Errorf("original = %d, want 149", got.OriginalLength)
	}
	if strings.HasSuffix(got.Text, "wor") || strings.HasSuffix(got.Text, " ") {
		t.Errorf("cut mid-word or with trailing space: %q", got.Text)
	}
}

func TestNormalizeTruncationRuneSafe(t *testing.T) {
	n := New(common.NormalizeConfig{MaxChars: 7}, nil)
	got := n.Normalize(context.Background(), []entity.TextFragment{page(1, "°°°°°°°°°°", 1)})
	if !utf8.ValidString(got.Text) || utf8.RuneCountInString(got.Text) != 7 {
		t.Errorf("text = %q", got.Text)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := New(common.NormalizeConfig{}, nil)
	frags := []entity.TextFragment{
		page(2, "b", 1), region(1, 1, "x", 0.1), region(1, 2, "y", 0.1), page(3, "c d", 1),
	}
	first := n.Normalize(context.Background(), frags)
	for range 20 {
		if got := n.Normalize(context.Background(), frags); !reflect.DeepEqual(got, first) {
			t.Fatalf("run differs: %+v vs %+v", got, first)
		}
	}
}

func TestNormalizeNothingUsable(t *testing.T) {
	n := New(common.NormalizeConfig{}, nil)
	got := n.Normalize(context.Background(), []entity.TextFragment{page(1, "\x00\x01", 1)})
	if got.Text != "" || got.Truncated {
		t.Errorf("got %+v", got)
	}
}
