package detect

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/fixture"
)

func zipWith(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte("<x/>")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func ole(names ...string) []byte {
	streams := make([]fixture.Stream, len(names))
	for i, n := range names {
		streams[i] = fixture.Stream{Name: n, Data: []byte(n)}
	}
	return fixture.CompoundFile(streams...)
}

func TestDetect(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	bmp := append([]byte("BM"), make([]byte, 20)...)
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     constants.Format
	}{
		{"pdf by extension", "labs.PDF", []byte("garbage"), constants.PDF},
		{"empty file keeps extension", "empty.docx", nil, constants.WordDocument},
		{"csv", "vitals.csv", []byte("a,b\n1,2\n"), constants.PlainText},
		{"pdf sniffed", "upload", []byte("%PDF-1.7\n..."), constants.PDF},
		{"png sniffed", "scan.bin", png, constants.Image},
		{"jpeg sniffed", "scan", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, constants.Image},
		{"tiff sniffed", "scan", []byte{'I', 'I', 0x2A, 0, 8, 0, 0, 0}, constants.Image},
		{"bmp sniffed", "scan", bmp, constants.Image},
		{"docx sniffed", "report", zipWith(t, "[Content_Types].xml", "word/document.xml"), constants.WordDocument},
		{"xlsx sniffed", "report", zipWith(t, "xl/workbook.xml"), constants.Spreadsheet},
		{"pptx sniffed", "report", zipWith(t, "ppt/presentation.xml"), constants.Presentation},
		{"plain zip unknown", "archive.dat", zipWith(t, "readme.txt"), constants.Unknown},
		{"rtf sniffed", "note", []byte(`{\rtf1\ansi hello}`), constants.PlainText},
		{"utf8 text sniffed", "note", []byte("Patient: Jane Doe\nBP 120/80\n"), constants.PlainText},
		{"utf16 bom text", "note", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, constants.PlainText},
		{"binary unknown", "blob.exe", []byte{0x7F, 'E', 'L', 'F', 0, 1, 2, 3}, constants.Unknown},
		{"doc sniffed", "legacy", ole("WordDocument"), constants.WordDocument},
		{"xls sniffed", "legacy", ole("Workbook"), constants.Spreadsheet},
		{"xls 5 book sniffed", "legacy", ole("Book"), constants.Spreadsheet},
		{"ppt sniffed", "legacy", ole("Current User", "PowerPoint Document"), constants.Presentation},
		{"doc extension wins", "chart.doc", ole("Workbook"), constants.WordDocument},
		{"other ole unknown", "legacy", ole("Contents"), constants.Unknown},
		{"corrupt ole unknown", "legacy", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0}, constants.Unknown},
		{"empty no extension", "", nil, constants.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.filename, tt.data); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestDetectIsPure(t *testing.T) {
	data := []byte("%PDF-1.4")
	first := Detect("x", data)
	for i := 0; i < 3; i++ {
		if Detect("x", data) != first {
			t.Fatal("Detect returned different results for the same input")
		}
	}
	if string(data) != "%PDF-1.4" {
		t.Fatal("Detect mutated its input")
	}
}

func TestLooksLikeTextRejectsControlHeavy(t *testing.T) {
	data := bytes.Repeat([]byte{0x01, 0x02, 'a'}, 100)
	if looksLikeText(data) {
		t.Fatal("control-heavy payload classified as text")
	}
}

func TestMimeType(t *testing.T) {
	if got := MimeType("a.docx", nil); got != constants.MimeTypeForExt("docx") {
		t.Errorf("docx mime = %q", got)
	}
	if got := MimeType("upload", []byte("%PDF-1.5")); got != "application/pdf" {
		t.Errorf("sniffed pdf mime = %q", got)
	}
	if got := MimeType("upload", []byte("???")); got != "application/octet-stream" {
		t.Errorf("fallback mime = %q", got)
	}
}
