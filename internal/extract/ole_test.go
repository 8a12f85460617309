package extract

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/fixture"
)

func u16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func u32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// wordDocument builds a Word 97 WordDocument stream whose piece table (kept in
// 1Table) points at text stored as 8-bit characters at offset 0x400.
func wordDocument(text string) (wd, table []byte) {
	const textAt = 0x400
	wd = make([]byte, textAt+len(text))
	binary.LittleEndian.PutUint16(wd, 0xA5EC)
	binary.LittleEndian.PutUint16(wd[0x0A:], 0x0200)
	copy(wd[textAt:], text)

	pcd := join(u16(0), u32(textAt*2|0x40000000), u16(0))
	plc := join(u32(0), u32(uint32(len(text))), pcd)
	table = join([]byte{0x02}, u32(uint32(len(plc))), plc)
	binary.LittleEndian.PutUint32(wd[0x01A2:], 0)
	binary.LittleEndian.PutUint32(wd[0x01A6:], uint32(len(table)))
	return wd, table
}

func biff(typ uint16, body ...[]byte) []byte {
	data := join(body...)
	return join(u16(typ), u16(uint16(len(data))), data)
}

func biffCell(row, col uint16) []byte { return join(u16(row), u16(col), u16(0)) }

func workbookStream() []byte {
	sst := join(u32(3), u32(2),
		u16(4), []byte{0}, []byte("Test"),
		u16(10), []byte{0}, []byte("Hemoglobin"),
	)
	return join(
		biff(biffBOF, u16(0x0600), u16(0x0005), make([]byte, 12)),
		biff(biffBoundSheet, u32(0), u16(0), []byte{4, 0}, []byte("Labs")),
		biff(biffSST, sst),
		biff(biffEOF),
		biff(biffBOF, u16(0x0600), u16(0x0010), make([]byte, 12)),
		biff(biffLabelSST, biffCell(0, 0), u32(0)),
		biff(biffLabelSST, biffCell(1, 0), u32(1)),
		biff(biffNumber, biffCell(1, 1), binary.LittleEndian.AppendUint64(nil, math.Float64bits(13.5))),
		biff(biffLabel, biffCell(2, 0), u16(7), []byte{0}, []byte("Glucose")),
		biff(biffRK, biffCell(2, 1), u32(95<<2|0x02)),
		biff(biffEOF),
	)
}

func pptRecord(verInst, typ uint16, body ...[]byte) []byte {
	data := join(body...)
	return join(u16(verInst), u16(typ), u32(uint32(len(data))), data)
}

func presentationStream() []byte {
	persist := func() []byte { return pptRecord(0, pptSlidePersistAtom, make([]byte, 20)) }
	slides := pptRecord(0x000F, pptSlideListWithTxt,
		persist(),
		pptRecord(0, pptTextCharsAtom, fixture.UTF16("Follow-up visit\rCardiology")),
		persist(),
		pptRecord(0, pptTextBytesAtom, []byte("Plan: recheck lipids in 3 months")),
	)
	notes := pptRecord(0x000F, pptNotes, pptRecord(0, pptTextCharsAtom, fixture.UTF16("speaker notes")))
	return join(pptRecord(0x000F, 0x03E8, slides), notes)
}

func TestRegistryLegacyOfficeFormats(t *testing.T) {
	wd, table := wordDocument("Diagnosis: hypertension\rBP 150/95\x07")
	scrape := make([]byte, 0x600)
	binary.LittleEndian.PutUint16(scrape, 0xA5EC)
	scrape = append(scrape, fixture.UTF16("Allergies: penicillin")...)

	tests := []struct {
		name    string
		format  constants.Format
		data    []byte
		method  string
		locs    []string
		texts   []string
		noteHas string
	}{
		{
			name:   "doc piece table",
			format: constants.WordDocument,
			data: fixture.CompoundFile(
				fixture.Stream{Name: "WordDocument", Data: wd},
				fixture.Stream{Name: "1Table", Data: table},
			),
			method: "doc",
			locs:   []string{"document 1"},
			texts:  []string{"Diagnosis: hypertension\nBP 150/95"},
		},
		{
			name:    "doc without piece table",
			format:  constants.WordDocument,
			data:    fixture.CompoundFile(fixture.Stream{Name: "WordDocument", Data: scrape}),
			method:  "doc-scrape",
			locs:    []string{"document 1"},
			texts:   []string{"Allergies: penicillin"},
			noteHas: "piece table unusable",
		},
		{
			name:   "xls",
			format: constants.Spreadsheet,
			data:   fixture.CompoundFile(fixture.Stream{Name: "Workbook", Data: workbookStream()}),
			method: "xls",
			locs:   []string{"sheet 0 (Labs)"},
			texts:  []string{"Test\nHemoglobin\t13.5\nGlucose\t95"},
		},
		{
			name:   "ppt",
			format: constants.Presentation,
			data:   fixture.CompoundFile(fixture.Stream{Name: "PowerPoint Document", Data: presentationStream()}),
			method: "ppt",
			locs:   []string{"slide 1", "slide 2"},
			texts:  []string{"Follow-up visit\nCardiology", "Plan: recheck lipids in 3 months"},
		},
	}
	reg := NewRegistry(Config{}, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := reg.Extract(context.Background(), entity.Document{Filename: "legacy", Format: tt.format, Data: tt.data})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.Method != tt.method {
				t.Errorf("method = %q, want %q", res.Method, tt.method)
			}
			if len(res.Fragments) != len(tt.texts) {
				t.Fatalf("fragments = %+v", res.Fragments)
			}
			for i, f := range res.Fragments {
				if got := f.Locator.String(); got != tt.locs[i] {
					t.Errorf("fragment %d locator = %q, want %q", i, got, tt.locs[i])
				}
				if f.Text != tt.texts[i] {
					t.Errorf("fragment %d text = %q, want %q", i, f.Text, tt.texts[i])
				}
			}
			if tt.noteHas == "" && len(res.Notes) != 0 {
				t.Errorf("notes = %v", res.Notes)
			}
			if tt.noteHas != "" && (len(res.Notes) != 1 || !strings.Contains(res.Notes[0], tt.noteHas)) {
				t.Errorf("notes = %v, want one mentioning %q", res.Notes, tt.noteHas)
			}
		})
	}
}

func TestRegistryLegacyMissingStream(t *testing.T) {
	reg := NewRegistry(Config{}, nil, nil)
	data := fixture.CompoundFile(fixture.Stream{Name: "Contents", Data: []byte("x")})
	for _, f := range []constants.Format{constants.WordDocument, constants.Spreadsheet, constants.Presentation} {
		if _, err := reg.Extract(context.Background(), entity.Document{Filename: "legacy", Format: f, Data: data}); err == nil {
			t.Errorf("%s: expected error for compound file without its main stream", f)
		}
	}
}
