// Package export renders batch analysis results as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/pipeline"
)

const (
	SummarySheet = "Records"
	VitalsSheet  = "Vitals"

	maxCellRunes = 32000 // Excel rejects cells over 32,767 characters
)

// Row is one analyzed (or rejected) file.
type Row struct {
	Path    string
	Outcome pipeline.Outcome
	Err     error
}

type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

var summaryHeaders = []string{
	"File",
	"Format",
	"Method",
	"Status",
	"Summary",
	"Conditions",
	"Medications",
	"Treatments",
	"Vitals",
	"Notes",
	"Elapsed (ms)",
	"Error",
}

// Write renders rows, sorted by path, to w.
func (x *Writer) Write(w io.Writer, rows []Row) error {
	start := time.Now()
	f, err := x.build(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	x.logger.Info("export.xlsx.ok", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// Bytes is Write into memory.
func (x *Writer) Bytes(rows []Row) ([]byte, error) {
	f, err := x.build(rows)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func (x *Writer) build(rows []Row) (*excelize.File, error) {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	f := excelize.NewFile()
	// NewFile starts with Sheet1; rename it so the summary is the first tab.
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(VitalsSheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, SummarySheet, summaryHeaders); err != nil {
		return nil, err
	}
	if err := writeHeader(f, VitalsSheet, []string{"File", "Vital", "Reading", "Value", "Diastolic", "Unit"}); err != nil {
		return nil, err
	}

	vitalRow := 2
	for i, r := range sorted {
		row := i + 2
		rec := r.Outcome.Record
		errText := ""
		if r.Err != nil {
			errText = fmt.Sprintf("[%s] %v", common.CodeOf(r.Err), r.Err)
		}
		values := []any{
			r.Path,
			string(r.Outcome.Format),
			r.Outcome.Method,
			string(rec.ExtractionStatus),
			clip(rec.Summary),
			clip(strings.Join(rec.Conditions, "; ")),
			clip(strings.Join(rec.Medications, "; ")),
			clip(strings.Join(rec.Treatments, "; ")),
			clip(vitalsLine(rec.Vitals)),
			clip(strings.Join(rec.Notes, "; ")),
			r.Outcome.Elapsed.Milliseconds(),
			clip(errText),
		}
		if r.Err != nil {
			values[3] = "error"
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return nil, err
		}

		for _, name := range sortedKeys(rec.Vitals) {
			v := rec.Vitals[name]
			line := []any{r.Path, name, v.Display(), v.Value, nil, v.Unit}
			if v.Diastolic != 0 {
				line[4] = v.Diastolic
			}
			cell, _ := excelize.CoordinatesToCellName(1, vitalRow)
			if err := f.SetSheetRow(VitalsSheet, cell, &line); err != nil {
				return nil, err
			}
			vitalRow++
		}
	}

	_ = f.SetColWidth(SummarySheet, "A", "A", 40) // file
	_ = f.SetColWidth(SummarySheet, "B", "D", 14)
	_ = f.SetColWidth(SummarySheet, "E", "E", 60) // summary
	_ = f.SetColWidth(SummarySheet, "F", "J", 36)
	_ = f.SetColWidth(SummarySheet, "L", "L", 40)
	_ = f.SetColWidth(VitalsSheet, "A", "A", 40)
	_ = f.SetColWidth(VitalsSheet, "B", "C", 20)
	_ = f.SetPanes(SummarySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	idx, _ := f.GetSheetIndex(SummarySheet)
	f.SetActiveSheet(idx)
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

func vitalsLine(vitals map[string]entity.VitalReading) string {
	parts := make([]string, 0, len(vitals))
	for _, k := range sortedKeys(vitals) {
		parts = append(parts, k+": "+vitals[k].Display())
	}
	return strings.Join(parts, "; ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxCellRunes {
		return s
	}
	return string(r[:maxCellRunes-1]) + "…"
}
