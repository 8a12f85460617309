package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/detect"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

// SpreadsheetExtractor serializes each non-empty sheet, in workbook order,
// as tab-separated rows; one fragment per sheet.
type SpreadsheetExtractor struct {
	base
}

func (e *SpreadsheetExtractor) Extract(_ context.Context, doc entity.Document) (Result, error) {
	switch {
	case detect.IsZip(doc.Data):
		return e.extractXlsx(doc)
	case detect.IsOLE(doc.Data):
		return extractLegacyWorkbook(doc.Data)
	}
	return Result{}, fmt.Errorf("not a spreadsheet container")
}

func (e *SpreadsheetExtractor) extractXlsx(doc entity.Document) (Result, error) {
	res := Result{Method: "xlsx"}
	f, err := excelize.OpenReader(bytes.NewReader(doc.Data))
	if err != nil {
		return res, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("extract.xlsx.close_error", "error", err)
		}
	}()

	sheets := f.GetSheetList()
	res.Units = len(sheets)
	for i, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			res.note("sheet %q unreadable: %v", name, err)
			continue
		}
		text := joinRows(rows)
		if text == "" {
			continue
		}
		res.add(entity.NativeFragment(text, entity.Locator{Kind: entity.LocatorSheet, Index: i, Name: name}))
	}
	return res, nil
}

// joinRows renders rows as tab-separated lines, dropping trailing empty cells and blank rows.
func joinRows(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		end := len(row)
		for end > 0 && strings.TrimSpace(row[end-1]) == "" {
			end--
		}
		if end == 0 {
			continue
		}
		for j, cell := range row[:end] {
			if j > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(strings.TrimSpace(cell))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
