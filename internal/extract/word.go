package extract

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/detect"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
)

// WordExtractor handles DOCX, legacy DOC, and RTF saved under a .doc name.
type WordExtractor struct {
	base
}

func (e *WordExtractor) Extract(ctx context.Context, doc entity.Document) (Result, error) {
	switch {
	case detect.IsZip(doc.Data):
		return e.extractDocx(ctx, doc)
	case detect.IsOLE(doc.Data):
		return extractLegacyWord(doc.Data)
	case detect.IsRTF(doc.Data):
		res := Result{Units: 1, Method: "rtf"}
		res.add(entity.NativeFragment(rtfToText(doc.Data), entity.Locator{Kind: entity.LocatorDocument, Index: 1}))
		return res, nil
	}
	return Result{}, fmt.Errorf("not a word-processing container")
}

func (e *WordExtractor) extractDocx(ctx context.Context, doc entity.Document) (Result, error) {
	res := Result{Units: 1, Method: "docx"}
	zr, err := openZip(doc.Data)
	if err != nil {
		return res, err
	}
	raw, err := zr.read("word/document.xml")
	if err != nil {
		return res, err
	}
	text, err := xmlText(raw)
	if err != nil {
		res.note("document body is malformed, text may be incomplete: %v", err)
	}
	loc := entity.Locator{Kind: entity.LocatorDocument, Index: 1}
	if text != "" {
		res.add(entity.NativeFragment(text, loc))
	}
	if !e.sparse(text) {
		return res, nil
	}

	// scanned reports pasted into Word: OCR the embedded pictures
	var regions []ocr.Region
	for _, name := range zr.withPrefix("word/media/") {
		if !ocrableImage(name) {
			continue
		}
		img, err := zr.read(name)
		if err != nil {
			res.note("%s unreadable: %v", name, err)
			continue
		}
		regions = append(regions, ocr.Region{
			Image:   img,
			Locator: entity.Locator{Kind: entity.LocatorDocument, Index: 1, Region: len(regions) + 1},
		})
	}
	if len(regions) == 0 {
		return res, nil
	}
	res.Method = "docx-hybrid"
	regions, dropped := e.capImages(regions)
	if dropped > 0 {
		res.note("%d embedded images were not OCR'd (limit %d)", dropped, e.cfg.MaxImages)
	}
	frags, notes := e.recognizeAll(ctx, regions)
	res.Fragments = append(res.Fragments, frags...)
	res.Notes = append(res.Notes, notes...)
	return res, nil
}
