package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
)

// garbledQuality is the textQuality below which native text is treated as
// unreliable and OCR is attempted for the page as well.
const garbledQuality = 0.75

// pdfDoc is the read-only view of a parsed PDF the extractor needs.
type pdfDoc interface {
	PageCount() int
	PageText(pageNr int) (string, error)
	PageImages(pageNr int) ([][]byte, error)
}

type pdfOpener func(data []byte) (pdfDoc, error)

// PDFExtractor reads the text layer page by page and OCRs the embedded
// images of pages whose text layer is missing, thin or garbled.
type PDFExtractor struct {
	base
	open pdfOpener
}

func (e *PDFExtractor) Extract(ctx context.Context, doc entity.Document) (Result, error) {
	res := Result{Method: "pdf-text"}
	pdf, err := e.open(doc.Data)
	if err != nil {
		return res, err
	}
	pages := pdf.PageCount()
	res.Units = pages
	if pages <= 0 {
		return res, fmt.Errorf("pdf has no pages")
	}
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		res.note("only the first %d of %d pages were read", e.cfg.MaxPages, pages)
		pages = e.cfg.MaxPages
	}

	var regions []ocr.Region
	for p := 1; p <= pages; p++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		loc := entity.Locator{Kind: entity.LocatorPage, Index: p}
		text, err := pdf.PageText(p)
		if err != nil {
			res.note("page %d: text layer unreadable: %v", p, err)
		}
		quality := textQuality(text)
		if text != "" {
			frag := entity.NativeFragment(text, loc)
			if quality < garbledQuality {
				// keep garbled text under the floor so a readable OCR pass wins
				frag.Confidence = e.cfg.ConfidenceFloor * quality / garbledQuality
			}
			res.add(frag)
		}
		if !e.sparse(text) && quality >= garbledQuality {
			continue
		}

		imgs, err := pdf.PageImages(p)
		if err != nil {
			res.note("page %d: images unreadable: %v", p, err)
			continue
		}
		if len(imgs) == 0 && text == "" {
			res.note("page %d has no text layer and no images", p)
			continue
		}
		for i, img := range imgs {
			regions = append(regions, ocr.Region{
				Image:   img,
				Locator: entity.Locator{Kind: entity.LocatorPage, Index: p, Region: i + 1},
			})
		}
	}

	if len(regions) > 0 {
		res.Method = "pdf-hybrid"
		var dropped int
		regions, dropped = e.capImages(regions)
		if dropped > 0 {
			res.note("%d embedded images were not OCR'd (limit %d)", dropped, e.cfg.MaxImages)
		}
		frags, notes := e.recognizeAll(ctx, regions)
		res.Fragments = append(res.Fragments, frags...)
		res.Notes = append(res.Notes, notes...)
		sortByLocator(res.Fragments)
	}
	return res, nil
}

// sortByLocator orders fragments by unit then region, keeping the relative
// order of fragments that share both.
func sortByLocator(frags []entity.TextFragment) {
	slices.SortStableFunc(frags, func(a, b entity.TextFragment) int {
		if a.Locator.Index != b.Locator.Index {
			return a.Locator.Index - b.Locator.Index
		}
		return a.Locator.Region - b.Locator.Region
	})
}

// pdfcpuDoc adapts a pdfcpu context. pdfcpu is not safe for concurrent use on
// one context, so pages are read sequentially and only OCR fans out.
type pdfcpuDoc struct {
	ctx *model.Context
}

func openPDF(data []byte) (doc pdfDoc, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	return &pdfcpuDoc{ctx: ctx}, nil
}

func (d *pdfcpuDoc) PageCount() int { return d.ctx.PageCount }

func (d *pdfcpuDoc) PageText(pageNr int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("content stream: %v", r)
		}
	}()
	r, err := pdfcpu.ExtractPageContent(d.ctx, pageNr)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return contentStreamText(data), nil
}

func (d *pdfcpuDoc) PageImages(pageNr int) (out [][]byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("image extraction: %v", r)
		}
	}()
	imgs, err := pdfcpu.ExtractPageImages(d.ctx, pageNr, false)
	if err != nil {
		return nil, err
	}
	objNrs := make([]int, 0, len(imgs))
	for nr := range imgs {
		objNrs = append(objNrs, nr)
	}
	slices.Sort(objNrs)
	for _, nr := range objNrs {
		b, err := io.ReadAll(imgs[nr])
		if err != nil || len(b) == 0 {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
