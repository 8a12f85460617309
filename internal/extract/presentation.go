package extract

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/detect"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
)

var reSlidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// PresentationExtractor emits one fragment per slide in slide order.
type PresentationExtractor struct {
	base
}

func (e *PresentationExtractor) Extract(ctx context.Context, doc entity.Document) (Result, error) {
	switch {
	case detect.IsZip(doc.Data):
		return e.extractPptx(ctx, doc)
	case detect.IsOLE(doc.Data):
		return extractLegacyPresentation(doc.Data)
	}
	return Result{}, fmt.Errorf("not a presentation container")
}

type slidePart struct {
	n    int
	name string
}

func (e *PresentationExtractor) extractPptx(ctx context.Context, doc entity.Document) (Result, error) {
	res := Result{Method: "pptx"}
	zr, err := openZip(doc.Data)
	if err != nil {
		return res, err
	}
	var slides []slidePart
	for _, name := range zr.withPrefix("ppt/slides/") {
		if m := reSlidePart.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slidePart{n: n, name: name})
		}
	}
	if len(slides) == 0 {
		return res, fmt.Errorf("presentation has no slides")
	}
	slices.SortFunc(slides, func(a, b slidePart) int { return a.n - b.n })
	res.Units = len(slides)

	var regions []ocr.Region
	for _, s := range slides {
		loc := entity.Locator{Kind: entity.LocatorSlide, Index: s.n}
		raw, err := zr.read(s.name)
		if err != nil {
			res.note("slide %d unreadable: %v", s.n, err)
			continue
		}
		text, err := xmlText(raw)
		if err != nil {
			res.note("slide %d is malformed, text may be incomplete: %v", s.n, err)
		}
		if text != "" {
			res.add(entity.NativeFragment(text, loc))
		}
		if !e.sparse(text) {
			continue
		}
		for _, target := range zr.imageTargets(s.name) {
			if !ocrableImage(target) {
				continue
			}
			img, err := zr.read(target)
			if err != nil {
				res.note("slide %d image %s unreadable: %v", s.n, target, err)
				continue
			}
			loc.Region++
			regions = append(regions, ocr.Region{Image: img, Locator: loc})
		}
	}

	if len(regions) > 0 {
		res.Method = "pptx-hybrid"
		var dropped int
		regions, dropped = e.capImages(regions)
		if dropped > 0 {
			res.note("%d slide images were not OCR'd (limit %d)", dropped, e.cfg.MaxImages)
		}
		frags, notes := e.recognizeAll(ctx, regions)
		res.Fragments = append(res.Fragments, frags...)
		res.Notes = append(res.Notes, notes...)
		sortByLocator(res.Fragments)
	}
	return res, nil
}
