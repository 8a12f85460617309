package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
)

// ImageExtractor OCRs a scanned page or photo as a whole.
type ImageExtractor struct {
	base
}

func (e *ImageExtractor) Extract(ctx context.Context, doc entity.Document) (Result, error) {
	res := Result{Units: 1, Method: "image-ocr"}
	cfg, kind, err := image.DecodeConfig(bytes.NewReader(doc.Data))
	if err != nil {
		return res, fmt.Errorf("undecodable image: %w", err)
	}
	e.logger.Debug("extract.image", "kind", kind, "width", cfg.Width, "height", cfg.Height)
	if cfg.Width == 0 || cfg.Height == 0 {
		return res, fmt.Errorf("image has no pixels")
	}

	frag, note := e.ocr.Recognize(ctx, ocr.Region{
		Image:   doc.Data,
		Locator: entity.Locator{Kind: entity.LocatorDocument, Index: 1},
	})
	if note != "" {
		res.Notes = append(res.Notes, note)
	}
	if frag.Text != "" {
		res.add(frag)
	}
	return res, nil
}
