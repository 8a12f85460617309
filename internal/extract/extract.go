// Package extract turns a detected document into ordered, located text fragments.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
)

// Extractor produces fragments for one document format.
type Extractor interface {
	Extract(ctx context.Context, doc entity.Document) (Result, error)
}

// Result is the outcome of text extraction. Notes record units that were
// skipped or degraded; any note makes the final record partial.
type Result struct {
	Fragments []entity.TextFragment
	Notes     []string
	Units     int    // pages, sheets or slides seen
	Method    string // e.g. "pdf-text", "pdf-hybrid", "image-ocr"
}

func (r *Result) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

func (r *Result) add(f entity.TextFragment) {
	r.Fragments = append(r.Fragments, f)
}

// nonEmpty counts fragments carrying any text.
func (r Result) nonEmpty() int {
	n := 0
	for _, f := range r.Fragments {
		if strings.TrimSpace(f.Text) != "" {
			n++
		}
	}
	return n
}

type Config struct {
	MinNativeRunes int // below this a page/slide/document counts as image-only and is OCR'd
	MaxPages       int // 0 = no limit
	MaxPageWorkers int // parallel OCR calls per request
	MaxImages      int // per document; 0 = no limit
	// ConfidenceFloor is the normalizer's floor; garbled native text is scored below it.
	ConfidenceFloor float32
}

func (c Config) withDefaults() Config {
	if c.MinNativeRunes <= 0 {
		c.MinNativeRunes = 40
	}
	if c.MaxPageWorkers <= 0 {
		c.MaxPageWorkers = 4
	}
	if c.ConfidenceFloor <= 0 || c.ConfidenceFloor > 1 {
		c.ConfidenceFloor = 0.5
	}
	return c
}

// Registry dispatches each format to exactly one extractor.
type Registry struct {
	extractors map[constants.Format]Extractor
	logger     *slog.Logger
}

func NewRegistry(cfg Config, adapter *ocr.Adapter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if adapter == nil {
		adapter = ocr.NewAdapter(nil, nil, 0, logger)
	}
	cfg = cfg.withDefaults()
	b := base{cfg: cfg, ocr: adapter, logger: logger}
	return &Registry{
		extractors: map[constants.Format]Extractor{
			constants.PlainText:    &TextExtractor{base: b},
			constants.PDF:          &PDFExtractor{base: b, open: openPDF},
			constants.WordDocument: &WordExtractor{base: b},
			constants.Spreadsheet:  &SpreadsheetExtractor{base: b},
			constants.Presentation: &PresentationExtractor{base: b},
			constants.Image:        &ImageExtractor{base: b},
		},
		logger: logger,
	}
}

// For returns the extractor registered for f.
func (r *Registry) For(f constants.Format) (Extractor, bool) {
	e, ok := r.extractors[f]
	return e, ok
}

// Extract dispatches on doc.Format. It fails only when the document yields no
// text at all; per-unit problems are carried in Result.Notes.
func (r *Registry) Extract(ctx context.Context, doc entity.Document) (Result, error) {
	log := common.LoggerFrom(ctx, r.logger)
	e, ok := r.For(doc.Format)
	if !ok {
		return Result{}, common.UnsupportedFormatError(doc.Filename)
	}
	if len(doc.Data) == 0 {
		return Result{}, common.ExtractionError(fmt.Sprintf("%s is empty", doc.Filename), nil)
	}

	start := time.Now()
	res, err := e.Extract(ctx, doc)
	if err != nil {
		log.Warn("extract.failed", "format", doc.Format, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if ctx.Err() != nil {
			return res, common.NewAppError(common.CodeTimeout, "text extraction did not finish", fmt.Errorf("%w: %w", common.ErrExtraction, ctx.Err()))
		}
		if common.CodeOf(err) == common.CodeInternal {
			err = common.ExtractionError(fmt.Sprintf("cannot read %s as %s", doc.Filename, doc.Format), err)
		}
		return res, err
	}
	if res.nonEmpty() == 0 {
		reason := fmt.Sprintf("no text found in %s", doc.Filename)
		if len(res.Notes) > 0 {
			reason += ": " + strings.Join(res.Notes, "; ")
		}
		return res, common.ExtractionError(reason, nil)
	}

	log.Info("extract.ok",
		"format", doc.Format,
		"method", res.Method,
		"units", res.Units,
		"fragments", len(res.Fragments),
		"notes", len(res.Notes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// base carries what every extractor shares.
type base struct {
	cfg    Config
	ocr    *ocr.Adapter
	logger *slog.Logger
}

// recognizeAll OCRs regions in parallel (bounded by MaxPageWorkers and the
// process-wide OCR limiter) and returns fragments and notes in region order.
func (b base) recognizeAll(ctx context.Context, regions []ocr.Region) ([]entity.TextFragment, []string) {
	frags := make([]entity.TextFragment, len(regions))
	notes := make([]string, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxPageWorkers)
	for i, r := range regions {
		g.Go(func() error {
			frags[i], notes[i] = b.ocr.Recognize(gctx, r)
			return nil
		})
	}
	_ = g.Wait() // workers never fail; degraded regions carry notes

	var outNotes []string
	for _, n := range notes {
		if n != "" {
			outNotes = append(outNotes, n)
		}
	}
	return frags, outNotes
}

// capImages applies MaxImages and reports how many were dropped.
func (b base) capImages(regions []ocr.Region) ([]ocr.Region, int) {
	if b.cfg.MaxImages <= 0 || len(regions) <= b.cfg.MaxImages {
		return regions, 0
	}
	return regions[:b.cfg.MaxImages], len(regions) - b.cfg.MaxImages
}

// sparse reports whether native text is too thin to stand on its own.
func (b base) sparse(text string) bool {
	return len([]rune(strings.TrimSpace(text))) < b.cfg.MinNativeRunes
}
