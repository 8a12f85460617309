// Package pipeline runs one document through detection, text extraction,
// normalization and entity extraction.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/detect"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/extract"
)

const maxFilenameRunes = 255

type TextExtractor interface {
	Extract(ctx context.Context, doc entity.Document) (extract.Result, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, frags []entity.TextFragment) entity.NormalizedText
}

type RecordExtractor interface {
	ExtractFor(ctx context.Context, filename string, text entity.NormalizedText, partial bool) entity.StructuredRecord
}

// Outcome is a finished request with the provenance callers may want to show.
type Outcome struct {
	RequestID string
	Filename  string
	Format    constants.Format
	Method    string
	Units     int
	Fragments int
	Elapsed   time.Duration
	Record    entity.StructuredRecord
}

type Pipeline struct {
	cfg        common.PipelineConfig
	extractor  TextExtractor
	normalizer Normalizer
	analysis   RecordExtractor
	logger     *slog.Logger
}

func New(cfg common.PipelineConfig, ex TextExtractor, norm Normalizer, analysis RecordExtractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		extractor:  ex,
		normalizer: norm,
		analysis:   analysis,
		logger:     logger,
	}
}

// Analyze returns the structured record for one document. Errors are returned
// only when no usable text was obtained; later problems are reflected in the
// record's extraction status.
func (p *Pipeline) Analyze(ctx context.Context, filename string, data []byte) (entity.StructuredRecord, error) {
	out, err := p.Run(ctx, filename, data)
	if err != nil {
		return entity.StructuredRecord{}, err
	}
	return out.Record, nil
}

// Run is Analyze with provenance.
func (p *Pipeline) Run(ctx context.Context, filename string, data []byte) (Outcome, error) {
	ctx, reqID := common.EnsureRequestID(ctx)
	log := common.LoggerFrom(ctx, p.logger).With("filename", filename)
	r := newRun(log)
	out := Outcome{RequestID: reqID, Filename: filename}

	if err := common.NewValidator().
		Field("filename", filename, common.Required, common.MaxLength(maxFilenameRunes)).
		Field("data", data, common.MaxBytes(p.cfg.MaxInputBytes)).
		Err(); err != nil {
		return out, r.fail(err)
	}

	// Received -> FormatDetected
	doc := entity.NewDocument(filename, data)
	dctx, cancel := common.WithTimeout(ctx, p.cfg.DetectTimeout)
	doc.Format = detect.Detect(filename, data)
	derr := dctx.Err()
	cancel()
	if derr != nil {
		return out, r.fail(stageError("detect", derr))
	}
	if doc.Format == constants.Unknown {
		return out, r.fail(common.UnsupportedFormatError(filename))
	}
	out.Format = doc.Format
	if err := r.advance(constants.StateFormatDetected, "format", doc.Format, "bytes", len(data)); err != nil {
		return out, r.fail(err)
	}
	if len(data) == 0 {
		return out, r.fail(common.ExtractionError("file is empty", nil))
	}

	// FormatDetected -> TextExtracted
	ectx, cancel := common.WithTimeout(ctx, p.cfg.ExtractTimeout)
	res, err := p.extractor.Extract(ectx, doc)
	cancel()
	if err != nil {
		return out, r.fail(err)
	}
	out.Method, out.Units, out.Fragments = res.Method, res.Units, len(res.Fragments)
	if err := r.advance(constants.StateTextExtracted,
		"method", res.Method,
		"units", res.Units,
		"fragments", len(res.Fragments),
		"notes", len(res.Notes),
	); err != nil {
		return out, r.fail(err)
	}

	// TextExtracted -> Normalized
	nctx, cancel := common.WithTimeout(ctx, p.cfg.NormalizeTimeout)
	text := p.normalizer.Normalize(nctx, res.Fragments)
	nerr := nctx.Err()
	cancel()
	if err := r.advance(constants.StateNormalized, "chars", len([]rune(text.Text)), "truncated", text.Truncated, "dropped", len(text.Notes)); err != nil {
		return out, r.fail(err)
	}

	// Normalized -> Analyzed
	var rec entity.StructuredRecord
	switch {
	case nerr != nil:
		rec = unanalyzed("normalization did not finish in time", stageError("normalize", nerr))
	case strings.TrimSpace(text.Text) == "":
		rec = unanalyzed("no readable text remained after cleanup", nil)
	default:
		actx, cancel := common.WithTimeout(ctx, p.cfg.AnalyzeTimeout)
		rec = p.analysis.ExtractFor(actx, filename, text, len(res.Notes)+len(text.Notes) > 0)
		cancel()
	}
	rec.Notes = slices.Concat(res.Notes, text.Notes, rec.Notes)
	rec.Ensure()
	if err := r.advance(constants.StateAnalyzed, "status", rec.ExtractionStatus, "notes", len(rec.Notes)); err != nil {
		return out, r.fail(err)
	}

	// a caller that went away gets nothing
	if err := ctx.Err(); err != nil {
		return out, r.fail(stageError("analyze", err))
	}

	out.Record = rec
	out.Elapsed = time.Since(r.started)
	if err := r.advance(constants.StateCompleted, "status", rec.ExtractionStatus); err != nil {
		return out, r.fail(err)
	}
	return out, nil
}

// unanalyzed is the record for text that never reached the analysis backend.
func unanalyzed(reason string, err error) entity.StructuredRecord {
	rec := entity.NewRecord()
	rec.ExtractionStatus = constants.StatusFailed
	rec.Summary = "Analysis failed: " + reason + "."
	if err != nil {
		rec.Notes = append(rec.Notes, err.Error())
	}
	return rec
}

func stageError(stage string, err error) *common.AppError {
	return common.NewAppError(common.CodeTimeout, fmt.Sprintf("%s stage did not finish", stage), fmt.Errorf("%w: %w", common.ErrTimeout, err))
}
