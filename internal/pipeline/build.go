package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/analysis"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/extract"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm/provider"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/normalize"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
)

// NewFromConfig wires every stage from cfg. The OCR limiter is shared by all
// pipelines in the process, so the caller owns it.
func NewFromConfig(ctx context.Context, cfg *common.Config, limiter *ocr.Limiter, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = ocr.NewLimiter(cfg.OCR.MaxConcurrent)
	}
	engine, err := ocr.NewEngine(cfg.OCR, logger)
	if err != nil {
		return nil, err
	}
	adapter := ocr.NewAdapter(engine, limiter, cfg.OCR.Timeout, logger)
	registry := extract.NewRegistry(extract.Config{
		MinNativeRunes:  cfg.Extract.MinNativeRunes,
		MaxPages:        cfg.Extract.MaxPages,
		MaxPageWorkers:  cfg.Extract.MaxPageWorkers,
		MaxImages:       cfg.Extract.MaxImages,
		ConfidenceFloor: cfg.Normalize.ConfidenceFloor,
	}, adapter, logger)

	analyzer, err := provider.New(ctx, cfg.Analysis, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("pipeline.ready",
		"ocr_engine", engine.Name(),
		"ocr_max_concurrent", limiter.Capacity(),
		"analyzer", analyzer.Name(),
	)
	return New(cfg.Pipeline,
		registry,
		normalize.New(cfg.Normalize, logger),
		analysis.NewEngine(analyzer, logger),
		logger,
	), nil
}
