// Package ocr turns raster images into text behind a bounded, timeout-guarded adapter.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
)

// ErrDisabled is returned by the engine used when OCR is switched off.
var ErrDisabled = errors.New("ocr disabled")

// Engine recognizes text in one encoded image (PNG, JPEG, TIFF, ...).
// Confidence is in 0..1.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (text string, confidence float32, err error)
}

type disabled struct{}

func (disabled) Name() string { return "none" }

func (disabled) Recognize(context.Context, []byte) (string, float32, error) {
	return "", 0, ErrDisabled
}

// Disabled returns an engine that always fails, so image-only inputs degrade to notes.
func Disabled() Engine { return disabled{} }

// NewEngine builds the engine selected by cfg.Engine.
func NewEngine(cfg common.OCRConfig, logger *slog.Logger) (Engine, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", "tesseract":
		return NewTesseract(TesseractConfig{
			Binary:      cfg.Tesseract,
			Lang:        cfg.Lang,
			TessdataDir: cfg.TessdataDir,
			PSM:         cfg.PSM,
		}, ExecRunner{Logger: logger}, logger), nil
	case "http":
		return NewHTTPEngine(HTTPConfig{URL: cfg.APIURL}, &http.Client{Timeout: cfg.Timeout + 5*time.Second}, logger), nil
	case "none":
		return Disabled(), nil
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown ocr engine %q", cfg.Engine), common.ErrInvalidInput)
	}
}
