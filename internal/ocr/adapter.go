package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

// Limiter caps concurrent OCR calls across all requests in the process.
// Build one in main and hand it to every Adapter.
type Limiter struct {
	sem *semaphore.Weighted
	n   int64
}

func NewLimiter(n int64) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(n), n: n}
}

// Capacity is the number of concurrent OCR calls allowed.
func (l *Limiter) Capacity() int64 { return l.n }

func (l *Limiter) acquire(ctx context.Context) error { return l.sem.Acquire(ctx, 1) }

func (l *Limiter) release() { l.sem.Release(1) }

// Region is one image handed to OCR, tagged with where it sits in the document.
type Region struct {
	Image   []byte
	Locator entity.Locator
}

// Adapter wraps an Engine with the shared limiter and a per-call timeout.
// It never returns an error: failures become an empty zero-confidence fragment
// plus a note for the caller's partial-extraction record.
type Adapter struct {
	engine  Engine
	limiter *Limiter
	timeout time.Duration
	logger  *slog.Logger
}

func NewAdapter(engine Engine, limiter *Limiter, timeout time.Duration, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = Disabled()
	}
	if limiter == nil {
		limiter = NewLimiter(1)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{engine: engine, limiter: limiter, timeout: timeout, logger: logger}
}

// Recognize returns the OCR fragment for r, and a non-empty note when OCR did not succeed.
func (a *Adapter) Recognize(ctx context.Context, r Region) (entity.TextFragment, string) {
	log := common.LoggerFrom(ctx, a.logger)
	frag := entity.TextFragment{Locator: r.Locator, Method: constants.MethodOCR}
	start := time.Now()

	if len(r.Image) == 0 {
		return frag, fmt.Sprintf("ocr skipped for %s: empty image", r.Locator)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.limiter.acquire(ctx); err != nil {
		log.Warn("ocr.recognize.limiter_timeout", "locator", r.Locator.String(), "error", err)
		return frag, fmt.Sprintf("ocr timed out waiting for capacity on %s", r.Locator)
	}
	defer a.limiter.release()

	text, conf, err := a.engine.Recognize(ctx, r.Image)
	if err != nil {
		reason := err.Error()
		switch {
		case errors.Is(err, ErrDisabled):
			reason = "ocr disabled"
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			reason = fmt.Sprintf("timed out after %s", a.timeout)
		case errors.Is(err, context.Canceled):
			reason = "cancelled"
		}
		log.Warn("ocr.recognize.failed",
			"engine", a.engine.Name(),
			"locator", r.Locator.String(),
			"reason", reason,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return frag, fmt.Sprintf("ocr failed for %s: %s", r.Locator, reason)
	}

	frag.Text = strings.TrimSpace(text)
	frag.Confidence = clamp01(conf)
	log.Debug("ocr.recognize.ok",
		"engine", a.engine.Name(),
		"locator", r.Locator.String(),
		"text_len", len(frag.Text),
		"confidence", frag.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if frag.Text == "" {
		return frag, fmt.Sprintf("ocr found no text in %s", r.Locator)
	}
	return frag, ""
}

func clamp01(f float32) float32 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
