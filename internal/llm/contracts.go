package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// AnalyzeRequest is what an analysis backend sees of a document.
type AnalyzeRequest struct {
	Text      string // normalized document text
	Filename  string
	Truncated bool // Text was cut to the configured maximum
}

// Analyzer is an external text-analysis capability. It returns the model's
// raw reply; cleaning, validation and mapping happen in the caller.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req AnalyzeRequest) (string, error)
}

// ErrEmptyResponse is returned when a backend answers without content.
var ErrEmptyResponse = errors.New("empty response from analysis backend")

// Chain tries each analyzer in order and returns the first successful reply.
// A cancelled or expired context stops the chain.
type Chain struct {
	analyzers []Analyzer
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, analyzers ...Analyzer) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{analyzers: analyzers, logger: logger}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.analyzers))
	for i, a := range c.analyzers {
		names[i] = a.Name()
	}
	return strings.Join(names, ">")
}

func (c *Chain) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	r, err := c.AnalyzeRouted(ctx, req)
	return r.Text, err
}

// Routed is a reply together with the backend that produced it and the
// failures of the backends tried before it.
type Routed struct {
	Text     string
	Analyzer string
	Failures []error
}

// FellBack reports whether a backend other than the first answered.
func (r Routed) FellBack() bool { return len(r.Failures) > 0 }

// Router is implemented by analyzers that may answer through a fallback.
type Router interface {
	AnalyzeRouted(ctx context.Context, req AnalyzeRequest) (Routed, error)
}

func (c *Chain) AnalyzeRouted(ctx context.Context, req AnalyzeRequest) (Routed, error) {
	var errs []error
	for _, a := range c.analyzers {
		out, err := a.Analyze(ctx, req)
		if err == nil {
			if len(errs) > 0 {
				c.logger.Warn("llm.chain.fallback_used", "analyzer", a.Name(), "failed", len(errs))
			}
			return Routed{Text: out, Analyzer: a.Name(), Failures: errs}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("llm.chain.analyzer_failed", "analyzer", a.Name(), "error", err)
	}
	if len(errs) == 0 {
		return Routed{}, fmt.Errorf("no analyzers configured")
	}
	return Routed{}, errors.Join(errs...)
}
