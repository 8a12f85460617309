package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited spaces calls to an analyzer to protect a provider quota.
// Waiting honors the request context.
type RateLimited struct {
	next    Analyzer
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with a burst of one.
// A non-positive rate returns next unchanged.
func NewRateLimited(next Analyzer, perMinute int) Analyzer {
	if perMinute <= 0 {
		return next
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Analyze(ctx, req)
}
