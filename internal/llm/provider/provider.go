// Package provider builds the configured analysis backend.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm/eino"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm/openai"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm/rules"
)

// New returns the primary provider, chained with the fallback when one is set.
// Remote providers are rate limited when cfg.RatePerMin is positive.
func New(ctx context.Context, cfg common.AnalysisConfig, logger *slog.Logger) (llm.Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	primary, err := build(ctx, cfg.Provider, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" || strings.EqualFold(cfg.Fallback, cfg.Provider) {
		return primary, nil
	}
	fallback, err := build(ctx, cfg.Fallback, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("llm.provider.chain", "primary", primary.Name(), "fallback", fallback.Name())
	return llm.NewChain(logger, primary, fallback), nil
}

func build(ctx context.Context, name string, cfg common.AnalysisConfig, logger *slog.Logger) (llm.Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openai":
		c := openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			ChatURL:     cfg.ChatURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			JSONMode:    cfg.ChatURL == "",
		}, logger)
		return llm.NewRateLimited(c, cfg.RatePerMin), nil
	case "eino":
		chat, err := eino.NewChatModel(ctx, eino.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, "create eino chat model", err)
		}
		return llm.NewRateLimited(eino.New(chat, logger), cfg.RatePerMin), nil
	case "rules":
		return rules.New(), nil
	}
	return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown analysis provider %q", name), common.ErrInvalidInput)
}
