// Package eino runs record extraction through an eino chat model.
package eino

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
)

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// NewChatModel creates an OpenAI-compatible chat model from specific configuration.
func NewChatModel(ctx context.Context, cfg ChatModelConfig) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	temp := cfg.Temperature
	return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       modelName,
		Temperature: &temp,
		Timeout:     cfg.Timeout,
	})
}

// Analyzer implements llm.Analyzer on top of any eino chat model.
type Analyzer struct {
	chat   model.BaseChatModel
	logger *slog.Logger
}

func New(chat model.BaseChatModel, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{chat: chat, logger: logger}
}

func (a *Analyzer) Name() string { return "eino" }

func (a *Analyzer) Analyze(ctx context.Context, req llm.AnalyzeRequest) (string, error) {
	log := common.LoggerFrom(ctx, a.logger)
	start := time.Now()

	msgs := []*schema.Message{
		schema.SystemMessage(llm.BuildSystemPrompt()),
		schema.SystemMessage(llm.SchemaPrompt()),
		schema.UserMessage(llm.BuildUserPrompt(req)),
	}
	resp, err := a.chat.Generate(ctx, msgs)
	if err != nil {
		log.Error("llm.eino.generate_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", llm.ErrEmptyResponse
	}
	log.Info("llm.eino.ok", "content_len", len(resp.Content), "elapsed_ms", time.Since(start).Milliseconds())
	return strings.TrimSpace(resp.Content), nil
}
