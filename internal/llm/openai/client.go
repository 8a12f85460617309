package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
)

func (c *Client) Name() string { return "openai" }

// Analyze implements llm.Analyzer using text-only chat/completions. Besides
// the OpenAI shape it accepts the reply shapes of simple chat gateways.
func (c *Client) Analyze(ctx context.Context, req llm.AnalyzeRequest) (string, error) {
	log := common.LoggerFrom(ctx, c.log)
	start := time.Now()

	log.Info("llm.analyze.start",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"truncated", req.Truncated,
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "system", "content": llm.SchemaPrompt()},
			{"role": "user", "content": llm.BuildUserPrompt(req)},
		},
	}
	if c.cfg.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	raw, _, err := llm.SendJSON(ctx, c.httpClient, c.endpoint(), body, headers, c.log)
	if err != nil {
		log.Error("llm.analyze.http_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	content, err := replyContent(raw)
	if err != nil {
		log.Error("llm.analyze.decode_error", "error", err, "raw_bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	log.Info("llm.analyze.ok", "content_len", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}

// replyContent reads the assistant text from choices[0].message.content
// (string or content parts), choices[0].text, or a top-level "response" or
// "content" string.
func replyContent(raw []byte) (string, error) {
	var r struct {
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
		Response *string `json:"response"`
		Content  *string `json:"content"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	var out string
	switch {
	case len(r.Choices) > 0:
		ch := r.Choices[0]
		out = ch.Text
		if len(ch.Message.Content) > 0 {
			out = messageText(ch.Message.Content)
		}
	case r.Response != nil:
		out = *r.Response
	case r.Content != nil:
		out = *r.Content
	default:
		return "", fmt.Errorf("unrecognized chat response shape")
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", llm.ErrEmptyResponse
	}
	return out, nil
}

func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" || p.Type == "output_text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
