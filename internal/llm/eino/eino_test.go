package eino

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
)

type fakeChatModel struct {
	reply *schema.Message
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestAnalyze(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("  {\"summary\":\"ok\"}\n", nil)}
	a := New(fake, nil)

	got, err := a.Analyze(context.Background(), llm.AnalyzeRequest{Text: "HR 72", Filename: "note.txt"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got != `{"summary":"ok"}` {
		t.Errorf("reply = %q", got)
	}
	if len(fake.seen) != 3 || fake.seen[0].Role != schema.System || fake.seen[2].Role != schema.User {
		t.Fatalf("messages = %+v", fake.seen)
	}
	if !strings.Contains(fake.seen[2].Content, "HR 72") {
		t.Errorf("user message missing text: %q", fake.seen[2].Content)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	boom := errors.New("upstream down")
	if _, err := New(&fakeChatModel{err: boom}, nil).Analyze(context.Background(), llm.AnalyzeRequest{Text: "x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if _, err := New(&fakeChatModel{reply: schema.AssistantMessage(" ", nil)}, nil).Analyze(context.Background(), llm.AnalyzeRequest{Text: "x"}); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Errorf("blank reply err = %v", err)
	}
}

func TestNewChatModelRequiresKey(t *testing.T) {
	if _, err := NewChatModel(context.Background(), ChatModelConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}
