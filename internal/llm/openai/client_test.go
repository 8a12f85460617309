package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
)

func TestReplyContent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"chat string", `{"choices":[{"message":{"content":" {\"summary\":\"a\"} "}}]}`, `{"summary":"a"}`, false},
		{"chat parts", `{"choices":[{"message":{"content":[{"type":"text","text":"{\"a\":"},{"type":"image_url"},{"type":"text","text":"1}"}]}}]}`, `{"a":1}`, false},
		{"completion text", `{"choices":[{"text":"plain reply"}]}`, "plain reply", false},
		{"gateway response", `{"response":"from gateway"}`, "from gateway", false},
		{"gateway content", `{"content":"from content"}`, "from content", false},
		{"empty content", `{"choices":[{"message":{"content":"   "}}]}`, "", true},
		{"unknown shape", `{"result":"x"}`, "", true},
		{"not json", `<html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replyContent([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	if _, err := replyContent([]byte(`{"choices":[{"message":{"content":""}}]}`)); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Errorf("empty reply err = %v", err)
	}
}

func TestClientAnalyze(t *testing.T) {
	var body struct {
		Model          string `json:"model"`
		Messages       []struct{ Role, Content string }
		ResponseFormat map[string]string `json:"response_format"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "m1", JSONMode: true}, nil)
	got, err := c.Analyze(context.Background(), llm.AnalyzeRequest{Text: "BP 120/80", Filename: "a.pdf"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got != `{"summary":"ok"}` {
		t.Errorf("reply = %q", got)
	}
	if auth != "Bearer sk-test" || body.Model != "m1" || body.ResponseFormat["type"] != "json_object" {
		t.Errorf("auth=%q model=%q format=%v", auth, body.Model, body.ResponseFormat)
	}
	if len(body.Messages) != 3 || body.Messages[2].Role != "user" || !strings.Contains(body.Messages[2].Content, "BP 120/80") {
		t.Errorf("messages = %+v", body.Messages)
	}
}

func TestClientGatewayWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Values("Authorization")
		_, _ = w.Write([]byte(`{"response":"{}"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ChatURL: srv.URL + "/chat"}, nil)
	if got, err := c.Analyze(context.Background(), llm.AnalyzeRequest{Text: "x"}); err != nil || got != "{}" {
		t.Fatalf("Analyze = %q, %v", got, err)
	}
	if len(auth) != 0 {
		t.Errorf("unexpected Authorization header %v", auth)
	}
}

func TestClientNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", ChatURL: srv.URL}, nil)
	_, err := c.Analyze(context.Background(), llm.AnalyzeRequest{Text: "x"})
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(se.Body, "rate limited") {
		t.Errorf("body snippet = %q", se.Body)
	}
}
