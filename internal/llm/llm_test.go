package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"plain", `{"summary":"x"}`, `{"summary":"x"}`, true},
		{"fenced", "```json\n{\"summary\":\"x\"}\n```", `{"summary":"x"}`, true},
		{"prose around", "Here is the JSON:\n{\"a\":{\"b\":1}} Hope this helps {not json}", `{"a":{"b":1}}`, true},
		{"brace in string", `{"summary":"uses } inside"}`, `{"summary":"uses } inside"}`, true},
		{"unbalanced", `{"summary":"x"`, ``, false},
		{"no object", "The patient is stable.", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValidateRecord(t *testing.T) {
	good := `{"summary":"s","conditions":["a"],"medications":[],"vitals":{"heart_rate":"72 bpm","temperature":37.5},"treatments":[]}`
	if err := ValidateRecord([]byte(good)); err != nil {
		t.Errorf("object vitals: %v", err)
	}
	structured := `{"summary":"s","conditions":[],"medications":[],"vitals":{"bp":{"systolic":120,"diastolic":80,"unit":"mmHg"},"hr":{"value":72}},"treatments":[]}`
	if err := ValidateRecord([]byte(structured)); err != nil {
		t.Errorf("structured vitals: %v", err)
	}
	list := `{"summary":"s","conditions":[],"medications":[],"vitals":["BP: 120/80"],"treatments":[]}`
	if err := ValidateRecord([]byte(list)); err != nil {
		t.Errorf("list vitals: %v", err)
	}
	for _, bad := range []string{
		`{"summary":"s","conditions":"a","medications":[],"vitals":{},"treatments":[]}`,
		`{"summary":"s","medications":[],"vitals":{},"treatments":[]}`,
		`{"summary":"s","conditions":[],"medications":[],"vitals":{"bp":{"v":1}},"treatments":[]}`,
		`not json`,
	} {
		if err := ValidateRecord([]byte(bad)); err == nil {
			t.Errorf("expected validation error for %s", bad)
		}
	}
}

func TestNormalizeAndSanitizeJSON(t *testing.T) {
	raw := `{
		"Summary": "  Stable.  ",
		"diagnoses": "Hypertension; Type 2 diabetes",
		"medications": [{"name":"Metformin","dose":"500 mg"}, "Aspirin", null, 5],
		"vital_signs": {"bp": {"value":"120/80","Unit":"mmHg","source":"cuff"}, "hr": 72, "note": ["x"], "pulse": {"rhythm":"regular"}},
		"treatments": 42,
		"follow_up": "2 weeks"
	}`
	out, dropped, err := NormalizeAndSanitizeJSON([]byte(raw), nil)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if err := ValidateRecord(out); err != nil {
		t.Fatalf("sanitized record does not validate: %v\n%s", err, out)
	}
	var m struct {
		Summary     string         `json:"summary"`
		Conditions  []string       `json:"conditions"`
		Medications []string       `json:"medications"`
		Vitals      map[string]any `json:"vitals"`
		Treatments  []string       `json:"treatments"`
	}
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m.Summary != "Stable." {
		t.Errorf("summary = %q", m.Summary)
	}
	if strings.Join(m.Conditions, "|") != "Hypertension|Type 2 diabetes" {
		t.Errorf("conditions = %v", m.Conditions)
	}
	if strings.Join(m.Medications, "|") != "Metformin 500 mg|Aspirin|5" {
		t.Errorf("medications = %v", m.Medications)
	}
	bp, _ := m.Vitals["bp"].(map[string]any)
	if bp["value"] != "120/80" || bp["unit"] != "mmHg" || m.Vitals["hr"] != float64(72) {
		t.Errorf("vitals = %v", m.Vitals)
	}
	if _, ok := m.Vitals["pulse"]; ok {
		t.Errorf("reading without a value kept: %v", m.Vitals)
	}
	if _, ok := m.Vitals["note"]; ok {
		t.Errorf("unusable vital kept: %v", m.Vitals)
	}
	if len(m.Treatments) != 0 || len(dropped) != 1 || dropped[0] != "treatments(type)" {
		t.Errorf("treatments = %v dropped = %v", m.Treatments, dropped)
	}
	if strings.Contains(string(out), "follow_up") {
		t.Errorf("unknown key kept: %s", out)
	}
}

func TestNormalizeAndSanitizeJSONFillsMissing(t *testing.T) {
	out, dropped, err := NormalizeAndSanitizeJSON([]byte(`{"summary":"only"}`), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dropped) != 0 {
		t.Errorf("dropped = %v", dropped)
	}
	if err := ValidateRecord(out); err != nil {
		t.Errorf("filled record invalid: %v", err)
	}
	if _, _, err := NormalizeAndSanitizeJSON([]byte(`[1,2]`), nil); err == nil {
		t.Error("expected error for non-object")
	}
}

type stubAnalyzer struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Analyze(context.Context, AnalyzeRequest) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestChainFallsBack(t *testing.T) {
	first := &stubAnalyzer{name: "remote", err: errors.New("quota")}
	second := &stubAnalyzer{name: "rules", reply: "{}"}
	c := NewChain(nil, first, second)

	got, err := c.Analyze(context.Background(), AnalyzeRequest{Text: "x"})
	if err != nil || got != "{}" {
		t.Fatalf("Analyze = %q, %v", got, err)
	}
	if c.Name() != "remote>rules" {
		t.Errorf("name = %q", c.Name())
	}

	routed, err := c.AnalyzeRouted(context.Background(), AnalyzeRequest{Text: "x"})
	if err != nil || !routed.FellBack() || routed.Analyzer != "rules" || !strings.Contains(routed.Failures[0].Error(), "remote: quota") {
		t.Errorf("AnalyzeRouted = %+v, %v", routed, err)
	}
	first.err = nil
	first.reply = `{"summary":"s"}`
	if routed, _ = c.AnalyzeRouted(context.Background(), AnalyzeRequest{Text: "x"}); routed.FellBack() || routed.Analyzer != "remote" {
		t.Errorf("primary answered but routed = %+v", routed)
	}
	first.err = errors.New("quota")

	second.err = errors.New("broken")
	_, err = c.Analyze(context.Background(), AnalyzeRequest{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "quota") || !strings.Contains(err.Error(), "broken") {
		t.Errorf("joined error = %v", err)
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := &stubAnalyzer{name: "a", err: context.Canceled}
	second := &stubAnalyzer{name: "b", reply: "{}"}
	if _, err := NewChain(nil, first, second).Analyze(ctx, AnalyzeRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if second.calls != 0 {
		t.Error("second analyzer called after cancellation")
	}
}

func TestRateLimited(t *testing.T) {
	inner := &stubAnalyzer{name: "x", reply: "{}"}
	if NewRateLimited(inner, 0) != Analyzer(inner) {
		t.Error("zero rate should return the analyzer unchanged")
	}

	a := NewRateLimited(inner, 1) // one call per minute, burst 1
	if _, err := a.Analyze(context.Background(), AnalyzeRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Analyze(ctx, AnalyzeRequest{}); err == nil {
		t.Error("second call should wait past the deadline and fail")
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestSendJSON(t *testing.T) {
	var gotAuth, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		if r.URL.Path == "/fail" {
			http.Error(w, "overloaded", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ctx := common.WithRequestID(context.Background(), "req-42")
	raw, status, err := SendJSON(ctx, srv.Client(), srv.URL+"/ok", map[string]any{"a": 1}, map[string]string{"Authorization": "Bearer k"}, nil)
	if err != nil || status != 200 || string(raw) != `{"ok":true}` {
		t.Fatalf("SendJSON = %s, %d, %v", raw, status, err)
	}
	if gotAuth != "Bearer k" || gotReqID != "req-42" {
		t.Errorf("headers auth=%q reqid=%q", gotAuth, gotReqID)
	}

	_, status, err = SendJSON(context.Background(), srv.Client(), srv.URL+"/fail", map[string]any{}, nil, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusTooManyRequests || status != http.StatusTooManyRequests {
		t.Errorf("err = %v status = %d", err, status)
	}
}
