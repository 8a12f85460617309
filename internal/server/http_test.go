package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

// fakeAnalyzer records the last call and returns a canned record or error.
type fakeAnalyzer struct {
	filename string
	data     []byte
	reqID    string
	rec      entity.StructuredRecord
	err      error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, filename string, data []byte) (entity.StructuredRecord, error) {
	f.filename, f.data = filename, data
	f.reqID = common.RequestIDFromContext(ctx)
	return f.rec, f.err
}

func okRecord() entity.StructuredRecord {
	rec := entity.StructuredRecord{
		Summary:          "Follow-up visit.",
		Conditions:       []string{"Asthma"},
		ExtractionStatus: constants.StatusOK,
	}
	rec.Ensure()
	return rec
}

func testServerConfig() common.ServerConfig {
	return common.ServerConfig{MaxUploadBytes: 1 << 10}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestAnalyzeMultipart(t *testing.T) {
	fa := &fakeAnalyzer{rec: okRecord()}
	h := NewHTTPServer(fa, testServerConfig(), nil).Handler()

	body, ctype := multipartBody(t, UploadField, "visit.txt", []byte("Diagnosis: Asthma"))
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("X-Request-ID", "req-http-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Request-ID"); got != "req-http-1" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if fa.filename != "visit.txt" || string(fa.data) != "Diagnosis: Asthma" || fa.reqID != "req-http-1" {
		t.Errorf("analyzer saw %q %q %q", fa.filename, fa.data, fa.reqID)
	}

	var rec entity.StructuredRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ExtractionStatus != constants.StatusOK || len(rec.Conditions) != 1 {
		t.Errorf("record = %+v", rec)
	}
}

func TestAnalyzeRawBody(t *testing.T) {
	fa := &fakeAnalyzer{rec: okRecord()}
	h := NewHTTPServer(fa, testServerConfig(), nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze?filename=note.txt", strings.NewReader("BP 120/80"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if fa.filename != "note.txt" || fa.reqID == "" {
		t.Errorf("analyzer saw filename %q req id %q", fa.filename, fa.reqID)
	}
	if rr.Header().Get("X-Request-ID") != fa.reqID {
		t.Error("minted request id was not echoed")
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		field    string
		content  []byte
		wantCode int
		wantBody string
	}{
		{"unsupported", common.UnsupportedFormatError("blob.xyz"), UploadField, []byte("x"), http.StatusUnsupportedMediaType, common.CodeUnsupportedFormat},
		{"extraction", common.ExtractionError("no text", nil), UploadField, []byte("x"), http.StatusUnprocessableEntity, common.CodeExtraction},
		{"timeout", common.NewAppError(common.CodeTimeout, "extract timed out", common.ErrTimeout), UploadField, []byte("x"), http.StatusGatewayTimeout, common.CodeTimeout},
		{"missing field", nil, "file", []byte("x"), http.StatusBadRequest, common.CodeInvalidInput},
		{"too large", nil, UploadField, bytes.Repeat([]byte("a"), 4<<10), http.StatusRequestEntityTooLarge, common.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAnalyzer{err: tt.err}
			h := NewHTTPServer(fa, testServerConfig(), nil).Handler()

			body, ctype := multipartBody(t, tt.field, "doc.bin", tt.content)
			req := httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
			req.Header.Set("Content-Type", ctype)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			var eb ErrorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &eb); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if eb.Code != tt.wantBody || eb.Error == "" || eb.RequestID == "" {
				t.Errorf("error body = %+v", eb)
			}
		})
	}
}

func TestAnalyzeRateLimited(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	h := NewHTTPServer(&fakeAnalyzer{rec: okRecord()}, cfg, nil).Handler()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze?filename=a.txt", strings.NewReader("x"))
		req.RemoteAddr = "10.0.0.9:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}
	if rr := send(); rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rr.Code)
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestFormatsAndHealth(t *testing.T) {
	h := NewHTTPServer(&fakeAnalyzer{}, testServerConfig(), nil).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/formats", nil))
	var got struct {
		Formats []FormatInfo `json:"formats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Formats) != len(constants.Formats) {
		t.Fatalf("formats = %+v", got.Formats)
	}
	for _, f := range got.Formats {
		if len(f.Extensions) == 0 {
			t.Errorf("format %s has no extensions", f.Format)
		}
	}
}
