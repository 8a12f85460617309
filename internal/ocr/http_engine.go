package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/detect"
)

type HTTPConfig struct {
	URL       string // full endpoint, e.g. http://ocr.local/api/ocr
	FieldName string // multipart field; default "file"
}

// HTTPEngine posts images to an OCR web API that answers {text, fileType, processingTime}.
// The API reports no confidence, so one is estimated from the text shape.
type HTTPEngine struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

type ocrAPIResponse struct {
	Text           string  `json:"text"`
	FileType       string  `json:"fileType"`
	ProcessingTime float64 `json:"processingTime"`
}

func NewHTTPEngine(cfg HTTPConfig, client *http.Client, logger *slog.Logger) *HTTPEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Minute}
	}
	if cfg.FieldName == "" {
		cfg.FieldName = "file"
	}
	return &HTTPEngine{cfg: cfg, client: client, logger: logger}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Recognize(ctx context.Context, image []byte) (string, float32, error) {
	start := time.Now()
	mimeType := detect.MimeType("", image)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, e.cfg.FieldName, "region"+extFor(mimeType)))
	hdr.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", 0, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", 0, fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", 0, fmt.Errorf("build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, &body)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ocr api: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			e.logger.Warn("ocr.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", 0, fmt.Errorf("ocr api status %d: %s", resp.StatusCode, string(slurp))
	}
	var parsed ocrAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("decode ocr api response: %w", err)
	}

	e.logger.Debug("ocr.http.ok",
		"file_type", parsed.FileType,
		"processing_ms", parsed.ProcessingTime,
		"text_len", len(parsed.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return parsed.Text, heuristicConfidence(parsed.Text), nil
}

func extFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/tiff":
		return ".tiff"
	case "image/bmp":
		return ".bmp"
	}
	return ".bin"
}
