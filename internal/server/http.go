package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
)

const (
	// UploadField is the multipart form field carrying the document.
	UploadField = "report"

	requestIDHeader = "X-Request-ID"
	multipartMemory = 8 << 20
	limiterIdleTTL  = 10 * time.Minute
)

type HTTPServer struct {
	analyzer  DocumentAnalyzer
	maxUpload int64
	limiter   *ipLimiter
	logger    *slog.Logger
}

func NewHTTPServer(analyzer DocumentAnalyzer, cfg common.ServerConfig, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		analyzer:  analyzer,
		maxUpload: cfg.MaxUploadBytes,
		limiter:   newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:    logger,
	}
}

// Handler returns the router:
//
//	POST /v1/analyze  multipart field "report", or a raw body with ?filename=
//	GET  /v1/formats
//	GET  /healthz
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/formats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"formats": SupportedFormats()})
	})
	r.With(s.rateLimit).Post("/v1/analyze", s.handleAnalyze)
	return r
}

func (s *HTTPServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := common.LoggerFrom(ctx, s.logger)
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}

	filename, data, err := readUpload(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			log.Warn("http.analyze.too_large", "limit", tooBig.Limit)
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorBody{
				Error:     fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit),
				Code:      common.CodeInvalidInput,
				RequestID: common.RequestIDFromContext(ctx),
			})
			return
		}
		log.Warn("http.analyze.bad_upload", "error", err)
		s.writeError(w, r, common.NewAppError(common.CodeInvalidInput, err.Error(), common.ErrInvalidInput))
		return
	}

	rec, err := s.analyzer.Analyze(ctx, filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// readUpload accepts a multipart form or a raw body named by ?filename=.
func readUpload(r *http.Request) (string, []byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", nil, err
		}
		file, hdr, err := r.FormFile(UploadField)
		if err != nil {
			return "", nil, fmt.Errorf("missing file field %q", UploadField)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, err
		}
		return hdr.Filename, data, nil
	}

	name := r.URL.Query().Get("filename")
	if name == "" {
		return "", nil, fmt.Errorf("send multipart field %q or a raw body with ?filename=", UploadField)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, err
	}
	return name, data, nil
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	log := common.LoggerFrom(r.Context(), s.logger)
	if status >= 500 {
		log.Error("http.analyze.failed", "status", status, "error", err)
	} else {
		log.Warn("http.analyze.rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody(r.Context(), err))
}

// requestID honors an incoming X-Request-ID or mints one, echoes it back and
// logs the request when it completes.
func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" && len(id) <= 128 {
			ctx = common.WithRequestID(ctx, id)
		}
		ctx, id := common.EnsureRequestID(ctx)
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		common.LoggerFrom(ctx, s.logger).Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, ErrorBody{
				Error:     "rate limit exceeded",
				Code:      common.CodeInvalidInput,
				RequestID: common.RequestIDFromContext(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ipLimiter keeps one token bucket per client address. Idle buckets are
// swept on access.
type ipLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	buckets   map[string]*ipBucket
	lastSweep time.Time
}

type ipBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// newIPLimiter returns nil when rps is not positive, which disables limiting.
func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{rps: rate.Limit(rps), burst: burst, buckets: map[string]*ipBucket{}, lastSweep: time.Now()}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > limiterIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
