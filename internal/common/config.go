package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OCR       OCRConfig       `yaml:"ocr"`
	Extract   ExtractConfig   `yaml:"extract"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	GRPCAddr       string        `yaml:"grpc_addr"`
	HTTPAddr       string        `yaml:"http_addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MCPRoot        string        `yaml:"mcp_root"` // directory MCP clients may read documents from; empty disables paths
}

// OCRConfig selects and tunes the OCR engine.
type OCRConfig struct {
	Engine        string        `yaml:"engine"` // tesseract | http | none
	Tesseract     string        `yaml:"tesseract"`
	Lang          string        `yaml:"lang"`
	TessdataDir   string        `yaml:"tessdata_dir"`
	PSM           int           `yaml:"psm"`
	APIURL        string        `yaml:"api_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int64         `yaml:"max_concurrent"`
}

// ExtractConfig tunes per-format text extraction.
type ExtractConfig struct {
	MinNativeRunes int `yaml:"min_native_runes"`
	MaxPages       int `yaml:"max_pages"`
	MaxPageWorkers int `yaml:"max_page_workers"`
	MaxImages      int `yaml:"max_images"`
}

// NormalizeConfig tunes the text normalizer.
type NormalizeConfig struct {
	MaxChars        int     `yaml:"max_chars"`
	ConfidenceFloor float32 `yaml:"confidence_floor"`
}

// AnalysisConfig selects the entity-extraction backend.
type AnalysisConfig struct {
	Provider    string        `yaml:"provider"` // openai | eino | rules
	Fallback    string        `yaml:"fallback"` // optional second provider tried when the first fails
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	ChatURL     string        `yaml:"chat_url"` // full chat endpoint of a gateway; overrides base_url
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	RatePerMin  int           `yaml:"rate_per_min"`
}

// PipelineConfig holds per-stage timeouts.
type PipelineConfig struct {
	DetectTimeout    time.Duration `yaml:"detect_timeout"`
	ExtractTimeout   time.Duration `yaml:"extract_timeout"`
	NormalizeTimeout time.Duration `yaml:"normalize_timeout"`
	AnalyzeTimeout   time.Duration `yaml:"analyze_timeout"`
	MaxInputBytes    int64         `yaml:"max_input_bytes"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// DefaultConfig returns the configuration used when no file or env overrides apply.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr:       ":8080",
			HTTPAddr:       ":8081",
			MaxUploadBytes: 25 << 20,
			RateLimitRPS:   2,
			RateLimitBurst: 5,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   3 * time.Minute,
		},
		OCR: OCRConfig{
			Engine:        "tesseract",
			Tesseract:     "tesseract",
			Lang:          "eng",
			Timeout:       60 * time.Second,
			MaxConcurrent: 2,
		},
		Extract: ExtractConfig{
			MinNativeRunes: 40,
			MaxPages:       200,
			MaxPageWorkers: 4,
			MaxImages:      20,
		},
		Normalize: NormalizeConfig{
			MaxChars:        12000,
			ConfidenceFloor: 0.5,
		},
		Analysis: AnalysisConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			BaseURL:    "https://api.openai.com/v1",
			Timeout:    45 * time.Second,
			RatePerMin: 0,
		},
		Pipeline: PipelineConfig{
			DetectTimeout:    2 * time.Second,
			ExtractTimeout:   2 * time.Minute,
			NormalizeTimeout: 5 * time.Second,
			AnalyzeTimeout:   60 * time.Second,
			MaxInputBytes:    25 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds configuration from defaults, an optional YAML file, then environment variables.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, NewAppError(CodeConfig, fmt.Sprintf("parse %s", path), err)
			}
		case !os.IsNotExist(err):
			return nil, NewAppError(CodeConfig, fmt.Sprintf("read %s", path), err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)
	c.Server.RateLimitRPS = getEnvAsFloat64("RATE_LIMIT_RPS", c.Server.RateLimitRPS)
	c.Server.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.Server.RateLimitBurst)
	c.Server.MCPRoot = getEnv("MCP_ROOT", c.Server.MCPRoot)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.Lang = getEnv("TESSERACT_LANG", c.OCR.Lang)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.APIURL = getEnv("OCR_API_URL", c.OCR.APIURL)
	c.OCR.Timeout = getEnvAsDuration("OCR_TIMEOUT", c.OCR.Timeout)
	c.OCR.MaxConcurrent = getEnvAsInt64("OCR_MAX_CONCURRENT", c.OCR.MaxConcurrent)

	c.Extract.MinNativeRunes = getEnvAsInt("EXTRACT_MIN_NATIVE_RUNES", c.Extract.MinNativeRunes)
	c.Extract.MaxPages = getEnvAsInt("EXTRACT_MAX_PAGES", c.Extract.MaxPages)
	c.Extract.MaxPageWorkers = getEnvAsInt("EXTRACT_MAX_PAGE_WORKERS", c.Extract.MaxPageWorkers)

	c.Normalize.MaxChars = getEnvAsInt("NORMALIZE_MAX_CHARS", c.Normalize.MaxChars)
	c.Normalize.ConfidenceFloor = getEnvAsFloat32("NORMALIZE_CONFIDENCE_FLOOR", c.Normalize.ConfidenceFloor)

	c.Analysis.Provider = getEnv("ANALYSIS_PROVIDER", c.Analysis.Provider)
	c.Analysis.Fallback = getEnv("ANALYSIS_FALLBACK", c.Analysis.Fallback)
	c.Analysis.Model = getEnv("OPENAI_MODEL", c.Analysis.Model)
	c.Analysis.APIKey = getEnv("OPENAI_API_KEY", c.Analysis.APIKey)
	c.Analysis.BaseURL = getEnv("OPENAI_BASE_URL", c.Analysis.BaseURL)
	c.Analysis.ChatURL = getEnv("ANALYSIS_CHAT_URL", c.Analysis.ChatURL)
	c.Analysis.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.Analysis.Temperature)
	c.Analysis.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", c.Analysis.Timeout)
	c.Analysis.RatePerMin = getEnvAsInt("ANALYSIS_RATE_PER_MIN", c.Analysis.RatePerMin)

	c.Pipeline.DetectTimeout = getEnvAsDuration("PIPELINE_DETECT_TIMEOUT", c.Pipeline.DetectTimeout)
	c.Pipeline.ExtractTimeout = getEnvAsDuration("PIPELINE_EXTRACT_TIMEOUT", c.Pipeline.ExtractTimeout)
	c.Pipeline.NormalizeTimeout = getEnvAsDuration("PIPELINE_NORMALIZE_TIMEOUT", c.Pipeline.NormalizeTimeout)
	c.Pipeline.AnalyzeTimeout = getEnvAsDuration("PIPELINE_ANALYZE_TIMEOUT", c.Pipeline.AnalyzeTimeout)
	c.Pipeline.MaxInputBytes = getEnvAsInt64("PIPELINE_MAX_INPUT_BYTES", c.Pipeline.MaxInputBytes)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration for settings the binaries cannot run without.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("server.grpc_addr", c.Server.GRPCAddr, Required)
	v.Field("server.http_addr", c.Server.HTTPAddr, Required)
	v.Field("ocr.engine", c.OCR.Engine, OneOf("tesseract", "http", "none"))
	v.Field("analysis.provider", c.Analysis.Provider, OneOf("openai", "eino", "rules"))
	if c.Analysis.Fallback != "" {
		v.Field("analysis.fallback", c.Analysis.Fallback, OneOf("openai", "eino", "rules"))
	}
	v.Field("normalize.max_chars", c.Normalize.MaxChars, Positive)
	v.Field("ocr.max_concurrent", c.OCR.MaxConcurrent, Positive)
	if c.OCR.Engine == "http" {
		v.Field("ocr.api_url", c.OCR.APIURL, Required)
	}
	if c.Analysis.ChatURL == "" && (needsKey(c.Analysis.Provider) || needsKey(c.Analysis.Fallback)) {
		v.Field("analysis.api_key (OPENAI_API_KEY)", c.Analysis.APIKey, Required)
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

func needsKey(provider string) bool {
	p := strings.ToLower(provider)
	return p == "openai" || p == "eino"
}
