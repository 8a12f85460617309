package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
)

const (
	ToolAnalyzeDocument  = "analyze_medical_document"
	ToolSupportedFormats = "supported_formats"
)

// MCPTools registers the analyzer tools on an MCP server.
type MCPTools struct {
	analyzer DocumentAnalyzer
	root     string
	maxBytes int64
	logger   *slog.Logger
}

// NewMCPTools builds the tool set. Documents may be passed by path only when
// cfg.MCPRoot is set, and only from inside that directory.
func NewMCPTools(analyzer DocumentAnalyzer, cfg common.ServerConfig, logger *slog.Logger) *MCPTools {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPTools{analyzer: analyzer, root: cfg.MCPRoot, maxBytes: cfg.MaxUploadBytes, logger: logger}
}

func (t *MCPTools) Register(srv *mcp.Server) {
	t.registerAnalyze(srv)
	t.registerFormats(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type analyzeArgs struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	Path          string `json:"path"`
}

func (t *MCPTools) registerAnalyze(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: ToolAnalyzeDocument,
		Description: "Extract a structured summary (conditions, medications, vitals, treatments) from a medical " +
			"document. Pass filename with base64 content, or a path relative to the server's document root.",
		InputSchema: inputSchema(map[string]any{
			"filename":       map[string]any{"type": "string", "description": "Original filename; its extension selects the format"},
			"content_base64": map[string]any{"type": "string", "description": "Document bytes, base64 encoded"},
			"path":           map[string]any{"type": "string", "description": "Document path under the server's document root"},
		}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args analyzeArgs
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		filename, data, err := t.load(args)
		if err != nil {
			return toolError(err), nil
		}

		ctx, _ = common.EnsureRequestID(ctx)
		rec, err := t.analyzer.Analyze(ctx, filename, data)
		if err != nil {
			common.LoggerFrom(ctx, t.logger).Warn("mcp.analyze.failed", "code", common.CodeOf(err), "error", err)
			body, _ := json.Marshal(errorBody(ctx, err))
			return toolError(errors.New(string(body))), nil
		}
		return toolJSON(rec), nil
	})
}

func (t *MCPTools) registerFormats(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        ToolSupportedFormats,
		Description: "List the document formats and file extensions the analyzer accepts.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	srv.AddTool(tool, func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolJSON(map[string]any{"formats": SupportedFormats()}), nil
	})
}

func (t *MCPTools) load(args analyzeArgs) (string, []byte, error) {
	switch {
	case args.ContentBase64 != "":
		if strings.TrimSpace(args.Filename) == "" {
			return "", nil, errors.New("filename is required with content_base64")
		}
		if t.maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(args.ContentBase64))) > t.maxBytes+2 {
			return "", nil, fmt.Errorf("content exceeds %d bytes", t.maxBytes)
		}
		data, err := base64.StdEncoding.DecodeString(args.ContentBase64)
		if err != nil {
			return "", nil, fmt.Errorf("content_base64: %w", err)
		}
		return args.Filename, data, nil
	case args.Path != "":
		return t.readUnderRoot(args.Path, args.Filename)
	}
	return "", nil, errors.New("provide content_base64 with filename, or path")
}

func (t *MCPTools) readUnderRoot(path, filename string) (string, []byte, error) {
	if t.root == "" {
		return "", nil, errors.New("reading by path is disabled on this server")
	}
	root, err := os.OpenRoot(t.root)
	if err != nil {
		return "", nil, fmt.Errorf("open document root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(filepath.Clean(path))
	if err != nil {
		return "", nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if t.maxBytes > 0 {
		r = io.LimitReader(f, t.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	if t.maxBytes > 0 && int64(len(data)) > t.maxBytes {
		return "", nil, fmt.Errorf("%s exceeds %d bytes", path, t.maxBytes)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	return filename, data, nil
}

func toolJSON(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Errorf("marshal: %w", err))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
