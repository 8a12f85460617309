package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

var testMCPImpl = &mcp.Implementation{Name: "medreport-test", Version: "0.1.0"}

func mcpSession(t *testing.T, fa *fakeAnalyzer, cfg common.ServerConfig) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	NewMCPTools(fa, cfg, nil).Register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, error) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	if result.IsError {
		return "", errors.New(tc.Text)
	}
	return tc.Text, nil
}

func TestMCPAnalyzeBase64(t *testing.T) {
	fa := &fakeAnalyzer{rec: okRecord()}
	session := mcpSession(t, fa, testServerConfig())

	text, err := callTool(t, session, ToolAnalyzeDocument, map[string]any{
		"filename":       "visit.txt",
		"content_base64": base64.StdEncoding.EncodeToString([]byte("Diagnosis: Asthma")),
	})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var rec entity.StructuredRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ExtractionStatus != constants.StatusOK || len(rec.Conditions) != 1 {
		t.Errorf("record = %+v", rec)
	}
	if fa.filename != "visit.txt" || string(fa.data) != "Diagnosis: Asthma" || fa.reqID == "" {
		t.Errorf("analyzer saw %q %q %q", fa.filename, fa.data, fa.reqID)
	}
}

func TestMCPAnalyzePath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("BP 120/80"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testServerConfig()
	cfg.MCPRoot = dir

	fa := &fakeAnalyzer{rec: okRecord()}
	session := mcpSession(t, fa, cfg)
	if _, err := callTool(t, session, ToolAnalyzeDocument, map[string]any{"path": "note.txt"}); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	if fa.filename != "note.txt" || string(fa.data) != "BP 120/80" {
		t.Errorf("analyzer saw %q %q", fa.filename, fa.data)
	}

	if _, err := callTool(t, session, ToolAnalyzeDocument, map[string]any{"path": "../outside.txt"}); err == nil {
		t.Error("path escaping the root was accepted")
	}
}

func TestMCPAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		args    map[string]any
		wantSub string
	}{
		{"no input", nil, map[string]any{}, "provide content_base64"},
		{"missing filename", nil, map[string]any{"content_base64": "eA=="}, "filename is required"},
		{"bad base64", nil, map[string]any{"filename": "a.txt", "content_base64": "!!"}, "content_base64"},
		{"paths disabled", nil, map[string]any{"path": "a.txt"}, "disabled"},
		{"unsupported", common.UnsupportedFormatError("blob.xyz"), map[string]any{"filename": "blob.xyz", "content_base64": "eA=="}, common.CodeUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := mcpSession(t, &fakeAnalyzer{err: tt.err, rec: okRecord()}, testServerConfig())
			_, err := callTool(t, session, ToolAnalyzeDocument, tt.args)
			if err == nil {
				t.Fatal("expected tool error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestMCPSupportedFormats(t *testing.T) {
	session := mcpSession(t, &fakeAnalyzer{}, testServerConfig())

	text, err := callTool(t, session, ToolSupportedFormats, map[string]any{})
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var resp struct {
		Formats []FormatInfo `json:"formats"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Formats) != len(constants.Formats) {
		t.Errorf("formats = %+v", resp.Formats)
	}
}
