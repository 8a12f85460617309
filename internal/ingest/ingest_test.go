package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "visit.txt"), "Diagnosis: Asthma")
	writeFile(t, filepath.Join(root, "nested", "copy.txt"), "Diagnosis: Asthma")
	writeFile(t, filepath.Join(root, "nested", "scan.PDF"), "%PDF-1.7")
	writeFile(t, filepath.Join(root, "notes.exe"), "MZ")
	writeFile(t, filepath.Join(root, ".hidden", "secret.txt"), "x")
	writeFile(t, filepath.Join(root, "huge.txt"), string(make([]byte, 2048)))

	files, stats, err := ScanDirectory(context.Background(), root, ScanOptions{SkipHidden: true, MaxBytes: 1024})
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if stats.Matched != 4 || stats.Duplicates != 1 || stats.TooLarge != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	byPath := map[string]File{}
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		byPath[filepath.ToSlash(rel)] = f
	}
	if _, ok := byPath[".hidden/secret.txt"]; ok {
		t.Error("hidden directory was scanned")
	}
	if f := byPath["nested/scan.PDF"]; f.Format != constants.PDF || f.HashHex == "" {
		t.Errorf("pdf = %+v", f)
	}
	// WalkDir visits in lexical order, so nested/copy.txt is the first copy.
	if f := byPath["visit.txt"]; f.DuplicateOf == "" {
		t.Errorf("visit.txt not marked duplicate: %+v", f)
	}
	if f := byPath["huge.txt"]; f.Err == "" {
		t.Error("oversized file has no error")
	}

	pending := Pending(files)
	if len(pending) != 2 {
		t.Errorf("pending = %+v", pending)
	}
}

func TestScanDirectoryFilters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.docx"), "b")

	files, _, err := ScanDirectory(context.Background(), root, ScanOptions{IncludeExts: []string{".DOCX"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0].Path) != "b.docx" {
		t.Errorf("files = %+v", files)
	}

	if _, _, err := ScanDirectory(context.Background(), " ", ScanOptions{}); err == nil {
		t.Error("blank root accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := ScanDirectory(ctx, root, ScanOptions{}); err == nil {
		t.Error("cancelled scan returned no error")
	}
}

func TestIsHidden(t *testing.T) {
	tests := map[string]bool{
		".env":          true,
		"dir/.cache":    true,
		"report.pdf":    false,
		".":             false,
		"dir/sub/x.txt": false,
	}
	for path, want := range tests {
		if got := IsHidden(path); got != want {
			t.Errorf("IsHidden(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.txt"), "old")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	got := <-events
	if filepath.Base(got) != "existing.txt" {
		t.Fatalf("first event = %q", got)
	}

	writeFile(t, filepath.Join(root, "ignored.exe"), "MZ")
	writeFile(t, filepath.Join(root, "new.txt"), "Diagnosis: Gout")
	select {
	case got = <-events:
		if filepath.Base(got) != "new.txt" {
			t.Errorf("event = %q", got)
		}
	case <-ctx.Done():
		t.Fatal("no event for new.txt")
	}

	cancel()
	for range events {
	}
}
