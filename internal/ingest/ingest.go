// Package ingest discovers documents on the local filesystem for batch analysis.
package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

// File is one discovered document.
type File struct {
	Path    string
	Format  constants.Format
	Size    int64
	HashHex string
	// DuplicateOf is the first path seen with the same content, if any.
	DuplicateOf string
	Err         string
}

// ScanStats summarizes a directory scan.
type ScanStats struct {
	Scanned    uint32
	Matched    uint32
	Duplicates uint32
	TooLarge   uint32
	Failed     uint32
}

// ScanOptions filters a scan. A nil IncludeExts accepts every supported extension.
type ScanOptions struct {
	IncludeExts []string
	SkipHidden  bool
	MaxBytes    int64
}

// extSet builds the accepted extension set, lowercased without the dot.
func extSet(include []string) map[string]struct{} {
	out := map[string]struct{}{}
	if len(include) == 0 {
		for _, e := range constants.SupportedExtensions() {
			out[e] = struct{}{}
		}
		return out
	}
	for _, e := range include {
		if e = constants.NormalizeExt(e); e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

func allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// IsHidden reports whether a file or directory name starts with a dot.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && base != ".." && strings.HasPrefix(base, ".")
}
