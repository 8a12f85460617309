package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

// ScanDirectory walks root and returns every file with an accepted extension.
// A file whose content matches an earlier one carries DuplicateOf. Per-file
// problems are recorded on the File and in stats, not returned.
func ScanDirectory(ctx context.Context, root string, opts ScanOptions) ([]File, ScanStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ScanStats{}, errors.New("root path is required")
	}
	exts := extSet(opts.IncludeExts)
	seen := map[string]string{}

	var files []File
	var stats ScanStats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			files = append(files, File{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if opts.SkipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !allowed(path, exts) {
			return nil
		}
		stats.Matched++

		f := File{Path: path, Format: constants.MapExtToFormat(filepath.Ext(path))}
		info, err := d.Info()
		if err != nil {
			f.Err = err.Error()
			stats.Failed++
			files = append(files, f)
			return nil
		}
		f.Size = info.Size()
		if opts.MaxBytes > 0 && f.Size > opts.MaxBytes {
			f.Err = fmt.Sprintf("file is %d bytes, limit %d", f.Size, opts.MaxBytes)
			stats.TooLarge++
			files = append(files, f)
			return nil
		}

		sum, err := hashFile(path)
		if err != nil {
			f.Err = err.Error()
			stats.Failed++
			files = append(files, f)
			return nil
		}
		f.HashHex = sum
		if first, ok := seen[sum]; ok {
			f.DuplicateOf = first
			stats.Duplicates++
		} else {
			seen[sum] = path
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return files, stats, fmt.Errorf("walk: %w", err)
	}
	return files, stats, nil
}

// Pending returns the files that should be analyzed: readable, within size and
// not a duplicate.
func Pending(files []File) []File {
	out := make([]File, 0, len(files))
	for _, f := range files {
		if f.Err == "" && f.DuplicateOf == "" {
			out = append(out, f)
		}
	}
	return out
}

func hashFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
