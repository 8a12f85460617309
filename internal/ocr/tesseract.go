package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// Tesseract runs the tesseract CLI once per image in TSV mode, reading the
// image from stdin, and rebuilds text and mean word confidence from the rows.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, float32, error) {
	// tesseract stdin stdout -l <lang> [--psm N] [--oem N] [--tessdata-dir D] tsv
	args := []string{"stdin", "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, image, t.cfg.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	text, conf := parseTSV(string(out))
	return text, conf, nil
}

// parseTSV rebuilds line-broken text from tesseract TSV rows and returns the
// mean word confidence in 0..1. Columns: level page block par line word left
// top width height conf text.
func parseTSV(tsv string) (string, float32) {
	var (
		b        strings.Builder
		sum, n   float64
		lastLine string
		lastPar  string
	)
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		} // word rows only
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		par := cols[2] + "." + cols[3]
		line := par + "." + cols[4]
		switch {
		case b.Len() == 0:
		case par != lastPar:
			b.WriteString("\n\n")
		case line != lastLine:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(word)
		lastPar, lastLine = par, line

		if v, err := strconv.ParseFloat(cols[10], 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return b.String(), 0
	}
	return b.String(), float32(sum / n / 100.0)
}
