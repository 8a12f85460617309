package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/async"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/export"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ingest"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory of medical documents (required)")
		out        = flag.String("out", "", "output XLSX path (defaults to medical-records.xlsx next to --dir)")
		configPath = flag.String("config", os.Getenv("MEDREPORT_CONFIG"), "optional YAML config file")
		provider   = flag.String("provider", "", "override analysis provider (openai|eino|rules)")
		workers    = flag.Int("workers", 2, "documents analyzed concurrently")
		include    = flag.String("include", "", "comma-separated extensions to process (default: every supported format)")
		hidden     = flag.Bool("hidden", false, "include hidden files and directories")
		watch      = flag.Bool("watch", false, "keep running and analyze new files until interrupted")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "medical-records.xlsx")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		printError("warning: .env: %v\n", err)
	}
	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *provider != "" {
		cfg.Analysis.Provider = *provider
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe, err := pipeline.NewFromConfig(ctx, cfg, ocr.NewLimiter(cfg.OCR.MaxConcurrent), logger)
	if err != nil {
		logger.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}

	var exts []string
	if *include != "" {
		exts = strings.Split(*include, ",")
	}

	start := time.Now()
	var rows resultRows
	q := async.NewQueue(pipe, rows.add, logger,
		async.WithWorkers(*workers),
		async.WithProcessTimeout(cfg.Pipeline.DetectTimeout+cfg.Pipeline.ExtractTimeout+cfg.Pipeline.NormalizeTimeout+cfg.Pipeline.AnalyzeTimeout),
		async.WithMaxBytes(cfg.Pipeline.MaxInputBytes),
	)

	if *watch {
		err = watchDir(ctx, q, *dir, exts, !*hidden, logger)
	} else {
		err = scanDir(ctx, q, &rows, *dir, ingest.ScanOptions{IncludeExts: exts, SkipHidden: !*hidden, MaxBytes: cfg.Pipeline.MaxInputBytes}, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("batch input failed", "error", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := q.Shutdown(sctx); err != nil {
		logger.Warn("queue did not drain", "error", err)
	}

	collected := rows.snapshot()
	f, err := os.Create(*out)
	if err != nil {
		logger.Error("create output", "path", *out, "error", err)
		os.Exit(1)
	}
	werr := export.NewWriter(logger).Write(f, collected)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		logger.Error("write workbook", "path", *out, "error", werr)
		os.Exit(1)
	}

	ok, failed := tally(collected)
	logger.Info("batch.done",
		"out", *out,
		"documents", len(collected),
		"analyzed", ok,
		"failed", failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func scanDir(ctx context.Context, q *async.Queue, rows *resultRows, dir string, opts ingest.ScanOptions, logger *slog.Logger) error {
	files, stats, err := ingest.ScanDirectory(ctx, dir, opts)
	if err != nil {
		return err
	}
	logger.Info("batch.scanned",
		"dir", dir,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"duplicates", stats.Duplicates,
		"too_large", stats.TooLarge,
		"failed", stats.Failed,
	)
	for _, f := range files {
		switch {
		case f.Err != "":
			rows.add(async.Result{Job: async.Job{Path: f.Path}, Err: common.NewAppError(common.CodeInvalidInput, f.Err, common.ErrInvalidInput)})
		case f.DuplicateOf != "":
			logger.Info("batch.duplicate_skipped", "path", f.Path, "duplicate_of", f.DuplicateOf)
		}
	}
	for _, f := range ingest.Pending(files) {
		if err := q.Enqueue(ctx, async.NewJob(f.Path)); err != nil {
			return err
		}
	}
	return nil
}

func watchDir(ctx context.Context, q *async.Queue, dir string, exts []string, skipHidden bool, logger *slog.Logger) error {
	events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		IncludeExts: exts,
		SkipHidden:  skipHidden,
		InitialScan: true,
		Debounce:    time.Second,
	}, logger)
	if err != nil {
		return err
	}
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			if err := q.Enqueue(ctx, async.NewJob(path)); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("batch.watch_error", "error", err)
		}
	}
}

// resultRows collects queue results from worker goroutines.
type resultRows struct {
	mu   sync.Mutex
	rows []export.Row
}

func (r *resultRows) add(res async.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, export.Row{Path: res.Job.Path, Outcome: res.Outcome, Err: res.Err})
}

func (r *resultRows) snapshot() []export.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]export.Row(nil), r.rows...)
}

func tally(rows []export.Row) (ok, failed int) {
	for _, r := range rows {
		if r.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}
