package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/server"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", os.Getenv("MEDREPORT_CONFIG"), "optional YAML config file")
		provider   = flag.String("provider", "", "override analysis provider (openai|eino|rules)")
		remote     = flag.String("remote", "", "analyze through a running medreportd gRPC address instead of in-process")
		compact    = flag.Bool("compact", false, "print compact JSON")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall deadline")
	)
	flag.Usage = func() {
		printError("usage: analyze [flags] <file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var rec entity.StructuredRecord
	if *remote != "" {
		rec, err = analyzeRemote(ctx, *remote, filepath.Base(path), data)
	} else {
		rec, err = analyzeLocal(ctx, *configPath, *provider, filepath.Base(path), data)
	}
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(exitCode(err))
	}

	enc := json.NewEncoder(os.Stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(rec); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

func analyzeLocal(ctx context.Context, configPath, provider, filename string, data []byte) (entity.StructuredRecord, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		printError("warning: .env: %v\n", err)
	}
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return entity.StructuredRecord{}, err
	}
	if provider != "" {
		cfg.Analysis.Provider = provider
	}
	if err := cfg.Validate(); err != nil {
		return entity.StructuredRecord{}, err
	}
	// logs go to stderr so stdout stays pure JSON
	logger := common.NewLogger(cfg.Log, os.Stderr)

	pipe, err := pipeline.NewFromConfig(ctx, cfg, nil, logger)
	if err != nil {
		return entity.StructuredRecord{}, err
	}
	return pipe.Analyze(ctx, filename, data)
}

func analyzeRemote(ctx context.Context, addr, filename string, data []byte) (entity.StructuredRecord, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(len(data)+64<<10)),
	)
	if err != nil {
		return entity.StructuredRecord{}, err
	}
	defer conn.Close()
	return server.NewAnalyzerClient(conn).AnalyzeDocument(ctx, filename, data)
}

// exitCode separates bad input (2) from processing failures (1).
func exitCode(err error) int {
	switch common.CodeOf(err) {
	case common.CodeInvalidInput, common.CodeUnsupportedFormat, common.CodeConfig:
		return 2
	}
	return 1
}
