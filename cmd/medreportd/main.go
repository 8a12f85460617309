package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/ocr"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var (
		configPath = flag.String("config", os.Getenv("MEDREPORT_CONFIG"), "optional YAML config file")
		mcpStdio   = flag.Bool("mcp-stdio", false, "also serve MCP tools over stdin/stdout")
		noHTTP     = flag.Bool("no-http", false, "disable the HTTP server")
		noGRPC     = flag.Bool("no-grpc", false, "disable the gRPC server")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the MCP protocol in stdio mode
	var logOut io.Writer = os.Stdout
	if *mcpStdio {
		logOut = os.Stderr
	}
	logger := common.NewLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// one OCR limiter for every request in the process
	limiter := ocr.NewLimiter(cfg.OCR.MaxConcurrent)
	pipe, err := pipeline.NewFromConfig(ctx, cfg, limiter, logger)
	if err != nil {
		logger.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, pipe, *mcpStdio, !*noHTTP, !*noGRPC, logger); err != nil {
		logger.Error("medreportd stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("medreportd stopped")
}

func run(ctx context.Context, cfg *common.Config, pipe *pipeline.Pipeline, mcpStdio, withHTTP, withGRPC bool, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	if withGRPC {
		gs, hs := server.NewGRPCServer(pipe, cfg.Server, logger)
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		g.Go(func() error {
			logger.Info("grpc.serving", "addr", lis.Addr().String())
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			stopped := make(chan struct{})
			go func() { gs.GracefulStop(); close(stopped) }()
			select {
			case <-stopped:
			case <-time.After(shutdownTimeout):
				gs.Stop()
			}
			return nil
		})
	}

	if withHTTP {
		hsrv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           server.NewHTTPServer(pipe, cfg.Server, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}
		g.Go(func() error {
			logger.Info("http.serving", "addr", cfg.Server.HTTPAddr)
			if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return hsrv.Shutdown(sctx)
		})
	}

	if mcpStdio {
		msrv := mcp.NewServer(&mcp.Implementation{Name: "medreport", Version: "1.0.0"}, nil)
		server.NewMCPTools(pipe, cfg.Server, logger).Register(msrv)
		g.Go(func() error {
			logger.Info("mcp.serving", "transport", "stdio")
			err := msrv.Run(gctx, &mcp.StdioTransport{})
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if !withGRPC && !withHTTP && !mcpStdio {
		return errors.New("every transport is disabled")
	}
	return g.Wait()
}
