// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novatechflow/sankshepa/internal/metrics"
	"github.com/novatechflow/sankshepa/pkg/engine"
	"github.com/novatechflow/sankshepa/pkg/storage"
)

const (
	defaultOutputPath  = "logs.skp"
	defaultUDPAddr     = ":1514"
	defaultTCPAddr     = ":1514"
	defaultMetricsAddr = ":9184"
)

// Exit codes: 0 normal, 1 configuration error, 2 startup I/O error,
// 3 unrecoverable failure while running.
const (
	exitOK          = 0
	exitConfig      = 1
	exitStartupIO   = 2
	exitUnrecovered = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := newLogger()
	slog.SetDefault(logger)

	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}
	switch cmd {
	case "serve":
		return runServe(args, logger)
	case "query":
		return runQuery(args, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected serve or query)\n", cmd)
		return exitConfig
	}
}

type serveOptions struct {
	cfg         engine.Config
	metricsAddr string
}

func parseServeOptions(args []string) (serveOptions, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var opts serveOptions

	fs.StringVar(&opts.cfg.OutputPath, "output", defaultOutputPath, "chunk file path")
	fs.StringVar(&opts.cfg.UDPAddr, "udp", defaultUDPAddr, "UDP listen address (empty disables)")
	fs.StringVar(&opts.cfg.TCPAddr, "tcp", defaultTCPAddr, "TCP listen address (empty disables)")
	fs.StringVar(&opts.metricsAddr, "metrics", defaultMetricsAddr, "metrics HTTP listen address (empty disables)")
	fs.IntVar(&opts.cfg.BatchSize, "batch-size", 10, "records per chunk")
	fs.IntVar(&opts.cfg.CompressionLevel, "compression-level", storage.DefaultCompressionLevel, "zstd level (1-22)")
	fs.DurationVar(&opts.cfg.FlushInterval, "flush-interval", 5*time.Second, "seal a non-empty chunk every interval (0 disables)")
	fs.IntVar(&opts.cfg.MaxFrame, "max-frame", 0, "maximum TCP-framed message size in bytes (0 = 1 MiB)")
	fs.DurationVar(&opts.cfg.GracePeriod, "grace-period", engine.DefaultGracePeriod, "socket drain window on shutdown")
	fs.DurationVar(&opts.cfg.HardTimeout, "shutdown-timeout", engine.DefaultHardTimeout, "hard shutdown timeout")

	archivePrefix := fs.String("archive-prefix", "sankshepa", "object key prefix for archived chunks")
	if err := fs.Parse(args); err != nil {
		return serveOptions{}, err
	}
	opts.cfg.ArchivePrefix = *archivePrefix
	return opts, nil
}

func runServe(args []string, logger *slog.Logger) int {
	opts, err := parseServeOptions(args)
	if err != nil {
		return exitConfig
	}
	opts.cfg.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if bucket := os.Getenv("SANKSHEPA_S3_BUCKET"); bucket != "" {
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Bucket:          bucket,
			Region:          envOrDefault("SANKSHEPA_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("SANKSHEPA_S3_ENDPOINT"),
			ForcePathStyle:  os.Getenv("SANKSHEPA_S3_ENDPOINT") != "",
			AccessKeyID:     os.Getenv("SANKSHEPA_S3_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("SANKSHEPA_S3_SECRET_KEY"),
			SessionToken:    os.Getenv("SANKSHEPA_S3_SESSION_TOKEN"),
			KMSKeyARN:       os.Getenv("SANKSHEPA_S3_KMS_ARN"),
		})
		if err != nil {
			logger.Error("failed to create archive client", "error", err)
			return exitStartupIO
		}
		if err := client.EnsureBucket(ctx); err != nil {
			logger.Error("failed to ensure archive bucket", "bucket", bucket, "error", err)
			return exitStartupIO
		}
		opts.cfg.Archive = client
		logger.Info("chunk archive enabled", "bucket", bucket, "prefix", opts.cfg.ArchivePrefix)
	}

	eng, err := engine.New(opts.cfg)
	if err != nil {
		if errors.Is(err, engine.ErrConfig) {
			logger.Error("invalid configuration", "error", err)
			return exitConfig
		}
		logger.Error("startup failed", "error", err)
		return exitStartupIO
	}

	if opts.metricsAddr != "" {
		startMetricsServer(ctx, opts.metricsAddr, logger)
	}
	startRateTracker(ctx, eng)

	logger.Info("sankshepa serving",
		"output", opts.cfg.OutputPath,
		"udp", eng.UDPAddr(),
		"tcp", eng.TCPAddr(),
		"batch_size", opts.cfg.BatchSize,
	)

	if err := eng.Run(ctx); err != nil {
		logger.Error("pipeline failed", "error", err)
		return exitUnrecovered
	}
	logger.Info("shutdown complete")
	return exitOK
}

func runQuery(args []string, logger *slog.Logger) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	input := fs.String("input", defaultOutputPath, "chunk file path")
	templateID := fs.Int("template-id", -1, "only records of this chunk-local template id")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	var cfg storage.ReaderConfig
	if *templateID >= 0 {
		id := uint32(*templateID)
		cfg.TemplateID = &id
	}
	r, err := storage.OpenReader(*input, cfg)
	if err != nil {
		logger.Error("open failed", "path", *input, "error", err)
		return exitStartupIO
	}
	defer r.Close()

	for r.Next() {
		fmt.Println(renderRecord(r.Record()))
	}
	if err := r.Err(); err != nil {
		logger.Error("read failed", "error", err)
		return exitUnrecovered
	}
	return exitOK
}

// startMetricsServer exposes /metrics, /healthz and /readyz until ctx
// is cancelled.
func startMetricsServer(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ready")
	})
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
}

// startRateTracker counts tapped messages into a sliding window and
// publishes the per-second rate.
func startRateTracker(ctx context.Context, eng *engine.Engine) {
	tracker := newThroughputTracker(time.Minute)
	tapped := eng.Tap().Subscribe("stats", 1024)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case _, ok := <-tapped:
				if !ok {
					return
				}
				tracker.add(1)
			case <-ticker.C:
				metrics.IngestRate.Set(tracker.rate())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("SANKSHEPA_LOG")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With("component", "sankshepa")
}

func envOrDefault(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		return val
	}
	return fallback
}
