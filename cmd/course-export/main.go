package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/backend"
	"github.com/noah-isme/course-export/internal/service"
	"github.com/noah-isme/course-export/pkg/config"
	"github.com/noah-isme/course-export/pkg/jobs"
	"github.com/noah-isme/course-export/pkg/logger"
	"github.com/noah-isme/course-export/pkg/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	courseID    int64
	out         string
	token       string
	backendURL  string
	timeout     time.Duration
	concurrency int
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	fs := pflag.NewFlagSet("course-export", pflag.ContinueOnError)
	opts := options{}
	fs.Int64VarP(&opts.courseID, "course", "c", 0, "course id to export")
	fs.StringVarP(&opts.out, "out", "o", ".", "directory the export is written to")
	fs.StringVarP(&opts.token, "token", "t", cfg.Backend.Token, "bearer token for the course backend")
	fs.StringVar(&opts.backendURL, "backend", cfg.Backend.BaseURL, "course backend base URL")
	fs.DurationVar(&opts.timeout, "timeout", cfg.Export.RemoteTimeout, "deadline of the remote export strategy")
	fs.IntVar(&opts.concurrency, "concurrency", cfg.Export.FetchConcurrency, "parallel backend lookups while collecting")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.courseID <= 0 {
		return opts, errors.New("--course must be a positive course id")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts, err := parseFlags(args, cfg)
	if err != nil {
		return err
	}

	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	store, err := storage.NewLocalStorage(opts.out)
	if err != nil {
		return err
	}
	metrics := service.NewMetricsService()
	client := backend.NewClient(backend.Config{
		BaseURL: opts.backendURL,
		Token:   opts.token,
		Timeout: cfg.Backend.RequestTimeout,
	}, metrics, logr)
	raw := backend.NewRawExporter(opts.backendURL, nil, cfg.Backend.RequestTimeout)
	collector := service.NewCollector(client, jobs.NewPool(opts.concurrency), logr)
	pipeline := service.NewExportPipeline(collector, client, raw, client, store, metrics,
		service.PipelineConfig{RemoteTimeout: opts.timeout}, logr)

	result, err := pipeline.Run(ctx, opts.courseID)
	if err != nil {
		var exhausted *service.ExhaustedError
		if errors.As(err, &exhausted) {
			for _, failure := range exhausted.Failures {
				logr.Error("tier failed", zap.String("tier", failure.Tier), zap.Error(failure.Err))
			}
		}
		return err
	}

	fmt.Fprintf(stdout, "%s\t%s\n", filepath.Join(opts.out, filepath.FromSlash(result.RelPath)), result.Tier)
	return nil
}
