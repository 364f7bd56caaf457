package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/backend"
	"github.com/noah-isme/course-export/internal/handler"
	"github.com/noah-isme/course-export/internal/repository"
	"github.com/noah-isme/course-export/internal/service"
	"github.com/noah-isme/course-export/pkg/cache"
	"github.com/noah-isme/course-export/pkg/config"
	"github.com/noah-isme/course-export/pkg/jobs"
	"github.com/noah-isme/course-export/pkg/logger"
	"github.com/noah-isme/course-export/pkg/storage"
)

// @title Course Export API
// @version 1.0.0
// @description Course performance reports and resilient multi-format student exports
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	client := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.RequestTimeout,
	}, metrics, logr)
	raw := backend.NewRawExporter(cfg.Backend.BaseURL, nil, cfg.Backend.RequestTimeout)

	store, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}

	collector := service.NewCollector(client, jobs.NewPool(cfg.Export.FetchConcurrency), logr)
	pipeline := service.NewExportPipeline(collector, client, raw, client, store, metrics,
		service.PipelineConfig{RemoteTimeout: cfg.Export.RemoteTimeout}, logr)
	reports := service.NewReportService(client, collector, logr)

	checks := map[string]handler.ReadinessCheck{}
	var (
		exportJobs *service.ExportService
		queue      *jobs.Queue
	)
	if cfg.Export.AsyncEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close() //nolint:errcheck
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}

		exportJobs, queue = newAsyncExports(cfg, redisClient, pipeline, store, metrics, logr)
		queue.Start(ctx)
		defer queue.Stop()
		exportJobs.StartCleanup(ctx)
	}

	exportHandler := handler.NewExportHandler(pipeline, nil)
	if exportJobs != nil {
		exportHandler = handler.NewExportHandler(pipeline, exportJobs)
	}

	r := gin.New()
	registerRoutes(r, cfg, routeDeps{
		logger:  logr,
		metrics: metrics,
		exports: exportHandler,
		reports: handler.NewReportHandler(reports),
		health:  handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.Bool("async_exports", cfg.Export.AsyncEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func newAsyncExports(cfg *config.Config, redisClient *redis.Client, pipeline *service.ExportPipeline, store *storage.LocalStorage, metrics *service.MetricsService, logr *zap.Logger) (*service.ExportService, *jobs.Queue) {
	repo := repository.NewExportJobRepository(redisClient, cfg.Export.JobTTL, logr)
	signer := storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL)
	svc := service.NewExportService(repo, pipeline, store, signer, metrics, service.ExportServiceConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Export.ResultTTL,
		CleanupInterval: cfg.Export.CleanupInterval,
	}, logr)
	queue := jobs.NewQueue("course-exports", svc.Handle, jobs.QueueConfig{
		Workers:     cfg.Export.WorkerConcurrency,
		MaxRetries:  cfg.Export.WorkerRetries,
		OnExhausted: svc.MarkFailed,
		Logger:      logr,
	})
	svc.SetQueue(queue)
	return svc, queue
}
