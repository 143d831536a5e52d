package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/convocation-rfid-api/api/swagger"
	"github.com/noah-isme/convocation-rfid-api/internal/handler"
	"github.com/noah-isme/convocation-rfid-api/internal/middleware"
	"github.com/noah-isme/convocation-rfid-api/internal/repository"
	"github.com/noah-isme/convocation-rfid-api/internal/service"
	"github.com/noah-isme/convocation-rfid-api/pkg/cache"
	"github.com/noah-isme/convocation-rfid-api/pkg/config"
	"github.com/noah-isme/convocation-rfid-api/pkg/database"
	"github.com/noah-isme/convocation-rfid-api/pkg/export"
	"github.com/noah-isme/convocation-rfid-api/pkg/jobs"
	"github.com/noah-isme/convocation-rfid-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/convocation-rfid-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/convocation-rfid-api/pkg/middleware/requestid"
	"github.com/noah-isme/convocation-rfid-api/pkg/tito"
)

// @title Convocation RFID API
// @version 1.0.0
// @description Tag lifecycle, station scanning and reconciliation for convocation logistics
// @BasePath /api/v1
// @schemes http https

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Dashboard.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	tagRepo := repository.NewRfidTagRepository(db, cfg.RFID.StorePageSize)
	graduateRepo := repository.NewGraduateRepository(db)
	snapshot := service.NewTagSnapshotCache(tagRepo, cfg.RFID.SnapshotTTL, metricsSvc, logr)

	deps := service.RfidServiceDeps{
		Graduates: graduateRepo,
		Dashboard: cacheSvc,
		Metrics:   metricsSvc,
	}
	var checkinQueue *jobs.Queue
	if cfg.Tito.Enabled {
		titoClient, err := tito.NewClient(cfg.Tito.Token, cfg.Tito.Account, cfg.Tito.Event,
			tito.WithBaseURL(cfg.Tito.BaseURL),
			tito.WithCheckinBaseURL(cfg.Tito.CheckinBaseURL),
			tito.WithTimeout(cfg.Tito.Timeout),
		)
		if err != nil {
			logr.Fatal("invalid ticketing configuration", zap.Error(err))
		}
		worker := service.NewCheckinWorker(titoClient, metricsSvc, logr)
		abandoned := func(jobs.Job, error) { metricsSvc.RecordCheckin("abandoned") }
		checkinQueue = jobs.NewQueue("tito-checkin", worker.Handle, jobs.QueueConfig{
			Workers:     cfg.Tito.RetryWorkers,
			MaxRetries:  cfg.Tito.RetryAttempts,
			RetryDelay:  cfg.Tito.RetryDelay,
			OnExhausted: abandoned,
			Logger:      logr,
		})
		checkinQueue.Start(ctx)
		defer checkinQueue.Stop()

		deps.Tickets = titoClient
		deps.Checkins = checkinQueue
		logr.Info("ticketing check-in enabled", zap.String("event", cfg.Tito.Event), zap.Int("lists", len(cfg.Tito.CheckinLists)))
	}

	rfidSvc := service.NewRfidService(tagRepo, snapshot, deps, service.RfidServiceConfig{
		BulkMax:           cfg.RFID.BulkMax,
		AllowReencodeVoid: cfg.RFID.AllowReencodeVoid,
		UpdateRetries:     cfg.RFID.UpdateRetries,
		CheckinLists:      cfg.Tito.CheckinLists,
	}, validate, logr)
	dashboardSvc := service.NewRfidDashboardService(snapshot, cacheSvc, export.NewCSVExporter(export.WithBOM()), service.RfidDashboardConfig{
		RecentScanLimit: cfg.RFID.RecentScanLimit,
		StaleAfter:      cfg.RFID.StaleAfter,
		CacheTTL:        cfg.Dashboard.CacheTTL,
	}, logr)

	rfidHandler := handler.NewRfidHandler(rfidSvc)
	dashboardHandler := handler.NewRfidDashboardHandler(dashboardSvc)
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rfid := r.Group(cfg.APIPrefix + "/rfid")
	{
		rfid.GET("/tags", rfidHandler.List)
		rfid.POST("/tags", rfidHandler.Encode)
		rfid.GET("/tags/convocation/:number", rfidHandler.GetByConvocation)
		rfid.GET("/tags/:epc", rfidHandler.Get)
		rfid.POST("/tags/:epc/void", rfidHandler.Void)
		rfid.POST("/verify", rfidHandler.Verify)
		rfid.POST("/scan", rfidHandler.Scan)
		rfid.POST("/scan/bulk", rfidHandler.BulkScan)
		rfid.POST("/dispatch", rfidHandler.Dispatch)
		rfid.POST("/handover", rfidHandler.Handover)
		rfid.GET("/boxes/:epc/contents", rfidHandler.BoxContents)
		rfid.PUT("/boxes/:epc/contents", rfidHandler.SetBoxContents)

		rfid.GET("/dashboard", dashboardHandler.Stats)
		rfid.GET("/reconciliation/:station", dashboardHandler.Reconciliation)
		rfid.POST("/cache/clear", dashboardHandler.ClearCache)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logr.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("graceful shutdown failed", zap.Error(err))
			_ = srv.Close()
		}
	}
	logr.Info("shutdown complete", zap.Int64("pending_checkins", pendingCheckins(checkinQueue)))
}

func pendingCheckins(q *jobs.Queue) int64 {
	if q == nil {
		return 0
	}
	return q.Pending()
}
