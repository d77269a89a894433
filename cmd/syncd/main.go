package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesync/internal/client/exchange"
	"tradesync/internal/config"
	cronrunner "tradesync/internal/cron"
	"tradesync/internal/db"
	"tradesync/internal/fetcher"
	"tradesync/internal/handler"
	"tradesync/internal/logger"
	"tradesync/internal/models"
	"tradesync/internal/queue"
	gormrepository "tradesync/internal/repository/gorm"
	"tradesync/internal/schema"
	syncer "tradesync/internal/sync"
)

func main() {
	cfgPath := os.Getenv("TS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if raw := os.Getenv("TS_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.Ping(dbConn); err != nil {
		logger.Fatal("db unreachable", zap.Error(err))
	}
	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	upstreamHTTP := &http.Client{Timeout: cfg.Upstream.Timeout}
	client := exchange.NewClient(upstreamHTTP, cfg.Upstream.BaseURL)
	store := gormrepository.NewStore(dbConn.Gorm)
	registry := schema.NewRegistry()
	fetch := fetcher.New(cfg.Fetch, logger)
	engine := syncer.NewEngine(cfg.Sync, registry, client, fetch, store, logger)
	jobs := queue.New(store, engine, logger)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	syncHandler := &handler.SyncHandler{
		Queue:      jobs,
		Store:      store,
		AdminToken: cfg.Server.AdminToken,
		Logger:     logger,
	}
	syncHandler.Register(router)
	recordsHandler := &handler.RecordsHandler{
		Registry: registry,
		Store:    store,
		Logger:   logger,
	}
	recordsHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add("enqueue", cfg.Cron.Enqueue, func(ctx context.Context) {
			if _, err := jobs.Add(ctx, models.JobCollectionAll); err != nil {
				logger.Warn("cron enqueue failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register enqueue failed", zap.Error(err))
		}
		_, err = cronRunner.Add("drain", cfg.Cron.Drain, func(ctx context.Context) {
			if err := jobs.Process(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("cron drain failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register drain failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
