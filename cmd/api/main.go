package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"softswitch/internal/auth"
	"softswitch/internal/cdr"
	"softswitch/internal/channel"
	"softswitch/internal/config"
	"softswitch/internal/events"
	"softswitch/internal/httpapi"
	"softswitch/internal/pickup"
	"softswitch/pkg/logger"
	"softswitch/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	publisher, err := events.NewRedisPublisher(rdb, cfg.Switch.EventsChannel)
	if err != nil {
		log.Error("events init failed", "err", err)
		os.Exit(1)
	}

	// Switch wiring: one registry, one core, the pickup orchestrator on top.
	registry := channel.NewRegistry()
	core := channel.NewCore(registry, log)
	pickupSvc := pickup.NewService(registry, core)
	cdrSvc := cdr.NewService(cdr.NewPostgresRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:           authManager,
		Registry:       registry,
		Core:           core,
		Pickup:         pickupSvc,
		CDR:            cdrSvc,
		Events:         publisher,
		DefaultContext: cfg.Switch.DefaultContext,
		Redis:          rdb,
		AttemptCap:     cfg.Switch.PickupAttemptCap,
		CapTTL:         cfg.Switch.PickupCapTTL,
	}
	registerRoutes(r, h, auth.RequireToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("switch api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
