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

	"voiceconfirm/internal/auth"
	"voiceconfirm/internal/calls"
	"voiceconfirm/internal/config"
	"voiceconfirm/internal/httpapi"
	"voiceconfirm/internal/orders"
	"voiceconfirm/internal/telephony"
	"voiceconfirm/internal/voice"
	"voiceconfirm/pkg/logger"
	"voiceconfirm/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
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

	orderStore := orders.NewPostgresStore(db)
	callStore := calls.NewPostgresStore(db)
	locker := calls.NewRedisLocker(rdb)

	audioStore := telephony.NewAudioStore(rdb, 0)
	dialer := telephony.NewTwilioDispatcher(cfg.Telephony, cfg.App.PublicBaseURL, audioStore)
	synth := voice.NewElevenLabsClient(cfg.Voice)

	orchestrator := calls.NewOrchestrator(orderStore, callStore, synth, dialer, locker, calls.OrchestratorConfig{
		DefaultVoiceID:  cfg.Voice.DefaultVoiceID,
		ProviderTimeout: cfg.Calls.ProviderTimeout,
	})
	reconciler := calls.NewReconciler(callStore, orderStore, locker)
	reader := calls.NewReader(callStore)

	sweeper := calls.NewSweeper(callStore, cfg.Calls.MaxAge, cfg.Calls.SweepInterval, log)
	sweeper.Start()
	defer sweeper.Stop()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		AuthMW: auth.RequireAccessToken(authManager),
		Handlers: httpapi.Handlers{
			Auth:         authManager,
			Orchestrator: orchestrator,
			Reader:       reader,
		},
		Webhooks: telephony.WebhookHandler{
			Reconcile:     reconciler.Reconcile,
			Audio:         audioStore,
			PublicBaseURL: cfg.App.PublicBaseURL,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
