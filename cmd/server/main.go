package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gatekeeper/internal/config"
	"gatekeeper/internal/controller"
	"gatekeeper/internal/evaluator"
	"gatekeeper/internal/llm"
	_ "gatekeeper/internal/llm/openai"
	"gatekeeper/internal/metrics"
	"gatekeeper/internal/prompts"
	"gatekeeper/internal/scheduler"
	"gatekeeper/internal/selection"
	"gatekeeper/internal/session"
	"gatekeeper/internal/store"
	"gatekeeper/internal/transport"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	mongo, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	st, err := mongo.NewStore(ctx)
	if err != nil {
		logger.Fatal("Failed to initialize repositories", zap.Error(err))
	}

	// Redis backs the one-shot selection menus; the matcher falls back to
	// process-local storage when it is unreachable.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, selection menus will not survive restarts", zap.Error(err))
		rdb = nil
	}

	msgs, err := prompts.NewManager()
	if err != nil {
		logger.Fatal("Failed to load prompt templates", zap.Error(err))
	}

	// The LLM is optional. Without a provider every chat behaves as if its
	// ai setting were off.
	var llmClient *llm.Client
	provider, err := llm.NewProvider("openai")
	if err != nil {
		logger.Warn("LLM provider unavailable, interviews run on deterministic scoring only", zap.Error(err))
	} else {
		llmClient = llm.NewClient(provider, 20*time.Second, logger)
		logger.Info("LLM provider initialized", zap.String("provider", provider.Name()))
	}

	eval := evaluator.New(llmClient, logger)
	host := transport.NewHostClient(cfg.HostAPIURL, logger)
	timers := scheduler.NewTimerService(logger)
	clock := scheduler.RealClock{}

	manager := session.NewManager(st, eval, host, timers, msgs, clock, logger)

	if err := manager.Rehydrate(ctx); err != nil {
		logger.Error("Failed to rehydrate live interviews", zap.Error(err))
	}

	sweeper := scheduler.NewSweeper(st.Sessions, manager, clock, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start sweep scheduler", zap.Error(err))
	}

	matcher := selection.NewMatcher(rdb, logger)
	ctrl := controller.New(cfg.CommandPrefix, cfg.OwnerID, manager, st, matcher, host, logger)

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(60*time.Second))
	router.Use(metrics.Middleware)

	ctrl.Routes(router)
	router.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Gatekeeper starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("Gatekeeper shutting down...")

	sweeper.Stop()
	timers.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := mongo.Disconnect(shutdownCtx); err != nil {
		logger.Error("mongo disconnect failed", zap.Error(err))
	}

	logger.Info("Gatekeeper exited")
}
