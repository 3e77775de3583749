// Hope - story-aware support chat server with live map events.
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

	"github.com/ashureev/hope-map/internal/api"
	"github.com/ashureev/hope-map/internal/chat"
	"github.com/ashureev/hope-map/internal/config"
	"github.com/ashureev/hope-map/internal/corpus"
	"github.com/ashureev/hope-map/internal/geocode"
	"github.com/ashureev/hope-map/internal/llm"
	"github.com/ashureev/hope-map/internal/locator"
	"github.com/ashureev/hope-map/internal/logging"
	"github.com/ashureev/hope-map/internal/middleware"
	"github.com/ashureev/hope-map/internal/rag"
	"github.com/ashureev/hope-map/internal/realtime"
	"github.com/ashureev/hope-map/internal/session"
	"github.com/ashureev/hope-map/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.Setup(cfg.Log)
	defer func() { _ = logCloser.Close() }()

	logger.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing corpus is not fatal: chat falls back to general responses and
	// /api/stories reports the problem.
	stories, err := corpus.Load(cfg.Stories.GeocodedPath, cfg.Stories.AnalyzedPath)
	if err != nil {
		logger.Error("Failed to load story data", "error", err)
		stories = corpus.Empty()
	}

	sessions, err := session.New(ctx, cfg.Session, logger)
	if err != nil {
		logger.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			logger.Error("Failed to close session store", "error", closeErr)
		}
	}()
	session.StartSweeper(ctx, sessions, cfg.Session.SweepInterval, cfg.Session.IdleTTL)

	generator, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Error("Failed to initialize language model client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	if closer, ok := generator.(llm.Closer); ok {
		defer closer.Close()
	}
	if grpcClient, ok := generator.(*llm.GrpcClient); ok {
		if err := grpcClient.Health(ctx); err != nil {
			logger.Warn("Response service health check failed", "error", err)
		}
	}
	logger.Info("Language model client ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	geocoder, err := geocode.New(cfg.Geocode)
	if err != nil {
		logger.Error("Failed to initialize geocoder", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(logger)
	defer hub.Close()

	trigger, err := locator.NewTrigger(stories, geocoder, hub, locator.TriggerConfig{
		Workers: cfg.Trigger.Workers,
		Timeout: cfg.Trigger.Timeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize location trigger", "error", err)
		os.Exit(1)
	}

	policy := rag.HistoryPolicy{MaxTurns: cfg.Session.MaxPromptTurns, MaxTokens: cfg.Session.MaxPromptTokens}
	if policy.MaxTokens > 0 {
		counter, err := rag.NewTiktokenCounter()
		if err != nil {
			logger.Warn("Token counting unavailable, token budget disabled", "error", err)
		} else {
			policy.Counter = counter
		}
	}

	transcript, err := chat.NewTranscriptLogger(chat.TranscriptConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize conversation transcript", "error", err)
		os.Exit(1)
	}

	chatService := chat.NewService(chat.Options{
		Corpus:     stories,
		Store:      sessions,
		Generator:  generator,
		Trigger:    trigger,
		Policy:     policy,
		LLMTimeout: cfg.LLM.Timeout,
		Transcript: transcript,
		Logger:     logger,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	limiter.StartEviction(ctx)

	origins := cfg.AllowedOrigins()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(origins))

	api.NewHealthHandler(sessions, stories.Len, hub.Count).RegisterRoutes(r)
	api.NewStoriesHandler(stories).RegisterRoutes(r)
	api.NewChatHandler(chatService, middleware.RateLimit(limiter)).RegisterRoutes(r)
	api.NewGeocodeHandler(geocoder).RegisterRoutes(r)

	// Map event stream.
	r.Get("/ws", realtime.NewHandler(hub, realtime.OriginPatterns(origins)).ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "addr", srv.Addr, "stories", stories.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := trigger.Close(5 * time.Second); err != nil {
		logger.Warn("Location trigger did not drain", "error", err)
	}
	if err := transcript.Close(); err != nil {
		logger.Warn("Failed to flush conversation transcript", "error", err)
	}

	logger.Info("Server stopped successfully")
}

func configPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return "hope.toml"
}
