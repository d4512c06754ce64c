package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/liaosvcaf/explain-selection-with-ai/config"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/api"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/catalog"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/notes"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/settings"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/stream"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/telemetry"
	"github.com/liaosvcaf/explain-selection-with-ai/internal/usage"
	"github.com/liaosvcaf/explain-selection-with-ai/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("explaind", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Notes directory must exist before the first save
	if err := os.MkdirAll(cfg.NotesDir, 0o755); err != nil {
		log.Fatalf("failed to create notes dir: %v", err)
	}

	// 6. Wire the handler
	tracer := otel.GetTracerProvider().Tracer("explaind")
	handler := api.NewHandler(
		settings.NewPostgresStore(pool),
		catalog.NewService(catalog.NewFetcher(), catalog.NewCache()),
		stream.NewClient(),
		notes.NewResolver(cfg.NotesDir),
		usage.NewPostgresStore(pool),
		ratelimit.NewBudget(rdb, cfg.TokenBudgetTPM),
		tracer,
	)

	// 7. Init Chi router
	r := chi.NewRouter()
	r.Use(api.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"explaind"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(api.Auth(cfg.APIToken))

		r.Post("/v1/explain", handler.HandleExplain)
		r.Get("/v1/menu-label", handler.HandleMenuLabel)

		r.Get("/v1/models", handler.HandleModels)
		r.Post("/v1/models/invalidate", handler.HandleInvalidateModels)

		r.Get("/v1/settings", handler.HandleGetSettings)
		r.Put("/v1/settings", handler.HandlePutSettings)
		r.Post("/v1/settings/provider", handler.HandleSwitchProvider)

		r.Post("/v1/notes", handler.HandleSaveNote)
		r.Post("/v1/notes/append", handler.HandleAppendNote)
		r.Post("/v1/notes/numbered", handler.HandleNumberedNote)

		r.Get("/v1/usage", handler.HandleUsage)
	})

	// 8. Graceful shutdown. The write timeout is generous because slow
	// models can hold an SSE stream open for minutes.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("explaind starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
