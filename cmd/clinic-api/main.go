// Package main provides the clinic API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/ai"
	"github.com/medly/go-clinic/internal/api/handlers"
	"github.com/medly/go-clinic/internal/api/middleware"
	"github.com/medly/go-clinic/internal/config"
	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/doctor"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/observability/metrics"
	"github.com/medly/go-clinic/internal/observability/tracing"
	"github.com/medly/go-clinic/internal/saga"
	"github.com/medly/go-clinic/internal/views"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	if cfg.Env == "dev" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx := context.Background()

	// Tracing
	if cfg.OTLPEndpoint != "" {
		provider, err := tracing.Init(ctx, "clinic-api", cfg.OTLPEndpoint, cfg.Env)
		if err != nil {
			logger.Fatal("tracing init failed", zap.Error(err))
		}
		defer provider.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Doctor specialty cache
	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		defer cache.Close()
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, doctor cache disabled", zap.Error(err))
			cache = nil
		}
	}

	m := metrics.New()

	// Repositories and services
	appointmentRepo := appointment.NewRepository(pool, logger)
	appointmentService := appointment.NewService(appointmentRepo, logger)
	scheduleRepo := schedule.NewRepository(pool, logger)
	scheduleService := schedule.NewService(scheduleRepo, logger)
	doctorRepo := doctor.NewRepository(pool, cache, 5*time.Minute, logger)
	viewStore := views.NewStore(pool, logger)
	sagaRepo := saga.NewRepository(pool, logger)

	// Issue classifiers
	urgency, specialty, chat := buildClassifiers(ctx, cfg, m, logger)

	// Sagas
	createSaga := saga.NewCreateSaga(sagaRepo, appointmentService, scheduleService, cfg.Saga, m, logger)
	rescheduleSaga := saga.NewRescheduleSaga(sagaRepo, appointmentService, scheduleService, cfg.Saga, m, logger)
	cascadeSaga := saga.NewCascadeSaga(sagaRepo, appointmentService, scheduleService,
		doctorRepo, urgency, specialty, rescheduleSaga, cfg.Saga, m, logger)

	// Handlers
	appointmentHandler := handlers.NewAppointmentHandler(appointmentService, createSaga, rescheduleSaga, logger)
	scheduleHandler := handlers.NewScheduleHandler(scheduleService, cascadeSaga, logger)
	doctorHandler := handlers.NewDoctorHandler(doctorRepo, viewStore, logger)
	patientHandler := handlers.NewPatientHandler(viewStore, logger)
	aiHandler := handlers.NewAIHandler(urgency, specialty, chat, logger)

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("clinic-api"))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/appointments", appointmentHandler.Routes())
	r.Mount("/schedules", scheduleHandler.Routes())
	r.Mount("/doctors", doctorHandler.Routes())
	r.Mount("/patients", patientHandler.Routes())
	r.Mount("/ai", aiHandler.Routes())

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting clinic API", zap.String("port", cfg.HTTPPort))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// buildClassifiers wires the Gemini classifiers behind circuit breakers, or
// disabled stand-ins when no API key is configured. The cascade degrades to
// its fallback labels either way.
func buildClassifiers(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (saga.Classifier, saga.Classifier, ai.Classifier) {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, issue classification disabled")
		return ai.Disabled{}, ai.Disabled{}, ai.Disabled{}
	}

	client, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, m)
	if err != nil {
		logger.Warn("gemini client init failed, issue classification disabled", zap.Error(err))
		return ai.Disabled{}, ai.Disabled{}, ai.Disabled{}
	}

	urgency, err := ai.WithBreaker("gemini-urgency", client.Urgency(), logger)
	if err != nil {
		logger.Fatal("urgency breaker init failed", zap.Error(err))
	}
	specialty, err := ai.WithBreaker("gemini-specialty", client.Specialty(), logger)
	if err != nil {
		logger.Fatal("specialty breaker init failed", zap.Error(err))
	}
	chat, err := ai.WithBreaker("gemini-chat", client.Chat(), logger)
	if err != nil {
		logger.Fatal("chat breaker init failed", zap.Error(err))
	}
	return urgency, specialty, chat
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"clinic-api","version":"1.0.0"}`)
}
