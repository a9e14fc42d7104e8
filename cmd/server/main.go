package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trainerbook/scheduling-server-go/internal/config"
	"github.com/trainerbook/scheduling-server-go/internal/database"
	"github.com/trainerbook/scheduling-server-go/internal/events"
	"github.com/trainerbook/scheduling-server-go/internal/handler"
	"github.com/trainerbook/scheduling-server-go/internal/jobs"
	"github.com/trainerbook/scheduling-server-go/internal/middleware"
	"github.com/trainerbook/scheduling-server-go/internal/redisclient"
	"github.com/trainerbook/scheduling-server-go/internal/repository"
	"github.com/trainerbook/scheduling-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	availabilityRepo := repository.NewAvailabilityRepository(db)

	broker := events.NewBroker(redisClient)
	defer broker.Close()

	detector := service.NewConflictDetector(sessionRepo, cfg.RepositoryTimeout())
	resolver := service.NewAvailabilityResolver(availabilityRepo, cfg.RepositoryTimeout())
	lifecycle := service.NewLifecycleManager(
		sessionRepo, detector, resolver, broker,
		cfg.EnforceAvailability, cfg.RepositoryTimeout(),
	)
	availabilityService := service.NewAvailabilityService(availabilityRepo, broker, cfg.RepositoryTimeout())

	rateLimitMiddleware := middleware.NewRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)

	sessionHandler := handler.NewSessionHandler(lifecycle, detector)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService, resolver)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/sessions", sessionHandler.Routes())
		r.Route("/trainers/{trainerID}", func(r chi.Router) {
			r.Get("/sessions", sessionHandler.ListSessions)
			r.Get("/conflicts", sessionHandler.CheckConflicts)
			r.Get("/availability", availabilityHandler.ListRules)
			r.Put("/availability", availabilityHandler.ReplaceRules)
			r.Get("/availability/resolve", availabilityHandler.Resolve)
			r.Get("/events", eventsHandler.ServeHTTP)
		})
	})

	sweepJob := jobs.NewStatusSweepJob(sessionRepo, cfg.SweepInterval())
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
