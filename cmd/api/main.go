package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"promo-attribution-api/internal/builder"
	"promo-attribution-api/internal/cache"
	"promo-attribution-api/internal/config"
	"promo-attribution-api/internal/database"
	"promo-attribution-api/internal/events"
	"promo-attribution-api/internal/features"
	"promo-attribution-api/internal/handler"
	"promo-attribution-api/internal/logging"
	"promo-attribution-api/internal/middleware"
	"promo-attribution-api/internal/service"
	"promo-attribution-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (optional)")
	ingestOnStart := flag.Bool("ingest", false, "Ingest the configured CSV dataset on startup")
	buildOnStart := flag.Bool("build", false, "Run a feature build on startup")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init("promo-attribution-api", cfg.Logging.Environment)
	logger := logging.Logger()

	// Initialize tracing
	tracer, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "promo-attribution-api",
		Environment: cfg.Logging.Environment,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	_ = tracer
	defer tracing.Shutdown(context.Background())

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	// Initialize feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, cfg.Cache.Enabled, "feature-row cache")
	flags.Register(features.FeatureEventHooksEnabled, true, "event-driven hooks")
	flags.Register(features.FeatureParallelBuild, cfg.Build.Workers > 1, "bounded worker pool for builds")
	defer flags.Shutdown()

	// Initialize cache: Redis when configured, in-memory otherwise
	var featureCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, "", cfg.Cache.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		featureCache = redisCache
	} else {
		featureCache = cache.NewInMemoryCache()
	}

	// Initialize event hooks
	eventManager := events.NewManager(flags.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventManager.Shutdown()
	eventManager.Subscribe(events.EventBuildCompleted, func(ctx context.Context, ev events.Event) error {
		if data, ok := ev.Data.(events.BuildCompletedData); ok {
			logger.Info().
				Str("build_id", data.Summary.BuildID).
				Int("users_no_offers", data.Summary.UsersNoOffers).
				Msg("build completed hook")
		}
		return nil
	})

	workers := cfg.Build.Workers
	if !flags.IsEnabled(features.FeatureParallelBuild) {
		workers = 1
	}

	svc := service.NewService(service.Options{
		DB:       db,
		Cache:    featureCache,
		Flags:    flags,
		Events:   eventManager,
		Builder:  builder.New(workers, logger),
		Logger:   logger,
		CacheTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	})

	ctx := context.Background()
	if *ingestOnStart {
		if _, err := svc.IngestDataset(ctx, cfg.Data.PortfolioPath, cfg.Data.ProfilePath, cfg.Data.TranscriptPath); err != nil {
			logger.Fatal().Err(err).Msg("dataset ingest failed")
		}
	}
	if *buildOnStart {
		if _, err := svc.RunBuild(ctx); err != nil {
			logger.Fatal().Err(err).Msg("feature build failed")
		}
	}

	h := handler.NewHandler(svc)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Server.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/builds", func(r chi.Router) {
		r.Post("/", h.RunBuild)
		r.Get("/{build_id}", h.GetBuild)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/{user_id}/features", h.GetUserFeatures)
		r.Get("/{user_id}/offers", h.GetUserOffers)
	})

	r.Get("/summary", h.GetSummary)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Str("database", cfg.Database.Path).Msg("starting server")

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error shutting down server")
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
