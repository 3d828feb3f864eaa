package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quillhub/quillhub/pkg/api"
	"github.com/quillhub/quillhub/pkg/config"
	"github.com/quillhub/quillhub/pkg/middleware"
	"github.com/quillhub/quillhub/pkg/observability"
	"github.com/quillhub/quillhub/pkg/permcache"
	"github.com/quillhub/quillhub/pkg/permissions"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Permission store
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}
	if err := permissions.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Permission store ready")

	// Shared cache backend
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	redisOpts.MaxRetries = cfg.Redis.MaxRetries
	redisOpts.PoolSize = cfg.Redis.PoolSize

	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The shared tier is optional at startup; it fails open.
		log.Printf("Warning: Redis unreachable, starting degraded: %v", err)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// Cache tiers, invalidation bus, decision service
	store := permissions.NewPostgresStore(db)
	l1, err := permcache.NewL1Cache(cfg.Cache.L1MaxEntries)
	if err != nil {
		log.Fatalf("Failed to create in-process cache: %v", err)
	}
	l2 := permcache.NewL2Cache(redisClient, cfg.Cache.RedisTimeout, logger)
	bus := permcache.NewRedisBus(redisClient, cfg.Cache.InvalidationChannel, logger)

	cache := permcache.NewService(store, l1, l2, bus, cfg.Cache, logger, metrics)
	if err := cache.Start(ctx); err != nil {
		log.Printf("Warning: invalidation bus unavailable, relying on TTLs: %v", err)
	}
	defer cache.Close()

	sweeper, err := permcache.NewSweeper(l1, cfg.Cache.SweepInterval, logger, metrics)
	if err != nil {
		log.Fatalf("Failed to create cache sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	manager := permissions.NewManager(store, cache, logger)

	// API server
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	if metrics != nil {
		router.Use(middleware.Metrics(metrics))
	}
	api.NewPermissionHandlers(cache, manager, logger).RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on its own port
	healthMux := http.NewServeMux()
	health := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(healthMux, health)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown: %v", err)
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Health server shutdown: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Shutdown complete")
}
