package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhawalhost/scimd/internal/repository"
	"github.com/dhawalhost/scimd/internal/schema"
	"github.com/dhawalhost/scimd/internal/scim"
	"github.com/dhawalhost/scimd/pkg/database"
	"github.com/dhawalhost/scimd/pkg/logger"
	"github.com/dhawalhost/scimd/pkg/middleware"
	"github.com/dhawalhost/scimd/pkg/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	log := logger.New(envOr("LOG_LEVEL", "info"))
	defer func() { _ = log.Sync() }()

	addr := ":" + envOr("PORT", "8080")
	baseURL := envOr("BASE_URL", "http://localhost"+addr+"/scim/v2")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    "scimsvc",
		ServiceVersion: envOr("SERVICE_VERSION", "dev"),
		Environment:    envOr("ENVIRONMENT", "development"),
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	registry := schema.DefaultRegistry()
	repos, err := buildRepositories(registry, baseURL, log)
	if err != nil {
		log.Fatal("Failed to build repositories", zap.Error(err))
	}

	svc := scim.NewService(registry, repos, log, scim.Config{
		RequireDeletePrecondition: os.Getenv("REQUIRE_DELETE_PRECONDITION") == "true",
		MaxCount:                  200,
	})

	gin.SetMode(envOr("GIN_MODE", gin.ReleaseMode))
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("scimsvc"))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware(rate.Limit(100), 200))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders: []string{"Authorization", "Content-Type", "If-Match", "If-None-Match"},
	}))

	metrics := observability.NewMetrics()
	router.Use(observability.PrometheusMiddleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		router.Use(middleware.BearerAuth(middleware.AuthConfig{
			Secret: []byte(secret),
			Issuer: os.Getenv("AUTH_JWT_ISSUER"),
		}))
	}

	scim.NewHTTPHandler(svc, log).RegisterRoutes(router)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("Tracer shutdown failed", zap.Error(err))
	}
}

// buildRepositories wires a User and Group repository over the storage
// backend selected by STORAGE ("memory" or "postgres").
func buildRepositories(registry *schema.Registry, baseURL string, log *zap.Logger) (*repository.Registry, error) {
	repos := repository.NewRegistry()
	enricher := repository.NewRefEnricher(baseURL)

	switch backend := envOr("STORAGE", "memory"); backend {
	case "postgres":
		db, err := database.NewConnection(database.ConfigFromEnv())
		if err != nil {
			return nil, err
		}
		users, err := repository.NewPostgres(db, registry, "User",
			repository.WithPostgresUniqueAttribute("userName"),
			repository.WithPostgresLocationBase(baseURL),
			repository.WithPostgresProcessingExtensions(enricher))
		if err != nil {
			return nil, err
		}
		groups, err := repository.NewPostgres(db, registry, "Group",
			repository.WithPostgresLocationBase(baseURL),
			repository.WithPostgresProcessingExtensions(enricher))
		if err != nil {
			return nil, err
		}
		repos.Register(users)
		repos.Register(groups)
		log.Info("Using postgres storage")
	default:
		users, err := repository.NewMemory(registry, "User",
			repository.WithUniqueAttribute("userName"),
			repository.WithLocationBase(baseURL),
			repository.WithProcessingExtensions(enricher))
		if err != nil {
			return nil, err
		}
		groups, err := repository.NewMemory(registry, "Group",
			repository.WithLocationBase(baseURL),
			repository.WithProcessingExtensions(enricher))
		if err != nil {
			return nil, err
		}
		repos.Register(users)
		repos.Register(groups)
		log.Info("Using in-memory storage", zap.String("backend", backend))
	}
	return repos, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
