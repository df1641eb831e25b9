package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/factory"
	"github.com/lychee-technology/assetio/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server over a Manager
type Server struct {
	manager  assetio.Manager
	router   chi.Router
	pageSize int
}

// NewServer creates a new Server instance
func NewServer(manager assetio.Manager) *Server {
	return &Server{
		manager:  manager,
		router:   chi.NewRouter(),
		pageSize: defaultPageSize,
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/resolve", s.handleResolve)
		r.Post("/exists", s.handleExists)
		r.Post("/traits", s.handleTraits)
		r.Post("/relationships", s.handleRelationships)
		r.Post("/preflight", s.handlePreflight)
		r.Post("/register", s.handleRegister)
		r.Post("/defaults", s.handleDefaults)
		r.Post("/policy", s.handlePolicy)
	})
}

// ServeHTTP makes Server usable as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start starts the HTTP server on the given port and stops when ctx is done
func (s *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.S().Warnw("server shutdown failed", "err", err)
		}
	}()

	zap.S().Infow("starting server", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := loadConfig()
	sugar.Infow("configuration loaded",
		"backend", config.Plugin.Backend,
		"traitSchemaDir", config.TraitSchemaDirectory,
		"cache", config.Plugin.Cache)

	shutdownTracing, err := telemetry.Setup(ctx, config.Tracing.Endpoint, config.Tracing.ServiceName)
	if err != nil {
		sugar.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	host := assetio.NewHost(assetio.StaticHost{ID: "org.assetio.server", Name: "AssetIO HTTP Server"})
	manager, closeManager, err := factory.NewManagerWithConfig(ctx, config,
		factory.WithHostSession(assetio.NewHostSession(host, logger)))
	if err != nil {
		sugar.Fatalf("failed to create manager: %v", err)
	}
	defer closeManager()

	server := NewServer(manager)
	server.pageSize = config.Dispatch.DefaultPageSize
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(ctx, port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// loadConfig builds the manager configuration from environment variables
func loadConfig() *assetio.Config {
	config := assetio.DefaultConfig()

	config.TraitSchemaDirectory = os.Getenv("TRAIT_SCHEMA_DIR")
	config.Plugin.Backend = getEnv("ASSET_BACKEND", config.Plugin.Backend)
	config.Plugin.Cache = getEnvBool("ASSET_CACHE", false)
	if managed := os.Getenv("MANAGED_TRAITS"); managed != "" {
		traits := strings.Split(managed, ",")
		config.Memory.ManagedTraits = traits
		config.Plugin.Settings = map[string]any{"managed_traits": traits}
	}

	config.Dispatch.MaxBatchSize = getEnvInt("MAX_BATCH_SIZE", config.Dispatch.MaxBatchSize)
	config.Dispatch.DefaultPageSize = getEnvInt("DEFAULT_PAGE_SIZE", config.Dispatch.DefaultPageSize)
	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", config.Metrics.Enabled)
	config.Tracing.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	config.Tracing.ServiceName = getEnv("OTEL_SERVICE_NAME", config.Tracing.ServiceName)

	config.Memory.FixturePath = os.Getenv("FIXTURE_PATH")

	config.Postgres.Host = getEnv("DB_HOST", config.Postgres.Host)
	config.Postgres.Port = getEnvInt("DB_PORT", config.Postgres.Port)
	config.Postgres.Database = getEnv("DB_NAME", config.Postgres.Database)
	config.Postgres.Username = getEnv("DB_USER", config.Postgres.Username)
	config.Postgres.Password = getEnv("DB_PASSWORD", "")
	config.Postgres.SSLMode = getEnv("DB_SSL_MODE", config.Postgres.SSLMode)
	config.Postgres.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", config.Postgres.MaxConnections)
	config.Postgres.MinConnections = getEnvInt("DB_MIN_CONNECTIONS", config.Postgres.MinConnections)
	config.Postgres.ConnMaxLifetime = time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 3600)) * time.Second
	config.Postgres.ConnMaxIdleTime = time.Duration(getEnvInt("DB_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second
	config.Postgres.Timeout = time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 30)) * time.Second
	config.Postgres.UseIAMAuth = getEnvBool("DB_USE_IAM_AUTH", false)
	config.Postgres.Region = getEnv("AWS_REGION", config.S3.Region)
	config.Postgres.TableNames.Entities = getEnv("ENTITIES_TABLE", config.Postgres.TableNames.Entities)
	config.Postgres.TableNames.Relationships = getEnv("RELATIONSHIPS_TABLE", config.Postgres.TableNames.Relationships)
	config.Postgres.TableNames.Defaults = getEnv("DEFAULTS_TABLE", config.Postgres.TableNames.Defaults)

	config.S3.Bucket = os.Getenv("S3_BUCKET")
	config.S3.Prefix = getEnv("S3_PREFIX", config.S3.Prefix)
	config.S3.Region = getEnv("AWS_REGION", config.S3.Region)
	config.S3.Endpoint = os.Getenv("S3_ENDPOINT")
	config.S3.AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	config.S3.SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	config.S3.UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", false)

	config.DuckDB.Path = getEnv("DUCKDB_PATH", config.DuckDB.Path)
	config.DuckDB.MemoryLimitMB = getEnvInt("DUCKDB_MEMORY_LIMIT_MB", config.DuckDB.MemoryLimitMB)
	config.DuckDB.Threads = getEnvInt("DUCKDB_THREADS", config.DuckDB.Threads)

	config.Redis.Addr = getEnv("REDIS_ADDR", config.Redis.Addr)
	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.DB = getEnvInt("REDIS_DB", config.Redis.DB)
	config.Redis.TTL = time.Duration(getEnvInt("REDIS_TTL_SECONDS", int(config.Redis.TTL/time.Second))) * time.Second

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
