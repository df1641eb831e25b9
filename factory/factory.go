package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"github.com/lychee-technology/assetio/internal/plugins/breaker"
	"github.com/lychee-technology/assetio/internal/plugins/duckdb"
	"github.com/lychee-technology/assetio/internal/plugins/memory"
	"github.com/lychee-technology/assetio/internal/plugins/postgres"
	"github.com/lychee-technology/assetio/internal/plugins/rediscache"
	"github.com/lychee-technology/assetio/internal/plugins/s3store"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Seams replaced in tests.
var (
	openPostgres = func(ctx context.Context, cfg assetio.PostgresConfig) (postgres.Pool, func(), error) {
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return pool, pool.Close, nil
	}
	openS3 = func(ctx context.Context, cfg assetio.S3Config) (s3store.Client, s3store.Uploader, error) {
		client, uploader, err := s3store.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, uploader, nil
	}
)

type options struct {
	session        *assetio.HostSession
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
}

// Option customizes NewManagerWithConfig
type Option func(*options)

// WithHostSession sets the session handed to every plugin call
func WithHostSession(session *assetio.HostSession) Option {
	return func(o *options) { o.session = session }
}

// WithRegisterer registers dispatch metrics with reg instead of the default
// Prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracerProvider sets the provider for dispatch spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// NewManagerWithConfig builds the plugin selected by config, wraps it in the
// circuit breaker and Redis resolve cache when enabled, and returns an
// initialized Manager.
// The returned close function releases connections held by the plugin.
//
// Usage:
//
//	config := assetio.DefaultConfig()
//	config.Memory.FixturePath = "library.yaml"
//	m, closeFn, err := factory.NewManagerWithConfig(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer closeFn()
func NewManagerWithConfig(ctx context.Context, config *assetio.Config, opts ...Option) (assetio.Manager, func(), error) {
	if config == nil {
		return nil, nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig, "config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig, err.Error()).WithCause(err)
	}

	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	plugin, closeFn, err := NewPlugin(ctx, config)
	if err != nil {
		return nil, nil, err
	}

	observers, err := newObservers(config, o)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	m := internal.NewManager(plugin, o.session, config, observers...)
	if err := m.Initialize(ctx, config.Plugin.Settings); err != nil {
		closeFn()
		return nil, nil, err
	}
	zap.S().Infow("manager ready",
		"backend", config.Plugin.Backend,
		"plugin", m.Identifier(),
		"cache", config.Plugin.Cache,
		"breaker", config.Plugin.Breaker.Enabled)
	return m, closeFn, nil
}

// NewPlugin builds the manager plugin named by config.Plugin.Backend without
// initializing it.
func NewPlugin(ctx context.Context, config *assetio.Config) (assetio.ManagerInterface, func(), error) {
	schemas, err := NewTraitSchemaRegistry(config)
	if err != nil {
		return nil, nil, err
	}

	var (
		plugin  assetio.ManagerInterface
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch config.Plugin.Backend {
	case assetio.BackendMemory:
		var mopts []memory.Option
		if schemas != nil {
			mopts = append(mopts, memory.WithSchemaRegistry(schemas))
		}
		plugin = memory.New(memory.Settings{
			FixturePath:   config.Memory.FixturePath,
			ManagedTraits: config.Memory.ManagedTraits,
		}, mopts...)

	case assetio.BackendPostgres:
		pool, closePool, err := openPostgres(ctx, config.Postgres)
		if err != nil {
			return nil, nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig,
				"failed to connect to postgres").WithCause(err)
		}
		closers = append(closers, closePool)
		p, err := postgres.New(pool, config.Postgres.TableNames, postgres.Settings{}, schemas)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		plugin = p

	case assetio.BackendS3:
		client, uploader, err := openS3(ctx, config.S3)
		if err != nil {
			return nil, nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig,
				"failed to create s3 client").WithCause(err)
		}
		plugin = s3store.New(client, uploader, config.S3, s3store.Settings{}, schemas)

	case assetio.BackendDuckDB:
		db, err := duckdb.Open(ctx, config.DuckDB)
		if err != nil {
			return nil, nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig,
				"failed to open duckdb catalogue").WithCause(err)
		}
		closers = append(closers, func() { db.Close() })
		if err := duckdb.CreateCatalog(ctx, db); err != nil {
			closeAll()
			return nil, nil, err
		}
		plugin = duckdb.New(db, duckdb.Settings{})

	default:
		return nil, nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown plugin backend %q", config.Plugin.Backend))
	}

	if b := config.Plugin.Breaker; b.Enabled {
		plugin = breaker.New(plugin, breaker.NewCircuitBreaker(b.Threshold, b.Window, b.OpenDuration))
	}

	if config.Plugin.Cache {
		client := rediscache.NewClient(config.Redis)
		closers = append(closers, func() { client.Close() })
		var copts []rediscache.Option
		if config.Redis.Prefix != "" {
			copts = append(copts, rediscache.WithPrefix(config.Redis.Prefix))
		}
		if config.Redis.TTL > 0 {
			copts = append(copts, rediscache.WithTTL(config.Redis.TTL))
		}
		plugin = rediscache.New(plugin, client, copts...)
	}

	return plugin, closeAll, nil
}

// NewTraitSchemaRegistry returns config.TraitSchemas when set, otherwise a
// file registry over config.TraitSchemaDirectory. No directory means no
// validation and a nil registry.
func NewTraitSchemaRegistry(config *assetio.Config) (assetio.TraitSchemaRegistry, error) {
	if config.TraitSchemas != nil {
		return config.TraitSchemas, nil
	}
	if config.TraitSchemaDirectory == "" {
		return nil, nil
	}
	registry, err := internal.NewFileTraitSchemaRegistry(config.TraitSchemaDirectory)
	if err != nil {
		return nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig,
			"failed to load trait schemas").WithCause(err)
	}
	return registry, nil
}

func newObservers(config *assetio.Config, o options) ([]dispatch.Observer, error) {
	observers := []dispatch.Observer{internal.NewDispatchTracer(o.tracerProvider)}
	if !config.Metrics.Enabled {
		return observers, nil
	}
	metrics, err := internal.NewDispatchMetrics(o.registerer, config.Metrics.Namespace)
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil, assetio.NewConfigurationError(assetio.ErrCodeInvalidConfig,
				"dispatch metrics already registered").WithCause(err)
		}
		return nil, err
	}
	if metrics != nil {
		observers = append(observers, metrics)
	}
	return observers, nil
}
