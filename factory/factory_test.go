package factory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/plugins/breaker"
	"github.com/lychee-technology/assetio/internal/plugins/duckdb"
	"github.com/lychee-technology/assetio/internal/plugins/memory"
	"github.com/lychee-technology/assetio/internal/plugins/postgres"
	"github.com/lychee-technology/assetio/internal/plugins/s3store"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fixturePath    = "../internal/plugins/memory/testdata/library.yaml"
	traitSchemaDir = "../internal/testdata/traits"
	traitLocatable = "openassetio-mediacreation:content.LocatableContent"
)

func memoryConfig() *assetio.Config {
	config := assetio.DefaultConfig()
	config.Memory.FixturePath = fixturePath
	config.TraitSchemaDirectory = traitSchemaDir
	return config
}

func withOpenPostgres(t *testing.T, open func(context.Context, assetio.PostgresConfig) (postgres.Pool, func(), error)) {
	t.Helper()
	original := openPostgres
	openPostgres = open
	t.Cleanup(func() {
		openPostgres = original
	})
}

func withOpenS3(t *testing.T, open func(context.Context, assetio.S3Config) (s3store.Client, s3store.Uploader, error)) {
	t.Helper()
	original := openS3
	openS3 = open
	t.Cleanup(func() {
		openS3 = original
	})
}

// emptyBucket reports every object as missing
type emptyBucket struct{}

func (emptyBucket) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, assert.AnError
}

func (emptyBucket) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, assert.AnError
}

func (emptyBucket) Upload(context.Context, *s3.PutObjectInput, ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	return nil, assert.AnError
}

func TestNewManagerWithConfig_NilConfig(t *testing.T) {
	_, _, err := NewManagerWithConfig(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
}

func TestNewManagerWithConfig_InvalidConfig(t *testing.T) {
	config := assetio.DefaultConfig()
	config.Plugin.Backend = "ftp"

	_, _, err := NewManagerWithConfig(context.Background(), config)
	require.Error(t, err)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
	assert.Contains(t, err.Error(), "plugin.backend")
}

func TestNewManagerWithConfig_Memory(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	m, closeFn, err := NewManagerWithConfig(ctx, memoryConfig(), WithRegisterer(reg))
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, memory.Identifier, m.Identifier())

	data, err := m.ResolveOne(ctx, assetio.NewEntityReference("mem:///shots/sh010/plate"),
		assetio.NewTraitSet(traitLocatable), assetio.AccessRead, &assetio.Context{})
	require.NoError(t, err)
	loc, ok := data.GetTraitProperty(traitLocatable, "location")
	require.True(t, ok)
	assert.Equal(t, "file:///mnt/shots/sh010/plate.v002.exr", loc)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "assetio_dispatch_batches_total")
	assert.Contains(t, names, "assetio_dispatch_elements_total")
}

func TestNewManagerWithConfig_MemoryValidatesPublishing(t *testing.T) {
	ctx := context.Background()
	config := memoryConfig()
	config.Metrics.Enabled = false

	m, closeFn, err := NewManagerWithConfig(ctx, config)
	require.NoError(t, err)
	defer closeFn()

	bad := assetio.NewTraitsData(nil)
	require.NoError(t, bad.SetTraitProperty(traitLocatable, "location", ""))
	_, err = m.RegisterOne(ctx, assetio.NewEntityReference("mem:///shots/sh010/comp"), bad, assetio.AccessWrite, &assetio.Context{})
	berr, ok := assetio.AsBatchElementError(err)
	require.True(t, ok, "expected element error, got %v", err)
	assert.Equal(t, assetio.KindInvalidTraitSet, berr.Kind)
}

func TestNewManagerWithConfig_MetricsRegisteredTwice(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	_, closeFn, err := NewManagerWithConfig(ctx, memoryConfig(), WithRegisterer(reg))
	require.NoError(t, err)
	defer closeFn()

	_, _, err = NewManagerWithConfig(ctx, memoryConfig(), WithRegisterer(reg))
	require.Error(t, err)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
}

func TestNewManagerWithConfig_MetricsDisabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := memoryConfig()
	config.Metrics.Enabled = false

	_, closeFn, err := NewManagerWithConfig(context.Background(), config, WithRegisterer(reg))
	require.NoError(t, err)
	defer closeFn()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestNewManagerWithConfig_BadFixture(t *testing.T) {
	config := memoryConfig()
	config.Metrics.Enabled = false
	config.Memory.FixturePath = "testdata/does-not-exist.yaml"

	_, _, err := NewManagerWithConfig(context.Background(), config)
	require.Error(t, err)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
}

func TestNewManagerWithConfig_Postgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	closed := false
	withOpenPostgres(t, func(context.Context, assetio.PostgresConfig) (postgres.Pool, func(), error) {
		return mock, func() { closed = true }, nil
	})
	for range 3 {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	config := assetio.DefaultConfig()
	config.Plugin.Backend = assetio.BackendPostgres
	config.Plugin.Settings = map[string]any{"create_tables": true}
	config.Metrics.Enabled = false

	m, closeFn, err := NewManagerWithConfig(context.Background(), config)
	require.NoError(t, err)
	assert.Equal(t, postgres.Identifier, m.Identifier())
	assert.True(t, m.HasCapability(assetio.CapabilityPublishing))
	assert.NoError(t, mock.ExpectationsWereMet())

	closeFn()
	assert.True(t, closed)
}

func TestNewManagerWithConfig_PostgresUnreachable(t *testing.T) {
	withOpenPostgres(t, func(context.Context, assetio.PostgresConfig) (postgres.Pool, func(), error) {
		return nil, nil, assert.AnError
	})
	config := assetio.DefaultConfig()
	config.Plugin.Backend = assetio.BackendPostgres

	_, _, err := NewManagerWithConfig(context.Background(), config)
	require.Error(t, err)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewManagerWithConfig_S3(t *testing.T) {
	withOpenS3(t, func(context.Context, assetio.S3Config) (s3store.Client, s3store.Uploader, error) {
		return emptyBucket{}, emptyBucket{}, nil
	})
	config := assetio.DefaultConfig()
	config.Plugin.Backend = assetio.BackendS3
	config.S3.Bucket = "assets"
	config.Metrics.Enabled = false

	m, closeFn, err := NewManagerWithConfig(context.Background(), config)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, s3store.Identifier, m.Identifier())
	assert.False(t, m.HasCapability(assetio.CapabilityRelationshipQueries))
}

func TestNewManagerWithConfig_DuckDB(t *testing.T) {
	config := assetio.DefaultConfig()
	config.Plugin.Backend = assetio.BackendDuckDB
	config.Metrics.Enabled = false

	m, closeFn, err := NewManagerWithConfig(context.Background(), config)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, duckdb.Identifier, m.Identifier())

	_, err = m.RegisterOne(context.Background(), assetio.NewEntityReference("duck:///plate"),
		assetio.NewTraitsData(nil), assetio.AccessWrite, &assetio.Context{})
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeUnsupportedCapability))
}

func TestNewManagerWithConfig_WithCache(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config := memoryConfig()
	config.Metrics.Enabled = false
	config.Plugin.Cache = true
	config.Redis.Addr = mr.Addr()
	config.Redis.Prefix = "factory:"

	m, closeFn, err := NewManagerWithConfig(ctx, config)
	require.NoError(t, err)
	defer closeFn()

	ref := assetio.NewEntityReference("mem:///shots/sh010/comp")
	_, err = m.ResolveOne(ctx, ref, assetio.NewTraitSet(traitLocatable), assetio.AccessRead, &assetio.Context{})
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 1)
	assert.Contains(t, mr.Keys()[0], "factory:mem:///shots/sh010/comp|")

	require.NoError(t, m.FlushCaches(ctx))
	assert.Empty(t, mr.Keys())
}

func TestNewPlugin_WithBreaker(t *testing.T) {
	config := memoryConfig()
	config.Plugin.Breaker.Enabled = true

	plugin, closeFn, err := NewPlugin(context.Background(), config)
	require.NoError(t, err)
	defer closeFn()

	guarded, ok := plugin.(*breaker.Plugin)
	require.True(t, ok)
	assert.False(t, guarded.Breaker().IsOpen())
	assert.Equal(t, memory.Identifier, guarded.Identifier())
}

func TestNewManagerWithConfig_InvalidBreaker(t *testing.T) {
	config := memoryConfig()
	config.Plugin.Breaker.Enabled = true
	config.Plugin.Breaker.Threshold = 0

	_, _, err := NewManagerWithConfig(context.Background(), config)
	require.Error(t, err)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
	assert.Contains(t, err.Error(), "plugin.breaker.threshold")
}

func TestNewTraitSchemaRegistry(t *testing.T) {
	config := assetio.DefaultConfig()

	registry, err := NewTraitSchemaRegistry(config)
	require.NoError(t, err)
	assert.Nil(t, registry)

	config.TraitSchemaDirectory = traitSchemaDir
	registry, err = NewTraitSchemaRegistry(config)
	require.NoError(t, err)
	require.NotNil(t, registry)
	assert.True(t, registry.HasSchema(traitLocatable))

	config.TraitSchemas = registry
	config.TraitSchemaDirectory = "does-not-exist"
	explicit, err := NewTraitSchemaRegistry(config)
	require.NoError(t, err)
	assert.Same(t, registry, explicit)

	config.TraitSchemas = nil
	_, err = NewTraitSchemaRegistry(config)
	require.Error(t, err)
	assert.True(t, assetio.IsErrorType(err, assetio.ErrorTypeConfiguration))
}
