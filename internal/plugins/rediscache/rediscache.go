// Package rediscache decorates a manager plugin with a Redis cache of
// resolved traits data.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lychee-technology/assetio"
	backend "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const scanBatch = 200

// Cache caches Read access ResolveEntity results of the wrapped plugin.
// Element errors are never cached. Redis failures degrade to uncached calls.
type Cache struct {
	assetio.ManagerInterface

	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Cache)

// WithTTL sets the expiration for cached entries
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix for cached entries
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// NewClient creates a Redis client from cfg
func NewClient(cfg assetio.RedisConfig) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New wraps plugin with a cache held in client
func New(plugin assetio.ManagerInterface, client *backend.Client, opts ...Option) *Cache {
	c := &Cache{
		ManagerInterface: plugin,
		client:           client,
		prefix:           "assetio:resolve:",
		ttl:              5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(ref assetio.EntityReference, traitSet assetio.TraitSet) string {
	return c.prefix + ref.String() + "|" + traitSet.Key()
}

func (c *Cache) ResolveEntity(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, traitSet assetio.TraitSet, access assetio.Access, actx *assetio.Context) (*assetio.TraitsData, error) {
	if access != assetio.AccessRead {
		return c.ManagerInterface.ResolveEntity(ctx, s, ref, traitSet, access, actx)
	}

	key := c.key(ref, traitSet)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		data := assetio.NewTraitsData(nil)
		if err := json.Unmarshal(raw, data); err == nil {
			return data, nil
		}
		zap.S().Warnw("discarding undecodable cache entry", "key", key)
	case !errors.Is(err, backend.Nil):
		zap.S().Warnw("resolve cache read failed", "key", key, "err", err)
	}

	data, err := c.ManagerInterface.ResolveEntity(ctx, s, ref, traitSet, access, actx)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(data); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			zap.S().Warnw("resolve cache write failed", "key", key, "err", err)
		}
	}
	return data, nil
}

// RegisterEntity drops cached results for the reference before forwarding,
// so unpinned resolves see the new version.
func (c *Cache) RegisterEntity(ctx context.Context, s *assetio.HostSession, ref assetio.EntityReference, data *assetio.TraitsData, access assetio.Access, actx *assetio.Context) (assetio.EntityReference, error) {
	registered, err := c.ManagerInterface.RegisterEntity(ctx, s, ref, data, access, actx)
	if err != nil {
		return registered, err
	}
	if err := c.deleteMatching(ctx, c.prefix+escapeGlob(ref.String())+"|*"); err != nil {
		zap.S().Warnw("resolve cache invalidation failed", "ref", ref.String(), "err", err)
	}
	return registered, nil
}

// FlushCaches empties this cache, then asks the plugin to flush its own.
func (c *Cache) FlushCaches(ctx context.Context, s *assetio.HostSession) error {
	if err := c.deleteMatching(ctx, escapeGlob(c.prefix)+"*"); err != nil {
		return err
	}
	return c.ManagerInterface.FlushCaches(ctx, s)
}

func (c *Cache) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
