// Package datasource provides the record sources behind list screens: static
// seeds, backend HTTP endpoints, a postgres table, and a redis read-through
// cache that can wrap any of them.
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/model"
)

// Source supplies records to one screen.
type Source interface {
	// Fetch returns records for the request. Sources that are not paginated
	// return the full unfiltered set and ignore the filter and page fields.
	Fetch(ctx context.Context, req model.FetchRequest) (model.FetchResult, error)

	// Paginated reports whether Fetch filters, sorts and pages server-side.
	Paginated() bool
}

// Lookup resolves a single record by ID regardless of the page it is on.
// Paginated sources implement it so panels bound to records off the current
// page can still be checked.
type Lookup interface {
	Lookup(ctx context.Context, id string) (model.Record, bool, error)
}

// LookupOf returns the Lookup behind src, looking through cache and
// instrumentation wrappers.
func LookupOf(src Source) (Lookup, bool) {
	for src != nil {
		if l, ok := src.(Lookup); ok {
			return l, true
		}
		w, ok := src.(interface{ Unwrap() Source })
		if !ok {
			return nil, false
		}
		src = w.Unwrap()
	}
	return nil, false
}

// Builder creates the source declared by a screen definition.
type Builder struct {
	cfg     config.DataSourceConfig
	db      Querier
	cache   redis.Cmdable
	metrics *observability.Metrics
	logger  *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPostgres makes postgres sources available.
func WithPostgres(db Querier) BuilderOption {
	return func(b *Builder) { b.db = db }
}

// WithCache enables redis caching for screens that ask for it.
func WithCache(client redis.Cmdable) BuilderOption {
	return func(b *Builder) { b.cache = client }
}

// WithMetrics records fetch, breaker and cache metrics.
func WithMetrics(m *observability.Metrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// WithLogger sets the logger for degraded-operation warnings.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder.
func NewBuilder(cfg config.DataSourceConfig, opts ...BuilderOption) *Builder {
	b := &Builder{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the instrumented source for def, wrapped in a cache when the
// definition enables one and a redis client is configured.
func (b *Builder) Build(def model.ScreenDefinition) (Source, error) {
	ds := def.DataSource

	var src Source
	switch ds.Type {
	case model.DataSourceStatic, "":
		if ds.SeedFile != "" {
			s, err := LoadStaticSource(ds.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("datasource: screen %s: %w", def.ID, err)
			}
			src = s
		} else {
			src = NewStaticSource(ds.Records)
		}
	case model.DataSourceHTTP:
		src = NewHTTPSource(def.ID, ds, b.cfg.HTTP,
			WithHTTPMetrics(b.metrics),
			WithHTTPLogger(b.logger),
		)
	case model.DataSourcePostgres:
		if b.db == nil {
			return nil, fmt.Errorf("datasource: screen %s: postgres source requested but no database configured", def.ID)
		}
		src = NewPostgresSource(b.db, b.cfg.Postgres.Table, def)
	default:
		return nil, fmt.Errorf("datasource: screen %s: unsupported type %q", def.ID, ds.Type)
	}

	if ds.Cache != nil && ds.Cache.Enabled && b.cache != nil {
		ttl := b.cfg.Redis.DefaultTTL
		if ds.Cache.TTL != "" {
			d, err := time.ParseDuration(ds.Cache.TTL)
			if err != nil {
				return nil, fmt.Errorf("datasource: screen %s: cache ttl: %w", def.ID, err)
			}
			ttl = d
		}
		src = NewCachedSource(src, b.cache, CacheOptions{
			ScreenID:  def.ID,
			TTL:       ttl,
			KeyPrefix: b.cfg.Redis.KeyPrefix,
			Metrics:   b.metrics,
			Logger:    b.logger,
		})
	}

	return Instrument(src, def.ID, ds.Type, b.metrics), nil
}

// InvalidateCache drops cached pages for def. It is a no-op when the screen
// has no cache or no redis client is configured.
func (b *Builder) InvalidateCache(ctx context.Context, def model.ScreenDefinition) error {
	if b.cache == nil || def.DataSource.Cache == nil || !def.DataSource.Cache.Enabled {
		return nil
	}
	cached := NewCachedSource(nil, b.cache, CacheOptions{ScreenID: def.ID, KeyPrefix: b.cfg.Redis.KeyPrefix})
	return cached.Invalidate(ctx)
}
