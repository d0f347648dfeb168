package datasource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/model"
)

// DefaultCacheTTL applies when neither the screen nor the config sets one.
const DefaultCacheTTL = 30 * time.Second

// CacheOptions configures a CachedSource.
type CacheOptions struct {
	ScreenID  string
	TTL       time.Duration
	KeyPrefix string
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// CachedSource is a redis read-through cache in front of another source.
// Entries are keyed by tenant and request. Redis failures degrade to the
// wrapped source.
type CachedSource struct {
	inner  Source
	client redis.Cmdable
	opts   CacheOptions
}

// NewCachedSource wraps inner.
func NewCachedSource(inner Source, client redis.Cmdable, opts CacheOptions) *CachedSource {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CachedSource{inner: inner, client: client, opts: opts}
}

// Paginated delegates to the wrapped source.
func (s *CachedSource) Paginated() bool { return s.inner.Paginated() }

// Unwrap returns the wrapped source.
func (s *CachedSource) Unwrap() Source { return s.inner }

// Fetch serves from redis when possible and populates it on a miss.
func (s *CachedSource) Fetch(ctx context.Context, req model.FetchRequest) (model.FetchResult, error) {
	key, err := s.key(ctx, req)
	if err != nil {
		return s.inner.Fetch(ctx, req)
	}
	log := observability.RequestLogger(ctx, s.opts.Logger)

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var result model.FetchResult
		if jsonErr := json.Unmarshal(data, &result); jsonErr == nil {
			s.opts.Metrics.RecordCacheHit(s.opts.ScreenID)
			return result, nil
		}
		log.Warn("datasource: discarding corrupt cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		log.Warn("datasource: cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.opts.Metrics.RecordCacheMiss(s.opts.ScreenID)

	result, err := s.inner.Fetch(ctx, req)
	if err != nil {
		return model.FetchResult{}, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := s.client.Set(ctx, key, data, s.opts.TTL).Err(); err != nil {
			log.Warn("datasource: cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

// Invalidate drops every cached page of the screen.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	pattern := s.opts.KeyPrefix + s.opts.ScreenID + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete cache key: %w", err)
		}
	}
	return iter.Err()
}

// HealthCheck pings redis.
func (s *CachedSource) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CachedSource) key(ctx context.Context, req model.FetchRequest) (string, error) {
	tenant := ""
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		tenant = rctx.TenantID
	}
	payload, err := json.Marshal(struct {
		Tenant string
		Req    model.FetchRequest
	}{tenant, req})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return s.opts.KeyPrefix + s.opts.ScreenID + ":" + hex.EncodeToString(sum[:]), nil
}
