// Package rediscache wraps a vector.Embedder with a Redis read-through
// cache. Sub-query texts repeat heavily across searches, so caching their
// embeddings removes most embedding API calls.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citeseek/citeseek/pkg/logging"
	"github.com/citeseek/citeseek/vector"
)

// Cache is a caching decorator around another Embedder. Cache failures are
// logged and bypassed; the inner embedder remains the source of truth.
type Cache struct {
	inner  vector.Embedder
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// Option customises the cache.
type Option func(*Cache)

// WithPrefix sets the key prefix. Include the model name so different
// embedding models never share entries.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL sets entry expiry. Zero keeps entries until evicted.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// New wraps inner with a Redis cache.
func New(inner vector.Embedder, rdb redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		inner:  inner,
		rdb:    rdb,
		prefix: "citeseek:emb:",
		ttl:    7 * 24 * time.Hour,
		logger: logging.WithComponent("embed-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimension return number of embedding dimensions
func (c *Cache) Dimension() int {
	return c.inner.Dimension()
}

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Embed converts text to a vector embedding
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.get(ctx, c.key(text)); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(ctx, c.key(text), vec)
	return vec, nil
}

// EmbedBatch converts multiple texts to embeddings
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.get(ctx, c.key(text)); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(fresh))
	}
	for j, vec := range fresh {
		out[missIdx[j]] = vec
		c.put(ctx, c.key(missTexts[j]), vec)
	}
	return out, nil
}

func (c *Cache) get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		c.logger.Warn("cache entry corrupt, discarding", "key", key)
		c.rdb.Del(ctx, key)
		return nil, false
	}
	return vec, true
}

func (c *Cache) put(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
}
