package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/orkio/orkio/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// CachedDriver wraps an EmbeddingDriver with an expiring LRU cache.
// Chat queries repeat often (retries, paraphrases, multi-turn threads),
// so caching query embeddings saves provider calls and latency.
// Errors are never cached.
type CachedDriver struct {
	next  contracts.EmbeddingDriver
	cache *expirable.LRU[string, []float32]
}

// WrapLRUCache decorates driver with an LRU of the given size and TTL.
// Returns the driver unchanged when size or ttl is non-positive.
func WrapLRUCache(driver contracts.EmbeddingDriver, size int, ttl time.Duration) contracts.EmbeddingDriver {
	if driver == nil || size <= 0 || ttl <= 0 {
		return driver
	}
	return &CachedDriver{
		next:  driver,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedDriver) Kind() string      { return c.next.Kind() }
func (c *CachedDriver) Dimensions() int   { return c.next.Dimensions() }
func (c *CachedDriver) MaxBatchSize() int { return c.next.MaxBatchSize() }

// Embed serves cached vectors where possible and forwards only the
// missing texts to the underlying driver.
func (c *CachedDriver) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if v, ok := c.cache.Get(c.cacheKey(t)); ok {
			vectors[i] = cloneVector(v)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		log.Debug().Int("texts", len(texts)).Str("driver", c.next.Kind()).Msg("embedding cache hit")
		return vectors, nil
	}

	fetched, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range fetched {
		c.cache.Add(c.cacheKey(missing[j]), cloneVector(v))
		vectors[missingIdx[j]] = v
	}
	return vectors, nil
}

func (c *CachedDriver) HealthCheck(ctx context.Context) error {
	return c.next.HealthCheck(ctx)
}

// cacheKey hashes driver identity + text so different backends never collide.
func (c *CachedDriver) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.next.Kind() + "\x00" + strconv.Itoa(c.next.Dimensions()) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
