package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache configuration constants.
const (
	// DefaultCacheSize is the default number of embeddings kept in
	// memory. At 768 dimensions * 4 bytes * 2048 entries it stays under
	// 7MB.
	DefaultCacheSize = 2048
)

// Cache namespaces. Keys always carry a namespace so query embeddings
// and document embeddings never collide, even for identical text.
const (
	NamespaceQuery    = "query"
	NamespaceDocument = "document"
)

// PersistentCache is the durable second tier behind the in-memory LRU.
// The SQLite store implements it; lookups and writes that fail degrade
// to the inner provider rather than surfacing errors.
type PersistentCache interface {
	GetEmbedding(ctx context.Context, key, model string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, key, model string, vector []float32) error
}

// CachedProvider wraps a Provider with an LRU memory tier and an
// optional persistent tier. Each instance serves one namespace; the
// engine builds one for queries and one for document chunks around the
// same inner provider.
type CachedProvider struct {
	inner      Provider
	namespace  string
	cache      *lru.Cache[string, []float32]
	persistent PersistentCache
}

// Verify interface implementation at compile time
var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider creates a cached provider wrapping inner. The
// persistent tier may be nil. An empty namespace defaults to
// NamespaceQuery.
func NewCachedProvider(inner Provider, namespace string, cacheSize int, persistent PersistentCache) *CachedProvider {
	if namespace == "" {
		namespace = NamespaceQuery
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedProvider{
		inner:      inner,
		namespace:  namespace,
		cache:      cache,
		persistent: persistent,
	}
}

// cacheKey derives a stable key from the model, namespace, and text.
// SHA256 keeps keys fixed-length regardless of input size.
func (c *CachedProvider) cacheKey(text string) string {
	combined := c.inner.ModelName() + "\x00" + c.namespace + "\x00" + text
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// lookup checks the memory tier, then the persistent tier. Persistent
// hits are promoted into memory.
func (c *CachedProvider) lookup(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := c.cache.Get(key); ok {
		return vec, true
	}
	if c.persistent == nil {
		return nil, false
	}

	vec, ok, err := c.persistent.GetEmbedding(ctx, key, c.inner.ModelName())
	if err != nil {
		slog.Debug("embedding_cache_read_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.cache.Add(key, vec)
	return vec, true
}

// store writes to both tiers.
func (c *CachedProvider) store(ctx context.Context, key string, vec []float32) {
	c.cache.Add(key, vec)
	if c.persistent == nil {
		return
	}
	if err := c.persistent.PutEmbedding(ctx, key, c.inner.ModelName(), vec); err != nil {
		slog.Debug("embedding_cache_write_failed", slog.String("error", err.Error()))
	}
}

// Embed returns a cached embedding if available, otherwise computes and
// caches it.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, serving what it
// can from cache and batching only the misses.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	newEmbeddings, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		if j >= len(newEmbeddings) || newEmbeddings[j] == nil {
			continue // Failed-open row stays nil; never cache a miss
		}
		results[idx] = newEmbeddings[j]
		c.store(ctx, c.cacheKey(texts[idx]), newEmbeddings[j])
	}

	return results, nil
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedProvider) ModelName() string {
	return c.inner.ModelName()
}

// Available checks if the provider is ready (passthrough to inner).
func (c *CachedProvider) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close releases resources and closes the inner provider.
func (c *CachedProvider) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying provider.
func (c *CachedProvider) Inner() Provider {
	return c.inner
}
