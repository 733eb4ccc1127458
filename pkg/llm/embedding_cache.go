package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/pkg/utils/json"
)

// EmbeddingCache 向量缓存。实现需并发安全，Set 失败不影响调用方。
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

// CachedEmbeddingProvider 提供 Embedding 缓存功能的包装器。
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	cache    EmbeddingCache
}

// 确保 CachedEmbeddingProvider 实现了 EmbeddingProvider 接口。
var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)

// NewCachedEmbeddingProvider 创建带缓存的 Embedding Provider。cache 为 nil 时直接透传。
func NewCachedEmbeddingProvider(provider EmbeddingProvider, cache EmbeddingCache) *CachedEmbeddingProvider {
	return &CachedEmbeddingProvider{
		provider: provider,
		cache:    cache,
	}
}

// cacheKey 基于供应商名称与文本生成缓存键（SHA256）。
func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.provider.Name() + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// EmbedSingle 生成单个文本的 Embedding（带缓存）。
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if c.cache == nil {
		return c.provider.EmbedSingle(ctx, text)
	}

	key := c.cacheKey(text)
	if v, ok := c.cache.Get(ctx, key); ok {
		logger.Debugw("embedding cache hit", "text_length", len(text))
		return v, nil
	}

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, embedding)
	return embedding, nil
}

// Embed 批量生成 Embedding（带缓存），仅对未命中的文本调用底层供应商。
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.cache == nil {
		return c.provider.Embed(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		if v, ok := c.cache.Get(ctx, c.cacheKey(text)); ok {
			embeddings[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		logger.Debugw("all embeddings from cache", "total", len(texts))
		return embeddings, nil
	}

	logger.Debugw("embedding cache miss (batch)", "total", len(texts), "uncached", len(missTexts))
	fresh, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		// 数量校验交给上层，原样返回
		return fresh, nil
	}

	for i, idx := range missIdx {
		embeddings[idx] = fresh[i]
		c.cache.Set(ctx, c.cacheKey(missTexts[i]), fresh[i])
	}
	return embeddings, nil
}

// Name 返回底层 provider 的名称。
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name()
}

// LRUEmbeddingCache 进程内 LRU 缓存。
type LRUEmbeddingCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUEmbeddingCache 创建容量为 size 的 LRU 缓存。
func NewLRUEmbeddingCache(size int) (*LRUEmbeddingCache, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRUEmbeddingCache{cache: c}, nil
}

// Get 读取缓存。
func (l *LRUEmbeddingCache) Get(_ context.Context, key string) ([]float32, bool) {
	return l.cache.Get(key)
}

// Set 写入缓存。
func (l *LRUEmbeddingCache) Set(_ context.Context, key string, vector []float32) {
	l.cache.Add(key, vector)
}

// Len 返回当前条目数。
func (l *LRUEmbeddingCache) Len() int {
	return l.cache.Len()
}

// RedisEmbeddingCache 基于 Redis 的共享缓存。
type RedisEmbeddingCache struct {
	client    goredis.UniversalClient
	ttl       time.Duration
	keyPrefix string
}

// NewRedisEmbeddingCache 创建 Redis 缓存。
func NewRedisEmbeddingCache(client goredis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// Get 读取缓存，Redis 错误视为未命中。
func (r *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("redis get error, falling back to provider", "error", err.Error())
		}
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		// 反序列化失败，删除损坏的缓存
		logger.Warnw("failed to unmarshal cached embedding, deleting", "error", err.Error())
		_ = r.client.Del(ctx, r.keyPrefix+key).Err()
		return nil, false
	}
	return embedding, true
}

// Set 写入缓存，失败仅记录日志。
func (r *RedisEmbeddingCache) Set(ctx context.Context, key string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		logger.Warnw("failed to marshal embedding for caching", "error", err.Error())
		return
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, data, r.ttl).Err(); err != nil {
		logger.Warnw("failed to cache embedding", "error", err.Error())
	}
}

// Clear 删除所有带前缀的缓存键。
func (r *RedisEmbeddingCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	logger.Infow("cleared embedding cache", "deleted_count", deleted)
	return nil
}
