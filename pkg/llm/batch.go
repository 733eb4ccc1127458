package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/kart-io/docqa/pkg/llm/resilience"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// BatchConfig Embedding 批处理配置。
type BatchConfig struct {
	// BatchSize 每次调用供应商的文本数量。
	BatchSize int
	// Interval 相邻批次的最小间隔，0 表示不限速（测试时使用）。
	Interval time.Duration
	// Timeout 单次供应商调用的超时时间，0 表示不限制。
	Timeout time.Duration
	// Concurrency 同时进行的批次数，1 表示严格顺序。
	Concurrency int
	// Retry 单个批次的重试策略，Attempts 为 1 表示不重试。
	Retry resilience.Policy
}

// DefaultBatchConfig 返回默认批处理配置。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:   20,
		Interval:    500 * time.Millisecond,
		Timeout:     60 * time.Second,
		Concurrency: 1,
		Retry:       resilience.DefaultPolicy(),
	}
}

// BatchEmbedder 将文本按批次发送给 Embedding 供应商，并保证结果顺序与输入一致。
// 任一批次失败时整个调用失败，不返回部分结果。
type BatchEmbedder struct {
	provider EmbeddingProvider
	cfg      BatchConfig
	limiter  *rate.Limiter
	pool     *ants.Pool
}

var _ EmbeddingProvider = (*BatchEmbedder)(nil)

// NewBatchEmbedder 创建批处理 Embedding 客户端。
func NewBatchEmbedder(provider EmbeddingProvider, cfg BatchConfig) (*BatchEmbedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	b := &BatchEmbedder{provider: provider, cfg: cfg}
	if cfg.Interval > 0 {
		b.limiter = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	}
	if cfg.Concurrency > 1 {
		pool, err := ants.NewPool(cfg.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("create embedding pool: %w", err)
		}
		b.pool = pool
	}
	return b, nil
}

// Name 返回底层供应商名称。
func (b *BatchEmbedder) Name() string {
	return b.provider.Name()
}

// Close 释放并发池。
func (b *BatchEmbedder) Close() {
	if b.pool != nil {
		b.pool.Release()
	}
}

// Embed 为多个文本生成向量嵌入。
func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := splitBatches(texts, b.cfg.BatchSize)
	results := make([][][]float32, len(batches))

	var err error
	if b.pool == nil {
		err = b.embedSequential(ctx, batches, results)
	} else {
		err = b.embedConcurrent(ctx, batches, results)
	}
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, r := range results {
		vectors = append(vectors, r...)
	}
	return vectors, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (b *BatchEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (b *BatchEmbedder) embedSequential(ctx context.Context, batches [][]string, results [][][]float32) error {
	for i, batch := range batches {
		vectors, err := b.embedBatch(ctx, i, batch)
		if err != nil {
			return err
		}
		results[i] = vectors
	}
	return nil
}

func (b *BatchEmbedder) embedConcurrent(ctx context.Context, batches [][]string, results [][][]float32) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		i, batch := i, batch
		wg.Add(1)
		if err := b.pool.Submit(func() {
			defer wg.Done()
			vectors, err := b.embedBatch(ctx, i, batch)
			if err != nil {
				fail(err)
				return
			}
			results[i] = vectors
		}); err != nil {
			wg.Done()
			fail(errors.ErrEmbeddingProvider.WithCause(err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	// 父上下文在提交过程中被取消时，部分批次可能未执行
	for _, r := range results {
		if r == nil {
			return b.classify(context.Cause(ctx))
		}
	}
	return nil
}

// embedBatch 调用供应商处理单个批次，包含限速、超时与重试。
func (b *BatchEmbedder) embedBatch(ctx context.Context, index int, batch []string) ([][]float32, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, b.classify(err)
		}
	}

	var vectors [][]float32
	call := func(ctx context.Context) error {
		callCtx := ctx
		if b.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
			defer cancel()
		}
		var err error
		vectors, err = b.provider.Embed(callCtx, batch)
		return err
	}

	if err := resilience.Do(ctx, b.cfg.Retry, call); err != nil {
		logger.Warnw("embedding batch failed",
			"provider", b.provider.Name(),
			"batch", index,
			"size", len(batch),
			"error", err.Error(),
		)
		return nil, b.classify(err)
	}

	if len(vectors) != len(batch) {
		return nil, errors.ErrEmbeddingProvider.WithCause(
			fmt.Errorf("batch %d: expected %d vectors, got %d", index, len(batch), len(vectors)))
	}
	for j, v := range vectors {
		if len(v) == 0 {
			return nil, errors.ErrEmbeddingProvider.WithCause(
				fmt.Errorf("batch %d: empty vector at position %d", index, j))
		}
	}

	logger.Debugw("embedding batch done", "batch", index, "size", len(batch))
	return vectors, nil
}

// classify 将供应商错误映射为领域错误码。
func (b *BatchEmbedder) classify(err error) error {
	if IsTimeout(err) {
		return errors.ErrProviderTimeout.WithCause(err)
	}
	return errors.ErrEmbeddingProvider.WithCause(err)
}

// IsTimeout 判断错误是否由超时引起。
func IsTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func splitBatches(texts []string, size int) [][]string {
	batches := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}
