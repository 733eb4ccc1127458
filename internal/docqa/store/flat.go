package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/docutil"
	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

var _ VectorIndex = (*FlatIndex)(nil)

// FlatConfig FlatIndex 配置。
type FlatConfig struct {
	// Dir 持久化目录，为空时只保存在内存中。
	Dir string
	// Dimension 期望的向量维度，0 表示以首次写入为准。
	Dimension int
}

// FlatIndex 对单位向量做精确内积检索，并将状态持久化到 Dir。
//
// 并发模型为单写多读：向量在锁外计算，提交（持久化 + 替换快照）持有写锁，
// 因此检索只会看到提交前或提交后的完整状态，提交期间的读操作会短暂阻塞。
type FlatIndex struct {
	embedder llm.EmbeddingProvider
	cfg      FlatConfig

	mu   sync.RWMutex
	snap *snapshot
}

// NewFlatIndex 创建 FlatIndex，并在 Dir 中存在持久化文件时加载它们。
func NewFlatIndex(embedder llm.EmbeddingProvider, cfg FlatConfig) (*FlatIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}

	idx := &FlatIndex{
		embedder: embedder,
		cfg:      cfg,
		snap:     &snapshot{dim: cfg.Dimension},
	}

	if cfg.Dir == "" {
		return idx, nil
	}
	if err := docutil.EnsureDir(cfg.Dir); err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}

	snap, err := loadSnapshot(cfg.Dir, cfg.Dimension)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		if snap.dim == 0 {
			snap.dim = cfg.Dimension
		}
		idx.snap = snap
		logger.Infow("Vector index loaded", "dir", cfg.Dir, "chunks", len(snap.chunks), "dimension", snap.dim)
	}
	return idx, nil
}

// Add 为文档块生成向量并追加到索引。
func (f *FlatIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := embedChunks(ctx, f.embedder, chunks)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.snap
	dim, err := resolveDim(cur.dim, vectors)
	if err != nil {
		return err
	}

	next := &snapshot{
		dim:     dim,
		chunks:  make([]Chunk, 0, len(cur.chunks)+len(chunks)),
		vectors: make([][]float32, 0, len(cur.vectors)+len(vectors)),
	}
	next.chunks = append(append(next.chunks, cur.chunks...), chunks...)
	next.vectors = append(append(next.vectors, cur.vectors...), vectors...)

	return f.commit(next)
}

// Replace 以 chunks 整体替换索引内容。
func (f *FlatIndex) Replace(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return f.Clear(ctx)
	}

	vectors, err := embedChunks(ctx, f.embedder, chunks)
	if err != nil {
		return err
	}

	dim, err := resolveDim(f.cfg.Dimension, vectors)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next := &snapshot{
		dim:     dim,
		chunks:  append([]Chunk(nil), chunks...),
		vectors: vectors,
	}
	return f.commit(next)
}

// Clear 清空索引。
func (f *FlatIndex) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrIndexWrite.WithCause(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.commit(&snapshot{dim: f.cfg.Dimension})
}

// commit 持久化并替换快照，调用方必须持有写锁。持久化失败时内存状态保持不变。
func (f *FlatIndex) commit(next *snapshot) error {
	if f.cfg.Dir != "" {
		if err := saveSnapshot(f.cfg.Dir, next); err != nil {
			return errors.ErrIndexWrite.WithCause(err)
		}
	}
	f.snap = next
	return nil
}

// Search 检索与查询最相似的 topK 个文档块。
func (f *FlatIndex) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 || f.Count() == 0 {
		return []SearchResult{}, nil
	}

	q, ok, err := embedQuery(ctx, f.embedder, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []SearchResult{}, nil
	}

	f.mu.RLock()
	snap := f.snap
	f.mu.RUnlock()

	if len(snap.chunks) == 0 {
		return []SearchResult{}, nil
	}
	if len(q) != snap.dim {
		return nil, errors.ErrIndexRead.WithMessagef("query dimension %d does not match index dimension %d", len(q), snap.dim)
	}

	return rank(snap, q, topK), nil
}

// rank 计算全部内积并返回前 topK 个，分数相同按插入顺序。
func rank(snap *snapshot, q []float32, topK int) []SearchResult {
	order := make([]int, len(snap.vectors))
	scores := make([]float64, len(snap.vectors))
	for i, v := range snap.vectors {
		order[i] = i
		scores[i] = clamp(textutil.Dot(q, v))
	}

	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	results := make([]SearchResult, topK)
	for i := 0; i < topK; i++ {
		pos := order[i]
		results[i] = SearchResult{Chunk: snap.chunks[pos], Score: scores[pos]}
	}
	return results
}

// Count 返回文档块数量。
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.snap.chunks)
}

// Sources 按首次出现顺序返回来源文档。
func (f *FlatIndex) Sources() []string {
	f.mu.RLock()
	snap := f.snap
	f.mu.RUnlock()
	return uniqueSources(snap.chunks)
}

// Dimension 返回当前向量维度，空索引且未配置维度时为 0。
func (f *FlatIndex) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap.dim
}

// Close 实现 VectorIndex，FlatIndex 不持有需要释放的资源。
func (f *FlatIndex) Close() error {
	return nil
}

// embedChunks 在锁外生成并归一化向量。
func embedChunks(ctx context.Context, embedder llm.EmbeddingProvider, chunks []Chunk) ([][]float32, error) {
	raw, err := embedder.Embed(ctx, texts(chunks))
	if err != nil {
		return nil, errors.ErrIndexWrite.WithCause(err)
	}
	if len(raw) != len(chunks) {
		return nil, errors.ErrIndexWrite.WithCause(
			errors.ErrEmbeddingProvider.WithMessagef("expected %d embeddings, got %d", len(chunks), len(raw)))
	}

	vectors := make([][]float32, len(raw))
	for i, v := range raw {
		n, ok := textutil.Normalize(v)
		if !ok {
			return nil, errors.ErrIndexWrite.WithMessagef("embedding for chunk %s has zero norm", chunks[i].ID)
		}
		vectors[i] = n
	}
	return vectors, nil
}

// embedQuery 生成并归一化查询向量，零向量时 ok 为 false。
func embedQuery(ctx context.Context, embedder llm.EmbeddingProvider, query string) ([]float32, bool, error) {
	raw, err := embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, false, err
	}
	q, ok := textutil.Normalize(raw)
	if !ok {
		logger.Debugw("Query embedding has zero norm", "query_len", len(query))
	}
	return q, ok, nil
}

// resolveDim 校验所有向量维度一致且与已有维度相符。
func resolveDim(current int, vectors [][]float32) (int, error) {
	dim := current
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return 0, errors.ErrIndexWrite.WithMessagef("embedding dimension %d does not match index dimension %d", len(v), dim)
		}
	}
	return dim, nil
}

func clamp(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(-1, math.Min(1, s))
}
