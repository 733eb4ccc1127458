package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

var _ VectorIndex = (*MilvusIndex)(nil)

const (
	fieldChunkID    = "chunk_id"
	fieldText       = "text"
	fieldSource     = "source"
	fieldChunkIndex = "chunk_index"
	fieldChunkCount = "chunk_count"
)

var outputFields = []string{fieldChunkID, fieldText, fieldSource, fieldChunkIndex, fieldChunkCount}

// MilvusClient 是 MilvusIndex 依赖的 Milvus 操作集合，由 *milvus.Client 实现。
type MilvusClient interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	Insert(ctx context.Context, collection string, data *milvus.InsertData) ([]int64, error)
	Search(ctx context.Context, collection string, vector []float32, topK int, outputFields []string) ([]milvus.SearchResult, error)
	QueryStrings(ctx context.Context, collection, field string) ([]string, error)
	DropCollection(ctx context.Context, collection string) error
	ResolveAlias(ctx context.Context, alias string) (string, error)
	SwitchAlias(ctx context.Context, alias, collection string) error
	Close(ctx context.Context) error
}

var _ MilvusClient = (*milvus.Client)(nil)

// MilvusConfig MilvusIndex 配置。
type MilvusConfig struct {
	// Collection 对外的集合别名，实际数据存放在 <Collection>_<批次号> 集合中。
	Collection string
	// Dimension 向量维度，建表时必须确定。
	Dimension int
}

// MilvusIndex 基于 Milvus FLAT 索引（内积度量）的精确检索实现。
//
// Replace/Clear 先写入新的暂存集合，成功后把别名切换过去再删除旧集合；
// 任一步失败时删除暂存集合，旧集合继续提供检索。写操作持有写锁，检索持有读锁。
type MilvusIndex struct {
	client   MilvusClient
	embedder llm.EmbeddingProvider
	cfg      MilvusConfig

	mu      sync.RWMutex
	active  string
	count   int
	sources []string
}

// NewMilvusIndex 确保集合存在并加载现有文档块的统计信息。
func NewMilvusIndex(ctx context.Context, client MilvusClient, embedder llm.EmbeddingProvider, cfg MilvusConfig) (*MilvusIndex, error) {
	if client == nil || embedder == nil {
		return nil, fmt.Errorf("milvus client and embedding provider are required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("milvus index requires a positive dimension")
	}

	m := &MilvusIndex{client: client, embedder: embedder, cfg: cfg}
	if err := m.open(ctx); err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}
	if err := m.refresh(ctx); err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}

	logger.Infow("Milvus vector index ready", "alias", cfg.Collection, "collection", m.active, "chunks", m.count)
	return m, nil
}

// open 定位别名指向的集合；别名不存在时沿用同名的旧集合，否则新建集合并创建别名。
func (m *MilvusIndex) open(ctx context.Context) error {
	target, err := m.client.ResolveAlias(ctx, m.cfg.Collection)
	if err != nil {
		return err
	}
	if target != "" {
		m.active = target
		return m.client.CreateCollection(ctx, m.schema(target))
	}

	legacy, err := m.client.HasCollection(ctx, m.cfg.Collection)
	if err != nil {
		return err
	}
	if legacy {
		m.active = m.cfg.Collection
		return m.client.CreateCollection(ctx, m.schema(m.active))
	}

	name := m.generationName()
	if err := m.client.CreateCollection(ctx, m.schema(name)); err != nil {
		return err
	}
	if err := m.client.SwitchAlias(ctx, m.cfg.Collection, name); err != nil {
		m.discard(ctx, name)
		return err
	}
	m.active = name
	return nil
}

func (m *MilvusIndex) generationName() string {
	return m.cfg.Collection + "_" + strings.ToLower(ulid.Make().String())
}

func (m *MilvusIndex) schema(name string) *milvus.CollectionSchema {
	return &milvus.CollectionSchema{
		Name:        name,
		Description: "docqa document chunks",
		Dimension:   m.cfg.Dimension,
		MetaFields: []milvus.MetaField{
			{Name: fieldChunkID, DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: fieldText, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: fieldSource, DataType: entity.FieldTypeVarChar, MaxLen: 1024},
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldChunkCount, DataType: entity.FieldTypeInt64},
		},
	}
}

// refresh 从集合重新读取来源统计，调用方持有写锁或处于构造阶段。
func (m *MilvusIndex) refresh(ctx context.Context) error {
	sources, err := m.client.QueryStrings(ctx, m.active, fieldSource)
	if err != nil {
		return err
	}
	m.count = len(sources)
	m.sources = dedup(sources)
	return nil
}

// Add 追加文档块。
func (m *MilvusIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := m.embed(ctx, chunks)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.insert(ctx, m.active, chunks, vectors); err != nil {
		return err
	}
	m.count += len(chunks)
	m.sources = dedup(append(append([]string(nil), m.sources...), sourcesOf(chunks)...))
	return nil
}

// Replace 用 chunks 整体替换索引内容，失败时保持替换前的状态。
func (m *MilvusIndex) Replace(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return m.Clear(ctx)
	}
	vectors, err := m.embed(ctx, chunks)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rebuild(ctx, chunks, vectors); err != nil {
		return err
	}
	m.count = len(chunks)
	m.sources = uniqueSources(chunks)
	return nil
}

// Clear 切换到一个新的空集合。
func (m *MilvusIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rebuild(ctx, nil, nil); err != nil {
		return err
	}
	m.count = 0
	m.sources = nil
	return nil
}

// rebuild 把 chunks 写入暂存集合并切换别名，调用方持有写锁。
func (m *MilvusIndex) rebuild(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	staging := m.generationName()
	if err := m.client.CreateCollection(ctx, m.schema(staging)); err != nil {
		m.discard(ctx, staging)
		return errors.ErrIndexWrite.WithCause(err)
	}
	if len(chunks) > 0 {
		if err := m.insert(ctx, staging, chunks, vectors); err != nil {
			m.discard(ctx, staging)
			return err
		}
	}

	previous := m.active
	legacy := previous == m.cfg.Collection
	if legacy {
		// 别名不能与集合同名，旧集合必须先删除
		if err := m.client.DropCollection(ctx, previous); err != nil {
			m.discard(ctx, staging)
			return errors.ErrIndexWrite.WithCause(err)
		}
	}
	if err := m.client.SwitchAlias(ctx, m.cfg.Collection, staging); err != nil {
		if legacy {
			// 旧集合已删除，只能继续使用暂存集合
			m.active = staging
			m.resync(ctx)
		} else {
			m.discard(ctx, staging)
		}
		return errors.ErrIndexWrite.WithCause(err)
	}
	m.active = staging

	if !legacy {
		m.discard(ctx, previous)
	}
	return nil
}

// discard 尽力删除不再使用的集合。
func (m *MilvusIndex) discard(ctx context.Context, collection string) {
	if err := m.client.DropCollection(ctx, collection); err != nil {
		logger.Warnw("Failed to drop milvus collection", "collection", collection, "error", err)
	}
}

// resync 在写入失败后尽力让内存统计与集合一致。
func (m *MilvusIndex) resync(ctx context.Context) {
	if err := m.refresh(ctx); err != nil {
		logger.Warnw("Failed to resync milvus index statistics", "collection", m.active, "error", err)
	}
}

func (m *MilvusIndex) insert(ctx context.Context, collection string, chunks []Chunk, vectors [][]float32) error {
	meta := map[string][]any{
		fieldChunkID:    make([]any, len(chunks)),
		fieldText:       make([]any, len(chunks)),
		fieldSource:     make([]any, len(chunks)),
		fieldChunkIndex: make([]any, len(chunks)),
		fieldChunkCount: make([]any, len(chunks)),
	}
	for i, c := range chunks {
		meta[fieldChunkID][i] = c.ID
		meta[fieldText][i] = c.Text
		meta[fieldSource][i] = c.Source
		meta[fieldChunkIndex][i] = int64(c.ChunkIndex)
		meta[fieldChunkCount][i] = int64(c.ChunkCount)
	}

	if _, err := m.client.Insert(ctx, collection, &milvus.InsertData{Embeddings: vectors, Metadata: meta}); err != nil {
		return errors.ErrIndexWrite.WithCause(err)
	}
	return nil
}

func (m *MilvusIndex) embed(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors, err := embedChunks(ctx, m.embedder, chunks)
	if err != nil {
		return nil, err
	}
	if _, err := resolveDim(m.cfg.Dimension, vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Search 检索最相似的 topK 个文档块。
func (m *MilvusIndex) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 || m.Count() == 0 {
		return []SearchResult{}, nil
	}

	q, ok, err := embedQuery(ctx, m.embedder, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []SearchResult{}, nil
	}
	if len(q) != m.cfg.Dimension {
		return nil, errors.ErrIndexRead.WithMessagef("query dimension %d does not match index dimension %d", len(q), m.cfg.Dimension)
	}

	m.mu.RLock()
	hits, err := m.client.Search(ctx, m.active, q, topK, outputFields)
	m.mu.RUnlock()
	if err != nil {
		return nil, errors.ErrIndexRead.WithCause(err)
	}

	// 自增主键随插入单调递增，用它近似插入顺序打破平分
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			Chunk: Chunk{
				ID:         stringField(h.Metadata, fieldChunkID),
				Text:       stringField(h.Metadata, fieldText),
				Source:     stringField(h.Metadata, fieldSource),
				ChunkIndex: int(intField(h.Metadata, fieldChunkIndex)),
				ChunkCount: int(intField(h.Metadata, fieldChunkCount)),
			},
			Score: clamp(float64(h.Score)),
		})
	}
	return results, nil
}

// Count 返回文档块数量。
func (m *MilvusIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Sources 返回来源文档。
func (m *MilvusIndex) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sources...)
}

// Close 关闭 Milvus 连接。
func (m *MilvusIndex) Close() error {
	return m.client.Close(context.Background())
}

func stringField(meta map[string]any, name string) string {
	if v, ok := meta[name].(string); ok {
		return v
	}
	return ""
}

func intField(meta map[string]any, name string) int64 {
	switch v := meta[name].(type) {
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func sourcesOf(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Source
	}
	return out
}

func dedup(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
