package store

import (
	"context"
)

// Chunk 表示文档块，插入索引后不可变。
type Chunk struct {
	// ID 文档块 ID，在一次重新加载内唯一。
	ID string `json:"id"`
	// Text 文档块内容。
	Text string `json:"text"`
	// Source 来源文档名称。
	Source string `json:"source"`
	// ChunkIndex 在来源文档中的序号。
	ChunkIndex int `json:"chunk_index"`
	// ChunkCount 来源文档的文档块总数。
	ChunkCount int `json:"chunk_count"`
}

// SearchResult 表示检索结果。
type SearchResult struct {
	Chunk
	// Score 余弦相似度，范围 [-1, 1]。
	Score float64 `json:"similarity_score"`
}

// VectorIndex 定义向量索引接口。
type VectorIndex interface {
	// Add 为文档块生成向量并追加到索引，整体成功或整体失败。
	Add(ctx context.Context, chunks []Chunk) error

	// Search 返回与查询最相似的 topK 个文档块，按相似度降序，分数相同时按插入顺序。
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)

	// Clear 清空索引并持久化空状态。
	Clear(ctx context.Context) error

	// Replace 以 chunks 整体替换索引内容，检索只会看到替换前或替换后的状态。
	Replace(ctx context.Context, chunks []Chunk) error

	// Count 返回文档块数量。
	Count() int

	// Sources 按首次出现顺序返回去重后的来源文档。
	Sources() []string

	// Close 释放资源。
	Close() error
}

// uniqueSources 按首次出现顺序去重。
func uniqueSources(chunks []Chunk) []string {
	return dedup(sourcesOf(chunks))
}

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
