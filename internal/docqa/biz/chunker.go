package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

const (
	// DefaultChunkSize 默认窗口大小（词）。
	DefaultChunkSize = 1000
	// DefaultChunkOverlap 默认重叠（词）。
	DefaultChunkOverlap = 200
)

// Chunker 按词窗口切分文本，相邻窗口共享 overlap 个词。
type Chunker struct {
	size    int
	overlap int
}

// NewChunker 创建切分器，要求 0 <= overlap < size。
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, errors.ErrInvalidParam.WithMessagef("invalid chunking parameters: size=%d overlap=%d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size 返回窗口大小。
func (c *Chunker) Size() int { return c.size }

// Overlap 返回重叠大小。
func (c *Chunker) Overlap() int { return c.overlap }

// Split 折叠空白后按词切分。窗口起点为 0, stride, 2*stride...，
// 到达文本末尾的窗口输出后停止，最后一个窗口可能不足 size 个词。
func (c *Chunker) Split(text string) []string {
	words := textutil.Words(text)
	if len(words) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := min(start+c.size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if start+c.size >= len(words) {
			break
		}
	}
	return chunks
}

// ChunkDocument 切分来自 source 的文本并生成文档块。
func (c *Chunker) ChunkDocument(source, text string) []store.Chunk {
	parts := c.Split(text)
	chunks := make([]store.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = store.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", source, i),
			Text:       p,
			Source:     source,
			ChunkIndex: i,
			ChunkCount: len(parts),
		}
	}
	return chunks
}
