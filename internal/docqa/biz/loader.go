package biz

import (
	"context"
	"io"
	"path/filepath"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/docutil"
	"github.com/kart-io/docqa/internal/pkg/extract"
	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// LoadReport 一次目录扫描的统计。
type LoadReport struct {
	// Files 成功处理的文件数。
	Files int `json:"files"`
	// Chunks 生成的文档块数。
	Chunks int `json:"chunks"`
	// Skipped 被跳过的文件名（不支持的格式、提取失败或没有文本）。
	Skipped []string `json:"skipped,omitempty"`
}

// DocumentLoader 从文档目录加载并切分文档。
type DocumentLoader struct {
	dir      string
	registry *extract.Registry
	chunker  *Chunker
}

// NewDocumentLoader 创建文档加载器。registry 为 nil 时使用默认提取器。
func NewDocumentLoader(dir string, registry *extract.Registry, chunker *Chunker) *DocumentLoader {
	if registry == nil {
		registry = extract.NewDefaultRegistry()
	}
	return &DocumentLoader{dir: dir, registry: registry, chunker: chunker}
}

// Dir 返回文档目录。
func (l *DocumentLoader) Dir() string { return l.dir }

// Extensions 返回支持的扩展名。
func (l *DocumentLoader) Extensions() []string { return l.registry.Extensions() }

// Supported 判断文件名是否为支持的文档格式。
func (l *DocumentLoader) Supported(name string) bool { return l.registry.Supported(name) }

// Load 扫描文档目录（不递归），目录不存在时创建后返回空结果。
// 隐藏文件被忽略；不支持的格式和提取失败的文件记录日志后跳过。
func (l *DocumentLoader) Load(ctx context.Context) ([]store.Chunk, *LoadReport, error) {
	report := &LoadReport{}
	if err := docutil.EnsureDir(l.dir); err != nil {
		return nil, report, errors.ErrInternal.WithCause(err)
	}

	files, err := docutil.ListFiles(l.dir, nil)
	if err != nil {
		return nil, report, errors.ErrInternal.WithCause(err)
	}

	var chunks []store.Chunk
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		name := filepath.Base(path)
		if !l.registry.Supported(name) {
			logger.Debugw("Skipping unsupported file", "file", name)
			report.Skipped = append(report.Skipped, name)
			continue
		}

		text, err := l.registry.Extract(ctx, path)
		if err != nil {
			logger.Warnw("Failed to extract document", "file", name, "error", err)
			report.Skipped = append(report.Skipped, name)
			continue
		}

		docChunks := l.chunker.ChunkDocument(name, text)
		if len(docChunks) == 0 {
			logger.Warnw("Document has no text", "file", name)
			report.Skipped = append(report.Skipped, name)
			continue
		}

		logger.Infow("Document processed", "file", name, "chunks", len(docChunks),
			"preview", textutil.TruncateString(docChunks[0].Text, 60))
		chunks = append(chunks, docChunks...)
		report.Files++
	}

	report.Chunks = len(chunks)
	return chunks, report, nil
}

// Save 将上传的文档写入文档目录，返回保存后的路径。
// 不支持的扩展名返回 ErrUnsupportedFormat，非法文件名或超出 maxBytes 返回 ErrInvalidRequest。
func (l *DocumentLoader) Save(name string, r io.Reader, maxBytes int64) (string, error) {
	dest, err := l.Target(name)
	if err != nil {
		return "", err
	}
	if err := docutil.SaveReader(r, dest, maxBytes); err != nil {
		if errors.Is(err, docutil.ErrTooLarge) {
			return "", errors.ErrInvalidRequest.WithMessagef("document exceeds %d bytes", maxBytes)
		}
		return "", errors.ErrInternal.WithCause(err)
	}
	logger.Infow("Document saved", "file", filepath.Base(dest))
	return dest, nil
}

// Target 校验文件名并返回其在文档目录下的路径，同时确保目录存在。
func (l *DocumentLoader) Target(name string) (string, error) {
	dest, err := docutil.SafeJoin(l.dir, name)
	if err != nil {
		return "", errors.ErrInvalidRequest.WithCause(err)
	}
	if !l.registry.Supported(dest) {
		return "", errors.ErrUnsupportedFormat.WithMessagef("unsupported document format: %s", filepath.Base(dest))
	}
	if err := docutil.EnsureDir(l.dir); err != nil {
		return "", errors.ErrInternal.WithCause(err)
	}
	return dest, nil
}
