// Package extract 提供按扩展名分派的文档文本提取器。
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/docqa/pkg/utils/errors"
)

// Extractor 从单个文件中提取纯文本。
type Extractor interface {
	// Extract 读取 path 并返回其中的文本。
	Extract(ctx context.Context, path string) (string, error)

	// Extensions 返回该提取器支持的扩展名（含点号，小写）。
	Extensions() []string
}

// Registry 按扩展名维护提取器。
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry 创建空的提取器注册表。
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// NewDefaultRegistry 创建包含 PDF、DOCX、TXT 提取器的注册表。
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&PDFExtractor{})
	r.Register(&DocxExtractor{})
	r.Register(&TextExtractor{})
	return r
}

// Register 注册提取器，同一扩展名后注册的覆盖先注册的。
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range e.Extensions() {
		r.extractors[strings.ToLower(ext)] = e
	}
}

// Lookup 根据文件名查找提取器。
func (r *Registry) Lookup(name string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[strings.ToLower(filepath.Ext(name))]
	return e, ok
}

// Supported 判断文件名的扩展名是否受支持。
func (r *Registry) Supported(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Extensions 返回全部受支持的扩展名（排序后）。
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract 提取文件文本。
// 不支持的扩展名返回 ErrUnsupportedFormat，提取失败返回 ErrExtraction。
func (r *Registry) Extract(ctx context.Context, path string) (text string, err error) {
	e, ok := r.Lookup(path)
	if !ok {
		return "", errors.ErrUnsupportedFormat.WithMessagef("unsupported document format: %s", filepath.Base(path))
	}

	// 第三方解析器在遇到畸形文件时可能 panic
	defer func() {
		if p := recover(); p != nil {
			text = ""
			err = errors.ErrExtraction.WithCause(fmt.Errorf("%s: panic: %v", filepath.Base(path), p))
		}
	}()

	text, err = e.Extract(ctx, path)
	if err != nil {
		return "", errors.ErrExtraction.WithCause(fmt.Errorf("%s: %w", filepath.Base(path), err))
	}
	return text, nil
}
