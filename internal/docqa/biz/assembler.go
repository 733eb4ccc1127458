package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/docqa/internal/docqa/store"
)

// Assembler 将检索结果拼装为提示词上下文。
type Assembler struct {
	block     string
	separator string
}

// NewAssembler 使用 locale 中的模板创建拼装器。
func NewAssembler(locale *Locale) *Assembler {
	if locale == nil {
		locale = &Russian
	}
	return &Assembler{block: locale.ContextBlock, separator: locale.Separator}
}

// Assemble 按检索顺序格式化结果，返回上下文以及按首次出现顺序去重的来源。
// 结果为空时返回空上下文和空来源。
func (a *Assembler) Assemble(results []store.SearchResult) (string, []string) {
	if len(results) == 0 {
		return "", []string{}
	}

	blocks := make([]string, len(results))
	seen := make(map[string]struct{}, len(results))
	sources := make([]string, 0, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf(a.block, i+1, r.Source, r.Score, r.Text)
		if _, ok := seen[r.Source]; !ok {
			seen[r.Source] = struct{}{}
			sources = append(sources, r.Source)
		}
	}
	return strings.Join(blocks, a.separator), sources
}

// Assemble 使用默认（俄语）模板拼装上下文。
func Assemble(results []store.SearchResult) (string, []string) {
	return NewAssembler(&Russian).Assemble(results)
}
