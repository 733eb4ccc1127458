// Package textutil 提供检索管线使用的文本与向量工具函数。
package textutil

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Words 按空白切分文本。
func Words(s string) []string {
	return strings.Fields(s)
}

// Normalize 返回向量的 L2 单位化副本。零向量返回 false。
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// Dot 计算内积，长度不一致时按较短者计算。
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// Keywords 提取长度不小于 minLen 的小写词，去除首尾标点并去重，保持首次出现顺序。
func Keywords(s string, minLen int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(w) < minLen {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// KeywordRecall 计算 expected 中的关键词在 actual 中出现的比例。
// expected 没有关键词时返回 0。
func KeywordRecall(expected, actual string, minLen int) float64 {
	keys := Keywords(expected, minLen)
	if len(keys) == 0 {
		return 0
	}

	present := make(map[string]struct{})
	for _, w := range Keywords(actual, 1) {
		present[w] = struct{}{}
	}

	hits := 0
	for _, k := range keys {
		if _, ok := present[k]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(keys))
}
