package extract

import (
	"bytes"
	"context"
	"os"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextExtractor 读取 UTF-8 纯文本文件。
type TextExtractor struct{}

// Extensions 返回支持的扩展名。
func (*TextExtractor) Extensions() []string { return []string{".txt"} }

// Extract 读取文件内容，去掉 BOM，非法 UTF-8 序列替换为 U+FFFD。
func (*TextExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	return strings.ToValidUTF8(string(data), "�"), nil
}
