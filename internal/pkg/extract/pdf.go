package extract

import (
	"context"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor 逐页提取 PDF 文本，无法解析的页面被跳过。
type PDFExtractor struct{}

// Extensions 返回支持的扩展名。
func (*PDFExtractor) Extensions() []string { return []string{".pdf"} }

// Extract 提取 PDF 文本，页面之间以换行分隔。
func (*PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", err
	}

	var content strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		content.WriteString(text)
		content.WriteString("\n")
	}
	return content.String(), nil
}
