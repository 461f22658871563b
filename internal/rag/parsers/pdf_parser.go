package parsers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
)

// PDFParser PDF 文档解析器, 逐页提取文本
type PDFParser struct{}

// NewPDFParser 创建 PDF 解析器
func NewPDFParser() *PDFParser { return &PDFParser{} }

// Supports 支持 .pdf
func (p *PDFParser) Supports(ext string) bool {
	return ext == ".pdf"
}

// Parse 提取所有页面的文本, 页与页之间用空行分隔
func (p *PDFParser) Parse(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("提取第 %d 页文本失败: %w", i, err)
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("PDF 中没有可提取的文本")
	}
	return strings.Join(pages, "\n\n"), nil
}
