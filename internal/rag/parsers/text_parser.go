package parsers

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextParser 纯文本与 Markdown 解析器
type TextParser struct{}

// NewTextParser 创建纯文本解析器
func NewTextParser() *TextParser { return &TextParser{} }

// Supports 支持 .txt / .md / .markdown
func (p *TextParser) Supports(ext string) bool {
	switch ext {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// Parse 校验编码后原样返回文本
func (p *TextParser) Parse(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("文件不是合法的 UTF-8 文本")
	}
	return strings.TrimSpace(string(data)), nil
}
