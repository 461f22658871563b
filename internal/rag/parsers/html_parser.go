package parsers

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlScriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	htmlBlockRe  = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|tr|section|article|blockquote)>|<br\s*/?>`)
	htmlTagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spacesRe     = regexp.MustCompile(`[ \t]+`)
)

// HTMLParser HTML 文档解析器, 去标签保留块级换行
type HTMLParser struct{}

// NewHTMLParser 创建 HTML 解析器
func NewHTMLParser() *HTMLParser { return &HTMLParser{} }

// Supports 支持 .html / .htm
func (p *HTMLParser) Supports(ext string) bool {
	return ext == ".html" || ext == ".htm"
}

// Parse 剥离脚本和标签, 块级元素边界转换行
func (p *HTMLParser) Parse(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("文件不是合法的 UTF-8 文本")
	}

	text := string(data)
	text = htmlScriptRe.ReplaceAllString(text, " ")
	text = htmlBlockRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)

	// 规整空白: 行内空格折叠, 连续空行收敛为段落分隔
	text = spacesRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
