// Package parsers 文档内容解析, 把上传文件转成纯文本
package parsers

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Parser 单一格式的文档解析器
type Parser interface {
	// Parse 从原始字节提取纯文本
	Parse(data []byte) (string, error)

	// Supports 判断是否支持给定扩展名 (含点, 小写)
	Supports(ext string) bool
}

// Registry 按扩展名分发的解析器注册表
type Registry struct {
	parsers []Parser
}

// NewRegistry 创建带默认解析器的注册表
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewTextParser(),
			NewHTMLParser(),
			NewPDFParser(),
		},
	}
}

// Parse 根据文件名选择解析器并提取文本
func (r *Registry) Parse(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, p := range r.parsers {
		if p.Supports(ext) {
			return p.Parse(data)
		}
	}
	return "", fmt.Errorf("不支持的文件类型: %s", ext)
}

// Supported 判断文件名对应的格式是否可解析
func (r *Registry) Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, p := range r.parsers {
		if p.Supports(ext) {
			return true
		}
	}
	return false
}
