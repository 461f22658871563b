package rag

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultSeparators 默认分隔符级联, 按优先级排列。
// 末尾的空字符串表示按字符强制切分, 保证任意输入都能终止。
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter 递归分隔符级联分块器。
// 依次尝试最高优先级的分隔符, 切出的片段若仍超出预算,
// 则用下一级分隔符递归切分; 空字符串分隔符为兜底。
type Splitter struct {
	ChunkSize    int      // 每个分块的字符数上限（软上限, 尊重分隔符边界）
	ChunkOverlap int      // 相邻分块之间重叠的字符数
	Separators   []string // 按优先级排列的分隔符列表
}

// NewSplitter 创建分块器
// 约束: chunkSize > 0 且 0 <= chunkOverlap < chunkSize
func NewSplitter(chunkSize, chunkOverlap int, separators []string) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, NewConfigError("chunker", fmt.Sprintf("chunk_size 必须为正数, 实际 %d", chunkSize))
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, NewConfigError("chunker",
			fmt.Sprintf("chunk_overlap 必须满足 0 <= overlap < chunk_size, 实际 overlap=%d size=%d", chunkOverlap, chunkSize))
	}

	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	// 保证空字符串兜底分隔符存在, 否则超长无分隔文本无法终止
	if separators[len(separators)-1] != "" {
		separators = append(append([]string{}, separators...), "")
	}

	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separators:   separators,
	}, nil
}

// Split 将文本切分为有序分块。对相同输入输出确定。
// 空文本返回空序列。
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	raw := s.splitRecursive(text, s.Separators)

	// 去除分块两端空白, 丢弃纯空白分块
	chunks := make([]string, 0, len(raw))
	for _, c := range raw {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

// splitRecursive 按分隔符级联递归切分
func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if runeLen(text) <= s.ChunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		// 字符级兜底切分
		return s.splitByRunes(text)
	}

	// 分隔符保留在前一片段末尾, 重组时不丢失字符
	parts := strings.SplitAfter(text, sep)

	var out []string
	var pending []string // 预算内的片段, 等待贪心合并
	for _, part := range parts {
		if runeLen(part) <= s.ChunkSize {
			pending = append(pending, part)
			continue
		}
		// 超预算片段: 先合并之前累积的片段, 再用下一级分隔符递归
		out = s.mergeParts(out, pending)
		pending = nil
		out = append(out, s.splitRecursive(part, rest)...)
	}
	return s.mergeParts(out, pending)
}

// mergeParts 贪心合并预算内的片段, 分块之间携带重叠
func (s *Splitter) mergeParts(out []string, parts []string) []string {
	if len(parts) == 0 {
		return out
	}

	cur := ""
	for _, p := range parts {
		if cur != "" && runeLen(cur)+runeLen(p) > s.ChunkSize {
			out = append(out, cur)

			// 新分块以上一分块的尾部重叠开头; 放不下时舍弃重叠
			cur = s.overlapTail(cur)
			if cur != "" && runeLen(cur)+runeLen(p) > s.ChunkSize {
				cur = ""
			}
		}
		cur += p
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// overlapTail 取文本末尾的重叠部分
func (s *Splitter) overlapTail(text string) string {
	if s.ChunkOverlap == 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= s.ChunkOverlap {
		return ""
	}
	return string(runes[len(runes)-s.ChunkOverlap:])
}

// splitByRunes 按固定字符窗口切分, 保证对无分隔符长文本终止
func (s *Splitter) splitByRunes(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.ChunkOverlap

	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// SplitDocuments 批量分块, 保留并增补各文档的元数据。
// 每个分块的元数据继承父文档并追加 chunk_index / total_chunks,
// 输出为按文档顺序展平的分块序列, 可直接嵌入与入库。
func (s *Splitter) SplitDocuments(docs []Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		texts := s.Split(doc.Text)
		for i, text := range texts {
			metadata := make(map[string]any, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["chunk_index"] = i
			metadata["total_chunks"] = len(texts)

			chunks = append(chunks, Chunk{
				Text:        text,
				Metadata:    metadata,
				ChunkIndex:  i,
				TotalChunks: len(texts),
				ContentHash: hashContent(text),
				TokenCount:  countTokens(text),
			})
		}
	}
	return chunks
}

// pickSeparator 返回文本中出现的最高优先级分隔符及其后续级联
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

func runeLen(s string) int {
	return len([]rune(s))
}

// hashContent 计算内容哈希
func hashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}

var (
	tokenEncOnce sync.Once
	tokenEnc     *tiktoken.Tiktoken
)

// countTokens 估算 Token 数量
// 编码器不可用时退回按单词数估算
func countTokens(text string) int {
	tokenEncOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEnc = enc
		}
	})
	if tokenEnc != nil {
		return len(tokenEnc.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}
