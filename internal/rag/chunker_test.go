package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter_Validation(t *testing.T) {
	_, err := NewSplitter(0, 0, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, err = NewSplitter(100, -1, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, err = NewSplitter(100, 100, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, err = NewSplitter(100, 150, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	sp, err := NewSplitter(100, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSeparators, sp.Separators)
}

func TestSplit_EmptyInput(t *testing.T) {
	sp, err := NewSplitter(100, 0, nil)
	require.NoError(t, err)

	assert.Empty(t, sp.Split(""))
	assert.Empty(t, sp.Split("   \n\t  "))
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	sp, err := NewSplitter(100, 10, nil)
	require.NoError(t, err)

	chunks := sp.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplit_SentenceSeparator(t *testing.T) {
	sp, err := NewSplitter(4, 0, []string{". "})
	require.NoError(t, err)

	chunks := sp.Split("A. B. C.")
	assert.Equal(t, []string{"A.", "B.", "C."}, chunks)
}

func TestSplit_ParagraphsFirst(t *testing.T) {
	sp, err := NewSplitter(30, 0, nil)
	require.NoError(t, err)

	text := "first paragraph here\n\nsecond paragraph here"
	chunks := sp.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first paragraph here", chunks[0])
	assert.Equal(t, "second paragraph here", chunks[1])
}

func TestSplit_ChunkLengthBound(t *testing.T) {
	sp, err := NewSplitter(50, 10, nil)
	require.NoError(t, err)

	text := strings.Repeat("销售数据表明华东区域第三季度环比增长明显。", 20) +
		"\n\n" + strings.Repeat("the quick brown fox jumps over the lazy dog. ", 30)

	for _, c := range sp.Split(text) {
		assert.LessOrEqual(t, len([]rune(c)), 50, "分块超出预算: %q", c)
	}
}

func TestSplit_NoSeparatorFallsBackToRunes(t *testing.T) {
	sp, err := NewSplitter(10, 0, nil)
	require.NoError(t, err)

	text := strings.Repeat("x", 35)
	chunks := sp.Split(text)
	require.Len(t, chunks, 4)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	assert.Equal(t, strings.Repeat("x", 5), chunks[3])
}

func TestSplit_OverlapCarriedBetweenChunks(t *testing.T) {
	sp, err := NewSplitter(10, 4, []string{""})
	require.NoError(t, err)

	chunks := sp.Split("abcdefghijklmnopqrstuvwxyz")
	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-4:])
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"分块 %d 应以上一分块尾部重叠开头", i)
	}
}

func TestSplit_ZeroOverlapReconstruction(t *testing.T) {
	sp, err := NewSplitter(20, 0, nil)
	require.NoError(t, err)

	text := "Revenue grew in Q3. The east region led growth. Support tickets dropped.\n\nRepeat purchases rose among enterprise customers."
	chunks := sp.Split(text)

	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), "")
	}
	assert.Equal(t, normalize(text), normalize(strings.Join(chunks, "")))
}

func TestSplit_Deterministic(t *testing.T) {
	sp, err := NewSplitter(25, 5, nil)
	require.NoError(t, err)

	text := "Alpha beta gamma delta. Epsilon zeta eta theta. Iota kappa lambda mu."
	first := sp.Split(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, sp.Split(text))
	}
}

func TestSplitDocuments_MetadataInheritance(t *testing.T) {
	sp, err := NewSplitter(10, 0, nil)
	require.NoError(t, err)

	docs := []Document{
		{
			Text:     "first sentence words here. second sentence words here.",
			Metadata: map[string]any{"source": "report.txt"},
		},
	}
	chunks := sp.SplitDocuments(docs)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, "report.txt", c.Metadata["source"])
		assert.Equal(t, i, c.Metadata["chunk_index"])
		assert.Equal(t, len(chunks), c.Metadata["total_chunks"])
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, len(chunks), c.TotalChunks)
		assert.NotEmpty(t, c.ContentHash)
		assert.Greater(t, c.TokenCount, 0)
	}

	// 父文档元数据不被污染
	assert.Len(t, docs[0].Metadata, 1)
}

func TestSplitDocuments_EmptyDocProducesNoChunks(t *testing.T) {
	sp, err := NewSplitter(100, 0, nil)
	require.NoError(t, err)

	chunks := sp.SplitDocuments([]Document{{Text: "  "}, {Text: ""}})
	assert.Empty(t, chunks)
}
