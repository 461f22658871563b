package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex 测试用向量索引, 返回预先设置的检索结果
type fakeIndex struct {
	results  []RetrievalResult
	metric   string
	queryErr error

	gotText   string
	gotTopK   int
	gotFilter map[string]any
}

func newFakeIndex(results ...RetrievalResult) *fakeIndex {
	return &fakeIndex{results: results, metric: DistanceCosine}
}

func (f *fakeIndex) Upsert(context.Context, []Record) error { return nil }

func (f *fakeIndex) Query(_ context.Context, text string, topK int, filter map[string]any) ([]RetrievalResult, error) {
	f.gotText, f.gotTopK, f.gotFilter = text, topK, filter
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.results) > topK {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func (f *fakeIndex) Delete(context.Context, []string) error             { return nil }
func (f *fakeIndex) DeleteByFilter(context.Context, map[string]any) error { return nil }
func (f *fakeIndex) Clear(context.Context) error                        { return nil }
func (f *fakeIndex) Stats(context.Context) (*CollectionStats, error) {
	return &CollectionStats{Name: "fake", Count: int64(len(f.results))}, nil
}
func (f *fakeIndex) DistanceMetric() string { return f.metric }

func result(text, source string, distance float64) RetrievalResult {
	return RetrievalResult{
		Text:     text,
		Metadata: map[string]any{"source": source},
		Distance: distance,
	}
}

func TestNewRetriever_RejectsNonCosineIndex(t *testing.T) {
	idx := newFakeIndex()
	idx.metric = "euclid"

	_, err := NewRetriever(idx, RetrieverConfig{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestNewRetriever_Defaults(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, r.cfg.DefaultTopK)
	assert.Equal(t, MaxTopK, r.cfg.MaxTopK)
	assert.Equal(t, DefaultScoreThreshold, r.cfg.DefaultScoreThreshold)
	assert.Equal(t, DefaultMaxContextLen, r.cfg.MaxContextLength)
}

func TestRetrieve_ThresholdFiltersByScore(t *testing.T) {
	idx := newFakeIndex(
		result("best match", "a.txt", 0.1),
		result("middling", "b.txt", 0.5),
		result("barely related", "c.txt", 0.9),
	)
	r, err := NewRetriever(idx, RetrieverConfig{})
	require.NoError(t, err)

	threshold := 0.6
	chunks, err := r.Retrieve(context.Background(), "quarterly revenue", RetrieveOptions{
		ScoreThreshold: &threshold,
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "best match", chunks[0].Text)
	assert.InDelta(t, 0.9, chunks[0].Score, 1e-9)
}

func TestRetrieve_PreservesRankOrder(t *testing.T) {
	idx := newFakeIndex(
		result("first", "a.txt", 0.05),
		result("second", "a.txt", 0.2),
		result("third", "b.txt", 0.4),
	)
	r, err := NewRetriever(idx, RetrieverConfig{})
	require.NoError(t, err)

	chunks, err := r.Retrieve(context.Background(), "anything", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "first", chunks[0].Text)
	assert.Equal(t, "second", chunks[1].Text)
	assert.Equal(t, "third", chunks[2].Text)
}

func TestRetrieve_TopKValidation(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{MaxTopK: 10})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.Retrieve(ctx, "q", RetrieveOptions{TopK: -1})
	assert.True(t, IsValidationError(err))

	_, err = r.Retrieve(ctx, "q", RetrieveOptions{TopK: 11})
	assert.True(t, IsValidationError(err))

	_, err = r.Retrieve(ctx, "q", RetrieveOptions{TopK: 10})
	assert.NoError(t, err)
}

func TestRetrieve_ThresholdValidation(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	for _, bad := range []float64{-0.1, 1.5} {
		v := bad
		_, err := r.Retrieve(ctx, "q", RetrieveOptions{ScoreThreshold: &v})
		assert.True(t, IsValidationError(err), "阈值 %v 应校验失败", bad)
	}

	edge := 0.0
	_, err = r.Retrieve(ctx, "q", RetrieveOptions{ScoreThreshold: &edge})
	assert.NoError(t, err)
}

func TestRetrieve_DefaultTopKUsedWhenZero(t *testing.T) {
	idx := newFakeIndex()
	r, err := NewRetriever(idx, RetrieverConfig{DefaultTopK: 3, MaxTopK: 10})
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q", RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.gotTopK)
}

func TestRetrieve_EmptyResultIsValid(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{})
	require.NoError(t, err)

	chunks, err := r.Retrieve(context.Background(), "q", RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRetrieve_FilterPassedThrough(t *testing.T) {
	idx := newFakeIndex()
	r, err := NewRetriever(idx, RetrieverConfig{})
	require.NoError(t, err)

	filter := map[string]any{"source": "report.txt"}
	_, err = r.Retrieve(context.Background(), "q", RetrieveOptions{Filter: filter})
	require.NoError(t, err)
	assert.Equal(t, filter, idx.gotFilter)
}

func TestBuildContext_FormatsBlocks(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{MaxContextLength: 1000})
	require.NoError(t, err)

	chunks := []ScoredChunk{
		{Text: "revenue grew", Metadata: map[string]any{"source": "report.txt"}, Score: 0.9},
		{Text: "tickets dropped", Metadata: map[string]any{"source": "support.md"}, Score: 0.7},
	}
	context, sources := r.BuildContext(chunks)

	expected := "[Source: report.txt]\nrevenue grew\n" +
		"\n---\n" +
		"[Source: support.md]\ntickets dropped\n"
	assert.Equal(t, expected, context)
	assert.Equal(t, []string{"report.txt", "support.md"}, sources)
}

func TestBuildContext_WholeBlocksOnly(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{MaxContextLength: 60})
	require.NoError(t, err)

	chunks := []ScoredChunk{
		{Text: "short block", Metadata: map[string]any{"source": "a.txt"}, Score: 0.9},
		{Text: strings.Repeat("x", 100), Metadata: map[string]any{"source": "b.txt"}, Score: 0.8},
		{Text: "would fit alone", Metadata: map[string]any{"source": "c.txt"}, Score: 0.7},
	}
	context, sources := r.BuildContext(chunks)

	// 第二块装不下即停止, 不截断也不跳过后继续
	assert.Contains(t, context, "short block")
	assert.NotContains(t, context, "xxx")
	assert.NotContains(t, context, "would fit alone")
	assert.Equal(t, []string{"a.txt"}, sources)
	assert.LessOrEqual(t, len([]rune(context)), 60)
}

func TestBuildContext_BudgetCountsSeparator(t *testing.T) {
	block := "[Source: a.txt]\nabc\n"
	budget := len(block)*2 + 2 // 两个块装得下, 但加上分隔线超出

	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{MaxContextLength: budget})
	require.NoError(t, err)

	chunks := []ScoredChunk{
		{Text: "abc", Metadata: map[string]any{"source": "a.txt"}, Score: 0.9},
		{Text: "abc", Metadata: map[string]any{"source": "a.txt"}, Score: 0.8},
	}
	context, _ := r.BuildContext(chunks)
	assert.Equal(t, block, context)
}

func TestBuildContext_DeduplicatesSources(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{MaxContextLength: 1000})
	require.NoError(t, err)

	chunks := []ScoredChunk{
		{Text: "one", Metadata: map[string]any{"source": "report.txt"}, Score: 0.9},
		{Text: "two", Metadata: map[string]any{"source": "report.txt"}, Score: 0.8},
		{Text: "three", Metadata: nil, Score: 0.7},
	}
	_, sources := r.BuildContext(chunks)
	assert.Equal(t, []string{"report.txt", "unknown"}, sources)
}

func TestBuildContext_Empty(t *testing.T) {
	r, err := NewRetriever(newFakeIndex(), RetrieverConfig{})
	require.NoError(t, err)

	context, sources := r.BuildContext(nil)
	assert.Empty(t, context)
	assert.Empty(t, sources)
}
