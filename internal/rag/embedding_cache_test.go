package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddings 测试用嵌入提供商, 向量由文本长度决定, 记录调用次数
type fakeEmbeddings struct {
	model      string
	batchCalls int
	embedded   []string
	failWith   error
}

func newFakeEmbeddings() *fakeEmbeddings {
	return &fakeEmbeddings{model: "fake-embed-v1"}
}

func (f *fakeEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbeddings) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		f.embedded = append(f.embedded, t)
		vectors[i] = []float32{float32(len(t)), 1, 0}
	}
	return vectors, nil
}

func (f *fakeEmbeddings) Model() string        { return f.model }
func (f *fakeEmbeddings) ProviderName() string { return "fake" }

func TestEmbeddingCache_HitSkipsProvider(t *testing.T) {
	fake := newFakeEmbeddings()
	cache := NewEmbeddingCache(fake, nil, "test:embed", 0)
	ctx := context.Background()

	first, err := cache.Embed(ctx, "east region revenue")
	require.NoError(t, err)
	require.Equal(t, 1, fake.batchCalls)

	second, err := cache.Embed(ctx, "east region revenue")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.batchCalls, "命中缓存后不应再调用提供商")
}

func TestEmbeddingCache_BatchOnlyEmbedsMisses(t *testing.T) {
	fake := newFakeEmbeddings()
	cache := NewEmbeddingCache(fake, nil, "test:embed", 0)
	ctx := context.Background()

	_, err := cache.Embed(ctx, "alpha")
	require.NoError(t, err)

	vectors, err := cache.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, fake.embedded)
	assert.Equal(t, 2, fake.batchCalls)

	// 向量按输入顺序对齐
	assert.Equal(t, float32(5), vectors[0][0])
	assert.Equal(t, float32(4), vectors[1][0])
	assert.Equal(t, float32(5), vectors[2][0])
}

func TestEmbeddingCache_ProviderErrorPropagates(t *testing.T) {
	fake := newFakeEmbeddings()
	fake.failWith = NewProviderError("fake", fmt.Errorf("boom"))
	cache := NewEmbeddingCache(fake, nil, "test:embed", 0)

	_, err := cache.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
}

func TestEmbeddingCache_EmptyBatch(t *testing.T) {
	fake := newFakeEmbeddings()
	cache := NewEmbeddingCache(fake, nil, "test:embed", 0)

	vectors, err := cache.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, fake.batchCalls)
}
