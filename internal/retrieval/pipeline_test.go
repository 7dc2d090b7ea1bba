package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-search-go/internal/storage"
	"resume-search-go/internal/types"
)

func newTestPipeline(t *testing.T, store *fakeDocumentStore, vectorStore *fakeVectorStore, opts ...PipelineOption) *Pipeline {
	t.Helper()
	p, err := NewPipeline(store, vectorStore, defaultWeights(), opts...)
	require.NoError(t, err)
	return p
}

func TestPipelineDispatch(t *testing.T) {
	store := &fakeDocumentStore{records: []types.ResumeRecord{
		{FileName: "a.pdf", FullContent: "golang工程师"},
	}}
	vectorStore := &fakeVectorStore{hits: []storage.ScoredResume{
		{Record: types.ResumeRecord{FileName: "b.pdf", FullContent: "后端开发"}, Score: 0.9},
	}}
	p := newTestPipeline(t, store, vectorStore)

	t.Run("keyword", func(t *testing.T) {
		results, err := p.Search(context.Background(), "golang", types.SearchTypeKeyword, 5, "t1")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, types.MatchTypeKeyword, results[0].MatchType)
	})

	t.Run("vector", func(t *testing.T) {
		results, err := p.Search(context.Background(), "golang", types.SearchTypeVector, 5, "t1")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, types.MatchTypeVector, results[0].MatchType)
	})

	t.Run("hybrid", func(t *testing.T) {
		results, err := p.Search(context.Background(), "golang", types.SearchTypeHybrid, 5, "t1")
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, types.MatchTypeHybrid, r.MatchType)
		}
	})

	t.Run("未知策略", func(t *testing.T) {
		_, err := p.Search(context.Background(), "golang", types.SearchType("fuzzy"), 5, "t1")
		assert.ErrorIs(t, err, ErrInvalidSearchType)
	})
}

func TestPipelineValidation(t *testing.T) {
	p := newTestPipeline(t, &fakeDocumentStore{}, &fakeVectorStore{})

	_, err := p.Search(context.Background(), "  ", types.SearchTypeKeyword, 5, "t1")
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = p.Search(context.Background(), "golang", types.SearchTypeKeyword, 0, "t1")
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestPipelineNotInitialized(t *testing.T) {
	var p *Pipeline
	assert.False(t, p.IsReady())

	_, err := p.Search(context.Background(), "golang", types.SearchTypeKeyword, 5, "t1")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestPipelineConstructorRejectsNilDeps(t *testing.T) {
	_, err := NewPipeline(nil, &fakeVectorStore{}, defaultWeights())
	assert.Error(t, err)

	_, err = NewPipeline(&fakeDocumentStore{}, nil, defaultWeights())
	assert.Error(t, err)
}

func TestPipelineRerankOverfetchAndTruncate(t *testing.T) {
	store := &fakeDocumentStore{}
	vectorStore := &fakeVectorStore{hits: []storage.ScoredResume{
		{Record: types.ResumeRecord{FileName: "a.pdf"}, Score: 0.9},
		{Record: types.ResumeRecord{FileName: "b.pdf"}, Score: 0.8},
		{Record: types.ResumeRecord{FileName: "c.pdf"}, Score: 0.7},
	}}
	// 模型不可用时重排序透传，结果仍要截断到topK
	reranker := NewLLMReranker(&mockChatModel{err: assert.AnError}, 0)
	p := newTestPipeline(t, store, vectorStore, WithReranker(reranker, 3))

	results, analysis, err := p.SearchWithAnalysis(context.Background(), "golang", types.SearchTypeHybrid, 2, "t1")
	require.NoError(t, err)

	// 重排序前按topK*3=6过量取数，关键词引擎内部再翻倍
	assert.Equal(t, 12, store.lastLimit)
	assert.Len(t, results, 2)
	require.NotNil(t, analysis)
	assert.NotEmpty(t, analysis.Summary)
}

func TestPipelineRerankSkippedForKeywordSearch(t *testing.T) {
	store := &fakeDocumentStore{records: []types.ResumeRecord{
		{FileName: "a.pdf", FullContent: "golang"},
	}}
	llm := &mockChatModel{response: "不应被调用"}
	reranker := NewLLMReranker(llm, 0)
	p := newTestPipeline(t, store, &fakeVectorStore{}, WithReranker(reranker, 3))

	results, analysis, err := p.SearchWithAnalysis(context.Background(), "golang", types.SearchTypeKeyword, 5, "t1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.MatchTypeKeyword, results[0].MatchType)
	assert.Nil(t, analysis)
	assert.Equal(t, 0, llm.calls)
}

func TestPipelineWeightForwarding(t *testing.T) {
	p := newTestPipeline(t, &fakeDocumentStore{}, &fakeVectorStore{})

	require.NoError(t, p.UpdateHybridWeights(0.4, 0.6))
	weights := p.GetHybridWeights()
	assert.Equal(t, 0.4, weights.VectorWeight)
	assert.Equal(t, 0.6, weights.KeywordWeight)

	assert.ErrorIs(t, p.UpdateHybridWeights(-1, 0.5), ErrInvalidWeights)
}
