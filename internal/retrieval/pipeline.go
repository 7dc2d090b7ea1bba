package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-search-go/internal/constants"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/tracing"
	"resume-search-go/internal/types"
)

var pipelineTracer = otel.Tracer("retrieval-pipeline")

// Pipeline 检索编排器：按策略分发到具体引擎，可选接入LLM重排序。
type Pipeline struct {
	keywordEngine *KeywordSearchEngine
	vectorEngine  *VectorSearchEngine
	hybridEngine  *HybridSearchEngine

	reranker        *LLMReranker
	rerankOverfetch int

	initialized bool
}

// PipelineOption Pipeline的可选配置
type PipelineOption func(*Pipeline)

// WithReranker 在混合检索之后接入LLM重排序。
// overfetchFactor决定重排序前多取多少候选，<=0时使用默认值。
func WithReranker(reranker *LLMReranker, overfetchFactor int) PipelineOption {
	return func(p *Pipeline) {
		if overfetchFactor <= 0 {
			overfetchFactor = constants.RerankOverfetchFactor
		}
		p.reranker = reranker
		p.rerankOverfetch = overfetchFactor
	}
}

// NewPipeline 创建检索编排器
func NewPipeline(store DocumentStore, vectorStore VectorSearcher, weights types.HybridSearchConfig, opts ...PipelineOption) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("文档存储不能为空")
	}
	if vectorStore == nil {
		return nil, fmt.Errorf("向量存储不能为空")
	}

	keywordEngine := NewKeywordSearchEngine(store)
	vectorEngine := NewVectorSearchEngine(vectorStore)

	p := &Pipeline{
		keywordEngine: keywordEngine,
		vectorEngine:  vectorEngine,
		hybridEngine:  NewHybridSearchEngine(vectorEngine, keywordEngine, weights),
		initialized:   true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// IsReady 返回管线是否完成初始化
func (p *Pipeline) IsReady() bool {
	return p != nil && p.initialized
}

// Search 按策略执行一次检索，返回按得分降序的前topK条结果
func (p *Pipeline) Search(ctx context.Context, query string, searchType types.SearchType, topK int, traceID string) ([]types.SearchResultItem, error) {
	results, _, err := p.SearchWithAnalysis(ctx, query, searchType, topK, traceID)
	return results, err
}

// SearchWithAnalysis 同Search，但在启用重排序时额外返回LLM的分析结论
func (p *Pipeline) SearchWithAnalysis(ctx context.Context, query string, searchType types.SearchType, topK int, traceID string) ([]types.SearchResultItem, *types.RerankAnalysis, error) {
	if !p.IsReady() {
		return nil, nil, ErrNotInitialized
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidTopK, topK)
	}

	ctx, span := pipelineTracer.Start(ctx, "Pipeline.Search",
		trace.WithAttributes(
			attribute.String("search.type", string(searchType)),
			attribute.Int("search.top_k", topK),
			attribute.String("search.trace_id", traceID),
		))
	defer span.End()

	start := time.Now()
	metadata := types.SearchMetadata{
		TraceID:    traceID,
		StartTime:  start,
		SearchType: searchType,
	}

	// 重排序需要更大的候选池，先多取再截断
	fetchK := topK
	rerankActive := p.reranker != nil && searchType != types.SearchTypeKeyword
	if rerankActive {
		fetchK = topK * p.rerankOverfetch
	}

	var (
		results []types.SearchResultItem
		err     error
	)
	switch searchType {
	case types.SearchTypeKeyword:
		results, err = p.keywordEngine.Search(ctx, query, fetchK, metadata)
	case types.SearchTypeVector:
		results, err = p.vectorEngine.Search(ctx, query, fetchK, metadata)
	case types.SearchTypeHybrid:
		results, err = p.hybridEngine.Search(ctx, query, fetchK, metadata)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidSearchType, searchType)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, nil, err
	}

	var analysis *types.RerankAnalysis
	if rerankActive {
		rr := p.reranker.RerankAndFilter(ctx, query, results, traceID)
		results = rr.Results
		analysis = &rr.Analysis
	}
	if len(results) > topK {
		results = results[:topK]
	}

	logger.Info().
		Str("trace_id", traceID).
		Str("search_type", string(searchType)).
		Int("top_k", topK).
		Int("returned", len(results)).
		Bool("reranked", rerankActive).
		Dur("duration", time.Since(start)).
		Msg("检索完成")
	return results, analysis, nil
}

// UpdateHybridWeights 更新混合检索权重
func (p *Pipeline) UpdateHybridWeights(vectorWeight, keywordWeight float64) error {
	if !p.IsReady() {
		return ErrNotInitialized
	}
	return p.hybridEngine.UpdateWeights(vectorWeight, keywordWeight)
}

// GetHybridWeights 返回当前混合检索权重
func (p *Pipeline) GetHybridWeights() types.HybridSearchConfig {
	return p.hybridEngine.GetWeights()
}
