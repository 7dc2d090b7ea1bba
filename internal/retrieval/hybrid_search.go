package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"resume-search-go/internal/logger"
	"resume-search-go/internal/types"
)

// Engine 单一策略的检索引擎
type Engine interface {
	Search(ctx context.Context, query string, topK int, metadata types.SearchMetadata) ([]types.SearchResultItem, error)
}

// HybridSearchEngine 并发执行向量与关键词检索，按加权和融合得分。
// 权重可在运行期整体更新，读写受锁保护。
type HybridSearchEngine struct {
	vectorEngine  Engine
	keywordEngine Engine

	mu      sync.RWMutex
	weights types.HybridSearchConfig
}

// NewHybridSearchEngine 创建混合检索引擎
func NewHybridSearchEngine(vectorEngine, keywordEngine Engine, weights types.HybridSearchConfig) *HybridSearchEngine {
	return &HybridSearchEngine{
		vectorEngine:  vectorEngine,
		keywordEngine: keywordEngine,
		weights:       weights,
	}
}

// UpdateWeights 原子替换向量/关键词权重对。权重不要求归一化，但不能为负。
func (e *HybridSearchEngine) UpdateWeights(vectorWeight, keywordWeight float64) error {
	if vectorWeight < 0 || keywordWeight < 0 {
		return fmt.Errorf("%w: vector=%.2f keyword=%.2f", ErrInvalidWeights, vectorWeight, keywordWeight)
	}

	e.mu.Lock()
	e.weights = types.HybridSearchConfig{
		VectorWeight:  vectorWeight,
		KeywordWeight: keywordWeight,
	}
	e.mu.Unlock()

	logger.Info().
		Float64("vector_weight", vectorWeight).
		Float64("keyword_weight", keywordWeight).
		Msg("混合检索权重已更新")
	return nil
}

// GetWeights 返回当前权重对的快照
func (e *HybridSearchEngine) GetWeights() types.HybridSearchConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights
}

// Search 并发执行两路子检索并融合。任一子检索失败则整体失败，不做静默降级。
func (e *HybridSearchEngine) Search(ctx context.Context, query string, topK int, metadata types.SearchMetadata) ([]types.SearchResultItem, error) {
	start := time.Now()
	weights := e.GetWeights()

	var (
		wg             sync.WaitGroup
		vectorResults  []types.SearchResultItem
		keywordResults []types.SearchResultItem
		vectorErr      error
		keywordErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = e.vectorEngine.Search(ctx, query, topK, metadata)
	}()
	go func() {
		defer wg.Done()
		keywordResults, keywordErr = e.keywordEngine.Search(ctx, query, topK, metadata)
	}()
	wg.Wait()

	if vectorErr != nil {
		return nil, fmt.Errorf("hybrid search: 向量子检索失败: %w", vectorErr)
	}
	if keywordErr != nil {
		return nil, fmt.Errorf("hybrid search: 关键词子检索失败: %w", keywordErr)
	}

	// 以文件名为主键求并集，缺席的一路按0分参与融合
	type scorePair struct {
		item         types.SearchResultItem
		vectorScore  float64
		keywordScore float64
	}
	merged := make(map[string]*scorePair, len(vectorResults)+len(keywordResults))
	order := make([]string, 0, len(vectorResults)+len(keywordResults))

	for _, item := range vectorResults {
		merged[item.FileName] = &scorePair{item: item, vectorScore: item.Score}
		order = append(order, item.FileName)
	}
	for _, item := range keywordResults {
		if pair, ok := merged[item.FileName]; ok {
			pair.keywordScore = item.Score
			continue
		}
		merged[item.FileName] = &scorePair{item: item, keywordScore: item.Score}
		order = append(order, item.FileName)
	}

	results := make([]types.SearchResultItem, 0, len(merged))
	for _, fileName := range order {
		pair := merged[fileName]
		fused := pair.item
		// 权重不要求归一化，加权和可能越界，收敛到[0,1]
		fused.Score = clampScore(weights.VectorWeight*pair.vectorScore + weights.KeywordWeight*pair.keywordScore)
		fused.MatchType = types.MatchTypeHybrid
		results = append(results, fused)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	logger.Debug().
		Str("trace_id", metadata.TraceID).
		Int("vector_hits", len(vectorResults)).
		Int("keyword_hits", len(keywordResults)).
		Int("returned", len(results)).
		Float64("vector_weight", weights.VectorWeight).
		Float64("keyword_weight", weights.KeywordWeight).
		Dur("duration", time.Since(start)).
		Msg("混合检索完成")
	return results, nil
}
