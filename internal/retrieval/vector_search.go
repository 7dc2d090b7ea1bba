package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-search-go/internal/constants"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/storage"
	"resume-search-go/internal/tracing"
	"resume-search-go/internal/types"
)

// VectorSearcher 外部向量检索能力（文本查询到打分简历）
type VectorSearcher interface {
	SearchWithScores(ctx context.Context, query string, topK int) ([]storage.ScoredResume, error)
}

// VectorSearchEngine 语义向量检索引擎
type VectorSearchEngine struct {
	vectorStore VectorSearcher
}

// NewVectorSearchEngine 创建向量检索引擎
func NewVectorSearchEngine(vectorStore VectorSearcher) *VectorSearchEngine {
	return &VectorSearchEngine{vectorStore: vectorStore}
}

// Search 执行向量检索。外部索引已按相似度降序返回，保持其顺序。
func (e *VectorSearchEngine) Search(ctx context.Context, query string, topK int, metadata types.SearchMetadata) ([]types.SearchResultItem, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("vector search: %w", ErrEmptyQuery)
	}

	hits, err := e.vectorStore.SearchWithScores(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]types.SearchResultItem, 0, len(hits))
	for _, hit := range hits {
		results = append(results, types.SearchResultItem{
			FileName:    hit.Record.FileName,
			Email:       hit.Record.Email,
			PhoneNumber: hit.Record.PhoneNumber,
			Snippet:     truncateContent(hit.Record.FullContent, constants.SnippetMaxLength),
			FullContent: hit.Record.FullContent,
			// 索引声称返回[0,1]的余弦相似度，但不做保证，防御性收敛
			Score:     clampScore(hit.Score),
			MatchType: types.MatchTypeVector,
		})
	}

	logger.Debug().
		Str("trace_id", metadata.TraceID).
		Str("query", tracing.SafeQuery(query)).
		Int("returned", len(results)).
		Dur("duration", time.Since(start)).
		Msg("向量检索完成")
	return results, nil
}

// truncateContent 截取内容前maxLength个字符，截断时追加省略号
func truncateContent(content string, maxLength int) string {
	runes := []rune(content)
	if len(runes) <= maxLength {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(string(runes[:maxLength])) + "..."
}
