package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"resume-search-go/internal/constants"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/tracing"
	"resume-search-go/internal/types"
)

// 关键词计分的字段权重：文件名命中比正文命中更能说明相关性
const (
	contentMatchWeight  = 1.0
	fileNameMatchWeight = 2.0
	emailMatchWeight    = 1.5
)

// DocumentStore 关键词检索的数据源
type DocumentStore interface {
	// FindResumesByTokens 返回内容、文件名或邮箱包含任一token的简历，最多limit条
	FindResumesByTokens(ctx context.Context, tokens []string, limit int) ([]types.ResumeRecord, error)
}

// KeywordSearchEngine 基于词频加权的关键词检索引擎
type KeywordSearchEngine struct {
	store DocumentStore
}

// NewKeywordSearchEngine 创建关键词检索引擎
func NewKeywordSearchEngine(store DocumentStore) *KeywordSearchEngine {
	return &KeywordSearchEngine{store: store}
}

// Search 执行关键词检索，返回按得分降序的前topK条结果
func (e *KeywordSearchEngine) Search(ctx context.Context, query string, topK int, metadata types.SearchMetadata) ([]types.SearchResultItem, error) {
	start := time.Now()

	tokens := strings.Fields(strings.TrimSpace(query))
	if len(tokens) == 0 {
		return nil, fmt.Errorf("keyword search: %w", ErrEmptyQuery)
	}

	pattern, err := buildTokenPattern(tokens)
	if err != nil {
		return nil, fmt.Errorf("keyword search: 构建匹配模式失败: %w", err)
	}

	// 候选按得分重排后顺序会变，多取一倍再截断
	fetchLimit := topK * constants.KeywordOverfetchFactor
	records, err := e.store.FindResumesByTokens(ctx, tokens, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: 查询候选失败: %w", err)
	}

	results := make([]types.SearchResultItem, 0, len(records))
	for _, rec := range records {
		contentMatches := len(pattern.FindAllStringIndex(rec.FullContent, -1))
		fileNameMatches := len(pattern.FindAllStringIndex(rec.FileName, -1))
		emailMatches := len(pattern.FindAllStringIndex(rec.Email, -1))

		weighted := float64(contentMatches)*contentMatchWeight +
			float64(fileNameMatches)*fileNameMatchWeight +
			float64(emailMatches)*emailMatchWeight
		score := clampScore(weighted / constants.KeywordScoreSaturation)

		results = append(results, types.SearchResultItem{
			FileName:    rec.FileName,
			Email:       rec.Email,
			PhoneNumber: rec.PhoneNumber,
			Snippet:     extractSnippet(rec.FullContent, pattern),
			FullContent: rec.FullContent,
			Score:       score,
			MatchType:   types.MatchTypeKeyword,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	logger.Debug().
		Str("trace_id", metadata.TraceID).
		Str("query", tracing.SafeQuery(query)).
		Int("candidates", len(records)).
		Int("returned", len(results)).
		Dur("duration", time.Since(start)).
		Msg("关键词检索完成")
	return results, nil
}

// buildTokenPattern 把查询token编译为大小写不敏感的选择模式
func buildTokenPattern(tokens []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, regexp.QuoteMeta(tok))
	}
	return regexp.Compile("(?i)(" + strings.Join(quoted, "|") + ")")
}

// extractSnippet 以首个命中token为中心截取约200字符的摘要，截断处加省略号；
// 无命中时退化为开头200字符。
func extractSnippet(content string, pattern *regexp.Regexp) string {
	if content == "" {
		return ""
	}

	runes := []rune(content)

	// 用编译好的模式在原文上定位，避免ToLower改变部分Unicode字符的字节长度导致偏移错位
	position := -1
	if loc := pattern.FindStringIndex(content); loc != nil {
		position = len([]rune(content[:loc[0]])) // 字节偏移转rune偏移
	}

	if position == -1 {
		if len(runes) <= constants.SnippetMaxLength {
			return strings.TrimSpace(content)
		}
		return strings.TrimSpace(string(runes[:constants.SnippetMaxLength])) + "..."
	}

	start := position - constants.SnippetContextBefore
	if start < 0 {
		start = 0
	}
	end := position + constants.SnippetMaxLength - constants.SnippetContextBefore
	if end > len(runes) {
		end = len(runes)
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// clampScore 把得分收敛到[0,1]
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
