package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-search-go/internal/types"
)

type fakeDocumentStore struct {
	records   []types.ResumeRecord
	lastLimit int
	err       error
}

func (f *fakeDocumentStore) FindResumesByTokens(ctx context.Context, tokens []string, limit int) ([]types.ResumeRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func TestKeywordSearchScoring(t *testing.T) {
	store := &fakeDocumentStore{
		records: []types.ResumeRecord{
			{
				FileName:    "zhang_golang.pdf",
				Email:       "zhang@example.com",
				FullContent: "资深golang工程师，五年golang开发经验",
			},
			{
				FileName:    "li_java.pdf",
				Email:       "li@example.com",
				FullContent: "java工程师，了解过golang",
			},
		},
	}
	engine := NewKeywordSearchEngine(store)

	results, err := engine.Search(context.Background(), "golang", 10, types.SearchMetadata{TraceID: "t1"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// 文件名命中权重2.0：正文2次 + 文件名1次 = 2*1.0 + 1*2.0 = 4，得分4/20
	assert.Equal(t, "zhang_golang.pdf", results[0].FileName)
	assert.InDelta(t, 0.2, results[0].Score, 1e-9)
	// 仅正文1次 = 1/20
	assert.Equal(t, "li_java.pdf", results[1].FileName)
	assert.InDelta(t, 0.05, results[1].Score, 1e-9)

	for _, r := range results {
		assert.Equal(t, types.MatchTypeKeyword, r.MatchType)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestKeywordSearchFileNameOutranksEqualContentHit(t *testing.T) {
	// 两份简历各命中一次：文件名命中（权重2.0）要排在正文命中（权重1.0）之前
	store := &fakeDocumentStore{
		records: []types.ResumeRecord{
			{FileName: "wang_backend.pdf", FullContent: "简历里提到selenium一次"},
			{FileName: "selenium_tester.pdf", FullContent: "自动化测试工程师"},
		},
	}
	engine := NewKeywordSearchEngine(store)

	results, err := engine.Search(context.Background(), "selenium", 10, types.SearchMetadata{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "selenium_tester.pdf", results[0].FileName)
	assert.InDelta(t, 0.1, results[0].Score, 1e-9) // 2.0/20
	assert.Equal(t, "wang_backend.pdf", results[1].FileName)
	assert.InDelta(t, 0.05, results[1].Score, 1e-9) // 1.0/20
}

func TestKeywordSearchIdempotent(t *testing.T) {
	store := &fakeDocumentStore{
		records: []types.ResumeRecord{
			{FileName: "a.pdf", FullContent: "golang golang"},
			{FileName: "b.pdf", FullContent: "golang golang"}, // 与a.pdf同分
			{FileName: "c.pdf", FullContent: "golang"},
		},
	}
	engine := NewKeywordSearchEngine(store)

	first, err := engine.Search(context.Background(), "golang", 10, types.SearchMetadata{})
	require.NoError(t, err)
	second, err := engine.Search(context.Background(), "golang", 10, types.SearchMetadata{})
	require.NoError(t, err)

	// 数据不变时重复检索的有序输出完全一致，同分文档也不交换位置
	assert.Equal(t, first, second)
}

func TestKeywordSearchScoreClampedToOne(t *testing.T) {
	// 30次命中，30/20=1.5，应收敛到1.0
	content := strings.Repeat("golang ", 30)
	store := &fakeDocumentStore{
		records: []types.ResumeRecord{{FileName: "a.pdf", FullContent: content}},
	}
	engine := NewKeywordSearchEngine(store)

	results, err := engine.Search(context.Background(), "golang", 5, types.SearchMetadata{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestKeywordSearchOverfetchAndTruncate(t *testing.T) {
	records := make([]types.ResumeRecord, 6)
	for i := range records {
		records[i] = types.ResumeRecord{
			FileName:    fmt.Sprintf("r%d.pdf", i),
			FullContent: strings.Repeat("python ", i+1),
		}
	}
	store := &fakeDocumentStore{records: records}
	engine := NewKeywordSearchEngine(store)

	results, err := engine.Search(context.Background(), "python", 3, types.SearchMetadata{})
	require.NoError(t, err)

	// 取数上限是topK的两倍
	assert.Equal(t, 6, store.lastLimit)
	// 结果截断到topK且降序
	require.Len(t, results, 3)
	assert.Equal(t, "r5.pdf", results[0].FileName)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestKeywordSearchEmptyQuery(t *testing.T) {
	engine := NewKeywordSearchEngine(&fakeDocumentStore{})
	_, err := engine.Search(context.Background(), "   ", 5, types.SearchMetadata{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestKeywordSearchStoreError(t *testing.T) {
	engine := NewKeywordSearchEngine(&fakeDocumentStore{err: fmt.Errorf("connection refused")})
	_, err := engine.Search(context.Background(), "golang", 5, types.SearchMetadata{})
	assert.Error(t, err)
}

func mustTokenPattern(t *testing.T, tokens ...string) *regexp.Regexp {
	t.Helper()
	pattern, err := buildTokenPattern(tokens)
	require.NoError(t, err)
	return pattern
}

func TestExtractSnippet(t *testing.T) {
	t.Run("命中词居中且前后有省略号", func(t *testing.T) {
		content := strings.Repeat("a", 100) + "golang" + strings.Repeat("b", 300)
		snippet := extractSnippet(content, mustTokenPattern(t, "golang"))
		assert.True(t, strings.HasPrefix(snippet, "..."))
		assert.True(t, strings.HasSuffix(snippet, "..."))
		assert.Contains(t, snippet, "golang")
	})

	t.Run("命中在开头时没有前缀省略号", func(t *testing.T) {
		content := "golang工程师" + strings.Repeat("x", 300)
		snippet := extractSnippet(content, mustTokenPattern(t, "golang"))
		assert.False(t, strings.HasPrefix(snippet, "..."))
		assert.True(t, strings.HasSuffix(snippet, "..."))
	})

	t.Run("无命中时退化为开头片段", func(t *testing.T) {
		content := strings.Repeat("c", 500)
		snippet := extractSnippet(content, mustTokenPattern(t, "rust"))
		assert.True(t, strings.HasSuffix(snippet, "..."))
		assert.Equal(t, 203, len(snippet)) // 200字符 + "..."
	})

	t.Run("短内容原样返回", func(t *testing.T) {
		assert.Equal(t, "短简历", extractSnippet("短简历", mustTokenPattern(t, "rust")))
	})

	t.Run("大小写不敏感", func(t *testing.T) {
		snippet := extractSnippet("精通GoLang开发", mustTokenPattern(t, "golang"))
		assert.Contains(t, snippet, "GoLang")
	})

	t.Run("ToLower会变长的字符不影响定位", func(t *testing.T) {
		// U+0130 (İ) 转小写后字节数变化，按原文定位命中词
		content := strings.Repeat("İ", 60) + " golang " + strings.Repeat("x", 300)
		snippet := extractSnippet(content, mustTokenPattern(t, "golang"))
		assert.Contains(t, snippet, "golang")
	})
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.5))
	assert.Equal(t, 0.5, clampScore(0.5))
	assert.Equal(t, 1.0, clampScore(1.5))
}
