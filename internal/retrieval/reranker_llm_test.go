package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-search-go/internal/types"
)

// mockChatModel 实现 model.ToolCallingChatModel，返回预置内容
type mockChatModel struct {
	response string
	err      error
	calls    int
}

func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.response, nil), nil
}

func (m *mockChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("mockChatModel未实现Stream")
}

func (m *mockChatModel) BindTools(tools []*schema.ToolInfo) error { return nil }

func (m *mockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func sampleCandidates() []types.SearchResultItem {
	return []types.SearchResultItem{
		{FileName: "a.pdf", Score: 0.6, MatchType: types.MatchTypeHybrid, FullContent: "golang工程师，字节跳动"},
		{FileName: "b.pdf", Score: 0.5, MatchType: types.MatchTypeHybrid, FullContent: "java工程师"},
		{FileName: "c.pdf", Score: 0.4, MatchType: types.MatchTypeHybrid, FullContent: "前端工程师"},
	}
}

func TestRerankFiltersAndReorders(t *testing.T) {
	llm := &mockChatModel{response: `{
		"matches": [
			{"file_name": "b.pdf", "relevance_score": 0.95, "reasoning": "完全匹配", "matches_criteria": true},
			{"file_name": "a.pdf", "relevance_score": 0.7, "reasoning": "基本匹配", "matches_criteria": true,
			 "extracted_info": {"current_company": "字节跳动", "skills": ["golang"]}},
			{"file_name": "c.pdf", "relevance_score": 0.2, "reasoning": "方向不符", "matches_criteria": false}
		],
		"summary": "两位候选人符合要求"
	}`}
	reranker := NewLLMReranker(llm, 0)

	rr := reranker.RerankAndFilter(context.Background(), "golang工程师", sampleCandidates(), "t1")
	require.Len(t, rr.Results, 2)

	// 按relevance_score降序，不满足条件的c.pdf被过滤
	assert.Equal(t, "b.pdf", rr.Results[0].FileName)
	assert.InDelta(t, 0.95, rr.Results[0].Score, 1e-9)
	assert.Equal(t, "a.pdf", rr.Results[1].FileName)
	assert.Equal(t, types.MatchTypeLLMReranked, rr.Results[0].MatchType)
	assert.Equal(t, "基本匹配", rr.Results[1].LLMReasoning)
	require.NotNil(t, rr.Results[1].ExtractedInfo)
	assert.Equal(t, "字节跳动", rr.Results[1].ExtractedInfo.CurrentCompany)
	assert.Equal(t, "两位候选人符合要求", rr.Analysis.Summary)
}

func TestRerankDropsFabricatedCandidates(t *testing.T) {
	llm := &mockChatModel{response: `{
		"matches": [
			{"file_name": "ghost.pdf", "relevance_score": 0.99, "reasoning": "编造的", "matches_criteria": true},
			{"file_name": "a.pdf", "relevance_score": 0.8, "reasoning": "匹配", "matches_criteria": true}
		],
		"summary": "ok"
	}`}
	reranker := NewLLMReranker(llm, 0)

	rr := reranker.RerankAndFilter(context.Background(), "golang", sampleCandidates(), "t1")
	require.Len(t, rr.Results, 1)
	assert.Equal(t, "a.pdf", rr.Results[0].FileName)
}

func TestRerankPassThroughOnModelError(t *testing.T) {
	llm := &mockChatModel{err: fmt.Errorf("超时")}
	reranker := NewLLMReranker(llm, 0)
	candidates := sampleCandidates()

	rr := reranker.RerankAndFilter(context.Background(), "golang", candidates, "t1")

	// 原样透传：数量、顺序、得分、match_type都不变
	require.Len(t, rr.Results, len(candidates))
	for i := range candidates {
		assert.Equal(t, candidates[i].FileName, rr.Results[i].FileName)
		assert.Equal(t, candidates[i].Score, rr.Results[i].Score)
		assert.Equal(t, candidates[i].MatchType, rr.Results[i].MatchType)
	}
	// 分析里全部标记为满足条件
	require.Len(t, rr.Analysis.Matches, len(candidates))
	for _, m := range rr.Analysis.Matches {
		assert.True(t, m.MatchesCriteria)
	}
	assert.NotEmpty(t, rr.Analysis.Summary)
	// 不重试
	assert.Equal(t, 1, llm.calls)
}

func TestRerankPassThroughOnUnparsableResponse(t *testing.T) {
	llm := &mockChatModel{response: "抱歉，我无法完成这个任务。"}
	reranker := NewLLMReranker(llm, 0)
	candidates := sampleCandidates()

	rr := reranker.RerankAndFilter(context.Background(), "golang", candidates, "t1")
	require.Len(t, rr.Results, len(candidates))
	assert.Equal(t, 1, llm.calls)
}

func TestRerankParsesFencedJSON(t *testing.T) {
	llm := &mockChatModel{response: "评估结果如下：\n```json\n" + `{
		"matches": [{"file_name": "a.pdf", "relevance_score": 0.9, "reasoning": "匹配", "matches_criteria": true}],
		"summary": "ok"
	}` + "\n```"}
	reranker := NewLLMReranker(llm, 0)

	rr := reranker.RerankAndFilter(context.Background(), "golang", sampleCandidates(), "t1")
	require.Len(t, rr.Results, 1)
	assert.Equal(t, "a.pdf", rr.Results[0].FileName)
}

func TestRerankEmptyCandidates(t *testing.T) {
	llm := &mockChatModel{response: "不应被调用"}
	reranker := NewLLMReranker(llm, 0)

	rr := reranker.RerankAndFilter(context.Background(), "golang", nil, "t1")
	assert.Empty(t, rr.Results)
	assert.Empty(t, rr.Analysis.Matches)
	assert.Equal(t, 0, llm.calls)
}

func TestParseRerankResponse(t *testing.T) {
	t.Run("越界分数视为非法", func(t *testing.T) {
		_, err := parseRerankResponse(`{"matches": [{"file_name": "a.pdf", "relevance_score": 1.5, "reasoning": "", "matches_criteria": true}], "summary": ""}`)
		assert.Error(t, err)
	})

	t.Run("缺少file_name视为非法", func(t *testing.T) {
		_, err := parseRerankResponse(`{"matches": [{"file_name": " ", "relevance_score": 0.5, "reasoning": "", "matches_criteria": true}], "summary": ""}`)
		assert.Error(t, err)
	})

	t.Run("缺少matches视为非法", func(t *testing.T) {
		_, err := parseRerankResponse(`{"summary": "没有matches"}`)
		assert.Error(t, err)
	})

	t.Run("前后有解释文字仍可解析", func(t *testing.T) {
		analysis, err := parseRerankResponse(`根据分析：{"matches": [], "summary": "没有匹配"} 以上。`)
		require.NoError(t, err)
		assert.Equal(t, "没有匹配", analysis.Summary)
	})

	t.Run("空输出报错", func(t *testing.T) {
		_, err := parseRerankResponse("   ")
		assert.Error(t, err)
	})
}

func TestSanitizeJSON(t *testing.T) {
	// reasoning里有未转义的引号
	broken := `{"summary": "候选人说"精通golang"，属实", "matches": []}`
	analysis, err := parseRerankResponse(broken)
	require.NoError(t, err)
	assert.Contains(t, analysis.Summary, "精通golang")
}

func TestExtractJSONFromResponse(t *testing.T) {
	t.Run("嵌套花括号", func(t *testing.T) {
		text := `前缀 {"a": {"b": 1}} 后缀`
		assert.Equal(t, `{"a": {"b": 1}}`, extractJSONFromResponse(text))
	})

	t.Run("没有花括号", func(t *testing.T) {
		assert.Equal(t, "", extractJSONFromResponse("纯文本"))
	})
}
