package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/trace"

	"resume-search-go/internal/constants"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/tracing"
	"resume-search-go/internal/types"
)

// LLMReranker 用大模型对候选简历做语义重排序与硬性条件过滤。
// 任何模型调用或解析失败都降级为透传，绝不让重排序挡住检索结果。
type LLMReranker struct {
	llmModel        model.ToolCallingChatModel
	contentMaxChars int
}

// RerankResult 重排序输出：过滤后的结果列表和模型的分析
type RerankResult struct {
	Results  []types.SearchResultItem
	Analysis types.RerankAnalysis
}

// NewLLMReranker 创建LLM重排序器。contentMaxChars<=0时使用默认截断长度。
func NewLLMReranker(llmModel model.ToolCallingChatModel, contentMaxChars int) *LLMReranker {
	if contentMaxChars <= 0 {
		contentMaxChars = constants.RerankContentMaxChars
	}
	return &LLMReranker{
		llmModel:        llmModel,
		contentMaxChars: contentMaxChars,
	}
}

// RerankAndFilter 对候选集做一轮重排序与过滤。
// 只消费传入的候选，不会引入候选之外的简历；失败时原样透传候选。
func (r *LLMReranker) RerankAndFilter(ctx context.Context, query string, candidates []types.SearchResultItem, traceID string) *RerankResult {
	if len(candidates) == 0 {
		return &RerankResult{
			Results:  []types.SearchResultItem{},
			Analysis: types.RerankAnalysis{Summary: "没有候选简历需要分析", Matches: []types.RerankMatch{}},
		}
	}

	start := time.Now()

	prompt := r.buildRerankPrompt(query, candidates)
	messages := []*schema.Message{
		schema.SystemMessage("你是一位资深技术招聘专家，擅长根据岗位要求精准评估候选人简历。"),
		schema.UserMessage(prompt),
	}

	resp, err := r.llmModel.Generate(ctx, messages)
	if err != nil {
		tracing.RecordError(trace.SpanFromContext(ctx), err, tracing.ErrorTypeLLM)
		logger.Warn().
			Str("trace_id", traceID).
			Err(err).
			Msg("重排序模型调用失败，透传原始结果")
		return r.passThrough(candidates, "LLM重排序不可用，结果未经语义过滤")
	}

	analysis, err := parseRerankResponse(resp.Content)
	if err != nil {
		logger.Warn().
			Str("trace_id", traceID).
			Err(err).
			Str("raw_response", tracing.TruncateString(resp.Content, 200)).
			Msg("重排序响应解析失败，透传原始结果")
		return r.passThrough(candidates, "LLM重排序结果不可解析，结果未经语义过滤")
	}

	// 只认候选集内的文件名，模型编造的候选直接丢弃
	byFileName := make(map[string]types.SearchResultItem, len(candidates))
	for _, item := range candidates {
		byFileName[item.FileName] = item
	}

	results := make([]types.SearchResultItem, 0, len(analysis.Matches))
	for _, match := range analysis.Matches {
		if !match.MatchesCriteria {
			logger.Debug().
				Str("trace_id", traceID).
				Str("file_name", match.FileName).
				Str("reason", tracing.TruncateString(match.Reasoning, 120)).
				Msg("候选不满足硬性条件，已过滤")
			continue
		}
		original, ok := byFileName[match.FileName]
		if !ok {
			logger.Warn().
				Str("trace_id", traceID).
				Str("file_name", match.FileName).
				Msg("重排序返回了候选集之外的文件名，已忽略")
			continue
		}

		item := original
		item.Score = clampScore(match.RelevanceScore)
		item.MatchType = types.MatchTypeLLMReranked
		item.LLMReasoning = match.Reasoning
		item.ExtractedInfo = match.ExtractedInfo
		results = append(results, item)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	logger.Info().
		Str("trace_id", traceID).
		Int("candidates", len(candidates)).
		Int("survived", len(results)).
		Dur("duration", time.Since(start)).
		Msg("LLM重排序完成")

	return &RerankResult{Results: results, Analysis: *analysis}
}

// passThrough 降级路径：候选原样返回，全部标记为满足条件
func (r *LLMReranker) passThrough(candidates []types.SearchResultItem, summary string) *RerankResult {
	matches := make([]types.RerankMatch, 0, len(candidates))
	for _, item := range candidates {
		matches = append(matches, types.RerankMatch{
			FileName:        item.FileName,
			RelevanceScore:  item.Score,
			Reasoning:       "重排序降级，保留原始检索得分",
			MatchesCriteria: true,
		})
	}
	return &RerankResult{
		Results:  candidates,
		Analysis: types.RerankAnalysis{Summary: summary, Matches: matches},
	}
}

// buildRerankPrompt 组装重排序提示词，候选内容超长时截断
func (r *LLMReranker) buildRerankPrompt(query string, candidates []types.SearchResultItem) string {
	var sb strings.Builder

	sb.WriteString("## 任务\n")
	sb.WriteString("根据下面的检索需求逐一评估候选简历。先从需求中解析出所有条件（技能、公司、年限、学历等），")
	sb.WriteString("再判断每份简历是否满足**全部**条件：任何一个条件在简历中找不到明确证据，matches_criteria就必须是false。\n\n")
	sb.WriteString("## 检索需求\n")
	sb.WriteString(query)
	sb.WriteString("\n\n## 评分标准\n")
	sb.WriteString("- 0.9-1.0: 完全满足所有条件且高度相关\n")
	sb.WriteString("- 0.7-0.89: 满足所有条件，相关性较好\n")
	sb.WriteString("- 0.5-0.69: 满足所有条件，但相关性一般\n")
	sb.WriteString("- 0.3-0.49: 部分条件证据不足\n")
	sb.WriteString("- 0.0-0.29: 明显不满足条件\n\n")
	sb.WriteString("## 候选简历\n")

	for i, item := range candidates {
		sb.WriteString(fmt.Sprintf("### 简历 %d: %s\n", i+1, item.FileName))
		if item.Email != "" {
			sb.WriteString("邮箱: " + item.Email + "\n")
		}
		sb.WriteString("内容:\n")
		sb.WriteString(truncateContent(item.FullContent, r.contentMaxChars))
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("=", 40))
		sb.WriteString("\n")
	}

	sb.WriteString("\n## 输出格式\n")
	sb.WriteString("只输出一个JSON对象，不要输出任何其他文字：\n")
	sb.WriteString(`{
  "matches": [
    {
      "file_name": "必须与上面候选简历的文件名完全一致",
      "relevance_score": 0.85,
      "reasoning": "评估依据，简明扼要",
      "matches_criteria": true,
      "extracted_info": {
        "current_company": "当前公司",
        "skills": ["关键技能"],
        "experience": "工作年限概述",
        "key_highlights": ["亮点"]
      }
    }
  ],
  "summary": "对整批候选的总体评价"
}`)
	sb.WriteString("\n")
	return sb.String()
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseRerankResponse 从模型输出中提取并解析JSON，失败时做一次转义修复重试
func parseRerankResponse(raw string) (*types.RerankAnalysis, error) {
	text := strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF")
	if text == "" {
		return nil, fmt.Errorf("模型输出为空")
	}

	jsonStr := extractJSONFromResponse(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("模型输出中找不到JSON")
	}

	var analysis types.RerankAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		// 模型偶尔输出未转义的引号，修复后再试一次
		repaired := sanitizeJSON(jsonStr)
		if err2 := json.Unmarshal([]byte(repaired), &analysis); err2 != nil {
			return nil, fmt.Errorf("JSON反序列化失败: %w", err)
		}
	}

	if err := validateRerankAnalysis(&analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// extractJSONFromResponse 依次尝试：代码块内的JSON、首个花括号平衡的片段、原文
func extractJSONFromResponse(text string) string {
	if m := fencedJSONPattern.FindStringSubmatch(text); len(m) > 1 && strings.Contains(m[1], "{") {
		return m[1]
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// validateRerankAnalysis 校验模型输出的结构合法性
func validateRerankAnalysis(analysis *types.RerankAnalysis) error {
	if analysis.Matches == nil {
		return fmt.Errorf("缺少matches字段")
	}
	for i, match := range analysis.Matches {
		if strings.TrimSpace(match.FileName) == "" {
			return fmt.Errorf("第%d条match缺少file_name", i+1)
		}
		if match.RelevanceScore < 0 || match.RelevanceScore > 1 {
			return fmt.Errorf("第%d条match的relevance_score越界: %f", i+1, match.RelevanceScore)
		}
	}
	return nil
}

// sanitizeJSON 遍历src，把字符串字面量内部未转义的双引号改写为\"。
// 通过看下一个非空白字符是否为 :, ], }, 或 , 来判断当前引号是不是真正的字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
