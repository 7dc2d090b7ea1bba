package types

import "time"

// SearchType 检索策略的封闭枚举
type SearchType string

const (
	// SearchTypeKeyword 关键词检索
	SearchTypeKeyword SearchType = "keyword"
	// SearchTypeVector 向量语义检索
	SearchTypeVector SearchType = "vector"
	// SearchTypeHybrid 混合检索（关键词+向量加权融合）
	SearchTypeHybrid SearchType = "hybrid"
)

// Valid 判断是否为已知的检索策略
func (t SearchType) Valid() bool {
	switch t {
	case SearchTypeKeyword, SearchTypeVector, SearchTypeHybrid:
		return true
	}
	return false
}

// MatchType 标记结果的来源引擎
type MatchType string

const (
	MatchTypeKeyword     MatchType = "keyword"
	MatchTypeVector      MatchType = "vector"
	MatchTypeHybrid      MatchType = "hybrid"
	MatchTypeLLMReranked MatchType = "llm-reranked"
)

// ResumeRecord 入库后的简历读模型，由摄取管道产出，本服务只读
type ResumeRecord struct {
	FileName    string    `json:"file_name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	FullContent string    `json:"full_content"`
	ProcessedAt time.Time `json:"processed_at"`
}

// SearchResultItem 单条检索结果，按请求新建，不落库
type SearchResultItem struct {
	FileName    string    `json:"file_name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Snippet     string    `json:"snippet"`
	FullContent string    `json:"-"` // 仅供重排序阶段使用，不直接返回给调用方
	Score       float64   `json:"score"`
	MatchType   MatchType `json:"match_type"`
	// LLM重排序阶段补充的字段
	LLMReasoning  string         `json:"llm_reasoning,omitempty"`
	ExtractedInfo *ExtractedInfo `json:"extracted_info,omitempty"`
}

// SearchMetadata 单次请求的关联上下文，只记日志不存储
type SearchMetadata struct {
	TraceID    string
	StartTime  time.Time
	SearchType SearchType
}

// HybridSearchConfig 混合检索的权重配置，进程级可变，不要求和为1
type HybridSearchConfig struct {
	VectorWeight  float64 `json:"vector_weight" yaml:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight" yaml:"keyword_weight"`
}

// ExtractedInfo LLM从简历中抽取的结构化信息
type ExtractedInfo struct {
	CurrentCompany string   `json:"current_company,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Experience     string   `json:"experience,omitempty"`
	KeyHighlights  []string `json:"key_highlights,omitempty"`
}

// RerankMatch LLM对单份简历的评判结果，使用前需通过schema校验
type RerankMatch struct {
	FileName        string         `json:"file_name"`
	RelevanceScore  float64        `json:"relevance_score"`
	Reasoning       string         `json:"reasoning"`
	MatchesCriteria bool           `json:"matches_criteria"`
	ExtractedInfo   *ExtractedInfo `json:"extracted_info,omitempty"`
}

// RerankAnalysis LLM重排序的整体分析输出
type RerankAnalysis struct {
	Summary string        `json:"summary"`
	Matches []RerankMatch `json:"matches"`
}

// ChatRole 对话角色
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatTurn 会话中的一轮消息
type ChatTurn struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
