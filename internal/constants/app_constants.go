package constants

import "time"

const (
	// KeywordOverfetchFactor 关键词引擎候选集放大倍数。
	// 候选按出现次数加权重排后顺序会变化，多取一些再截断，避免漏掉高分文档。
	KeywordOverfetchFactor = 2

	// RerankOverfetchFactor 启用LLM重排序时混合检索的候选集放大倍数。
	// 重排序会过滤掉不满足条件的候选，放大候选池以保证截断后仍有足够结果。
	RerankOverfetchFactor = 3

	// SnippetMaxLength 返回给调用方的内容摘要最大长度（字符数）
	SnippetMaxLength = 200

	// SnippetContextBefore 摘要中关键词命中位置之前保留的字符数
	SnippetContextBefore = 50

	// KeywordScoreSaturation 关键词加权命中数的饱和点，除以该值归一化到[0,1]。
	// 经验值：20次加权命中即视为高度相关，并非概率含义。
	KeywordScoreSaturation = 20.0

	// RerankContentMaxChars 进入重排序Prompt的单份简历内容上限，控制Prompt规模
	RerankContentMaxChars = 3000

	// DefaultChatTopK 对话检索默认候选数
	DefaultChatTopK = 10

	// DefaultMaxHistoryTurns 单会话默认保留的最大轮数（user+assistant各算一轮）
	DefaultMaxHistoryTurns = 50

	// DefaultVectorWeight / DefaultKeywordWeight 混合检索默认权重
	DefaultVectorWeight  = 0.7
	DefaultKeywordWeight = 0.3
)

const (
	// ChatMemoryKeyPrefix Redis会话历史键前缀
	ChatMemoryKeyPrefix = "chatmemory:"

	// DefaultChatHistoryTTL Redis会话历史默认过期时间，0表示永不过期
	DefaultChatHistoryTTL = 0 * time.Hour
)
