package retrieval

import "errors"

var (
	// ErrNotInitialized 检索管线在依赖就绪前被调用
	ErrNotInitialized = errors.New("检索管线尚未初始化")

	// ErrInvalidSearchType 未知的检索策略
	ErrInvalidSearchType = errors.New("未知的检索策略")

	// ErrEmptyQuery 查询为空
	ErrEmptyQuery = errors.New("查询不能为空")

	// ErrInvalidTopK topK参数非法
	ErrInvalidTopK = errors.New("top_k必须为正数")

	// ErrInvalidWeights 混合检索权重非法
	ErrInvalidWeights = errors.New("检索权重不能为负数")
)
