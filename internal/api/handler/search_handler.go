package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"

	"resume-search-go/internal/logger"
	"resume-search-go/internal/retrieval"
	"resume-search-go/internal/types"
)

// 单次检索默认返回的候选数
const defaultSearchTopK = 5

// SearchHandler 处理简历检索与权重管理请求
type SearchHandler struct {
	pipeline *retrieval.Pipeline
}

// NewSearchHandler 创建检索Handler
func NewSearchHandler(pipeline *retrieval.Pipeline) *SearchHandler {
	return &SearchHandler{pipeline: pipeline}
}

// SearchRequest 检索请求体
type SearchRequest struct {
	Query      string `json:"query"`
	SearchType string `json:"search_type"`
	TopK       int    `json:"top_k"`
}

// UpdateWeightsRequest 权重更新请求体
type UpdateWeightsRequest struct {
	VectorWeight  *float64 `json:"vector_weight"`
	KeywordWeight *float64 `json:"keyword_weight"`
}

// HandleSearch 处理简历检索请求。
// POST /api/v1/resumes/search
func (h *SearchHandler) HandleSearch(ctx context.Context, c *app.RequestContext) {
	var req SearchRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误: " + err.Error()})
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "query不能为空"})
		return
	}

	searchType := types.SearchTypeHybrid
	if req.SearchType != "" {
		searchType = types.SearchType(req.SearchType)
		if !searchType.Valid() {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "search_type必须是 keyword, vector 或 hybrid"})
			return
		}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}

	traceID := uuid.Must(uuid.NewV4()).String()

	results, analysis, err := h.pipeline.SearchWithAnalysis(ctx, req.Query, searchType, topK, traceID)
	if err != nil {
		status := consts.StatusInternalServerError
		if errors.Is(err, retrieval.ErrEmptyQuery) ||
			errors.Is(err, retrieval.ErrInvalidTopK) ||
			errors.Is(err, retrieval.ErrInvalidSearchType) {
			status = consts.StatusBadRequest
		}
		logger.Error().Str("trace_id", traceID).Err(err).Msg("检索请求失败")
		c.JSON(status, utils.H{"error": err.Error(), "trace_id": traceID})
		return
	}

	resp := utils.H{
		"results":  results,
		"count":    len(results),
		"trace_id": traceID,
	}
	if analysis != nil && analysis.Summary != "" {
		resp["llm_summary"] = analysis.Summary
	}
	c.JSON(consts.StatusOK, resp)
}

// HandleGetWeights 返回当前混合检索权重。
// GET /api/v1/search/weights
func (h *SearchHandler) HandleGetWeights(ctx context.Context, c *app.RequestContext) {
	weights := h.pipeline.GetHybridWeights()
	c.JSON(consts.StatusOK, utils.H{
		"vector_weight":  weights.VectorWeight,
		"keyword_weight": weights.KeywordWeight,
	})
}

// HandleUpdateWeights 整体更新混合检索权重。
// PUT /api/v1/search/weights
func (h *SearchHandler) HandleUpdateWeights(ctx context.Context, c *app.RequestContext) {
	var req UpdateWeightsRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误: " + err.Error()})
		return
	}
	if req.VectorWeight == nil || req.KeywordWeight == nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "vector_weight和keyword_weight都必须提供"})
		return
	}

	if err := h.pipeline.UpdateHybridWeights(*req.VectorWeight, *req.KeywordWeight); err != nil {
		status := consts.StatusInternalServerError
		if errors.Is(err, retrieval.ErrInvalidWeights) {
			status = consts.StatusBadRequest
		}
		c.JSON(status, utils.H{"error": err.Error()})
		return
	}

	weights := h.pipeline.GetHybridWeights()
	c.JSON(consts.StatusOK, utils.H{
		"vector_weight":  weights.VectorWeight,
		"keyword_weight": weights.KeywordWeight,
	})
}
