package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-search-go/internal/agent"
	"resume-search-go/internal/logger"
)

// ChatHandler 处理多轮对话请求
type ChatHandler struct {
	manager *agent.ConversationManager
}

// NewChatHandler 创建对话Handler
func NewChatHandler(manager *agent.ConversationManager) *ChatHandler {
	return &ChatHandler{manager: manager}
}

// ChatRequest 对话请求体
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// HandleChat 处理一轮对话。
// POST /api/v1/chat
func (h *ChatHandler) HandleChat(ctx context.Context, c *app.RequestContext) {
	var req ChatRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误: " + err.Error()})
		return
	}

	result, err := h.manager.Chat(ctx, req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "message不能为空"})
			return
		}
		logger.Error().Str("conversation_id", req.ConversationID).Err(err).Msg("对话处理失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"response":            result.Reply,
		"conversation_id":     result.ConversationID,
		"message_count":       result.MessageCount,
		"search_results_used": result.SearchResultsUsed,
	})
}

// HandleGetMessages 返回会话的全部历史。
// GET /api/v1/conversations/:conversation_id/messages
func (h *ChatHandler) HandleGetMessages(ctx context.Context, c *app.RequestContext) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "conversation_id不能为空"})
		return
	}

	messages, err := h.manager.GetMessages(ctx, conversationID)
	if err != nil {
		if errors.Is(err, agent.ErrConversationNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "会话不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"conversation_id": conversationID,
		"messages":        messages,
		"count":           len(messages),
	})
}

// HandleDeleteConversation 删除会话。
// DELETE /api/v1/conversations/:conversation_id/messages
func (h *ChatHandler) HandleDeleteConversation(ctx context.Context, c *app.RequestContext) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "conversation_id不能为空"})
		return
	}

	existed, err := h.manager.DeleteConversation(ctx, conversationID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	if !existed {
		c.JSON(consts.StatusNotFound, utils.H{"error": "会话不存在", "deleted": false})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"deleted": true})
}
