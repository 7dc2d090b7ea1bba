package router

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-search-go/internal/api/handler"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/storage"
)

// RegisterRoutes 注册API路由
func RegisterRoutes(h *server.Hertz, searchHandler *handler.SearchHandler, chatHandler *handler.ChatHandler, storageManager *storage.Storage) {
	h.Use(requestLogMiddleware())

	api := h.Group("/api/v1")

	api.POST("/resumes/search", searchHandler.HandleSearch)
	api.GET("/search/weights", searchHandler.HandleGetWeights)
	api.PUT("/search/weights", searchHandler.HandleUpdateWeights)

	api.POST("/chat", chatHandler.HandleChat)
	api.GET("/conversations/:conversation_id/messages", chatHandler.HandleGetMessages)
	api.DELETE("/conversations/:conversation_id/messages", chatHandler.HandleDeleteConversation)

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		components := utils.H{"mysql": "ok"}

		if storageManager != nil && storageManager.Qdrant != nil {
			if count, err := storageManager.Qdrant.CountPoints(c); err != nil {
				components["qdrant"] = "down"
			} else {
				components["qdrant"] = "ok"
				components["indexed_resumes"] = count
			}
		}
		if storageManager != nil && storageManager.Redis != nil {
			if err := storageManager.Redis.Ping(c); err != nil {
				components["redis"] = "down"
			} else {
				components["redis"] = "ok"
			}
		}

		ctx.JSON(consts.StatusOK, utils.H{
			"status":     "ok",
			"time":       time.Now().Format(time.RFC3339),
			"components": components,
		})
	})
}

// requestLogMiddleware 记录每个请求的方法、路径、状态和耗时
func requestLogMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		logger.Info().
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("HTTP请求")
	}
}
