package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"award_chat/internal/api/handlers"
	"award_chat/internal/middleware"
	"award_chat/internal/service"
)

func SetupRoutes(r *gin.Engine, services *service.Services) {
	// 初始化 handlers
	chatHandler := handlers.NewChatHandler(services.Chat)
	wsHandler := handlers.NewWebSocketHandler(services.WebSocket)

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "route not found",
		})
	})

	// 即時通道
	r.GET("/ws", wsHandler.HandleWebSocket)

	// API 路由群組
	api := r.Group("/api")
	{
		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})

		api.GET("/categories", chatHandler.ListCategories)
		api.GET("/rooms", chatHandler.ListRooms)
		api.GET("/messages", chatHandler.ListMessages)
		api.GET("/poll", chatHandler.GetPoll)
		api.POST("/poll", chatHandler.CreatePoll)
		api.GET("/presence", chatHandler.Presence)
	}

	// 需要成員 token 的路由
	member := api.Group("/")
	member.Use(middleware.MemberAuth(services.Tokens))
	{
		member.POST("/vote", chatHandler.Vote)
	}
}
