package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"award_chat/internal/middleware"
	"award_chat/internal/models"
	"award_chat/internal/service"
)

// ChatHandler 聊天室與投票的 HTTP 讀寫介面
type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// roomQuery 大部分讀取 API 共用的查詢參數
type roomQuery struct {
	Category string `form:"category" binding:"required"`
	Room     string `form:"room" binding:"required"`
}

// CreatePollInput 定義建立投票請求的結構
type CreatePollInput struct {
	Category string   `json:"category" binding:"required"`
	Room     string   `json:"room" binding:"required"`
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required,min=1"`
}

// VoteInput 定義投票請求的結構，分類取自成員 token
type VoteInput struct {
	Room   string `json:"room" binding:"required"`
	Option string `json:"option" binding:"required"`
}

// ListCategories 獲取所有獎項分類
func (h *ChatHandler) ListCategories(c *gin.Context) {
	categories, err := h.chat.Registry().ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// ListRooms 獲取分類的房間列表，"General" 永遠在第一位
func (h *ChatHandler) ListRooms(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}

	rooms, err := h.chat.Registry().ListRooms(c.Request.Context(), category)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// ListMessages 獲取房間目前為止的訊息
func (h *ChatHandler) ListMessages(c *gin.Context) {
	var q roomQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messages, err := h.chat.History(c.Request.Context(), q.Category, q.Room)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) GetPoll(c *gin.Context) {
	var q roomQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poll, err := h.chat.Poll(c.Request.Context(), q.Category, q.Room)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *ChatHandler) CreatePoll(c *gin.Context) {
	var input CreatePollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poll, err := h.chat.CreatePoll(c.Request.Context(), input.Category, input.Room, input.Question, input.Options)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, poll)
}

// Vote 以 token 中的成員身分投票
func (h *ChatHandler) Vote(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "member token required"})
		return
	}

	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poll, err := h.chat.Vote(c.Request.Context(), claims.MemberID, claims.Category, input.Room, input.Option)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// Presence 房間目前的在線人數
func (h *ChatHandler) Presence(c *gin.Context) {
	var q roomQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	online, err := h.chat.Online(c.Request.Context(), q.Category, q.Room)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": q.Category, "room": q.Room, "online": online})
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		message = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": message})
}

// statusFor 將服務層錯誤對應到 HTTP 狀態碼
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownCategory),
		errors.Is(err, service.ErrUnknownRoom),
		errors.Is(err, service.ErrNoPoll):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyVoted),
		errors.Is(err, service.ErrPollExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnknownOption),
		errors.Is(err, models.ErrInvalidPoll),
		errors.Is(err, service.ErrEmptyName),
		errors.Is(err, service.ErrNotInRoom),
		errors.Is(err, service.ErrNotIdentified):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStateStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
