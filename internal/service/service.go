package service

import (
	"award_chat/internal/presence"
	"award_chat/internal/relay"
	"award_chat/internal/repository"
	"award_chat/internal/utils"
	"award_chat/pkg/config"
)

type Services struct {
	Registry  *RoomRegistry
	State     *ChatState
	Chat      *ChatService
	WebSocket *WebSocketService
	Tokens    *utils.TokenManager
}

func NewServices(cfg *config.Config, repos *repository.Repositories, store presence.Store, rl relay.Relay) *Services {
	state := NewChatState(PollTemplate{
		Enabled:  cfg.Chat.Poll.Enabled,
		Question: cfg.Chat.Poll.QuestionTemplate,
		Options:  cfg.Chat.Poll.Options,
	}, cfg.Chat.CommandBuffer)

	tokens := utils.NewTokenManager(cfg.Auth.MemberSecret, cfg.Auth.TokenTTL)
	registry := NewRoomRegistry(repos.Category)
	chat := NewChatService(registry, state, store, rl, tokens)

	return &Services{
		Registry:  registry,
		State:     state,
		Chat:      chat,
		WebSocket: NewWebSocketService(chat, cfg.WebSocket),
		Tokens:    tokens,
	}
}
