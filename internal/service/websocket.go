package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"award_chat/internal/models"
	"award_chat/pkg/config"
)

// disconnectTimeout 連線結束後清理成員資料的等待上限
const disconnectTimeout = 5 * time.Second

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	ID       string                  // 連線 ID，同時作為成員 ID
	Conn     *websocket.Conn         // WebSocket 連接
	SendChan chan models.ServerEvent // 消息發送通道，用於異步傳送消息

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		SendChan: make(chan models.ServerEvent, buffer),
		done:     make(chan struct{}),
	}
}

// Deliver 將事件放入發送隊列，隊列已滿時關閉連接而不是等待
func (c *Client) Deliver(evt models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.SendChan <- evt:
		return true
	default:
		log.Warn().Str("client", c.ID).Msg("send buffer full, closing connection")
		c.close()
		return false
	}
}

// close 可重複呼叫；SendChan 不關閉，避免與 Deliver 競爭
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Conn.Close()
	})
}

// WebSocketService 管理所有的 WebSocket 連接，將事件轉交給 ChatService
type WebSocketService struct {
	chat       *ChatService
	cfg        config.WebSocketConfig
	clients    map[*Client]struct{}
	closing    bool // Shutdown 之後不再接受新的連線
	clientsMux sync.RWMutex
}

func NewWebSocketService(chat *ChatService, cfg config.WebSocketConfig) *WebSocketService {
	return &WebSocketService{
		chat:    chat,
		cfg:     cfg,
		clients: make(map[*Client]struct{}),
	}
}

// HandleConnection 處理一條已升級的連線，直到連線關閉才返回
func (s *WebSocketService) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	client := newClient(conn, s.cfg.SendBuffer)
	if !s.addClient(client) {
		log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("rejecting websocket during shutdown")
		s.goingAway(client)
		return
	}
	log.Debug().Str("client", client.ID).Str("remote", conn.RemoteAddr().String()).Msg("websocket connected")

	// 確保連接關閉時清理資源
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		s.chat.Disconnect(cleanupCtx, client.ID)
		s.removeClient(client)
		client.close()
		log.Debug().Str("client", client.ID).Msg("websocket disconnected")
	}()

	go s.writePump(client)
	s.readPump(ctx, client)
}

// readPump 持續監聽並處理從客戶端接收的事件
func (s *WebSocketService) readPump(ctx context.Context, client *Client) {
	client.Conn.SetReadLimit(s.cfg.ReadLimit)
	_ = client.Conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", client.ID).Msg("websocket unexpected close")
			}
			return
		}

		evt, err := models.DecodeClientEvent(data)
		if err == nil {
			err = s.dispatch(ctx, client, evt)
		}
		if err != nil {
			s.reportError(client, err)
		}
	}
}

// dispatch 依事件種類呼叫對應的操作，事件種類為封閉集合
func (s *WebSocketService) dispatch(ctx context.Context, client *Client, evt models.ClientEvent) error {
	switch e := evt.(type) {
	case models.JoinEvent:
		_, err := s.chat.Join(ctx, client.ID, e.Name, e.Category, client)
		return err
	case models.JoinRoomEvent:
		_, err := s.chat.JoinRoom(ctx, client.ID, e.Room)
		return err
	case models.LeaveRoomEvent:
		return s.chat.LeaveRoom(ctx, client.ID)
	case models.SendMessageEvent:
		_, err := s.chat.SendMessage(ctx, client.ID, e.Room, e.Text, e.Timestamp)
		return err
	case models.VoteEvent:
		_, err := s.chat.VoteAsMember(ctx, client.ID, e.Room, e.Option)
		return err
	default:
		return fmt.Errorf("%w: %s", models.ErrUnknownEvent, evt.Type())
	}
}

func (s *WebSocketService) reportError(client *Client, err error) {
	code := ErrorCode(err)
	if code == "internal" {
		log.Error().Err(err).Str("client", client.ID).Msg("websocket operation failed")
	} else {
		log.Debug().Err(err).Str("client", client.ID).Str("code", code).Msg("rejected client event")
	}

	message := err.Error()
	if code == "internal" {
		message = "internal error"
	}
	client.Deliver(models.ErrorEvent{Code: code, Message: message})
}

// writePump 處理向客戶端發送事件與心跳
func (s *WebSocketService) writePump(client *Client) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	for {
		select {
		case evt := <-client.SendChan:
			data, err := models.EncodeServerEvent(evt)
			if err != nil {
				log.Error().Err(err).Str("event", string(evt.Type())).Msg("event encoding error")
				continue
			}

			_ = client.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			// 發送心跳包
			_ = client.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			return
		}
	}
}

// Shutdown 通知所有連線伺服器即將關閉並斷開，之後升級的連線會立即被關閉
func (s *WebSocketService) Shutdown() {
	s.clientsMux.Lock()
	s.closing = true
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.clientsMux.Unlock()

	for _, client := range clients {
		s.goingAway(client)
	}
	log.Info().Int("connections", len(clients)).Msg("websocket connections closed")
}

// Connections 目前的連線數量
func (s *WebSocketService) Connections() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()

	return len(s.clients)
}

func (s *WebSocketService) goingAway(client *Client) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = client.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
	client.close()
}

// addClient 在 Shutdown 之後回傳 false
func (s *WebSocketService) addClient(client *Client) bool {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	if s.closing {
		return false
	}
	s.clients[client] = struct{}{}
	return true
}

func (s *WebSocketService) removeClient(client *Client) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	delete(s.clients, client)
}
