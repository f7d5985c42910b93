package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"award_chat/internal/models"
	"award_chat/internal/presence"
	"award_chat/internal/relay"
	"award_chat/internal/utils"
)

// relayApplyTimeout 套用遠端事件時等待 ChatState 的上限
const relayApplyTimeout = 5 * time.Second

// JoinResult join 成功後回傳給連線的資料
type JoinResult struct {
	Member MemberInfo
	Token  string
	Rooms  []string
}

// ChatService 處理成員在分類與房間之間的流程，並同步在線名單與其他實例
type ChatService struct {
	registry *RoomRegistry
	state    *ChatState
	presence presence.Store
	relay    relay.Relay
	tokens   *utils.TokenManager
}

func NewChatService(registry *RoomRegistry, state *ChatState, store presence.Store, rl relay.Relay, tokens *utils.TokenManager) *ChatService {
	return &ChatService{
		registry: registry,
		state:    state,
		presence: store,
		relay:    rl,
		tokens:   tokens,
	}
}

func (s *ChatService) Registry() *RoomRegistry {
	return s.registry
}

// Join 以顯示名稱與分類識別成員，推送 joined 與 availableRooms 後直接進入 "General"
func (s *ChatService) Join(ctx context.Context, memberID, name, category string, sink Sink) (JoinResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return JoinResult{}, ErrEmptyName
	}

	rooms, err := s.registry.ListRooms(ctx, category)
	if err != nil {
		return JoinResult{}, err
	}

	token, err := s.tokens.GenerateToken(memberID, name, category)
	if err != nil {
		return JoinResult{}, fmt.Errorf("issue member token: %w", err)
	}

	previous, err := s.state.Register(ctx, memberID, name, category, sink)
	if err != nil {
		return JoinResult{}, err
	}
	if previous.Room != "" {
		s.presenceLeave(ctx, previous.Category, previous.Room, memberID)
	}

	sink.Deliver(models.JoinedEvent{
		MemberID: memberID,
		Name:     name,
		Category: category,
		Room:     DefaultRoom,
		Token:    token,
	})
	sink.Deliver(models.AvailableRoomsEvent{Category: category, Rooms: rooms})

	if _, _, err := s.state.JoinRoom(ctx, memberID, DefaultRoom); err != nil {
		return JoinResult{}, err
	}
	s.presenceJoin(ctx, category, DefaultRoom, memberID)

	log.Info().
		Str("member", memberID).
		Str("name", name).
		Str("category", category).
		Msg("member joined")

	return JoinResult{
		Member: MemberInfo{ID: memberID, Name: name, Category: category, Room: DefaultRoom, State: MemberInRoom},
		Token:  token,
		Rooms:  rooms,
	}, nil
}

// JoinRoom 切換到同分類的另一個房間
func (s *ChatService) JoinRoom(ctx context.Context, memberID, room string) (RoomSnapshot, error) {
	info, err := s.identified(ctx, memberID)
	if err != nil {
		return RoomSnapshot{}, err
	}

	ok, err := s.registry.HasRoom(ctx, info.Category, room)
	if err != nil {
		return RoomSnapshot{}, err
	}
	if !ok {
		return RoomSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}

	snap, left, err := s.state.JoinRoom(ctx, memberID, room)
	if err != nil {
		return RoomSnapshot{}, err
	}
	if left != "" {
		s.presenceLeave(ctx, info.Category, left, memberID)
	}
	s.presenceJoin(ctx, info.Category, room, memberID)

	log.Debug().Str("member", memberID).Str("from", left).Str("to", room).Msg("member switched room")
	return snap, nil
}

func (s *ChatService) LeaveRoom(ctx context.Context, memberID string) error {
	before, err := s.state.LeaveRoom(ctx, memberID)
	if err != nil {
		return err
	}
	if before.Room != "" {
		s.presenceLeave(ctx, before.Category, before.Room, memberID)
	}
	return nil
}

// SendMessage 寫入訊息並轉送給其他實例。空白訊息回傳 nil, nil
func (s *ChatService) SendMessage(ctx context.Context, memberID, room, text string, clientTimestamp *time.Time) (*models.Message, error) {
	appended, err := s.state.Append(ctx, memberID, room, text, clientTimestamp)
	if err != nil || appended == nil {
		return nil, err
	}

	msg := appended.Message
	s.publish(ctx, relay.Event{
		Kind:     relay.KindMessage,
		Category: appended.Category,
		Room:     msg.Room,
		Message:  &msg,
	})
	return &appended.Message, nil
}

// VoteAsMember 以連線成員的身分投票，room 為空時使用目前所在的房間
func (s *ChatService) VoteAsMember(ctx context.Context, memberID, room, option string) (models.PollView, error) {
	info, err := s.identified(ctx, memberID)
	if err != nil {
		return models.PollView{}, err
	}
	if room == "" {
		room = info.Room
	}
	if room == "" {
		return models.PollView{}, ErrNotInRoom
	}
	return s.Vote(ctx, memberID, info.Category, room, option)
}

// Vote 以 voterID 在分類內的房間投票
func (s *ChatService) Vote(ctx context.Context, voterID, category, room, option string) (models.PollView, error) {
	view, err := s.state.Vote(ctx, voterID, category, room, option)
	if err != nil {
		return models.PollView{}, err
	}

	s.publish(ctx, relay.Event{
		Kind:     relay.KindVote,
		Category: category,
		Room:     room,
		VoterID:  voterID,
		Option:   option,
	})
	return view, nil
}

func (s *ChatService) History(ctx context.Context, category, room string) ([]models.Message, error) {
	if err := s.checkRoom(ctx, category, room); err != nil {
		return nil, err
	}
	return s.state.History(ctx, category, room)
}

func (s *ChatService) Poll(ctx context.Context, category, room string) (models.PollView, error) {
	return s.state.Poll(ctx, category, room)
}

func (s *ChatService) CreatePoll(ctx context.Context, category, room, question string, options []string) (models.PollView, error) {
	if err := s.checkRoom(ctx, category, room); err != nil {
		return models.PollView{}, err
	}

	view, err := s.state.CreatePoll(ctx, category, room, question, options)
	if err != nil {
		return models.PollView{}, err
	}

	s.publish(ctx, relay.Event{
		Kind:     relay.KindPollCreated,
		Category: category,
		Room:     room,
		Question: view.Question,
		Options:  view.Options,
	})
	return view, nil
}

// Online 房間目前的在線人數
func (s *ChatService) Online(ctx context.Context, category, room string) (int64, error) {
	if err := s.checkRoom(ctx, category, room); err != nil {
		return 0, err
	}
	count, err := s.presence.Count(ctx, category, room)
	if err != nil {
		return 0, fmt.Errorf("count presence: %w", err)
	}
	return count, nil
}

// Disconnect 釋放連線的房間與在線紀錄
func (s *ChatService) Disconnect(ctx context.Context, memberID string) {
	removed, err := s.state.Unregister(ctx, memberID)
	if err != nil {
		log.Error().Err(err).Str("member", memberID).Msg("failed to unregister member")
		return
	}
	if removed.Room != "" {
		s.presenceLeave(ctx, removed.Category, removed.Room, memberID)
	}
	if removed.State != MemberDisconnected {
		log.Info().Str("member", memberID).Str("category", removed.Category).Msg("member disconnected")
	}
}

// HandleRelay 套用其他實例發佈的異動
func (s *ChatService) HandleRelay(evt relay.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), relayApplyTimeout)
	defer cancel()

	logger := log.With().
		Str("origin", evt.Origin).
		Str("kind", string(evt.Kind)).
		Str("category", evt.Category).
		Str("room", evt.Room).
		Logger()

	var err error
	switch evt.Kind {
	case relay.KindMessage:
		if evt.Message == nil {
			logger.Warn().Msg("relay message event without message")
			return
		}
		_, err = s.state.AppendRemote(ctx, evt.Category, evt.Room, *evt.Message)
	case relay.KindVote:
		_, err = s.state.VoteRemote(ctx, evt.VoterID, evt.Category, evt.Room, evt.Option)
	case relay.KindPollCreated:
		_, err = s.state.CreatePollRemote(ctx, evt.Category, evt.Room, evt.Question, evt.Options)
	default:
		logger.Warn().Msg("unknown relay event")
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, models.ErrAlreadyVoted):
		logger.Debug().Err(err).Msg("relay event already applied")
	case errors.Is(err, ErrPollExists):
		logger.Warn().Err(err).Str("question", evt.Question).Msg("relayed poll conflicts with local poll")
	default:
		logger.Error().Err(err).Msg("failed to apply relay event")
	}
}

func (s *ChatService) identified(ctx context.Context, memberID string) (MemberInfo, error) {
	info, err := s.state.Member(ctx, memberID)
	if err != nil {
		return MemberInfo{}, err
	}
	if info.State == MemberDisconnected {
		return MemberInfo{}, ErrNotIdentified
	}
	return info, nil
}

func (s *ChatService) checkRoom(ctx context.Context, category, room string) error {
	ok, err := s.registry.HasRoom(ctx, category, room)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}
	return nil
}

// publish 在本地異動完成後呼叫，呼叫者的 ctx 取消不影響轉送
func (s *ChatService) publish(ctx context.Context, evt relay.Event) {
	if err := s.relay.Publish(context.WithoutCancel(ctx), evt); err != nil {
		log.Error().Err(err).Str("kind", string(evt.Kind)).Str("room", evt.Room).Msg("failed to publish relay event")
	}
}

func (s *ChatService) presenceJoin(ctx context.Context, category, room, memberID string) {
	if err := s.presence.Join(ctx, category, room, memberID); err != nil {
		log.Warn().Err(err).Str("member", memberID).Str("room", room).Msg("failed to record presence")
	}
}

func (s *ChatService) presenceLeave(ctx context.Context, category, room, memberID string) {
	if err := s.presence.Leave(ctx, category, room, memberID); err != nil {
		log.Warn().Err(err).Str("member", memberID).Str("room", room).Msg("failed to clear presence")
	}
}
