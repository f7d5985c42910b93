package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"award_chat/internal/models"
)

// Sink 接收推送給單一成員的事件，實作不可阻塞
type Sink interface {
	Deliver(evt models.ServerEvent) bool
}

type MemberState string

const (
	MemberDisconnected MemberState = "disconnected"
	MemberIdentified   MemberState = "identified"
	MemberInRoom       MemberState = "inRoom"
)

// MemberInfo 成員狀態的快照
type MemberInfo struct {
	ID       string
	Name     string
	Category string
	Room     string
	State    MemberState
}

// PollTemplate 新房間建立時自動產生的投票，Question 中的 %s 會替換成房間名稱
type PollTemplate struct {
	Enabled  bool
	Question string
	Options  []string
}

func (t PollTemplate) build(room string) *models.Poll {
	if !t.Enabled {
		return nil
	}
	question := t.Question
	if strings.Contains(question, "%s") {
		question = fmt.Sprintf(question, room)
	}
	poll, err := models.NewPoll(question, t.Options)
	if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("poll template rejected")
		return nil
	}
	return poll
}

// RoomSnapshot 加入房間當下的訊息紀錄與投票
type RoomSnapshot struct {
	Room     string
	Messages []models.Message
	Poll     *models.PollView
}

// Appended 成功寫入的訊息與其所屬分類
type Appended struct {
	Category string
	Message  models.Message
}

type roomKey struct {
	category string
	name     string
}

type room struct {
	key      roomKey
	messages []models.Message
	poll     *models.Poll
	// templated 表示 poll 由範本產生
	templated bool
	members   map[string]*member
}

type member struct {
	id       string
	name     string
	category string
	room     *room
	sink     Sink
}

func (m *member) info() MemberInfo {
	info := MemberInfo{ID: m.id, Name: m.name, Category: m.category, State: MemberIdentified}
	if m.room != nil {
		info.Room = m.room.key.name
		info.State = MemberInRoom
	}
	return info
}

// ChatState 持有所有房間、訊息、投票與成員資料。
// 資料只在 Run 的 goroutine 中讀寫，其他 goroutine 透過 commands 送出操作並等待完成。
type ChatState struct {
	commands chan func()
	stopped  chan struct{}
	template PollTemplate
	now      func() time.Time
	newID    func() string

	rooms   map[roomKey]*room
	members map[string]*member
}

func NewChatState(template PollTemplate, buffer int) *ChatState {
	return &ChatState{
		commands: make(chan func(), buffer),
		stopped:  make(chan struct{}),
		template: template,
		now:      time.Now,
		newID:    uuid.NewString,
		rooms:    make(map[roomKey]*room),
		members:  make(map[string]*member),
	}
}

// Run 依序執行操作直到 ctx 結束，只能呼叫一次
func (s *ChatState) Run(ctx context.Context) {
	defer close(s.stopped)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("chat state stopped")
			return
		case cmd := <-s.commands:
			cmd()
		}
	}
}

// do 將 fn 交給 Run 執行並等待完成。ctx 只限制排入佇列的等待，排入後一定等到 fn 執行完畢，
// 只有 Run 結束時才會回傳 ErrStateStopped。回傳錯誤時呼叫者不可讀取 fn 寫入的結果
func (s *ChatState) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return ErrStateStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.stopped:
		select {
		case <-finished:
			return nil
		default:
			return ErrStateStopped
		}
	}
}

// Register 建立成員（Identified）；同一個 ID 再次註冊時先離開目前的房間再更新資料
func (s *ChatState) Register(ctx context.Context, id, name, category string, sink Sink) (MemberInfo, error) {
	var left MemberInfo
	err := s.do(ctx, func() {
		if m, ok := s.members[id]; ok {
			left = m.info()
			s.leave(m)
			m.name, m.category, m.sink = name, category, sink
			return
		}
		s.members[id] = &member{id: id, name: name, category: category, sink: sink}
	})
	return left, err
}

// Unregister 釋放連線的所有關聯，回傳移除前的狀態
func (s *ChatState) Unregister(ctx context.Context, id string) (MemberInfo, error) {
	info := MemberInfo{ID: id, State: MemberDisconnected}
	var removed MemberInfo
	err := s.do(ctx, func() {
		m, ok := s.members[id]
		if !ok {
			removed = info
			return
		}
		removed = m.info()
		s.leave(m)
		delete(s.members, id)
	})
	if err != nil {
		return info, err
	}
	return removed, nil
}

func (s *ChatState) Member(ctx context.Context, id string) (MemberInfo, error) {
	var info MemberInfo
	err := s.do(ctx, func() {
		if m, ok := s.members[id]; ok {
			info = m.info()
			return
		}
		info = MemberInfo{ID: id, State: MemberDisconnected}
	})
	return info, err
}

// JoinRoom 將成員移到指定房間：從舊房間移除並加入新房間在同一個操作內完成。
// 加入後立即推送 roomMessages 與 poll 給該成員，回傳離開的房間名稱
func (s *ChatState) JoinRoom(ctx context.Context, memberID, roomName string) (RoomSnapshot, string, error) {
	var (
		snap  RoomSnapshot
		left  string
		opErr error
	)
	err := s.do(ctx, func() {
		m, ok := s.members[memberID]
		if !ok {
			opErr = ErrNotIdentified
			return
		}

		r := s.room(roomKey{m.category, roomName}, true)
		if m.room != r {
			if m.room != nil {
				left = m.room.key.name
			}
			s.leave(m)
			r.members[m.id] = m
			m.room = r
		}

		snap = r.snapshot()
		m.sink.Deliver(models.RoomMessagesEvent{Room: snap.Room, Messages: snap.Messages})
		if snap.Poll != nil {
			m.sink.Deliver(models.PollEvent{Room: snap.Room, Poll: *snap.Poll})
		}
	})
	if err != nil {
		return RoomSnapshot{}, "", err
	}
	return snap, left, opErr
}

// LeaveRoom InRoom -> Identified，回傳離開前的狀態
func (s *ChatState) LeaveRoom(ctx context.Context, memberID string) (MemberInfo, error) {
	var (
		before MemberInfo
		opErr  error
	)
	err := s.do(ctx, func() {
		m, ok := s.members[memberID]
		if !ok {
			opErr = ErrNotIdentified
			return
		}
		before = m.info()
		s.leave(m)
	})
	if err != nil {
		return MemberInfo{}, err
	}
	return before, opErr
}

// Append 寫入成員目前所在房間並廣播。空白訊息直接丟棄，回傳 nil
func (s *ChatState) Append(ctx context.Context, memberID, roomName, text string, clientTimestamp *time.Time) (*Appended, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var (
		result *Appended
		opErr  error
	)
	err := s.do(ctx, func() {
		m, ok := s.members[memberID]
		if !ok {
			opErr = ErrNotIdentified
			return
		}
		if m.room == nil || (roomName != "" && roomName != m.room.key.name) {
			opErr = ErrNotInRoom
			if roomName != "" {
				opErr = fmt.Errorf("%w: %s", ErrNotInRoom, roomName)
			}
			return
		}

		msg := s.append(m.room, models.Message{
			ID:              s.newID(),
			SenderID:        m.id,
			SenderName:      m.name,
			Text:            text,
			Timestamp:       s.now().UTC(),
			ClientTimestamp: clientTimestamp,
		})
		result = &Appended{Category: m.category, Message: msg}
	})
	if err != nil {
		return nil, err
	}
	return result, opErr
}

// AppendRemote 套用其他實例轉送的訊息，保留原本的 ID 與時間，序號依本地順序重新指定
func (s *ChatState) AppendRemote(ctx context.Context, category, roomName string, msg models.Message) (models.Message, error) {
	var stored models.Message
	err := s.do(ctx, func() {
		stored = s.append(s.room(roomKey{category, roomName}, true), msg)
	})
	return stored, err
}

// History 回傳房間目前為止的所有訊息，房間不存在時回傳空的列表
func (s *ChatState) History(ctx context.Context, category, roomName string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.do(ctx, func() {
		if r, ok := s.rooms[roomKey{category, roomName}]; ok {
			messages = append(messages, r.messages...)
		}
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *ChatState) Poll(ctx context.Context, category, roomName string) (models.PollView, error) {
	var (
		view  models.PollView
		opErr error
	)
	err := s.do(ctx, func() {
		r, ok := s.rooms[roomKey{category, roomName}]
		if !ok || r.poll == nil {
			opErr = ErrNoPoll
			return
		}
		view = r.poll.View()
	})
	if err != nil {
		return models.PollView{}, err
	}
	return view, opErr
}

// CreatePoll 為還沒有投票的房間建立投票並廣播給房間成員
func (s *ChatState) CreatePoll(ctx context.Context, category, roomName, question string, options []string) (models.PollView, error) {
	return s.createPoll(ctx, roomKey{category, roomName}, question, options, false)
}

// CreatePollRemote 套用其他實例建立的投票。
// 本地的投票若由範本產生且還沒有人投票，改用遠端的投票取代；內容相同時視為已套用
func (s *ChatState) CreatePollRemote(ctx context.Context, category, roomName, question string, options []string) (models.PollView, error) {
	return s.createPoll(ctx, roomKey{category, roomName}, question, options, true)
}

func (s *ChatState) createPoll(ctx context.Context, key roomKey, question string, options []string, remote bool) (models.PollView, error) {
	poll, err := models.NewPoll(question, options)
	if err != nil {
		return models.PollView{}, err
	}

	var (
		view  models.PollView
		opErr error
	)
	err = s.do(ctx, func() {
		r := s.room(key, false)
		if r.poll != nil {
			switch {
			case remote && samePoll(r.poll, poll):
				view = r.poll.View()
				return
			case remote && r.templated && r.poll.TotalVotes() == 0:
				log.Info().
					Str("category", key.category).
					Str("room", key.name).
					Msg("replacing template poll with relayed poll")
			default:
				opErr = ErrPollExists
				return
			}
		}
		r.poll = poll
		r.templated = false
		view = poll.View()
		s.broadcast(r, models.PollEvent{Room: key.name, Poll: view})
	})
	if err != nil {
		return models.PollView{}, err
	}
	return view, opErr
}

func samePoll(a, b *models.Poll) bool {
	return a.Question() == b.Question() && slices.Equal(a.Options(), b.Options())
}

// Vote 為 voterID 投票，同一投票者在同一投票只能投一次。
// 成功後將新的票數廣播給房間內所有成員
func (s *ChatState) Vote(ctx context.Context, voterID, category, roomName, option string) (models.PollView, error) {
	return s.vote(ctx, voterID, roomKey{category, roomName}, option, false)
}

// VoteRemote 套用其他實例的投票，房間不存在時依範本建立
func (s *ChatState) VoteRemote(ctx context.Context, voterID, category, roomName, option string) (models.PollView, error) {
	return s.vote(ctx, voterID, roomKey{category, roomName}, option, true)
}

func (s *ChatState) vote(ctx context.Context, voterID string, key roomKey, option string, create bool) (models.PollView, error) {
	var (
		view  models.PollView
		opErr error
	)
	err := s.do(ctx, func() {
		r, ok := s.rooms[key]
		if !ok && create {
			r, ok = s.room(key, true), true
		}
		if !ok || r.poll == nil {
			opErr = ErrNoPoll
			return
		}
		if opErr = r.poll.Vote(voterID, option); opErr != nil {
			return
		}
		view = r.poll.View()
		s.broadcast(r, models.PollEvent{Room: key.name, Poll: view})
	})
	if err != nil {
		return models.PollView{}, err
	}
	return view, opErr
}

// room 取得房間，不存在時建立；withTemplate 決定是否套用預設投票
func (s *ChatState) room(key roomKey, withTemplate bool) *room {
	if r, ok := s.rooms[key]; ok {
		return r
	}
	r := &room{key: key, members: make(map[string]*member)}
	if withTemplate {
		r.poll = s.template.build(key.name)
		r.templated = r.poll != nil
	}
	s.rooms[key] = r
	log.Debug().Str("category", key.category).Str("room", key.name).Msg("room created")
	return r
}

func (s *ChatState) append(r *room, msg models.Message) models.Message {
	msg.Room = r.key.name
	msg.Seq = uint64(len(r.messages)) + 1
	r.messages = append(r.messages, msg)
	s.broadcast(r, models.MessageEvent{Room: r.key.name, Message: msg})
	return msg
}

func (s *ChatState) leave(m *member) {
	if m.room == nil {
		return
	}
	delete(m.room.members, m.id)
	m.room = nil
}

func (s *ChatState) broadcast(r *room, evt models.ServerEvent) {
	for _, m := range r.members {
		if !m.sink.Deliver(evt) {
			log.Warn().
				Str("member", m.id).
				Str("room", r.key.name).
				Str("event", string(evt.Type())).
				Msg("dropping event for slow member")
		}
	}
}

func (r *room) snapshot() RoomSnapshot {
	snap := RoomSnapshot{
		Room:     r.key.name,
		Messages: append([]models.Message{}, r.messages...),
	}
	if r.poll != nil {
		view := r.poll.View()
		snap.Poll = &view
	}
	return snap
}
