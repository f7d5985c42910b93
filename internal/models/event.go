package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType 即時通道上的事件種類，為封閉集合
type EventType string

const (
	// 客戶端 -> 伺服器
	EventJoin        EventType = "join"
	EventJoinRoom    EventType = "joinRoom"
	EventLeaveRoom   EventType = "leaveRoom"
	EventSendMessage EventType = "sendMessage"
	EventVote        EventType = "vote"

	// 伺服器 -> 客戶端
	EventJoined         EventType = "joined"
	EventAvailableRooms EventType = "availableRooms"
	EventRoomMessages   EventType = "roomMessages"
	EventMessage        EventType = "message"
	EventPoll           EventType = "poll"
	EventError          EventType = "error"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("malformed event payload")
)

// Envelope 是每個 WebSocket 訊框的外層結構
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientEvent 客戶端送往伺服器的事件
type ClientEvent interface {
	Type() EventType
	isClientEvent()
}

// ServerEvent 伺服器推送給客戶端的事件
type ServerEvent interface {
	Type() EventType
	isServerEvent()
}

type JoinEvent struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type JoinRoomEvent struct {
	Room string `json:"room"`
}

type LeaveRoomEvent struct{}

type SendMessageEvent struct {
	Room      string     `json:"room"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type VoteEvent struct {
	Room   string `json:"room"`
	Option string `json:"option"`
}

func (JoinEvent) Type() EventType        { return EventJoin }
func (JoinRoomEvent) Type() EventType    { return EventJoinRoom }
func (LeaveRoomEvent) Type() EventType   { return EventLeaveRoom }
func (SendMessageEvent) Type() EventType { return EventSendMessage }
func (VoteEvent) Type() EventType        { return EventVote }

func (JoinEvent) isClientEvent()        {}
func (JoinRoomEvent) isClientEvent()    {}
func (LeaveRoomEvent) isClientEvent()   {}
func (SendMessageEvent) isClientEvent() {}
func (VoteEvent) isClientEvent()        {}

type JoinedEvent struct {
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Room     string `json:"room"`
	Token    string `json:"token"`
}

type AvailableRoomsEvent struct {
	Category string   `json:"category"`
	Rooms    []string `json:"rooms"`
}

type RoomMessagesEvent struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

type MessageEvent struct {
	Room    string  `json:"room"`
	Message Message `json:"message"`
}

type PollEvent struct {
	Room string   `json:"room"`
	Poll PollView `json:"poll"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (JoinedEvent) Type() EventType         { return EventJoined }
func (AvailableRoomsEvent) Type() EventType { return EventAvailableRooms }
func (RoomMessagesEvent) Type() EventType   { return EventRoomMessages }
func (MessageEvent) Type() EventType        { return EventMessage }
func (PollEvent) Type() EventType           { return EventPoll }
func (ErrorEvent) Type() EventType          { return EventError }

func (JoinedEvent) isServerEvent()         {}
func (AvailableRoomsEvent) isServerEvent() {}
func (RoomMessagesEvent) isServerEvent()   {}
func (MessageEvent) isServerEvent()        {}
func (PollEvent) isServerEvent()           {}
func (ErrorEvent) isServerEvent()          {}

// DecodeClientEvent 將訊框解析為具體的客戶端事件
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case EventJoin:
		return decodeClient[JoinEvent](env.Payload)
	case EventJoinRoom:
		return decodeClient[JoinRoomEvent](env.Payload)
	case EventLeaveRoom:
		return decodeClient[LeaveRoomEvent](env.Payload)
	case EventSendMessage:
		return decodeClient[SendMessageEvent](env.Payload)
	case EventVote:
		return decodeClient[VoteEvent](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// DecodeServerEvent 將訊框解析為具體的伺服器事件，供客戶端使用
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case EventJoined:
		return decodeServer[JoinedEvent](env.Payload)
	case EventAvailableRooms:
		return decodeServer[AvailableRoomsEvent](env.Payload)
	case EventRoomMessages:
		return decodeServer[RoomMessagesEvent](env.Payload)
	case EventMessage:
		return decodeServer[MessageEvent](env.Payload)
	case EventPoll:
		return decodeServer[PollEvent](env.Payload)
	case EventError:
		return decodeServer[ErrorEvent](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// EncodeServerEvent 將伺服器事件包成 Envelope JSON
func EncodeServerEvent(evt ServerEvent) ([]byte, error) {
	return encode(evt.Type(), evt)
}

// EncodeClientEvent 將客戶端事件包成 Envelope JSON
func EncodeClientEvent(evt ClientEvent) ([]byte, error) {
	return encode(evt.Type(), evt)
}

func encode(t EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return env, nil
}

func decodeClient[T ClientEvent](raw json.RawMessage) (ClientEvent, error) {
	var v T
	if err := decodePayload(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeServer[T ServerEvent](raw json.RawMessage) (ServerEvent, error) {
	var v T
	if err := decodePayload(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodePayload 允許沒有 payload 的事件，例如 leaveRoom
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
