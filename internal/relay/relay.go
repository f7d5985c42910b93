// Package relay 在多台伺服器之間轉送聊天室的異動。
//
// 每個實例在本地處理完訊息、投票或建立投票後發佈一筆 Event，
// 其他實例收到後套用到自己的狀態並廣播給本地成員。
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"award_chat/internal/models"
)

type Kind string

const (
	KindMessage     Kind = "message"
	KindVote        Kind = "vote"
	KindPollCreated Kind = "pollCreated"
)

// Event 在實例之間傳遞的異動
type Event struct {
	Origin   string          `json:"origin"`
	Kind     Kind            `json:"kind"`
	Category string          `json:"category"`
	Room     string          `json:"room"`
	Message  *models.Message `json:"message,omitempty"`
	VoterID  string          `json:"voterId,omitempty"`
	Option   string          `json:"option,omitempty"`
	Question string          `json:"question,omitempty"`
	Options  []string        `json:"options,omitempty"`
}

type Handler func(Event)

type Relay interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe 註冊處理其他實例事件的 handler，自己發出的事件不會送回
	Subscribe(handler Handler) error
	Close() error
}

// Local 單機部署使用，不轉送任何事件
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (*Local) Publish(context.Context, Event) error { return nil }
func (*Local) Subscribe(Handler) error              { return nil }
func (*Local) Close() error                         { return nil }

func encodeEvent(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize relay event: %w", err)
	}
	return data, nil
}
