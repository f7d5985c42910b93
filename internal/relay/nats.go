package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSRelay 透過單一 NATS subject 轉送事件
type NATSRelay struct {
	conn    *nats.Conn
	subject string
	origin  string

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewNATSRelay(url, subject string) (*NATSRelay, error) {
	nc, err := nats.Connect(url, nats.Name("award_chat"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSRelay{
		conn:    nc,
		subject: subject,
		origin:  uuid.NewString(),
	}, nil
}

func (r *NATSRelay) Publish(_ context.Context, evt Event) error {
	evt.Origin = r.origin
	data, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	return r.conn.Publish(r.subject, data)
}

func (r *NATSRelay) Subscribe(handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return fmt.Errorf("relay already subscribed to %s", r.subject)
	}

	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		evt, ok := r.decode(msg.Data)
		if !ok {
			return
		}
		handler(evt)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.subject, err)
	}

	r.sub = sub
	return nil
}

// decode 解析事件並略過自己發出的事件
func (r *NATSRelay) decode(data []byte) (Event, bool) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		log.Warn().Err(err).Msg("skipping malformed relay event")
		return evt, false
	}
	if evt.Origin == r.origin {
		return evt, false
	}
	return evt, true
}

func (r *NATSRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		_ = r.sub.Unsubscribe()
		r.sub = nil
	}
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
		return err
	}
	return nil
}
