package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"award_chat/internal/models"
	"award_chat/pkg/config"
)

var testWebSocketConfig = config.WebSocketConfig{
	ReadLimit:  4096,
	PongWait:   time.Minute,
	PingPeriod: 54 * time.Second,
	WriteWait:  time.Second,
	SendBuffer: 64,
}

func newWebSocketServer(t *testing.T) (*WebSocketService, *chatFixture, string) {
	t.Helper()
	f := newChatFixture(t)
	ws := NewWebSocketService(f.svc, testWebSocketConfig)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	return ws, f, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, evt models.ClientEvent) {
	t.Helper()
	data, err := models.EncodeClientEvent(evt)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func receive(t *testing.T, conn *websocket.Conn) models.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	evt, err := models.DecodeServerEvent(data)
	require.NoError(t, err)
	return evt
}

// receiveType 讀到指定種類的事件為止
func receiveType[T models.ServerEvent](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	for i := 0; i < 20; i++ {
		if evt, ok := receive(t, conn).(T); ok {
			return evt
		}
	}
	var zero T
	t.Fatalf("no %T received", zero)
	return zero
}

func joinOverSocket(t *testing.T, conn *websocket.Conn, name, category string) models.JoinedEvent {
	t.Helper()
	send(t, conn, models.JoinEvent{Name: name, Category: category})
	joined := receiveType[models.JoinedEvent](t, conn)
	receiveType[models.AvailableRoomsEvent](t, conn)
	receiveType[models.RoomMessagesEvent](t, conn)
	receiveType[models.PollEvent](t, conn)
	return joined
}

func TestWebSocket_JoinSendAndVote(t *testing.T) {
	ws, _, url := newWebSocketServer(t)
	ada := dial(t, url)

	send(t, ada, models.JoinEvent{Name: "Ada", Category: "EduTech Award"})
	joined := receiveType[models.JoinedEvent](t, ada)
	assert.Equal(t, "Ada", joined.Name)
	assert.Equal(t, "General", joined.Room)
	assert.NotEmpty(t, joined.Token)

	rooms := receiveType[models.AvailableRoomsEvent](t, ada)
	assert.Equal(t, []string{"General", "Innovation Award", "E-Learning Award"}, rooms.Rooms)

	history := receiveType[models.RoomMessagesEvent](t, ada)
	assert.Empty(t, history.Messages)
	poll := receiveType[models.PollEvent](t, ada)
	assert.Equal(t, 0, poll.Poll.TotalVotes)

	send(t, ada, models.SendMessageEvent{Room: "General", Text: "hello"})
	msg := receiveType[models.MessageEvent](t, ada)
	assert.Equal(t, "hello", msg.Message.Text)
	assert.Equal(t, "Ada", msg.Message.SenderName)

	send(t, ada, models.VoteEvent{Room: "General", Option: "Nominee A"})
	poll = receiveType[models.PollEvent](t, ada)
	assert.Equal(t, 1, poll.Poll.Votes["Nominee A"])
	assert.Equal(t, 100, poll.Poll.Percentages["Nominee A"])

	send(t, ada, models.VoteEvent{Room: "General", Option: "Nominee B"})
	errEvt := receiveType[models.ErrorEvent](t, ada)
	assert.Equal(t, "already_voted", errEvt.Code)

	assert.Equal(t, 1, ws.Connections())
}

func TestWebSocket_BroadcastReachesOtherMembers(t *testing.T) {
	_, _, url := newWebSocketServer(t)
	ada, bob := dial(t, url), dial(t, url)
	joinOverSocket(t, ada, "Ada", "EduTech Award")
	joinOverSocket(t, bob, "Bob", "EduTech Award")

	send(t, ada, models.SendMessageEvent{Text: "hi bob"})
	msg := receiveType[models.MessageEvent](t, bob)
	assert.Equal(t, "hi bob", msg.Message.Text)

	send(t, ada, models.VoteEvent{Option: "Nominee C"})
	poll := receiveType[models.PollEvent](t, bob)
	assert.Equal(t, 1, poll.Poll.Votes["Nominee C"])
}

func TestWebSocket_JoinRoomReplaysHistory(t *testing.T) {
	_, _, url := newWebSocketServer(t)
	ada, bob := dial(t, url), dial(t, url)
	joinOverSocket(t, ada, "Ada", "EduTech Award")
	joinOverSocket(t, bob, "Bob", "EduTech Award")

	send(t, ada, models.JoinRoomEvent{Room: "Innovation Award"})
	receiveType[models.RoomMessagesEvent](t, ada)
	send(t, ada, models.SendMessageEvent{Text: "first"})
	receiveType[models.MessageEvent](t, ada)

	send(t, bob, models.JoinRoomEvent{Room: "Innovation Award"})
	history := receiveType[models.RoomMessagesEvent](t, bob)
	assert.Equal(t, "Innovation Award", history.Room)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "first", history.Messages[0].Text)
}

func TestWebSocket_ErrorsKeepConnectionOpen(t *testing.T) {
	_, _, url := newWebSocketServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	assert.Equal(t, "bad_request", receiveType[models.ErrorEvent](t, conn).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, "bad_request", receiveType[models.ErrorEvent](t, conn).Code)

	send(t, conn, models.SendMessageEvent{Text: "too early"})
	assert.Equal(t, "not_identified", receiveType[models.ErrorEvent](t, conn).Code)

	send(t, conn, models.JoinEvent{Name: " ", Category: "EduTech Award"})
	assert.Equal(t, "empty_name", receiveType[models.ErrorEvent](t, conn).Code)

	send(t, conn, models.JoinEvent{Name: "Ada", Category: "Nope"})
	assert.Equal(t, "unknown_category", receiveType[models.ErrorEvent](t, conn).Code)

	joinOverSocket(t, conn, "Ada", "EduTech Award")
	send(t, conn, models.JoinRoomEvent{Room: "Nowhere"})
	assert.Equal(t, "unknown_room", receiveType[models.ErrorEvent](t, conn).Code)

	send(t, conn, models.VoteEvent{Option: "Nobody"})
	assert.Equal(t, "unknown_option", receiveType[models.ErrorEvent](t, conn).Code)
}

func TestWebSocket_DisconnectReleasesMember(t *testing.T) {
	ws, f, url := newWebSocketServer(t)
	conn := dial(t, url)
	joined := joinOverSocket(t, conn, "Ada", "EduTech Award")
	require.Equal(t, int64(1), f.online(t, "EduTech Award", "General"))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		info, err := f.state.Member(context.Background(), joined.MemberID)
		return err == nil && info.State == MemberDisconnected && ws.Connections() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), f.online(t, "EduTech Award", "General"))
}

func TestWebSocket_Shutdown(t *testing.T) {
	ws, _, url := newWebSocketServer(t)
	conn := dial(t, url)
	joinOverSocket(t, conn, "Ada", "EduTech Award")

	ws.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway) || strings.Contains(err.Error(), "close"))
}

func TestWebSocket_RejectsConnectionsAfterShutdown(t *testing.T) {
	ws, _, url := newWebSocketServer(t)
	ws.Shutdown()

	conn := dial(t, url)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway) || strings.Contains(err.Error(), "close"))
	assert.Equal(t, 0, ws.Connections())
}

func TestClient_DeliverDoesNotBlock(t *testing.T) {
	client := &Client{ID: "c1", SendChan: make(chan models.ServerEvent, 1), done: make(chan struct{})}
	// 沒有真正的連線，讓 close 不做任何事
	client.closeOnce.Do(func() {})

	assert.True(t, client.Deliver(models.ErrorEvent{Code: "first"}))
	assert.False(t, client.Deliver(models.ErrorEvent{Code: "full"}))

	close(client.done)
	<-client.SendChan
	assert.False(t, client.Deliver(models.ErrorEvent{Code: "closed"}))
	assert.Empty(t, client.SendChan)
}
