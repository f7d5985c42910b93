package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"award_chat/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.ServerEvent
	full   bool
}

func (s *recordingSink) Deliver(evt models.ServerEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.events = append(s.events, evt)
	return true
}

func (s *recordingSink) Events() []models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ServerEvent(nil), s.events...)
}

func (s *recordingSink) Messages() []models.Message {
	var out []models.Message
	for _, evt := range s.Events() {
		if m, ok := evt.(models.MessageEvent); ok {
			out = append(out, m.Message)
		}
	}
	return out
}

func (s *recordingSink) Polls() []models.PollEvent {
	var out []models.PollEvent
	for _, evt := range s.Events() {
		if p, ok := evt.(models.PollEvent); ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

var testTemplate = PollTemplate{
	Enabled:  true,
	Question: "Vote for the best in %s",
	Options:  []string{"Nominee A", "Nominee B", "Nominee C"},
}

func startState(t *testing.T, tpl PollTemplate) *ChatState {
	t.Helper()
	state := NewChatState(tpl, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go state.Run(ctx)
	t.Cleanup(cancel)
	return state
}

func registerIn(t *testing.T, state *ChatState, id, name, category, roomName string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	ctx := context.Background()
	_, err := state.Register(ctx, id, name, category, sink)
	require.NoError(t, err)
	if roomName != "" {
		_, _, err = state.JoinRoom(ctx, id, roomName)
		require.NoError(t, err)
	}
	return sink
}

func TestChatState_JoinRoomDeliversHistoryAndPoll(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	_, err := state.Append(ctx, "m1", "General", "hello", nil)
	require.NoError(t, err)

	bob := registerIn(t, state, "m2", "Bob", "EduTech Award", "")
	snap, left, err := state.JoinRoom(ctx, "m2", "General")
	require.NoError(t, err)
	assert.Empty(t, left)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.Messages[0].Text)
	require.NotNil(t, snap.Poll)
	assert.Equal(t, "Vote for the best in General", snap.Poll.Question)

	events := bob.Events()
	require.Len(t, events, 2)
	history, ok := events[0].(models.RoomMessagesEvent)
	require.True(t, ok)
	assert.Equal(t, "General", history.Room)
	assert.Len(t, history.Messages, 1)
	_, ok = events[1].(models.PollEvent)
	assert.True(t, ok)
}

func TestChatState_SwitchingRoomsLeavesPreviousRoom(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	registerIn(t, state, "m2", "Bob", "EduTech Award", "General")

	_, left, err := state.JoinRoom(ctx, "m1", "Innovation Award")
	require.NoError(t, err)
	assert.Equal(t, "General", left)
	alice.Reset()

	_, err = state.Append(ctx, "m2", "General", "only general", nil)
	require.NoError(t, err)
	assert.Empty(t, alice.Messages())

	info, err := state.Member(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, MemberInRoom, info.State)
	assert.Equal(t, "Innovation Award", info.Room)
}

func TestChatState_RejoinSameRoomIsNotALeave(t *testing.T) {
	state := startState(t, testTemplate)
	registerIn(t, state, "m1", "Alice", "EduTech Award", "General")

	_, left, err := state.JoinRoom(context.Background(), "m1", "General")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestChatState_RoomsAreScopedByCategory(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	edu := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	registerIn(t, state, "m2", "Bob", "Teacher Award", "General")

	_, err := state.Append(ctx, "m2", "General", "teacher talk", nil)
	require.NoError(t, err)
	assert.Empty(t, edu.Messages())

	history, err := state.History(ctx, "EduTech Award", "General")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChatState_AppendAssignsSequenceAndBroadcasts(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	state.now = func() time.Time { return fixed }

	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	bob := registerIn(t, state, "m2", "Bob", "EduTech Award", "General")

	clientTS := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := state.Append(ctx, "m1", "General", "  first  ", &clientTS)
	require.NoError(t, err)
	second, err := state.Append(ctx, "m2", "", "second", nil)
	require.NoError(t, err)

	assert.Equal(t, "first", first.Message.Text)
	assert.Equal(t, uint64(1), first.Message.Seq)
	assert.Equal(t, uint64(2), second.Message.Seq)
	assert.Equal(t, "EduTech Award", first.Category)
	assert.Equal(t, fixed, first.Message.Timestamp)
	assert.Equal(t, &clientTS, first.Message.ClientTimestamp)
	assert.Equal(t, "Alice", first.Message.SenderName)
	assert.NotEmpty(t, first.Message.ID)

	for _, sink := range []*recordingSink{alice, bob} {
		msgs := sink.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "first", msgs[0].Text)
		assert.Equal(t, "second", msgs[1].Text)
	}

	history, err := state.History(ctx, "EduTech Award", "General")
	require.NoError(t, err)
	assert.Equal(t, []models.Message{first.Message, second.Message}, history)
}

func TestChatState_AppendDropsBlankText(t *testing.T) {
	state := startState(t, testTemplate)
	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	alice.Reset()

	appended, err := state.Append(context.Background(), "m1", "General", "   \t ", nil)
	require.NoError(t, err)
	assert.Nil(t, appended)
	assert.Empty(t, alice.Events())
}

func TestChatState_AppendRequiresMembership(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	_, err := state.Append(ctx, "ghost", "General", "hi", nil)
	assert.ErrorIs(t, err, ErrNotIdentified)

	registerIn(t, state, "m1", "Alice", "EduTech Award", "")
	_, err = state.Append(ctx, "m1", "General", "hi", nil)
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.EqualError(t, err, "member is not in that room: General")

	_, err = state.Append(ctx, "m1", "", "hi", nil)
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.EqualError(t, err, "member is not in that room")

	_, _, err = state.JoinRoom(ctx, "m1", "General")
	require.NoError(t, err)
	_, err = state.Append(ctx, "m1", "Innovation Award", "hi", nil)
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestChatState_LeaveRoom(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()
	registerIn(t, state, "m1", "Alice", "EduTech Award", "General")

	before, err := state.LeaveRoom(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "General", before.Room)
	assert.Equal(t, "EduTech Award", before.Category)

	before, err = state.LeaveRoom(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, before.Room)

	info, err := state.Member(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, MemberIdentified, info.State)

	_, err = state.LeaveRoom(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotIdentified)
}

func TestChatState_VoteOncePerMember(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	bob := registerIn(t, state, "m2", "Bob", "EduTech Award", "General")
	alice.Reset()
	bob.Reset()

	view, err := state.Vote(ctx, "m1", "EduTech Award", "General", "Nominee A")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Votes["Nominee A"])
	assert.Equal(t, 100, view.Percentages["Nominee A"])

	_, err = state.Vote(ctx, "m1", "EduTech Award", "General", "Nominee B")
	assert.ErrorIs(t, err, models.ErrAlreadyVoted)

	_, err = state.Vote(ctx, "m2", "EduTech Award", "General", "Nominee Z")
	assert.ErrorIs(t, err, models.ErrUnknownOption)

	view, err = state.Vote(ctx, "m2", "EduTech Award", "General", "Nominee B")
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalVotes)
	assert.Equal(t, 50, view.Percentages["Nominee A"])
	assert.Equal(t, 50, view.Percentages["Nominee B"])

	for _, sink := range []*recordingSink{alice, bob} {
		polls := sink.Polls()
		require.Len(t, polls, 2)
		assert.Equal(t, 2, polls[1].Poll.TotalVotes)
	}
}

func TestChatState_VoteWithoutPoll(t *testing.T) {
	state := startState(t, PollTemplate{})
	ctx := context.Background()

	_, err := state.Vote(ctx, "m1", "EduTech Award", "General", "Nominee A")
	assert.ErrorIs(t, err, ErrNoPoll)

	registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	_, err = state.Vote(ctx, "m1", "EduTech Award", "General", "Nominee A")
	assert.ErrorIs(t, err, ErrNoPoll)

	_, err = state.Poll(ctx, "EduTech Award", "General")
	assert.ErrorIs(t, err, ErrNoPoll)
}

func TestChatState_CreatePoll(t *testing.T) {
	state := startState(t, PollTemplate{})
	ctx := context.Background()
	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	alice.Reset()

	view, err := state.CreatePoll(ctx, "EduTech Award", "General", "Best teacher?", []string{"Ms. Lin", "Mr. Wu"})
	require.NoError(t, err)
	assert.Equal(t, "Best teacher?", view.Question)
	assert.Equal(t, 0, view.TotalVotes)
	assert.Len(t, alice.Polls(), 1)

	_, err = state.CreatePoll(ctx, "EduTech Award", "General", "Again?", []string{"yes"})
	assert.ErrorIs(t, err, ErrPollExists)

	_, err = state.CreatePoll(ctx, "EduTech Award", "Other", "", []string{"yes"})
	assert.ErrorIs(t, err, models.ErrInvalidPoll)

	view, err = state.CreatePoll(ctx, "EduTech Award", "Fresh Room", "Fresh?", []string{"yes", "no"})
	require.NoError(t, err)
	assert.Equal(t, "Fresh?", view.Question)
}

func TestChatState_CreatePollRemote(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()
	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	alice.Reset()

	// 範本投票還沒有人投票，改用遠端的投票
	view, err := state.CreatePollRemote(ctx, "EduTech Award", "General", "Best tool?", []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, "Best tool?", view.Question)
	require.Len(t, alice.Polls(), 1)

	// 重複送達視為已套用，不再廣播
	_, err = state.CreatePollRemote(ctx, "EduTech Award", "General", "Best tool?", []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, alice.Polls(), 1)

	_, err = state.CreatePollRemote(ctx, "EduTech Award", "General", "Another?", []string{"x", "y"})
	assert.ErrorIs(t, err, ErrPollExists)

	// 已有投票的範本投票不會被取代
	_, _, err = state.JoinRoom(ctx, "m1", "Innovation Award")
	require.NoError(t, err)
	_, err = state.Vote(ctx, "m1", "EduTech Award", "Innovation Award", "Nominee A")
	require.NoError(t, err)
	_, err = state.CreatePollRemote(ctx, "EduTech Award", "Innovation Award", "Best tool?", []string{"x", "y"})
	assert.ErrorIs(t, err, ErrPollExists)
}

func TestChatState_VoteRemoteCreatesRoomFromTemplate(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	view, err := state.VoteRemote(ctx, "remote-member", "EduTech Award", "Innovation Award", "Nominee C")
	require.NoError(t, err)
	assert.Equal(t, "Vote for the best in Innovation Award", view.Question)
	assert.Equal(t, 1, view.Votes["Nominee C"])

	_, err = state.VoteRemote(ctx, "remote-member", "EduTech Award", "Innovation Award", "Nominee A")
	assert.ErrorIs(t, err, models.ErrAlreadyVoted)
}

func TestChatState_InvalidTemplateCreatesNoPoll(t *testing.T) {
	state := startState(t, PollTemplate{Enabled: true, Question: "Q", Options: []string{"dup", "dup"}})
	registerIn(t, state, "m1", "Alice", "EduTech Award", "General")

	_, err := state.Poll(context.Background(), "EduTech Award", "General")
	assert.ErrorIs(t, err, ErrNoPoll)
}

func TestChatState_AppendRemoteKeepsIdentity(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()
	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	alice.Reset()

	remote := models.Message{
		ID:         "remote-1",
		SenderID:   "m9",
		SenderName: "Remote",
		Text:       "from afar",
		Timestamp:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Seq:        42,
	}
	stored, err := state.AppendRemote(ctx, "EduTech Award", "General", remote)
	require.NoError(t, err)
	assert.Equal(t, "remote-1", stored.ID)
	assert.Equal(t, uint64(1), stored.Seq)
	assert.Equal(t, "General", stored.Room)

	msgs := alice.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "from afar", msgs[0].Text)
}

func TestChatState_UnregisterReleasesMembership(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	alice := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	registerIn(t, state, "m2", "Bob", "EduTech Award", "General")
	alice.Reset()

	removed, err := state.Unregister(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "General", removed.Room)
	assert.Equal(t, MemberInRoom, removed.State)

	_, err = state.Append(ctx, "m2", "General", "anyone?", nil)
	require.NoError(t, err)
	assert.Empty(t, alice.Events())

	info, err := state.Member(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, MemberDisconnected, info.State)

	removed, err = state.Unregister(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, MemberDisconnected, removed.State)
}

func TestChatState_ReRegisterResetsRoom(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()
	registerIn(t, state, "m1", "Alice", "EduTech Award", "General")

	previous, err := state.Register(ctx, "m1", "Alice", "Teacher Award", &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "EduTech Award", previous.Category)
	assert.Equal(t, "General", previous.Room)

	info, err := state.Member(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, MemberIdentified, info.State)
	assert.Equal(t, "Teacher Award", info.Category)
}

func TestChatState_SlowSinkDoesNotBlock(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	slow := registerIn(t, state, "m1", "Alice", "EduTech Award", "General")
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()
	bob := registerIn(t, state, "m2", "Bob", "EduTech Award", "General")
	bob.Reset()

	_, err := state.Append(ctx, "m2", "General", "still flowing", nil)
	require.NoError(t, err)
	assert.Len(t, bob.Messages(), 1)
}

func TestChatState_ConcurrentAppendsKeepOneOrder(t *testing.T) {
	state := startState(t, testTemplate)
	ctx := context.Background()

	const writers, perWriter = 8, 25
	sinks := make([]*recordingSink, writers)
	for i := range sinks {
		id := string(rune('a' + i))
		sinks[i] = registerIn(t, state, id, id, "EduTech Award", "General")
		sinks[i].Reset()
	}

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := state.Append(ctx, id, "General", "msg", nil)
				assert.NoError(t, err)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	history, err := state.History(ctx, "EduTech Award", "General")
	require.NoError(t, err)
	require.Len(t, history, writers*perWriter)
	for i, msg := range history {
		assert.Equal(t, uint64(i+1), msg.Seq)
	}
	for _, sink := range sinks {
		assert.Equal(t, history, sink.Messages())
	}
}

func TestChatState_StoppedAndCancelled(t *testing.T) {
	state := NewChatState(testTemplate, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := state.Member(ctx, "m1")
	assert.ErrorIs(t, err, context.Canceled)

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		state.Run(runCtx)
		close(done)
	}()
	stop()
	<-done

	_, err = state.History(context.Background(), "EduTech Award", "General")
	assert.ErrorIs(t, err, ErrStateStopped)
}
