package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"award_chat/internal/models"
)

// view 保存畫面需要的最新狀態，讀取 goroutine 寫入、輸入 goroutine 讀取
type view struct {
	mu       sync.Mutex
	out      io.Writer
	self     string
	category string
	room     string
	rooms    []string
	polls    map[string]models.PollView
}

func newView(out io.Writer) *view {
	return &view{out: out, polls: make(map[string]models.PollView)}
}

// apply 更新狀態並輸出事件
func (v *view) apply(evt models.ServerEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch e := evt.(type) {
	case models.JoinedEvent:
		v.self, v.category, v.room = e.MemberID, e.Category, e.Room
		fmt.Fprintln(v.out, color.Green.Sprintf("joined %s as %s", e.Category, e.Name))
	case models.AvailableRoomsEvent:
		v.rooms = e.Rooms
		v.renderRooms()
	case models.RoomMessagesEvent:
		v.room = e.Room
		fmt.Fprintln(v.out, color.New(color.FgCyan, color.OpBold).Sprintf("== %s (%d messages) ==", e.Room, len(e.Messages)))
		for _, m := range e.Messages {
			v.printMessage(m)
		}
	case models.MessageEvent:
		if e.Room == v.room {
			v.printMessage(e.Message)
		}
	case models.PollEvent:
		v.polls[e.Room] = e.Poll
		if e.Room == v.room {
			v.renderPoll(e.Poll)
		}
	case models.ErrorEvent:
		fmt.Fprintln(v.out, color.Red.Sprintf("error [%s]: %s", e.Code, e.Message))
	}
}

func (v *view) printMessage(m models.Message) {
	sender := color.Yellow.Sprint(m.SenderName)
	if m.SenderID == v.self {
		sender = color.Magenta.Sprint(m.SenderName)
	}
	fmt.Fprintf(v.out, "%s %s: %s\n", color.Gray.Sprint(m.Timestamp.Local().Format("15:04:05")), sender, m.Text)
}

func (v *view) showRooms() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renderRooms()
}

func (v *view) showPoll() {
	v.mu.Lock()
	defer v.mu.Unlock()

	poll, ok := v.polls[v.room]
	if !ok {
		fmt.Fprintln(v.out, color.Gray.Sprint("no poll in this room"))
		return
	}
	v.renderPoll(poll)
}

func (v *view) renderRooms() {
	table := newTable(v.out)
	table.SetHeader([]string{"", "Room"})
	for _, r := range v.rooms {
		marker := ""
		if r == v.room {
			marker = "*"
		}
		table.Append([]string{marker, r})
	}
	table.Render()
}

func (v *view) renderPoll(poll models.PollView) {
	fmt.Fprintln(v.out, color.Bold.Sprint(poll.Question))
	table := newTable(v.out)
	table.SetHeader([]string{"Option", "Votes", "%"})
	for _, o := range poll.Options {
		table.Append([]string{o, strconv.Itoa(poll.Votes[o]), strconv.Itoa(poll.Percentages[o]) + "%"})
	}
	table.SetFooter([]string{"Total", strconv.Itoa(poll.TotalVotes), ""})
	table.Render()
}

func newTable(out io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}
