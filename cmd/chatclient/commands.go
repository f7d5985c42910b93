package main

import (
	"errors"
	"strings"
	"time"

	"award_chat/internal/models"
)

type localCommand int

const (
	cmdNone localCommand = iota
	cmdRooms
	cmdPoll
	cmdHelp
	cmdQuit
)

var errUsage = errors.New("usage: /room <name> | /vote <option> | /leave | /rooms | /poll | /help | /quit")

// parseLine 將輸入轉成要送出的事件或本地指令，一般文字視為訊息
func parseLine(line string, now time.Time) (models.ClientEvent, localCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, cmdNone, nil
	}
	if !strings.HasPrefix(line, "/") {
		return models.SendMessageEvent{Text: line, Timestamp: &now}, cmdNone, nil
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/room":
		if arg == "" {
			return nil, cmdNone, errUsage
		}
		return models.JoinRoomEvent{Room: arg}, cmdNone, nil
	case "/vote":
		if arg == "" {
			return nil, cmdNone, errUsage
		}
		return models.VoteEvent{Option: arg}, cmdNone, nil
	case "/leave":
		return models.LeaveRoomEvent{}, cmdNone, nil
	case "/rooms":
		return nil, cmdRooms, nil
	case "/poll":
		return nil, cmdPoll, nil
	case "/help":
		return nil, cmdHelp, nil
	case "/quit", "/exit":
		return nil, cmdQuit, nil
	default:
		return nil, cmdNone, errUsage
	}
}
