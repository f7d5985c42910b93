package service

import (
	"errors"

	"award_chat/internal/models"
)

var (
	ErrEmptyName       = errors.New("display name is required")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownRoom     = errors.New("unknown room")
	ErrNotIdentified   = errors.New("member has not joined a category")
	ErrNotInRoom       = errors.New("member is not in that room")
	ErrNoPoll          = errors.New("no poll for this room")
	ErrPollExists      = errors.New("room already has a poll")
	ErrStateStopped    = errors.New("chat state is stopped")
)

// ErrorCode 將錯誤轉換成 WebSocket error 事件使用的代碼
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrEmptyName):
		return "empty_name"
	case errors.Is(err, ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, ErrUnknownRoom):
		return "unknown_room"
	case errors.Is(err, ErrNotIdentified):
		return "not_identified"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrNoPoll):
		return "no_poll"
	case errors.Is(err, ErrPollExists):
		return "poll_exists"
	case errors.Is(err, models.ErrUnknownOption):
		return "unknown_option"
	case errors.Is(err, models.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, models.ErrInvalidPoll),
		errors.Is(err, models.ErrUnknownEvent),
		errors.Is(err, models.ErrMalformedEvent):
		return "bad_request"
	default:
		return "internal"
	}
}
