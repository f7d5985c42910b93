package models

import (
	"errors"
	"math"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrInvalidPoll   = errors.New("poll needs a question and at least one unique option")
	ErrUnknownOption = errors.New("unknown poll option")
	ErrAlreadyVoted  = errors.New("member already voted in this poll")
)

// Poll 表示房間內的單一問題投票
// 選項在建立後不可變更，只有票數會增加。Poll 本身不做同步，由持有它的 goroutine 負責
type Poll struct {
	question string
	options  []string
	votes    map[string]int
	voters   map[string]string // 投票者 ID -> 選項
}

// PollView 是投票的唯讀快照，用於 API 與廣播
type PollView struct {
	Question    string         `json:"question"`
	Options     []string       `json:"options"`
	Votes       map[string]int `json:"votes"`
	Percentages map[string]int `json:"percentages"`
	TotalVotes  int            `json:"totalVotes"`
}

// NewPoll 建立新的投票，所有選項的票數初始為 0
func NewPoll(question string, options []string) (*Poll, error) {
	question = strings.TrimSpace(question)
	cleaned := lo.Map(options, func(o string, _ int) string { return strings.TrimSpace(o) })

	if question == "" || len(cleaned) == 0 || lo.Contains(cleaned, "") || len(lo.Uniq(cleaned)) != len(cleaned) {
		return nil, ErrInvalidPoll
	}

	votes := make(map[string]int, len(cleaned))
	for _, o := range cleaned {
		votes[o] = 0
	}

	return &Poll{
		question: question,
		options:  cleaned,
		votes:    votes,
		voters:   make(map[string]string),
	}, nil
}

func (p *Poll) Question() string {
	return p.question
}

// Options 回傳選項的副本
func (p *Poll) Options() []string {
	return append([]string(nil), p.options...)
}

// Vote 為 voterID 投下一票。同一個投票者在同一個投票中只能投一次，
// 檢查與計票在同一步完成
func (p *Poll) Vote(voterID, option string) error {
	if _, ok := p.votes[option]; !ok {
		return ErrUnknownOption
	}
	if _, voted := p.voters[voterID]; voted {
		return ErrAlreadyVoted
	}

	p.voters[voterID] = option
	p.votes[option]++
	return nil
}

func (p *Poll) TotalVotes() int {
	return len(p.voters)
}

// View 產生目前票數與百分比的快照
func (p *Poll) View() PollView {
	total := p.TotalVotes()
	votes := make(map[string]int, len(p.options))
	percentages := make(map[string]int, len(p.options))
	for _, o := range p.options {
		votes[o] = p.votes[o]
		percentages[o] = Percentage(p.votes[o], total)
	}

	return PollView{
		Question:    p.question,
		Options:     p.Options(),
		Votes:       votes,
		Percentages: percentages,
		TotalVotes:  total,
	}
}

// Percentage 計算 round(100 * count / total)，total 為 0 時回傳 0
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(count) / float64(total)))
}
