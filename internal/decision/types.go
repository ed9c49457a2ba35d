package decision

import (
	"errors"
	"strings"
	"time"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionWait Action = "WAIT"
)

// actionPriority is the tie-break order: the earlier action wins an exact tie.
var actionPriority = []Action{ActionBuy, ActionSell, ActionHold, ActionWait}

// ParseAction is the only place raw action strings are normalized.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionHold:
		return ActionHold, true
	case ActionWait:
		return ActionWait, true
	}
	return "", false
}

// IsTrade reports whether the action moves a position.
func (a Action) IsTrade() bool {
	return a == ActionBuy || a == ActionSell
}

// Side returns the exchange order side for trading actions.
func (a Action) Side() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	}
	return ""
}

type Ticker struct {
	Last float64 `json:"last"`
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
}

// IndicatorSet holds named indicator values for one timeframe, e.g. rsi14.
type IndicatorSet map[string]float64

type NewsItem struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Context is the immutable input of one cycle.
type Context struct {
	Symbol     string                  `json:"symbol"`
	Ticker     Ticker                  `json:"ticker"`
	Indicators map[string]IndicatorSet `json:"indicators"`
	// Derivatives carries perpetual-market metrics such as funding rate.
	Derivatives IndicatorSet `json:"derivatives,omitempty"`
	News        []NewsItem   `json:"news"`
	At          time.Time    `json:"at"`
}

// Vote is a provider's final parsed opinion. Rating is always in [1,5].
type Vote struct {
	ProviderID string  `json:"provider_id"`
	Action     Action  `json:"action"`
	Rating     float64 `json:"rating"`
	Rationale  string  `json:"rationale"`
}

// Decision is produced once per cycle. It is a value: the risk gate hands
// back a new Decision rather than changing the one it was given.
type Decision struct {
	Action     Action   `json:"action"`
	Symbol     string   `json:"symbol"`
	Size       float64  `json:"size"`
	Price      *float64 `json:"price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// WithSize returns a copy with size replaced and note appended to the reason.
func (d Decision) WithSize(size float64, note string) Decision {
	out := d
	out.Size = size
	out.Reason = appendReason(d.Reason, note)
	return out
}

// WithNote returns a copy with note appended to the reason.
func (d Decision) WithNote(note string) Decision {
	out := d
	out.Reason = appendReason(d.Reason, note)
	return out
}

func appendReason(reason, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return reason
	}
	if strings.TrimSpace(reason) == "" {
		return note
	}
	return reason + "; " + note
}

// ErrNoVote marks a provider answer that yields no admissible vote.
var ErrNoVote = errors.New("no parseable vote")
