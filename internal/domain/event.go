package domain

import "time"

type EventKind string

const (
	EventBar            EventKind = "bar"
	EventPositionOpened EventKind = "position_opened"
	EventPositionClosed EventKind = "position_closed"
	EventLivenessCheck  EventKind = "liveness_check"
)

// Event is a message on the engine's single decision queue.
type Event struct {
	Kind     EventKind     `json:"kind"`
	At       time.Time     `json:"at"`
	Bar      *Bar          `json:"bar,omitempty"`
	Position *OpenPosition `json:"position,omitempty"`
	Trade    *TradeRecord  `json:"trade,omitempty"`
}
