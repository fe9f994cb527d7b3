package websocket

import (
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionNext       Action = "next"
	ActionPrev       Action = "prev"
	ActionJump       Action = "jump"
	ActionSkip       Action = "skip"
	ActionSelect     Action = "select"
	ActionToggle     Action = "toggle"
	ActionConfidence Action = "confidence"
	ActionSubmit     Action = "submit"
	ActionState      Action = "state"
	ActionPing       Action = "ping"
)

// Request is one client action. Only the fields of the action are read.
type Request struct {
	Action Action `json:"action" validate:"required,oneof=next prev jump skip select toggle confidence submit state ping"`
	Index  *int   `json:"index,omitempty" validate:"omitempty,min=0"`
	Key    string `json:"key,omitempty" validate:"omitempty,len=1"`
	Level  string `json:"level,omitempty" validate:"omitempty,oneof=high mid low"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventTick      Event = "tick"
	EventRejected  Event = "rejected"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries the full rendered session.
type StateResponse struct {
	Event Event              `json:"event"`
	State model.SessionState `json:"state"`
}

// TickResponse is pushed on every timer tick.
type TickResponse struct {
	Event           Event `json:"event"`
	TimeLeftSeconds int   `json:"time_left_seconds"`
}

// RejectedResponse reports a refused navigation or answer change together
// with the unchanged state.
type RejectedResponse struct {
	Event   Event              `json:"event"`
	Code    response.ErrCode   `json:"code"`
	Message string             `json:"message"`
	State   model.SessionState `json:"state"`
}

// SubmittedResponse reports the scoring outcome of a submission.
type SubmittedResponse struct {
	Event         Event               `json:"event"`
	AutoSubmitted bool                `json:"auto_submitted"`
	Result        *model.SubmitResult `json:"result"`
}

type ErrorResponse struct {
	Event   Event            `json:"event"`
	Code    response.ErrCode `json:"code"`
	Message string           `json:"message"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
