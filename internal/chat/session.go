// Package chat implements the client side of a chat conversation: an
// append-only transcript, a two-state turn machine and an HTTP client for the
// /chat endpoint.
package chat

import (
	"errors"
	"strings"
)

// Sender identifies who produced a transcript turn
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Turn is one transcript line. Turns are never mutated after append.
type Turn struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// State is the session's position in the request/response cycle
type State string

const (
	StateAwaitingInput    State = "awaiting_input"
	StateAwaitingResponse State = "awaiting_response"
)

var (
	// ErrEmptyInput rejects blank submissions; the session does not transition.
	ErrEmptyInput = errors.New("input is empty")

	// ErrBusy rejects a submission while a request is outstanding.
	ErrBusy = errors.New("a request is already in flight")
)

// Session tracks one conversation. One request at a time: Submit blocks
// further submission until Deliver is called.
type Session struct {
	transcript []Turn
	state      State
}

// NewSession creates an empty session awaiting input
func NewSession() *Session {
	return &Session{state: StateAwaitingInput}
}

// State returns the current session state
func (s *Session) State() State {
	return s.state
}

// Transcript returns a copy of the turns so far, in order
func (s *Session) Transcript() []Turn {
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Submit appends a user turn and moves to awaiting_response. Blank input and
// submission while a response is pending are rejected without a transition.
func (s *Session) Submit(text string) error {
	if s.state != StateAwaitingInput {
		return ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	s.transcript = append(s.transcript, Turn{Text: text, Sender: SenderUser})
	s.state = StateAwaitingResponse
	return nil
}

// Deliver appends a bot turn and returns to awaiting_input. It is used for
// both answers and connectivity-error messages.
func (s *Session) Deliver(text string) {
	s.transcript = append(s.transcript, Turn{Text: text, Sender: SenderBot})
	s.state = StateAwaitingInput
}
