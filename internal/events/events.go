// Package events defines the payloads the watcher and automation loops
// emit, and the collaborators that fan them out: a unix-socket broker and a
// WebSocket bridge. Emission is attempted at most once per detected change;
// delivery past the broker's write attempt is not guaranteed.
package events

import (
	"time"

	"github.com/muxpilot/muxpilot/internal/registry"
)

// Event types.
const (
	TypeSessionChanged   = "session-changed"
	TypeWindowAutomation = "window-automation"
	TypeContentChanged   = "content-changed"
	TypeConnState        = "conn-state"
	TypeEngineError      = "engine-error"
	TypeHook             = "hook"
)

// Event is the envelope written to subscribers as one JSON line.
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// WindowAutomation reports one matcher firing in one window.
type WindowAutomation struct {
	SessionName string `json:"sessionName"`
	WindowName  string `json:"windowName"`
	MatcherName string `json:"matcherName"`
}

// ContentChanged is the raw change notification for a window. Content
// itself is never carried.
type ContentChanged struct {
	SessionName string `json:"sessionName"`
	WindowIndex int    `json:"windowIndex"`
}

// ConnState reports multiplexer connectivity transitions. Reason is set
// only on disconnects.
type ConnState struct {
	SessionID string `json:"sessionId"`
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// EngineError is a non-fatal per-operation failure surfaced for
// observability.
type EngineError struct {
	Op     string `json:"op"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

// Publisher is the emission surface the loops hold. Implementations must
// not block the caller.
type Publisher interface {
	Publish(ev Event)
}

// NewSessionChanged wraps a registry snapshot in an event envelope.
func NewSessionChanged(snap registry.SessionSnapshot) Event {
	return Event{Type: TypeSessionChanged, Time: time.Now().UTC(), Data: snap}
}

// NewWindowAutomation builds a window-automation event.
func NewWindowAutomation(session, window, matcher string) Event {
	return Event{
		Type: TypeWindowAutomation,
		Time: time.Now().UTC(),
		Data: WindowAutomation{SessionName: session, WindowName: window, MatcherName: matcher},
	}
}

// NewContentChanged builds a content-changed event.
func NewContentChanged(session string, windowIndex int) Event {
	return Event{
		Type: TypeContentChanged,
		Time: time.Now().UTC(),
		Data: ContentChanged{SessionName: session, WindowIndex: windowIndex},
	}
}

// NewConnState builds a connectivity transition event.
func NewConnState(sessionID string, connected bool, reason string) Event {
	return Event{
		Type: TypeConnState,
		Time: time.Now().UTC(),
		Data: ConnState{SessionID: sessionID, Connected: connected, Reason: reason},
	}
}

// NewEngineError builds a non-fatal error event.
func NewEngineError(op, target string, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Type: TypeEngineError,
		Time: time.Now().UTC(),
		Data: EngineError{Op: op, Target: target, Error: msg},
	}
}

// Nop is a Publisher that discards everything.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}
