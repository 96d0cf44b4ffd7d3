package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ChatState is a snapshot of the conversation side of the client.
type ChatState struct {
	Sessions        []SessionSummary
	ActiveSessionID string
	Transcript      []Message
	InFlight        bool
	LastError       string
	// SessionsError is shown inline in the session list when loading it failed.
	SessionsError string
}

// Phase is the message pipeline state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

type EventKind string

const (
	EventSessionsLoaded  EventKind = "sessions_loaded"
	EventSessionsFailed  EventKind = "sessions_failed"
	EventSessionSwitched EventKind = "session_switched"
	EventSwitchFailed    EventKind = "session_switch_failed"
	EventSessionStarted  EventKind = "session_started"
	EventSessionDeleted  EventKind = "session_deleted"
	EventSendStarted     EventKind = "send_started"
	EventSendCommitted   EventKind = "send_committed"
	EventSendRolledBack  EventKind = "send_rolled_back"
	EventSendDiscarded   EventKind = "send_discarded"
	EventCatalogLoaded   EventKind = "catalog_loaded"
	EventModelsLoaded    EventKind = "models_loaded"
	EventModelChanged    EventKind = "model_changed"
)

// ChangeEvent tells hosts that ChatState changed and why.
type ChangeEvent struct {
	Kind      EventKind
	SessionID string
	Error     string
	At        time.Time
}

type Listener interface {
	OnChange(ev ChangeEvent)
}

type ListenerFunc func(ev ChangeEvent)

func (f ListenerFunc) OnChange(ev ChangeEvent) { f(ev) }

// core is the state shared by the session store and the pipeline. All
// mutation happens under mu; listeners are called after it is released.
type core struct {
	mu    sync.Mutex
	state ChatState
	phase Phase
	// outcome is where the last send ended before returning to idle.
	outcome Phase

	// generation changes whenever the transcript is replaced wholesale.
	generation uint64
	// switchSeq orders concurrent switches so only the latest one lands.
	switchSeq uint64

	listener Listener
}

func newCore(l Listener) *core {
	return &core{listener: l}
}

func (c *core) snapshot() ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *core) snapshotLocked() ChatState {
	st := c.state
	st.Sessions = append([]SessionSummary(nil), c.state.Sessions...)
	st.Transcript = append([]Message(nil), c.state.Transcript...)
	return st
}

func (c *core) startNewLocked() {
	c.state.ActiveSessionID = ""
	c.state.Transcript = nil
	c.generation++
	c.switchSeq++
}

func (c *core) emit(kind EventKind, sessionID string, errMsg string) {
	log.Debug().
		Str("event", string(kind)).
		Str("session_id", sessionID).
		Str("error", errMsg).
		Msg("chat state changed")
	if c.listener == nil {
		return
	}
	c.listener.OnChange(ChangeEvent{Kind: kind, SessionID: sessionID, Error: errMsg, At: time.Now()})
}
