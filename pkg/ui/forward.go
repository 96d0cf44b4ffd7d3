package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/datalens/pkg/events"
	"github.com/rs/zerolog/log"
)

// ChangeMsg carries a chat state change into the bubbletea loop.
type ChangeMsg struct {
	Event events.Event
}

// NavigatedMsg is sent when the backend created a conversation for the
// current send and the client switched to it.
type NavigatedMsg struct {
	SessionID string
}

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Relay lets the controller and the event bus be wired before the program
// exists. Messages sent before Attach are dropped.
type Relay struct {
	mu sync.Mutex
	s  Sender
}

var _ chat.Navigator = (*Relay)(nil)

func (r *Relay) Attach(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = s
}

func (r *Relay) Send(msg tea.Msg) {
	r.mu.Lock()
	s := r.s
	r.mu.Unlock()
	if s == nil {
		log.Debug().Msgf("dropping %T, no program attached", msg)
		return
	}
	s.Send(msg)
}

func (r *Relay) Navigate(sessionID string) {
	r.Send(NavigatedMsg{SessionID: sessionID})
}

// ForwardFunc turns bus events into bubbletea messages for s.
func ForwardFunc(s Sender) events.Handler {
	return func(_ context.Context, e events.Event) error {
		log.Debug().Str("kind", string(e.Kind)).Msg("dispatching chat event to UI")
		s.Send(ChangeMsg{Event: e})
		return nil
	}
}
