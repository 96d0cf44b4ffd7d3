package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionStore mirrors the backend's conversation list and holds the active
// conversation's transcript. It never cancels an in-flight send.
type SessionStore struct {
	c   *core
	svc Service
}

func newSessionStore(c *core, svc Service) *SessionStore {
	return &SessionStore{c: c, svc: svc}
}

// LoadSessions refreshes the summary list. On failure the previous list is
// kept and SessionsError is set for inline display.
func (s *SessionStore) LoadSessions(ctx context.Context) error {
	sessions, err := s.svc.ListSessions(ctx)
	if err != nil {
		msg := DescribeError(err, "Could not load conversations.")
		s.c.mu.Lock()
		s.c.state.SessionsError = msg
		s.c.mu.Unlock()
		log.Warn().Err(err).Msg("list sessions failed")
		s.c.emit(EventSessionsFailed, "", msg)
		return errors.Wrap(err, "list sessions")
	}

	s.c.mu.Lock()
	s.c.state.Sessions = sessions
	s.c.state.SessionsError = ""
	active := s.c.state.ActiveSessionID
	s.c.mu.Unlock()
	s.c.emit(EventSessionsLoaded, active, "")
	return nil
}

// refresh is the best-effort reload done after a send; errors only get logged.
func (s *SessionStore) refresh(ctx context.Context) {
	sessions, err := s.svc.ListSessions(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("session list refresh failed")
		return
	}
	s.c.mu.Lock()
	s.c.state.Sessions = sessions
	s.c.state.SessionsError = ""
	active := s.c.state.ActiveSessionID
	s.c.mu.Unlock()
	s.c.emit(EventSessionsLoaded, active, "")
}

// SwitchTo loads the transcript of id and replaces the current one with it.
// When several switches overlap only the most recently started one is
// applied. On failure the current transcript stays and LastError is set.
func (s *SessionStore) SwitchTo(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		s.StartNew()
		return nil
	}

	s.c.mu.Lock()
	s.c.switchSeq++
	seq := s.c.switchSeq
	s.c.mu.Unlock()

	history, err := s.svc.GetSession(ctx, id)

	s.c.mu.Lock()
	if seq != s.c.switchSeq {
		s.c.mu.Unlock()
		log.Debug().Str("session_id", id).Msg("dropping superseded session switch")
		return nil
	}
	if err != nil {
		msg := DescribeError(err, "Could not load this conversation.")
		s.c.state.LastError = msg
		s.c.mu.Unlock()
		log.Warn().Err(err).Str("session_id", id).Msg("get session failed")
		s.c.emit(EventSwitchFailed, id, msg)
		return errors.Wrapf(err, "get session %s", id)
	}
	s.c.state.ActiveSessionID = id
	s.c.state.Transcript = append([]Message(nil), history.Messages...)
	s.c.state.LastError = ""
	s.c.generation++
	s.c.mu.Unlock()

	s.c.emit(EventSessionSwitched, id, "")
	return nil
}

// StartNew clears the active conversation without talking to the backend.
// The next send creates a conversation server-side.
func (s *SessionStore) StartNew() {
	s.c.mu.Lock()
	s.c.startNewLocked()
	s.c.state.LastError = ""
	s.c.mu.Unlock()
	s.c.emit(EventSessionStarted, "", "")
}

// Delete removes a conversation. Deleting the active one behaves like
// StartNew. Failures leave the list untouched.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.svc.DeleteSession(ctx, id); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("delete session failed")
		return errors.Wrapf(err, "delete session %s", id)
	}

	s.c.mu.Lock()
	kept := s.c.state.Sessions[:0:0]
	for _, summary := range s.c.state.Sessions {
		if summary.ID != id {
			kept = append(kept, summary)
		}
	}
	s.c.state.Sessions = kept
	wasActive := s.c.state.ActiveSessionID == id
	if wasActive {
		s.c.startNewLocked()
	}
	s.c.mu.Unlock()

	s.c.emit(EventSessionDeleted, id, "")
	if wasActive {
		s.c.emit(EventSessionStarted, "", "")
	}
	return nil
}

func (s *SessionStore) State() ChatState {
	return s.c.snapshot()
}
