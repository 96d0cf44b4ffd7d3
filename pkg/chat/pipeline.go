package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-go-golems/datalens/pkg/mention"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StalePolicy decides what happens to a send that completes after the
// transcript it was issued against has been replaced.
type StalePolicy string

const (
	// StaleDiscard drops the result; the visible transcript is left alone.
	StaleDiscard StalePolicy = "discard"
	// StaleApply applies the result to whatever conversation is active.
	StaleApply StalePolicy = "apply"
)

func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StaleDiscard:
		return StaleDiscard, nil
	case StaleApply:
		return StaleApply, nil
	}
	return "", errors.Errorf("unknown stale completion policy %q (want discard or apply)", s)
}

// Ticket identifies one send between Begin and Complete.
type Ticket struct {
	MessageID  string
	SessionID  string
	Text       string
	Model      string
	Generation uint64
}

// Pipeline runs the optimistic send state machine:
// idle -> sending -> committed|rolled back -> idle.
type Pipeline struct {
	c        *core
	svc      Service
	sessions *SessionStore
	nav      Navigator
	policy   StalePolicy
}

func newPipeline(c *core, svc Service, sessions *SessionStore, nav Navigator, policy StalePolicy) *Pipeline {
	if policy == "" {
		policy = StaleDiscard
	}
	return &Pipeline{c: c, svc: svc, sessions: sessions, nav: nav, policy: policy}
}

func (p *Pipeline) Phase() Phase {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return p.c.phase
}

// LastOutcome is PhaseCommitted or PhaseRolledBack for the most recent
// finished send, PhaseIdle before the first one.
func (p *Pipeline) LastOutcome() Phase {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return p.c.outcome
}

func (p *Pipeline) InFlight() bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return p.c.state.InFlight
}

// Begin appends the optimistic user message and marks a send in flight.
// It returns false without touching state when a send is already running or
// text is blank.
func (p *Pipeline) Begin(text string, model string) (Ticket, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, false
	}

	p.c.mu.Lock()
	if p.c.state.InFlight {
		p.c.mu.Unlock()
		log.Debug().Msg("send rejected, another send is in flight")
		return Ticket{}, false
	}
	msg := Message{
		ID:                    uuid.NewString(),
		Role:                  RoleUser,
		Content:               text,
		ReferencedCollections: mention.Extract(text),
		Timestamp:             time.Now(),
	}
	p.c.state.Transcript = append(p.c.state.Transcript, msg)
	p.c.state.InFlight = true
	p.c.state.LastError = ""
	p.c.phase = PhaseSending
	t := Ticket{
		MessageID:  msg.ID,
		SessionID:  p.c.state.ActiveSessionID,
		Text:       text,
		Model:      model,
		Generation: p.c.generation,
	}
	p.c.mu.Unlock()

	p.c.emit(EventSendStarted, t.SessionID, "")
	return t, true
}

// Complete issues the send for t and applies its outcome. It always leaves
// the pipeline idle. The returned error is the transport failure, if any.
func (p *Pipeline) Complete(ctx context.Context, t Ticket) error {
	var (
		resp SendResponse
		err  error
	)
	if utf8.RuneCountInString(t.Text) > MaxMessageLength {
		err = ErrMessageTooLong
	} else {
		resp, err = p.svc.SendMessage(ctx, SendRequest{
			SessionID: t.SessionID,
			Message:   t.Text,
			Model:     t.Model,
		})
	}

	if err != nil {
		p.rollback(t, err)
		return errors.Wrap(err, "send message")
	}
	p.commit(ctx, t, resp)
	return nil
}

func (p *Pipeline) rollback(t Ticket, sendErr error) {
	msg := DescribeError(sendErr, "Something went wrong. Please try again.")

	p.c.mu.Lock()
	stale := t.Generation != p.c.generation
	if !stale || p.policy == StaleApply {
		n := len(p.c.state.Transcript)
		if n > 0 && p.c.state.Transcript[n-1].ID == t.MessageID {
			p.c.state.Transcript = p.c.state.Transcript[:n-1]
		}
	}
	p.c.state.LastError = msg
	p.c.state.InFlight = false
	p.c.outcome = PhaseRolledBack
	p.c.phase = PhaseIdle
	active := p.c.state.ActiveSessionID
	p.c.mu.Unlock()

	log.Warn().Err(sendErr).
		Str("session_id", t.SessionID).
		Bool("stale", stale).
		Msg("send failed, rolled back")
	p.c.emit(EventSendRolledBack, active, msg)
}

func (p *Pipeline) commit(ctx context.Context, t Ticket, resp SendResponse) {
	reply := resp.Message
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.Role == "" {
		reply.Role = RoleAssistant
	}
	if reply.Timestamp.IsZero() {
		reply.Timestamp = time.Now()
	}

	p.c.mu.Lock()
	stale := t.Generation != p.c.generation
	kind := EventSendCommitted
	adopted := ""
	if stale && p.policy == StaleDiscard {
		kind = EventSendDiscarded
	} else {
		p.c.state.Transcript = append(p.c.state.Transcript, reply)
		if resp.SessionID != "" && resp.SessionID != p.c.state.ActiveSessionID {
			p.c.state.ActiveSessionID = resp.SessionID
			adopted = resp.SessionID
		}
	}
	p.c.state.InFlight = false
	p.c.outcome = PhaseCommitted
	p.c.phase = PhaseIdle
	active := p.c.state.ActiveSessionID
	p.c.mu.Unlock()

	log.Debug().
		Str("session_id", resp.SessionID).
		Bool("stale", stale).
		Str("event", string(kind)).
		Msg("send completed")
	p.c.emit(kind, active, "")

	if adopted != "" && p.nav != nil {
		p.nav.Navigate(adopted)
	}
	p.sessions.refresh(ctx)
}
