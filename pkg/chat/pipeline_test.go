package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func contents(msgs []Message) []string {
	var ret []string
	for _, m := range msgs {
		ret = append(ret, string(m.Role)+":"+m.Content)
	}
	return ret
}

func TestPipeline_BeginAppendsOptimisticMessage(t *testing.T) {
	svc := &fakeService{}
	p, store, _ := newTestPipeline(svc, nil, StaleDiscard)
	p.c.state.LastError = "old failure"

	ticket, ok := p.Begin("  how many @orders?  ", "gpt")
	require.True(t, ok)
	require.Equal(t, PhaseSending, p.Phase())

	st := store.State()
	require.True(t, st.InFlight)
	require.Empty(t, st.LastError)
	require.Len(t, st.Transcript, 1)
	require.Equal(t, RoleUser, st.Transcript[0].Role)
	require.Equal(t, "how many @orders?", st.Transcript[0].Content)
	require.Equal(t, []string{"orders"}, st.Transcript[0].ReferencedCollections)
	require.Equal(t, ticket.MessageID, st.Transcript[0].ID)
	require.Equal(t, "gpt", ticket.Model)
}

func TestPipeline_SecondBeginWhileInFlightIsRejected(t *testing.T) {
	svc := &fakeService{}
	p, store, _ := newTestPipeline(svc, nil, StaleDiscard)

	_, ok := p.Begin("first", "")
	require.True(t, ok)
	_, ok = p.Begin("second", "")
	require.False(t, ok)

	require.Len(t, store.State().Transcript, 1)
	require.Equal(t, 0, svc.calls())
}

func TestPipeline_BlankTextIsRejected(t *testing.T) {
	p, store, _ := newTestPipeline(&fakeService{}, nil, StaleDiscard)
	_, ok := p.Begin(" \n ", "")
	require.False(t, ok)
	require.Empty(t, store.State().Transcript)
	require.False(t, store.State().InFlight)
}

func TestPipeline_CommitNewConversationAdoptsSessionAndNavigates(t *testing.T) {
	svc := &fakeService{
		sessions: []SessionSummary{{ID: "s-new", Title: "orders"}},
		sendFn: func(ctx context.Context, req SendRequest) (SendResponse, error) {
			require.Equal(t, "", req.SessionID)
			return SendResponse{
				SessionID: "s-new",
				Message: Message{
					Role:      RoleAssistant,
					Content:   "There are 12 orders.",
					QueryText: "SELECT count(*) FROM orders",
					QueryKind: QueryKindSQL,
					FollowUps: []string{"Which customer ordered most?"},
				},
			}, nil
		},
	}
	nav := &recordingNavigator{}
	p, store, l := newTestPipeline(svc, nav, StaleDiscard)

	ticket, ok := p.Begin("how many @orders?", "")
	require.True(t, ok)
	require.NoError(t, p.Complete(context.Background(), ticket))

	st := store.State()
	require.False(t, st.InFlight)
	require.Equal(t, "s-new", st.ActiveSessionID)
	require.Equal(t, []string{"user:how many @orders?", "assistant:There are 12 orders."}, contents(st.Transcript))
	require.NotEmpty(t, st.Transcript[1].ID)
	require.Equal(t, []SessionSummary{{ID: "s-new", Title: "orders"}}, st.Sessions)
	require.Equal(t, []string{"s-new"}, nav.ids)
	require.Equal(t, PhaseIdle, p.Phase())
	require.Equal(t, PhaseCommitted, p.LastOutcome())
	require.Equal(t, []EventKind{EventSendStarted, EventSendCommitted, EventSessionsLoaded}, l.kinds())
}

func TestPipeline_CommitSameSessionDoesNotNavigate(t *testing.T) {
	svc := &fakeService{}
	nav := &recordingNavigator{}
	p, store, _ := newTestPipeline(svc, nav, StaleDiscard)
	p.c.state.ActiveSessionID = "s1"

	ticket, _ := p.Begin("hi", "")
	require.NoError(t, p.Complete(context.Background(), ticket))
	require.Equal(t, "s1", store.State().ActiveSessionID)
	require.Empty(t, nav.ids)
}

func TestPipeline_CommitSurvivesRefreshFailure(t *testing.T) {
	svc := &fakeService{listErr: errors.New("boom")}
	p, store, _ := newTestPipeline(svc, nil, StaleDiscard)
	p.c.state.Sessions = []SessionSummary{{ID: "s1"}}

	ticket, _ := p.Begin("hi", "")
	require.NoError(t, p.Complete(context.Background(), ticket))

	st := store.State()
	require.Len(t, st.Transcript, 2)
	require.Equal(t, []SessionSummary{{ID: "s1"}}, st.Sessions)
	require.Empty(t, st.SessionsError, "refresh after send is best-effort")
	require.Empty(t, st.LastError)
}

func TestPipeline_RollbackRestoresTranscriptLength(t *testing.T) {
	svc := &fakeService{
		sendFn: func(ctx context.Context, req SendRequest) (SendResponse, error) {
			return SendResponse{}, &userErr{msg: "The model is overloaded."}
		},
	}
	p, store, l := newTestPipeline(svc, nil, StaleDiscard)
	p.c.state.ActiveSessionID = "s1"
	p.c.state.Transcript = []Message{
		{ID: "m1", Role: RoleUser, Content: "q"},
		{ID: "m2", Role: RoleAssistant, Content: "a"},
	}
	before := store.State().Transcript

	ticket, ok := p.Begin("next question", "")
	require.True(t, ok)
	require.Len(t, store.State().Transcript, 3)

	err := p.Complete(context.Background(), ticket)
	require.Error(t, err)

	st := store.State()
	if diff := cmp.Diff(before, st.Transcript); diff != "" {
		t.Fatalf("transcript changed after rollback (-want +got):\n%s", diff)
	}
	require.Equal(t, "The model is overloaded.", st.LastError)
	require.False(t, st.InFlight)
	require.Equal(t, PhaseRolledBack, p.LastOutcome())
	require.Equal(t, []EventKind{EventSendStarted, EventSendRolledBack}, l.kinds())
	require.Equal(t, 0, svc.lists(), "no refresh after a failed send")
}

func TestPipeline_RollbackUsesFallbackMessage(t *testing.T) {
	svc := &fakeService{
		sendFn: func(ctx context.Context, req SendRequest) (SendResponse, error) {
			return SendResponse{}, errors.New("dial tcp: connection refused")
		},
	}
	p, store, _ := newTestPipeline(svc, nil, StaleDiscard)
	ticket, _ := p.Begin("q", "")
	require.Error(t, p.Complete(context.Background(), ticket))
	require.Equal(t, "Something went wrong. Please try again.", store.State().LastError)
}

func TestPipeline_TooLongMessageRollsBackWithoutCall(t *testing.T) {
	svc := &fakeService{}
	p, store, _ := newTestPipeline(svc, nil, StaleDiscard)

	ticket, ok := p.Begin(strings.Repeat("x", MaxMessageLength+1), "")
	require.True(t, ok)
	err := p.Complete(context.Background(), ticket)
	require.True(t, errors.Is(err, ErrMessageTooLong))

	st := store.State()
	require.Empty(t, st.Transcript)
	require.Contains(t, st.LastError, "too long")
	require.Equal(t, 0, svc.calls())
}

func TestPipeline_StaleCommitDiscardedByDefault(t *testing.T) {
	svc := &fakeService{
		histories: map[string]SessionHistory{
			"s2": {ID: "s2", Messages: []Message{{ID: "x", Role: RoleUser, Content: "other"}}},
		},
		sendFn: func(ctx context.Context, req SendRequest) (SendResponse, error) {
			return SendResponse{SessionID: "s1", Message: Message{Role: RoleAssistant, Content: "late"}}, nil
		},
	}
	nav := &recordingNavigator{}
	p, store, l := newTestPipeline(svc, nav, StaleDiscard)
	p.c.state.ActiveSessionID = "s1"

	ticket, _ := p.Begin("q", "")
	require.NoError(t, store.SwitchTo(context.Background(), "s2"))
	require.True(t, store.State().InFlight)

	require.NoError(t, p.Complete(context.Background(), ticket))
	st := store.State()
	require.Equal(t, "s2", st.ActiveSessionID)
	require.Equal(t, []string{"user:other"}, contents(st.Transcript))
	require.False(t, st.InFlight)
	require.Empty(t, nav.ids)
	require.Contains(t, l.kinds(), EventSendDiscarded)
	require.Equal(t, 1, svc.lists())
}

func TestPipeline_StaleCommitAppliedToActiveWhenConfigured(t *testing.T) {
	svc := &fakeService{
		histories: map[string]SessionHistory{
			"s2": {ID: "s2", Messages: []Message{{ID: "x", Role: RoleUser, Content: "other"}}},
		},
		sendFn: func(ctx context.Context, req SendRequest) (SendResponse, error) {
			return SendResponse{SessionID: "s1", Message: Message{Role: RoleAssistant, Content: "late"}}, nil
		},
	}
	nav := &recordingNavigator{}
	p, store, _ := newTestPipeline(svc, nav, StaleApply)
	p.c.state.ActiveSessionID = "s1"

	ticket, _ := p.Begin("q", "")
	require.NoError(t, store.SwitchTo(context.Background(), "s2"))
	require.NoError(t, p.Complete(context.Background(), ticket))

	st := store.State()
	require.Equal(t, []string{"user:other", "assistant:late"}, contents(st.Transcript))
	require.Equal(t, "s1", st.ActiveSessionID, "returned id differs from the active one and is adopted")
	require.Equal(t, []string{"s1"}, nav.ids)
}

func TestPipeline_StaleRollbackNeverRemovesForeignMessages(t *testing.T) {
	for _, policy := range []StalePolicy{StaleDiscard, StaleApply} {
		t.Run(string(policy), func(t *testing.T) {
			svc := &fakeService{
				histories: map[string]SessionHistory{
					"s2": {ID: "s2", Messages: []Message{{ID: "x", Role: RoleUser, Content: "other"}}},
				},
				sendFn: func(ctx context.Context, req SendRequest) (SendResponse, error) {
					return SendResponse{}, errors.New("boom")
				},
			}
			p, store, _ := newTestPipeline(svc, nil, policy)
			ticket, _ := p.Begin("q", "")
			require.NoError(t, store.SwitchTo(context.Background(), "s2"))
			require.Error(t, p.Complete(context.Background(), ticket))

			st := store.State()
			require.Equal(t, []string{"user:other"}, contents(st.Transcript))
			require.NotEmpty(t, st.LastError)
			require.False(t, st.InFlight)
		})
	}
}

func TestParseStalePolicy(t *testing.T) {
	p, err := ParseStalePolicy("")
	require.NoError(t, err)
	require.Equal(t, StaleDiscard, p)

	p, err = ParseStalePolicy(" Apply ")
	require.NoError(t, err)
	require.Equal(t, StaleApply, p)

	_, err = ParseStalePolicy("merge")
	require.Error(t, err)
}

func TestDescribeError(t *testing.T) {
	require.Equal(t, "", DescribeError(nil, "fallback"))
	require.Equal(t, "nope", DescribeError(errors.Wrap(&userErr{msg: "nope"}, "send"), "fallback"))
	require.Equal(t, "fallback", DescribeError(errors.Wrap(&userErr{}, "send"), "fallback"))
	require.Equal(t, "The request timed out. Please try again.",
		DescribeError(errors.Wrap(context.DeadlineExceeded, "send"), "fallback"))
	require.Equal(t, "fallback", DescribeError(errors.New("x"), "fallback"))
}

var ignoreIDs = cmpopts.IgnoreFields(Message{}, "ID", "Timestamp")
