package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/go-go-golems/datalens/pkg/mention"
	"github.com/pkg/errors"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeService struct {
	mu sync.Mutex

	sendFn    func(ctx context.Context, req SendRequest) (SendResponse, error)
	sendCalls []SendRequest

	sessions  []SessionSummary
	listErr   error
	listCalls int

	histories map[string]SessionHistory
	getFn     func(ctx context.Context, id string) (SessionHistory, error)

	deleteErr error
	deleted   []string
}

func (f *fakeService) SendMessage(ctx context.Context, req SendRequest) (SendResponse, error) {
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, req)
	fn := f.sendFn
	f.mu.Unlock()
	if fn == nil {
		return SendResponse{
			SessionID: req.SessionID,
			Message:   Message{Role: RoleAssistant, Content: "answer to " + req.Message},
		}, nil
	}
	return fn(ctx, req)
}

func (f *fakeService) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]SessionSummary(nil), f.sessions...), nil
}

func (f *fakeService) GetSession(ctx context.Context, id string) (SessionHistory, error) {
	f.mu.Lock()
	fn := f.getFn
	h, ok := f.histories[id]
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	if !ok {
		return SessionHistory{}, errors.Errorf("session %s not found", id)
	}
	return h, nil
}

func (f *fakeService) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

func (f *fakeService) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeCatalog struct {
	catalog mention.Catalog
	err     error
}

func (f *fakeCatalog) ListCollections(ctx context.Context) (mention.Catalog, error) {
	return f.catalog, f.err
}

type fakeModels struct {
	list ModelList
	err  error
}

func (f *fakeModels) ListModels(ctx context.Context) (ModelList, error) {
	return f.list, f.err
}

type memModelStore struct {
	mu    sync.Mutex
	model string
}

func (m *memModelStore) GetModel(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model, m.model != "", nil
}

func (m *memModelStore) SetModel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = id
	return nil
}

type recordingListener struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recordingListener) OnChange(ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingListener) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []EventKind
	for _, ev := range r.events {
		ret = append(ret, ev.Kind)
	}
	return ret
}

type recordingNavigator struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNavigator) Navigate(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}

type userErr struct{ msg string }

func (e *userErr) Error() string       { return "backend: " + e.msg }
func (e *userErr) UserMessage() string { return e.msg }

// newTestPipeline builds a pipeline and store over a fresh core.
func newTestPipeline(svc *fakeService, nav Navigator, policy StalePolicy) (*Pipeline, *SessionStore, *recordingListener) {
	l := &recordingListener{}
	c := newCore(l)
	store := newSessionStore(c, svc)
	return newPipeline(c, svc, store, nav, policy), store, l
}
