package chat

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/datalens/pkg/draft"
	"github.com/go-go-golems/datalens/pkg/mention"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Service    Service
	Catalog    CatalogService
	Models     ModelService
	ModelStore ModelStore
	Navigator  Navigator
	Listener   Listener

	StalePolicy StalePolicy
	// DefaultModel is used until the model list or the store says otherwise.
	DefaultModel string
	// SendTimeout bounds a single answering call. Zero means no bound.
	SendTimeout time.Duration
}

// ViewState is everything a host needs to render the chat surface.
type ViewState struct {
	ChatState
	Draft        draft.State
	Candidates   []mention.Candidate
	DropdownOpen bool
	Catalog      mention.Catalog
	CatalogError string
	Models       []Model
	Model        string
	Phase        Phase
}

// Controller owns the chat state and wires the draft buffer, the session
// store and the message pipeline together. The buffer belongs to the host's
// event loop; everything else is safe to call from any goroutine.
type Controller struct {
	core     *core
	sessions *SessionStore
	pipeline *Pipeline
	buffer   *draft.Buffer

	catalogSvc  CatalogService
	modelSvc    ModelService
	modelStore  ModelStore
	sendTimeout time.Duration

	mu           sync.RWMutex
	catalog      mention.Catalog
	catalogError string
	models       []Model
	model        string

	wg sync.WaitGroup
}

var _ draft.Submitter = (*Controller)(nil)

func NewController(cfg Config) (*Controller, error) {
	if cfg.Service == nil {
		return nil, errors.New("chat service is required")
	}
	policy := cfg.StalePolicy
	if policy == "" {
		policy = StaleDiscard
	}

	c := newCore(cfg.Listener)
	sessions := newSessionStore(c, cfg.Service)
	ctrl := &Controller{
		core:        c,
		sessions:    sessions,
		pipeline:    newPipeline(c, cfg.Service, sessions, cfg.Navigator, policy),
		catalogSvc:  cfg.Catalog,
		modelSvc:    cfg.Models,
		modelStore:  cfg.ModelStore,
		sendTimeout: cfg.SendTimeout,
		model:       cfg.DefaultModel,
	}
	ctrl.buffer = draft.NewBuffer(draft.CatalogFunc(ctrl.Catalog), ctrl)
	return ctrl, nil
}

func (c *Controller) Buffer() *draft.Buffer { return c.buffer }

func (c *Controller) Sessions() *SessionStore { return c.sessions }

func (c *Controller) Pipeline() *Pipeline { return c.pipeline }

// Initialize loads sessions, the collection catalog and the model list in
// parallel. Individual failures are recorded in state and logged; only
// context cancellation is returned.
func (c *Controller) Initialize(ctx context.Context) error {
	eg, ctx2 := errgroup.WithContext(ctx)

	eg.Go(func() error {
		_ = c.sessions.LoadSessions(ctx2)
		return nil
	})
	eg.Go(func() error {
		_ = c.LoadCatalog(ctx2)
		return nil
	})
	eg.Go(func() error {
		_ = c.LoadModels(ctx2)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Reload drops cached catalog and model lists and loads everything again.
// Unlike Initialize it returns the first load failure.
func (c *Controller) Reload(ctx context.Context) error {
	for _, svc := range []any{c.catalogSvc, c.modelSvc} {
		if r, ok := svc.(Refresher); ok {
			r.Refresh()
		}
	}

	var eg errgroup.Group
	eg.Go(func() error { return c.sessions.LoadSessions(ctx) })
	eg.Go(func() error { return c.LoadCatalog(ctx) })
	eg.Go(func() error { return c.LoadModels(ctx) })
	return eg.Wait()
}

// LoadCatalog fetches the mentionable collections. On failure the previous
// catalog is kept.
func (c *Controller) LoadCatalog(ctx context.Context) error {
	if c.catalogSvc == nil {
		return nil
	}
	catalog, err := c.catalogSvc.ListCollections(ctx)
	if err != nil {
		msg := DescribeError(err, "Could not load collections.")
		c.mu.Lock()
		c.catalogError = msg
		c.mu.Unlock()
		log.Warn().Err(err).Msg("list collections failed")
		c.core.emit(EventCatalogLoaded, "", msg)
		return errors.Wrap(err, "list collections")
	}

	c.mu.Lock()
	c.catalog = catalog
	c.catalogError = ""
	c.mu.Unlock()
	log.Debug().Int("collections", len(catalog)).Msg("catalog loaded")
	c.core.emit(EventCatalogLoaded, "", "")
	return nil
}

// LoadModels fetches the model list and settles the current selection: a
// stored preference wins if it is still offered, then the configured
// default, then the backend default.
func (c *Controller) LoadModels(ctx context.Context) error {
	if c.modelSvc == nil {
		return nil
	}
	list, err := c.modelSvc.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("list models failed")
		return errors.Wrap(err, "list models")
	}

	stored := ""
	if c.modelStore != nil {
		id, ok, err := c.modelStore.GetModel(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("could not read stored model")
		} else if ok {
			stored = id
		}
	}

	c.mu.Lock()
	c.models = list.Models
	switch {
	case stored != "" && offers(list.Models, stored):
		c.model = stored
	case c.model != "" && (len(list.Models) == 0 || offers(list.Models, c.model)):
	default:
		c.model = list.Default
	}
	model := c.model
	c.mu.Unlock()

	log.Debug().Int("models", len(list.Models)).Str("model", model).Msg("models loaded")
	c.core.emit(EventModelsLoaded, "", "")
	return nil
}

func offers(models []Model, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// SetModel selects the model for subsequent sends and remembers it.
func (c *Controller) SetModel(ctx context.Context, id string) error {
	c.mu.Lock()
	if len(c.models) > 0 && !offers(c.models, id) {
		c.mu.Unlock()
		return errors.Errorf("unknown model %q", id)
	}
	c.model = id
	c.mu.Unlock()

	c.core.emit(EventModelChanged, "", "")
	if c.modelStore == nil {
		return nil
	}
	if err := c.modelStore.SetModel(ctx, id); err != nil {
		return errors.Wrap(err, "store model selection")
	}
	return nil
}

func (c *Controller) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

func (c *Controller) Catalog() mention.Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// SyncCatalog recomputes the buffer's candidates after a catalog load. Call
// it from the host's event loop.
func (c *Controller) SyncCatalog() {
	c.buffer.SetCatalog(draft.CatalogFunc(c.Catalog))
}

// OnActiveSessionChanged is called when the host selects a conversation. An
// empty id starts a new one.
func (c *Controller) OnActiveSessionChanged(ctx context.Context, id string) error {
	if id == "" {
		c.sessions.StartNew()
		return nil
	}
	if id == c.core.snapshot().ActiveSessionID {
		return nil
	}
	return c.sessions.SwitchTo(ctx, id)
}

// ReplayFollowUp pre-fills the draft with a suggested question.
func (c *Controller) ReplayFollowUp(text string) {
	c.buffer.Replay(text)
}

func (c *Controller) CanSend() bool {
	return !c.pipeline.InFlight()
}

// Submit starts a send in the background. It returns false when another send
// is in flight.
func (c *Controller) Submit(text string) bool {
	t, ok := c.pipeline.Begin(text, c.Model())
	if !ok {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.sendContext()
		defer cancel()
		_ = c.pipeline.Complete(ctx, t)
	}()
	return true
}

// Send runs a whole send synchronously. It is used by one-shot commands.
func (c *Controller) Send(ctx context.Context, text string) (Message, error) {
	t, ok := c.pipeline.Begin(text, c.Model())
	if !ok {
		return Message{}, errors.New("nothing to send or a send is already in flight")
	}
	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}
	if err := c.pipeline.Complete(ctx, t); err != nil {
		return Message{}, err
	}
	st := c.core.snapshot()
	if n := len(st.Transcript); n > 0 && st.Transcript[n-1].Role == RoleAssistant {
		return st.Transcript[n-1], nil
	}
	return Message{}, errors.New("reply was discarded")
}

func (c *Controller) sendContext() (context.Context, context.CancelFunc) {
	if c.sendTimeout > 0 {
		return context.WithTimeout(context.Background(), c.sendTimeout)
	}
	return context.WithCancel(context.Background())
}

// Wait blocks until background sends have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// WaitContext is Wait bounded by ctx. Sends still running when ctx is done
// are left to finish on their own.
func (c *Controller) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) State() ChatState {
	return c.core.snapshot()
}

// View returns a consistent snapshot for rendering. Call it from the host's
// event loop since it reads the draft buffer.
func (c *Controller) View() ViewState {
	c.core.mu.Lock()
	st := c.core.snapshotLocked()
	phase := c.core.phase
	c.core.mu.Unlock()

	c.mu.RLock()
	v := ViewState{
		ChatState:    st,
		Catalog:      c.catalog,
		CatalogError: c.catalogError,
		Models:       append([]Model(nil), c.models...),
		Model:        c.model,
		Phase:        phase,
	}
	c.mu.RUnlock()

	v.Draft = c.buffer.State()
	v.DropdownOpen = c.buffer.DropdownOpen()
	if v.DropdownOpen {
		v.Candidates = mention.Visible(c.buffer.Candidates())
	}
	return v
}
