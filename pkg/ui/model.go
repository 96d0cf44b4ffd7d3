package ui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/datalens/pkg/api"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/rs/zerolog/log"
)

const (
	sidebarWidth = 32
	inputHeight  = 4
	copiedFor    = 2 * time.Second
)

type focus int

const (
	focusInput focus = iota
	focusSessions
)

type opDoneMsg struct {
	op  string
	err error
}

type clearCopiedMsg struct {
	seq int
}

// clipboardWriteAll is swapped out in tests.
var clipboardWriteAll = clipboard.WriteAll

// Model is the bubbletea chat surface over a chat.Controller.
type Model struct {
	ctx  context.Context
	ctrl *chat.Controller
	keys keyMap

	viewport viewport.Model
	spinner  bspinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	focus      focus
	sidebarIdx int
	// pendingNav is a conversation the backend just created that may not be
	// in the sidebar list yet.
	pendingNav string
	// confirmDelete holds the id awaiting a y/n answer.
	confirmDelete string

	followUpIdx int
	copied      bool
	copiedSeq   int
	status      string
}

func NewModel(ctx context.Context, ctrl *chat.Controller) Model {
	sp := bspinner.New()
	sp.Spinner = bspinner.Dot
	sp.Style = spinnerStyle
	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		keys:    defaultKeyMap(),
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runOp("initialize", m.ctrl.Initialize))
}

func (m Model) runOp(op string, f func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: f(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ChangeMsg:
		if msg.Event.Kind == chat.EventCatalogLoaded {
			m.ctrl.SyncCatalog()
		}
		if msg.Event.Kind == chat.EventSessionSwitched || msg.Event.Kind == chat.EventSessionStarted {
			m.followUpIdx = 0
		}
		if msg.Event.Kind == chat.EventSessionsLoaded && m.pendingNav != "" {
			m.sidebarIdx = m.indexOfSession(m.pendingNav)
			if m.sidebarIdx > 0 {
				m.pendingNav = ""
			}
		}
		m.refreshTranscript()
		return m, nil

	case NavigatedMsg:
		m.sidebarIdx = m.indexOfSession(msg.SessionID)
		m.pendingNav = ""
		if m.sidebarIdx == 0 && msg.SessionID != "" {
			m.pendingNav = msg.SessionID
		}
		return m, nil

	case opDoneMsg:
		if msg.op == "reload" {
			m.status = ""
		}
		switch {
		case api.IsUnauthorized(msg.err):
			m.status = errorStyle.Render("Token rejected. Restart with a new --token or DATALENS_TOKEN.")
			log.Warn().Err(msg.err).Str("op", msg.op).Msg("backend rejected the token")
		case msg.err != nil:
			log.Warn().Err(msg.err).Str("op", msg.op).Msg("ui operation failed")
		}
		m.refreshTranscript()
		return m, nil

	case clearCopiedMsg:
		if msg.seq == m.copiedSeq {
			m.copied = false
		}
		return m, nil

	case bspinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmDelete != "" {
		id := m.confirmDelete
		m.confirmDelete = ""
		if msg.String() == "y" {
			return m, m.runOp("delete", func(ctx context.Context) error {
				return m.ctrl.Sessions().Delete(ctx, id)
			})
		}
		m.status = ""
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.ToggleFocus):
		if m.focus == focusInput {
			m.focus = focusSessions
			m.sidebarIdx = m.indexOfSession(m.ctrl.State().ActiveSessionID)
		} else {
			m.focus = focusInput
		}
		return m, nil
	case key.Matches(msg, m.keys.NewSession):
		return m.selectSession("")
	case key.Matches(msg, m.keys.CopyQuery):
		return m.copyLastQuery()
	case key.Matches(msg, m.keys.FollowUp):
		m.replayNextFollowUp()
		return m, nil
	case key.Matches(msg, m.keys.CycleModel):
		cmd := m.cycleModel()
		return m, cmd
	case key.Matches(msg, m.keys.Reload):
		m.status = "Reloading…"
		return m, m.runOp("reload", m.ctrl.Reload)
	case key.Matches(msg, m.keys.ScrollUp, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusSessions {
		return m.handleSidebarKey(msg)
	}

	buf := m.ctrl.Buffer()
	if k, ok := draftKey(msg); ok && buf.HandleKey(k) {
		m.status = ""
		return m, nil
	}
	if editDraft(buf, msg) {
		m.status = ""
		return m, nil
	}

	// up/down without an open dropdown scroll the transcript
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sessions := m.ctrl.State().Sessions
	// row 0 is "new conversation"
	rows := len(sessions) + 1
	if m.sidebarIdx >= rows {
		m.sidebarIdx = rows - 1
	}

	switch {
	case key.Matches(msg, m.keys.SidebarUp):
		if m.sidebarIdx > 0 {
			m.sidebarIdx--
		}
	case key.Matches(msg, m.keys.SidebarDown):
		if m.sidebarIdx < rows-1 {
			m.sidebarIdx++
		}
	case key.Matches(msg, m.keys.SidebarEnter):
		id := ""
		if m.sidebarIdx > 0 {
			id = sessions[m.sidebarIdx-1].ID
		}
		m.focus = focusInput
		return m.selectSession(id)
	case key.Matches(msg, m.keys.DeleteSess):
		if m.sidebarIdx == 0 {
			return m, nil
		}
		if m.ctrl.State().InFlight {
			m.status = "Wait for the answer before deleting."
			return m, nil
		}
		s := sessions[m.sidebarIdx-1]
		m.confirmDelete = s.ID
		m.status = "Delete \"" + sessionTitle(s) + "\"? (y/n)"
	case msg.Type == tea.KeyEsc:
		m.focus = focusInput
	}
	return m, nil
}

// selectSession switches conversations. Switching is blocked while a send
// is in flight.
func (m Model) selectSession(id string) (tea.Model, tea.Cmd) {
	if m.ctrl.State().InFlight {
		m.status = "Wait for the answer before switching conversations."
		return m, nil
	}
	m.status = ""
	m.pendingNav = ""
	m.sidebarIdx = m.indexOfSession(id)
	return m, m.runOp("switch", func(ctx context.Context) error {
		return m.ctrl.OnActiveSessionChanged(ctx, id)
	})
}

func (m Model) copyLastQuery() (tea.Model, tea.Cmd) {
	q, ok := lastQuery(m.ctrl.State().Transcript)
	if !ok {
		m.status = "No query to copy yet."
		return m, nil
	}
	if err := clipboardWriteAll(q); err != nil {
		log.Warn().Err(err).Msg("clipboard write failed")
		m.status = "Could not copy to the clipboard."
		return m, nil
	}
	m.copied = true
	m.copiedSeq++
	seq := m.copiedSeq
	return m, tea.Tick(copiedFor, func(time.Time) tea.Msg { return clearCopiedMsg{seq: seq} })
}

func (m *Model) replayNextFollowUp() {
	ups := lastFollowUps(m.ctrl.State().Transcript)
	if len(ups) == 0 {
		m.status = "No follow-up suggestions."
		return
	}
	m.ctrl.ReplayFollowUp(ups[m.followUpIdx%len(ups)])
	m.followUpIdx++
	if m.ctrl.Buffer().TakeFocusRequest() {
		m.focus = focusInput
	}
	m.status = ""
}

func (m *Model) cycleModel() tea.Cmd {
	v := m.ctrl.View()
	if len(v.Models) == 0 {
		m.status = "No models available."
		return nil
	}
	next := v.Models[0].ID
	for i, mod := range v.Models {
		if mod.ID == v.Model {
			next = v.Models[(i+1)%len(v.Models)].ID
			break
		}
	}
	return m.runOp("set model", func(ctx context.Context) error {
		return m.ctrl.SetModel(ctx, next)
	})
}

func (m Model) indexOfSession(id string) int {
	if id == "" {
		return 0
	}
	for i, s := range m.ctrl.State().Sessions {
		if s.ID == id {
			return i + 1
		}
	}
	return 0
}

func (m *Model) resize() {
	w := m.width - sidebarWidth - 4
	if w < 20 {
		w = 20
	}
	h := m.height - inputHeight - 6
	if h < 3 {
		h = 3
	}
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(w-4),
	)
	if err != nil {
		log.Warn().Err(err).Msg("could not create markdown renderer")
		r = nil
	}
	m.renderer = r
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.ctrl.State().Transcript, m.renderer, m.viewport.Width))
	m.viewport.GotoBottom()
}
