package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/datalens/pkg/draft"
)

type keyMap struct {
	Quit         key.Binding
	ToggleFocus  key.Binding
	NewSession   key.Binding
	DeleteSess   key.Binding
	CopyQuery    key.Binding
	FollowUp     key.Binding
	CycleModel   key.Binding
	Reload       key.Binding
	ScrollUp     key.Binding
	ScrollDown   key.Binding
	SidebarUp    key.Binding
	SidebarDown  key.Binding
	SidebarEnter key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:         key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		ToggleFocus:  key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "conversations")),
		NewSession:   key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new")),
		DeleteSess:   key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
		CopyQuery:    key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy query")),
		FollowUp:     key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("ctrl+f", "follow-up")),
		CycleModel:   key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "model")),
		Reload:       key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reload")),
		ScrollUp:     key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll")),
		ScrollDown:   key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll")),
		SidebarUp:    key.NewBinding(key.WithKeys("up", "k")),
		SidebarDown:  key.NewBinding(key.WithKeys("down", "j")),
		SidebarEnter: key.NewBinding(key.WithKeys("enter")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.ToggleFocus, k.NewSession, k.FollowUp, k.CopyQuery, k.CycleModel, k.Quit}
}

// draftKey maps terminal keys onto the buffer's keyboard policy. Terminals
// rarely report shift+enter, so alt+enter and ctrl+j also insert a newline.
func draftKey(msg tea.KeyMsg) (draft.Key, bool) {
	switch msg.String() {
	case "up":
		return draft.KeyUp, true
	case "down":
		return draft.KeyDown, true
	case "tab":
		return draft.KeyTab, true
	case "enter":
		return draft.KeyEnter, true
	case "shift+enter", "alt+enter", "ctrl+j":
		return draft.KeyShiftEnter, true
	case "esc":
		return draft.KeyEscape, true
	}
	return 0, false
}

// editDraft applies plain editing keys. It reports whether msg was one.
func editDraft(b *draft.Buffer, msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyRunes:
		b.Insert(string(msg.Runes))
	case tea.KeySpace:
		b.Insert(" ")
	case tea.KeyBackspace:
		b.DeleteBackward()
	case tea.KeyLeft:
		b.MoveCaret(-1)
	case tea.KeyRight:
		b.MoveCaret(1)
	case tea.KeyHome, tea.KeyCtrlA:
		b.MoveCaret(-b.Caret())
	case tea.KeyEnd, tea.KeyCtrlE:
		b.MoveCaret(len([]rune(b.Text())) - b.Caret())
	case tea.KeyCtrlU:
		b.Clear()
	default:
		return false
	}
	return true
}
