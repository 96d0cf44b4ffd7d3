package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/datalens/pkg/mention"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	sidebarPane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	transcriptPane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))
	inputPane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	focusedBorder = lipgloss.Color("170")

	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62"))
	activeMarkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	userStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	queryStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")).PaddingLeft(2)
	followUpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("105")).PaddingLeft(2)
	caretStyle        = lipgloss.NewStyle().Reverse(true)

	dropdownStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("62"))
	highlightStyle = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("#FFFFFF"))
)

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	v := m.ctrl.View()

	sidebar := m.renderSidebar(v)
	transcript := transcriptPane.Width(m.viewport.Width).Render(m.viewport.View())

	ip := inputPane.Width(m.viewport.Width - 2)
	if m.focus == focusInput {
		ip = ip.BorderForeground(focusedBorder)
	}
	input := ip.Render(renderDraft(v.Draft.Text, v.Draft.Caret))

	main := []string{transcript}
	if v.DropdownOpen {
		main = append(main, renderDropdown(v.Candidates, v.Draft.HighlightedIndex, m.viewport.Width))
	}
	main = append(main, input, m.renderStatus(v))

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, lipgloss.JoinVertical(lipgloss.Left, main...))
}

func (m Model) renderSidebar(v chat.ViewState) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Conversations"))
	b.WriteString("\n\n")

	rows := []string{"+ New conversation"}
	for _, s := range v.Sessions {
		mark := "  "
		if s.ID == v.ActiveSessionID {
			mark = activeMarkStyle.Render("● ")
		}
		rows = append(rows, mark+truncate(sessionTitle(s), sidebarWidth-6)+"\n  "+
			dimStyle.Render(fmt.Sprintf("%s · %d msgs", humanize.Time(s.UpdatedAt), s.MessageCount)))
	}
	for i, row := range rows {
		if m.focus == focusSessions && i == m.sidebarIdx {
			row = selectedItemStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	if v.SessionsError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(v.SessionsError))
	}

	style := sidebarPane.Width(sidebarWidth).Height(m.height - 2)
	if m.focus == focusSessions {
		style = style.BorderForeground(focusedBorder)
	}
	return style.Render(b.String())
}

func (m Model) renderStatus(v chat.ViewState) string {
	var parts []string
	if v.InFlight {
		parts = append(parts, m.spinner.View()+" Thinking…")
	}
	if m.copied {
		parts = append(parts, activeMarkStyle.Render("Copied!"))
	}
	if v.LastError != "" {
		parts = append(parts, errorStyle.Render(v.LastError))
	}
	if v.CatalogError != "" {
		parts = append(parts, errorStyle.Render(v.CatalogError))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	model := v.Model
	if model == "" {
		model = "default model"
	}
	parts = append(parts, dimStyle.Render(model))

	var help []string
	for _, k := range m.keys.help() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, "  ") + "\n" + dimStyle.Render(strings.Join(help, " · "))
}

// renderDraft draws text with a block caret at the rune offset caret.
func renderDraft(text string, caret int) string {
	runes := []rune(text)
	if caret < 0 || caret > len(runes) {
		caret = len(runes)
	}
	before := string(runes[:caret])
	if caret == len(runes) {
		return before + caretStyle.Render(" ")
	}
	at := string(runes[caret])
	after := string(runes[caret+1:])
	if at == "\n" {
		return before + caretStyle.Render(" ") + "\n" + after
	}
	return before + caretStyle.Render(at) + after
}

func renderDropdown(cands []mention.Candidate, highlighted int, width int) string {
	rows := make([]string, 0, len(cands))
	for i, c := range cands {
		kind := "sql"
		if c.Ref.DBKind == mention.DBKindDocument {
			kind = "doc"
		}
		row := "@" + c.Label()
		row += dimStyle.Render(fmt.Sprintf("  %s · %s rows", kind, humanize.Comma(int64(c.Ref.RowCount))))
		if i == highlighted {
			row = highlightStyle.Render(row)
		}
		rows = append(rows, row)
	}
	return dropdownStyle.Width(width - 2).Render(strings.Join(rows, "\n"))
}

func renderTranscript(msgs []chat.Message, r *glamour.TermRenderer, width int) string {
	if len(msgs) == 0 {
		return dimStyle.Render("Ask a question about your data. Type @ to reference a collection.")
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(userStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Width(width - 2).Render(msg.Content))
			b.WriteString("\n")
		default:
			b.WriteString(assistantStyle.Render("Data Lens"))
			b.WriteString("\n")
			b.WriteString(renderMarkdown(r, msg.Content))
			if msg.QueryText != "" {
				b.WriteString(queryStyle.Render(fmt.Sprintf("%s query:\n%s", queryLabel(msg.QueryKind), msg.QueryText)))
				b.WriteString("\n")
			}
			if v := msg.Visualization; v != nil {
				b.WriteString(queryStyle.Render(visualizationSummary(v)))
				b.WriteString("\n")
			}
		}
	}
	if ups := lastFollowUps(msgs); len(ups) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("Suggested follow-ups (ctrl+f):"))
		b.WriteString("\n")
		for i, u := range ups {
			b.WriteString(followUpStyle.Render(fmt.Sprintf("%d. %s", i+1, u)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderMarkdown(r *glamour.TermRenderer, s string) string {
	if r == nil {
		return s + "\n"
	}
	out, err := r.Render(s)
	if err != nil {
		return s + "\n"
	}
	return out
}

func queryLabel(k chat.QueryKind) string {
	switch k {
	case chat.QueryKindSQL:
		return "SQL"
	case chat.QueryKindDocument:
		return "MongoDB"
	}
	return "Generated"
}

func visualizationSummary(v *chat.Visualization) string {
	title := v.Title
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("%s chart: %s (%d labels, %d series)", v.ChartType, title, len(v.Labels), len(v.Datasets))
}

// lastQuery is the generated query of the most recent assistant answer.
func lastQuery(msgs []chat.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant && msgs[i].QueryText != "" {
			return msgs[i].QueryText, true
		}
	}
	return "", false
}

// lastFollowUps are the suggestions of the final message, if it is an answer.
func lastFollowUps(msgs []chat.Message) []string {
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleAssistant {
		return nil
	}
	return last.FollowUps
}

func sessionTitle(s chat.SessionSummary) string {
	if strings.TrimSpace(s.Title) == "" {
		return "Untitled conversation"
	}
	return s.Title
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
