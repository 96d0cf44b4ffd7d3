package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/mattn/go-isatty"
)

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printMarkdown renders md for terminals and prints it verbatim otherwise.
func printMarkdown(w io.Writer, md string) error {
	if isTerminal(w) {
		out, err := glamour.Render(md, "dark")
		if err == nil {
			_, err = fmt.Fprint(w, out)
			return err
		}
	}
	_, err := fmt.Fprintln(w, md)
	return err
}

// answerMarkdown is an assistant message as a markdown document.
func answerMarkdown(m chat.Message) string {
	var b strings.Builder
	b.WriteString(m.Content)
	b.WriteString("\n")
	if m.QueryText != "" {
		lang := "sql"
		if m.QueryKind == chat.QueryKindDocument {
			lang = "javascript"
		}
		fmt.Fprintf(&b, "\n```%s\n%s\n```\n", lang, m.QueryText)
	}
	if v := m.Visualization; v != nil {
		fmt.Fprintf(&b, "\n_%s chart: %s_\n", v.ChartType, v.Title)
	}
	if len(m.FollowUps) > 0 {
		b.WriteString("\n**Follow-ups**\n\n")
		for _, f := range m.FollowUps {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

func transcriptMarkdown(h chat.SessionHistory) string {
	var b strings.Builder
	title := h.Title
	if title == "" {
		title = "Untitled conversation"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	for _, m := range h.Messages {
		switch m.Role {
		case chat.RoleUser:
			fmt.Fprintf(&b, "## You\n\n%s\n\n", m.Content)
		default:
			fmt.Fprintf(&b, "## Data Lens\n\n%s\n", answerMarkdown(m))
		}
	}
	return b.String()
}
