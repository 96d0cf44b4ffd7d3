package draft

import (
	"strings"

	"github.com/go-go-golems/datalens/pkg/mention"
	"github.com/rs/zerolog/log"
)

// State is the draft as seen by a host: text, caret (a rune offset into
// Text) and the mention context derived from them.
type State struct {
	Text             string
	Caret            int
	MentionActive    bool
	MentionFilter    string
	HighlightedIndex int
}

// CatalogSource supplies the collections mentions can refer to. It is read on
// every text change, so implementations should return a cached snapshot.
type CatalogSource interface {
	Catalog() mention.Catalog
}

// CatalogFunc adapts a function to CatalogSource.
type CatalogFunc func() mention.Catalog

func (f CatalogFunc) Catalog() mention.Catalog { return f() }

// Submitter receives submitted drafts.
type Submitter interface {
	// CanSend reports whether a send may start right now.
	CanSend() bool
	// Submit takes ownership of text and reports whether it was accepted.
	Submit(text string) bool
}

// Buffer owns the draft being edited. It is not safe for concurrent use; the
// host calls it from its event loop only.
type Buffer struct {
	text  []rune
	caret int

	mentionActive bool
	mentionFilter string
	highlighted   int
	dismissed     bool

	candidates []mention.Candidate

	catalog   CatalogSource
	submitter Submitter

	focusRequested bool
}

// NewBuffer creates an empty buffer. catalog and submitter may be nil; a nil
// catalog yields no candidates and a nil submitter rejects every submit.
func NewBuffer(catalog CatalogSource, submitter Submitter) *Buffer {
	return &Buffer{catalog: catalog, submitter: submitter}
}

func (b *Buffer) SetSubmitter(s Submitter) {
	b.submitter = s
}

func (b *Buffer) SetCatalog(c CatalogSource) {
	b.catalog = c
	b.refreshCandidates()
}

func (b *Buffer) State() State {
	return State{
		Text:             string(b.text),
		Caret:            b.caret,
		MentionActive:    b.mentionActive,
		MentionFilter:    b.mentionFilter,
		HighlightedIndex: b.highlighted,
	}
}

func (b *Buffer) Text() string { return string(b.text) }

func (b *Buffer) Caret() int { return b.caret }

// Candidates returns the full resolved candidate list for the open mention.
func (b *Buffer) Candidates() []mention.Candidate {
	if !b.mentionActive {
		return nil
	}
	return b.candidates
}

// DropdownOpen reports whether a mention dropdown should be shown.
func (b *Buffer) DropdownOpen() bool {
	return b.mentionActive && !b.dismissed && len(b.candidates) > 0
}

// SetText replaces the draft. A negative caret (or one past the end) places
// the caret at the end of the text.
func (b *Buffer) SetText(text string, caret int) {
	runes := []rune(text)
	if caret < 0 || caret > len(runes) {
		caret = len(runes)
	}
	if string(runes) != string(b.text) {
		b.dismissed = false
	}
	b.text = runes
	b.caret = caret
	b.rederive()
}

// Insert types s at the caret.
func (b *Buffer) Insert(s string) {
	if s == "" {
		return
	}
	ins := []rune(s)
	out := make([]rune, 0, len(b.text)+len(ins))
	out = append(out, b.text[:b.caret]...)
	out = append(out, ins...)
	out = append(out, b.text[b.caret:]...)
	b.SetText(string(out), b.caret+len(ins))
}

// DeleteBackward removes the rune before the caret.
func (b *Buffer) DeleteBackward() {
	if b.caret == 0 {
		return
	}
	out := make([]rune, 0, len(b.text)-1)
	out = append(out, b.text[:b.caret-1]...)
	out = append(out, b.text[b.caret:]...)
	b.SetText(string(out), b.caret-1)
}

// MoveCaret shifts the caret by delta runes, clamped to the text.
func (b *Buffer) MoveCaret(delta int) {
	c := b.caret + delta
	if c < 0 {
		c = 0
	}
	if c > len(b.text) {
		c = len(b.text)
	}
	b.caret = c
	b.rederive()
}

// MoveHighlight moves the dropdown highlight by dir (negative is up). It is
// a no-op without an open mention or candidates and never wraps.
func (b *Buffer) MoveHighlight(dir int) {
	n := len(mention.Visible(b.candidates))
	if !b.mentionActive || n == 0 {
		return
	}
	b.highlighted = clamp(b.highlighted+dir, 0, n-1)
}

// Highlighted returns the highlighted candidate, if any.
func (b *Buffer) Highlighted() (mention.Candidate, bool) {
	visible := mention.Visible(b.candidates)
	if !b.mentionActive || len(visible) == 0 {
		return mention.Candidate{}, false
	}
	return visible[clamp(b.highlighted, 0, len(visible)-1)], true
}

// AcceptHighlighted splices the highlighted candidate's reference into the
// draft in place of the open mention and closes mention mode.
func (b *Buffer) AcceptHighlighted() bool {
	c, ok := b.Highlighted()
	if !ok {
		return false
	}
	text, caret, ok := mention.Splice(string(b.text), b.caret, c.DisplayRef)
	if !ok {
		return false
	}
	b.SetText(text, caret)
	log.Debug().Str("ref", c.DisplayRef).Int("caret", caret).Msg("mention accepted")
	return true
}

// Dismiss closes the dropdown without touching the text. It reopens on the
// next text change.
func (b *Buffer) Dismiss() {
	b.dismissed = true
}

// Submit hands the trimmed draft to the submitter and clears the buffer.
// Empty drafts and drafts submitted while sending is disallowed are ignored
// silently.
func (b *Buffer) Submit() bool {
	text := strings.TrimSpace(string(b.text))
	if text == "" || b.submitter == nil || !b.submitter.CanSend() {
		return false
	}
	if !b.submitter.Submit(text) {
		return false
	}
	b.Clear()
	return true
}

// Clear empties the draft and mention state.
func (b *Buffer) Clear() {
	b.text = nil
	b.caret = 0
	b.dismissed = false
	b.rederive()
}

// Replay adopts a suggested question, moves the caret to the end and asks
// the host to focus the input. Mention detection stays off until the next
// edit, even when the text ends in an @token.
func (b *Buffer) Replay(text string) {
	b.SetText(text, -1)
	b.mentionActive = false
	b.mentionFilter = ""
	b.candidates = nil
	b.highlighted = 0
	b.focusRequested = true
}

// TakeFocusRequest reports and clears a pending focus request.
func (b *Buffer) TakeFocusRequest() bool {
	ret := b.focusRequested
	b.focusRequested = false
	return ret
}

func (b *Buffer) rederive() {
	wasActive, oldFilter := b.mentionActive, b.mentionFilter
	active, filter, _ := mention.Trigger(string(b.text), b.caret)
	b.mentionActive = active
	b.mentionFilter = filter
	b.refreshCandidates()

	if active && (!wasActive || filter != oldFilter) {
		b.highlighted = 0
	}
	if n := len(mention.Visible(b.candidates)); n > 0 {
		b.highlighted = clamp(b.highlighted, 0, n-1)
	} else {
		b.highlighted = 0
	}
}

func (b *Buffer) refreshCandidates() {
	if !b.mentionActive || b.catalog == nil {
		b.candidates = nil
		return
	}
	b.candidates = mention.Resolve(b.catalog.Catalog(), b.mentionFilter)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
