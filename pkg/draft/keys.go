package draft

// Key is an editing key the buffer gives special meaning to. Printable input
// goes through Insert instead.
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyTab
	KeyEnter
	KeyShiftEnter
	KeyEscape
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyTab:
		return "tab"
	case KeyEnter:
		return "enter"
	case KeyShiftEnter:
		return "shift+enter"
	case KeyEscape:
		return "escape"
	}
	return "unknown"
}

// HandleKey applies the input policy for k and reports whether the key was
// consumed. While the dropdown is open, arrows move the highlight, Tab and
// Enter accept and Escape closes; none of them fall through to line breaks or
// submission. With the dropdown closed, Enter submits and Shift+Enter inserts
// a line break. Unconsumed keys belong to the host (e.g. history navigation).
func (b *Buffer) HandleKey(k Key) bool {
	if b.DropdownOpen() {
		switch k {
		case KeyUp:
			b.MoveHighlight(-1)
			return true
		case KeyDown:
			b.MoveHighlight(1)
			return true
		case KeyTab, KeyEnter:
			b.AcceptHighlighted()
			return true
		case KeyEscape:
			b.Dismiss()
			return true
		}
	}

	switch k {
	case KeyEnter:
		b.Submit()
		return true
	case KeyShiftEnter:
		b.Insert("\n")
		return true
	}
	return false
}
