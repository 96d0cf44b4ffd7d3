package mention

import (
	"regexp"
)

// Trigger inspects the text before caret (a rune offset) and reports whether
// it ends in an open mention: an unescaped '@' followed only by
// [A-Za-z0-9_:] characters up to the caret. filter is the text after the '@'
// and start is the rune offset of the '@'.
func Trigger(text string, caret int) (active bool, filter string, start int) {
	runes := []rune(text)
	caret = clampCaret(caret, len(runes))

	for i := caret - 1; i >= 0; i-- {
		r := runes[i]
		if r == '@' {
			if i > 0 && runes[i-1] == '\\' {
				return false, "", -1
			}
			return true, string(runes[i+1 : caret]), i
		}
		if !isFilterRune(r) {
			return false, "", -1
		}
	}
	return false, "", -1
}

// Splice replaces the open mention ending at caret with "@displayRef " and
// returns the new text and the caret positioned right after the inserted
// space. Only the span from the '@' to the caret changes; ok is false when
// there is no open mention at caret.
func Splice(text string, caret int, displayRef string) (newText string, newCaret int, ok bool) {
	active, _, start := Trigger(text, caret)
	if !active {
		return text, caret, false
	}
	runes := []rune(text)
	caret = clampCaret(caret, len(runes))

	insert := []rune("@" + displayRef + " ")
	out := make([]rune, 0, len(runes)-(caret-start)+len(insert))
	out = append(out, runes[:start]...)
	out = append(out, insert...)
	out = append(out, runes[caret:]...)
	return string(out), start + len(insert), true
}

var mentionPattern = regexp.MustCompile(`@(\w+(?::\w+)?)`)

// Extract lists the mention references in content in order of first
// appearance, without duplicates. It does not check that they resolve.
func Extract(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	ret := make([]string, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		if len(m) < 2 || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		ret = append(ret, m[1])
	}
	return ret
}

func isFilterRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == ':':
		return true
	}
	return false
}

func clampCaret(caret, n int) int {
	if caret < 0 || caret > n {
		return n
	}
	return caret
}
