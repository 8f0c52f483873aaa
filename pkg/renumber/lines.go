package renumber

import "strings"

// Lines is an in-memory Document.
type Lines []string

// Lines returns a copy of the document's lines.
func (l *Lines) Lines() []string {
	return append([]string(nil), (*l)...)
}

// Replace substitutes text for the range, which may span rows; text may
// contain newlines. Positions past the end of a row are clamped to it.
func (l *Lines) Replace(r Range, text string) {
	lines := *l
	if r.Start.Row < 0 || r.End.Row >= len(lines) || r.End.Row < r.Start.Row {
		return
	}
	head := []rune(lines[r.Start.Row])
	tail := []rune(lines[r.End.Row])
	prefix := string(head[:clamp(r.Start.Column, len(head))])
	suffix := string(tail[clamp(r.End.Column, len(tail)):])

	replacement := strings.Split(prefix+text+suffix, "\n")
	out := make([]string, 0, len(lines)-(r.End.Row-r.Start.Row)+len(replacement)-1)
	out = append(out, lines[:r.Start.Row]...)
	out = append(out, replacement...)
	out = append(out, lines[r.End.Row+1:]...)
	*l = out
}

// String joins the lines with newlines.
func (l *Lines) String() string {
	return strings.Join(*l, "\n")
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
