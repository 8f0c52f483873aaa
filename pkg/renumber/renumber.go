// Package renumber implements automatic numbering of proof step labels in
// George documents. Typing ")" at the start of a line inside a "#check"
// block inserts the lowest unused numeric label, shifting later labels and
// their "by <rule> on <labels>" references up by one to make room.
package renumber

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

var (
	labelDef = regexp2.MustCompile(`^\s*(?:([0-9]+)|[a-z_][a-z_0-9]*)\)`, regexp2.IgnoreCase)
	labelRef = regexp2.MustCompile(`\bby\s+[a-z_0-9]+\s+on\s+([-, 0-9]+)`, regexp2.IgnoreCase)
	number   = regexp2.MustCompile(`[0-9]+`, regexp2.None)
)

// Position is a row and rune column in a document.
type Position struct {
	Row    int
	Column int
}

// Range is a span between two positions.
type Range struct {
	Start Position
	End   Position
}

// Empty reports whether the range selects nothing.
func (r Range) Empty() bool {
	return r.Start == r.End
}

// Document is the text the behaviour reads and edits.
type Document interface {
	Lines() []string
	Replace(r Range, text string)
}

// Insertion replaces the typed text. Selection holds cursor offsets relative
// to the start of the insertion.
type Insertion struct {
	Text      string
	Selection [2]int
}

// Behaviour renumbers labels within blocks that start with Directive.
type Behaviour struct {
	Directive string
}

// Default uses the George "#check " directive.
var Default = Behaviour{Directive: "#check "}

// OnInsert is Default.OnInsert.
func OnInsert(doc Document, sel Range, text string) (Insertion, bool) {
	return Default.OnInsert(doc, sel, text)
}

// OnInsert handles text typed at sel. It returns false, leaving doc
// untouched, unless text is ")", the selection is empty, only whitespace
// precedes the cursor on its line and a directive line exists above it.
// Otherwise it applies any renumbering edits to doc and returns the label to
// insert in place of text.
func (b Behaviour) OnInsert(doc Document, sel Range, text string) (Insertion, bool) {
	if text != ")" || !sel.Empty() {
		return Insertion{}, false
	}
	lines := doc.Lines()
	cursorRow := sel.Start.Row
	if cursorRow < 0 || cursorRow >= len(lines) {
		return Insertion{}, false
	}
	if strings.TrimSpace(runePrefix(lines[cursorRow], sel.End.Column)) != "" {
		return Insertion{}, false
	}

	first := cursorRow - 1
	for first >= 0 && !b.isDirective(lines[first]) {
		first--
	}
	if first < 0 {
		return Insertion{}, false
	}

	used := make(map[int]bool)
	row := first + 1
	for ; row < cursorRow && !b.isDirective(lines[row]); row++ {
		if n, _, ok := definedLabel(lines[row]); ok {
			used[n] = true
		}
	}
	next := 1
	for used[next] {
		next++
	}
	insert := strconv.Itoa(next) + text + " "

	for ; row < len(lines) && !b.isDirective(lines[row]); row++ {
		if n, _, ok := definedLabel(lines[row]); ok {
			used[n] = true
		}
	}
	last := next
	for used[last] {
		last++
	}

	// Labels in [next, last) move up by one.
	shift := func(n int) bool { return next <= n && n < last }
	for row = first + 1; row < len(lines) && !b.isDirective(lines[row]); row++ {
		if n, g, ok := definedLabel(lines[row]); ok && isCanonical(g.String(), n) && shift(n) {
			doc.Replace(Range{
				Start: Position{Row: row, Column: g.Index},
				End:   Position{Row: row, Column: g.Index + g.Length},
			}, strconv.Itoa(n+1))
			lines = doc.Lines()
		}

		m, err := labelRef.FindStringMatch(lines[row])
		if err != nil || m == nil {
			continue
		}
		refs := m.GroupByNumber(1)
		updated, err := number.ReplaceFunc(refs.String(), func(num regexp2.Match) string {
			n, err := strconv.Atoi(num.String())
			if err != nil || !isCanonical(num.String(), n) || !shift(n) {
				return num.String()
			}
			return strconv.Itoa(n + 1)
		}, -1, -1)
		if err != nil || updated == refs.String() {
			continue
		}
		doc.Replace(Range{
			Start: Position{Row: row, Column: refs.Index},
			End:   Position{Row: row, Column: refs.Index + refs.Length},
		}, updated)
		lines = doc.Lines()
	}

	return Insertion{
		Text:      insert,
		Selection: [2]int{len([]rune(insert)), len([]rune(insert))},
	}, true
}

func (b Behaviour) isDirective(line string) bool {
	return strings.HasPrefix(line, b.Directive)
}

// definedLabel returns the numeric label a line defines, with the group
// holding its digits.
func definedLabel(line string) (int, *regexp2.Group, bool) {
	m, err := labelDef.FindStringMatch(line)
	if err != nil || m == nil {
		return 0, nil, false
	}
	g := m.GroupByNumber(1)
	if g == nil || len(g.Captures) == 0 {
		return 0, nil, false
	}
	n, err := strconv.Atoi(g.String())
	if err != nil {
		return 0, nil, false
	}
	return n, g, true
}

// isCanonical rejects labels written with leading zeros, which are left alone.
func isCanonical(digits string, n int) bool {
	return strconv.Itoa(n) == digits
}

func runePrefix(s string, n int) string {
	r := []rune(s)
	if n > len(r) {
		n = len(r)
	}
	if n < 0 {
		n = 0
	}
	return string(r[:n])
}
