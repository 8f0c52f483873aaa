package lexer

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// backrefRegex finds numbered or named back-references, which would point at
// the wrong group once a pattern is merged into a state-wide alternation.
var backrefRegex = regexp2.MustCompile(`\\(?:[1-9]|k<|k')`, regexp2.None)

// groupSpan is the rune range of one capture group; ok is false when the group
// did not take part in the match.
type groupSpan struct {
	start, end int
	ok         bool
}

// hit is the result of matching a state's rules at one cursor position.
type hit struct {
	rule       int // Index into the state's compiled rules
	start, end int
	groups     []groupSpan
}

// matcher finds, at a cursor position, the first rule of a state that matches
// there. Implementations hold no per-call state.
type matcher interface {
	matchAt(runes []rune, pos int) (hit, bool)
	// nextMatch returns the smallest position >= from at which some rule
	// matches, or -1.
	nextMatch(runes []rune, from int) int
}

// compiledRule is one regex rule of a state after include expansion.
type compiledRule struct {
	origin   ruleRef
	pattern  string
	kind     TokenKind
	next     string
	options  regexp2.RegexOptions
	anchored *regexp2.Regexp // \G(?:pattern)
	search   *regexp2.Regexp // pattern
	groups   int             // Number of capture groups in pattern
}

// mergeable reports whether the rule keeps its meaning inside a combined
// alternation where its groups are renumbered.
func (r *compiledRule) mergeable() bool {
	if r.namedGroups() {
		return false
	}
	found, err := backrefRegex.MatchString(r.pattern)
	return err == nil && !found
}

// namedGroups reports whether the pattern has named capture groups, which
// regexp2 numbers after all unnamed ones rather than in pattern order.
func (r *compiledRule) namedGroups() bool {
	for _, name := range r.search.GetGroupNames() {
		if _, err := strconv.Atoi(name); err != nil {
			return true
		}
	}
	return false
}

func (r *compiledRule) wrapped() string {
	if r.options&regexp2.IgnoreCase != 0 {
		return "(?i:" + r.pattern + ")"
	}
	return "(?:" + r.pattern + ")"
}

// combinedMatcher merges all rules of a state into one alternation, each
// alternative wrapped in a capture group so the winning rule can be found.
// Alternation order is declaration order, so the first rule that matches at
// the cursor wins exactly as if the rules were tried one by one.
type combinedMatcher struct {
	rules    []*compiledRule
	offsets  []int // Group number of each rule's wrapping group
	anchored *regexp2.Regexp
	search   *regexp2.Regexp
}

func newCombinedMatcher(rules []*compiledRule) (*combinedMatcher, error) {
	m := &combinedMatcher{
		rules:   rules,
		offsets: make([]int, len(rules)),
	}
	alternatives := make([]string, len(rules))
	group := 1
	for i, r := range rules {
		m.offsets[i] = group
		alternatives[i] = "(" + r.wrapped() + ")"
		group += 1 + r.groups
	}
	body := "(?:" + strings.Join(alternatives, "|") + ")"

	var err error
	if m.anchored, err = regexp2.Compile(`\G`+body, regexp2.None); err != nil {
		return nil, err
	}
	if m.search, err = regexp2.Compile(body, regexp2.None); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *combinedMatcher) matchAt(runes []rune, pos int) (hit, bool) {
	match, err := m.anchored.FindRunesMatchStartingAt(runes, pos)
	if err != nil || match == nil {
		return hit{}, false
	}
	for i, r := range m.rules {
		g := match.GroupByNumber(m.offsets[i])
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		h := hit{rule: i, start: g.Index, end: g.Index + g.Length}
		for j := 1; j <= r.groups; j++ {
			h.groups = append(h.groups, spanOf(match.GroupByNumber(m.offsets[i]+j)))
		}
		return h, true
	}
	return hit{}, false
}

func (m *combinedMatcher) nextMatch(runes []rune, from int) int {
	if from > len(runes) {
		return -1
	}
	match, err := m.search.FindRunesMatchStartingAt(runes, from)
	if err != nil || match == nil {
		return -1
	}
	return match.Index
}

// sequentialMatcher tries each rule anchored at the cursor in order. It is used
// for states whose patterns cannot be merged.
type sequentialMatcher struct {
	rules []*compiledRule
}

func (m *sequentialMatcher) matchAt(runes []rune, pos int) (hit, bool) {
	return matchFrom(m.rules, runes, pos, 0)
}

// matchFrom tries rules[from:] anchored at pos, in order.
func matchFrom(rules []*compiledRule, runes []rune, pos, from int) (hit, bool) {
	for i := from; i < len(rules); i++ {
		r := rules[i]
		match, err := r.anchored.FindRunesMatchStartingAt(runes, pos)
		if err != nil || match == nil {
			continue
		}
		h := hit{rule: i, start: match.Index, end: match.Index + match.Length}
		numbers := r.anchored.GetGroupNumbers()
		for _, n := range numbers {
			if n == 0 {
				continue
			}
			h.groups = append(h.groups, spanOf(match.GroupByNumber(n)))
		}
		return h, true
	}
	return hit{}, false
}

func (m *sequentialMatcher) nextMatch(runes []rune, from int) int {
	if from > len(runes) {
		return -1
	}
	best := -1
	for _, r := range m.rules {
		match, err := r.search.FindRunesMatchStartingAt(runes, from)
		if err != nil || match == nil {
			continue
		}
		if best < 0 || match.Index < best {
			best = match.Index
		}
	}
	return best
}

// emptyMatcher serves states that only declare a default token.
type emptyMatcher struct{}

func (emptyMatcher) matchAt([]rune, int) (hit, bool) { return hit{}, false }
func (emptyMatcher) nextMatch([]rune, int) int      { return -1 }

func spanOf(g *regexp2.Group) groupSpan {
	if g == nil || len(g.Captures) == 0 {
		return groupSpan{}
	}
	return groupSpan{start: g.Index, end: g.Index + g.Length, ok: true}
}
