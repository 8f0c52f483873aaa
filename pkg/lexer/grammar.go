package lexer

import "sort"

// StartState is the state every document begins in.
const StartState = "start"

// TokenKind is the label source of a rule: a Label, a Labels list or a
// *KeywordClassifier.
type TokenKind interface {
	isTokenKind()
}

// Label is a single static token label.
type Label string

// Labels assigns one label per capture group of a multi-token rule.
type Labels []string

func (Label) isTokenKind()  {}
func (Labels) isTokenKind() {}

// Rule is one ordered match directive within a state.
type Rule struct {
	Regex           string
	Token           TokenKind
	Next            string // Empty means stay in the current state
	CaseInsensitive bool

	// DefaultToken, on a rule without a regex, labels text that no rule
	// of the state matches.
	DefaultToken string

	// Include splices the rules of another state in place of this rule.
	Include string
}

// Grammar maps state names to ordered rule lists.
type Grammar struct {
	Name   string
	States map[string][]Rule

	// Hidden lists labels whose tokens are dropped from the output. The
	// empty label may only be used in a Labels rule when listed here.
	Hidden []string
}

// Extension describes how a derived grammar changes the states of its base.
type Extension struct {
	Replace map[string][]Rule // Whole states added or replaced
	Prepend map[string][]Rule // Rules tried before the inherited ones
	Append  map[string][]Rule // Rules tried after the inherited ones
	Hidden  []string
}

// StateNames returns the grammar's state names in sorted order.
func (g *Grammar) StateNames() []string {
	names := make([]string, 0, len(g.States))
	for name := range g.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the grammar whose state table can be modified
// without affecting g.
func (g *Grammar) Clone() *Grammar {
	c := &Grammar{
		Name:   g.Name,
		States: make(map[string][]Rule, len(g.States)),
		Hidden: append([]string(nil), g.Hidden...),
	}
	for name, rules := range g.States {
		c.States[name] = append([]Rule(nil), rules...)
	}
	return c
}

// Extend derives a new grammar from g. Replacements are applied first, then
// prepends and appends; a prepend or append to a state g lacks creates it.
func (g *Grammar) Extend(name string, ext Extension) *Grammar {
	d := g.Clone()
	d.Name = name
	for state, rules := range ext.Replace {
		d.States[state] = append([]Rule(nil), rules...)
	}
	for state, rules := range ext.Prepend {
		merged := make([]Rule, 0, len(rules)+len(d.States[state]))
		merged = append(merged, rules...)
		d.States[state] = append(merged, d.States[state]...)
	}
	for state, rules := range ext.Append {
		d.States[state] = append(d.States[state], rules...)
	}
	for _, label := range ext.Hidden {
		if !contains(d.Hidden, label) {
			d.Hidden = append(d.Hidden, label)
		}
	}
	return d
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
