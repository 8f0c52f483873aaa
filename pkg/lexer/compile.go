package lexer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultMaxTokens caps the tokens produced for one line.
const DefaultMaxTokens = 2000

var (
	ErrNoStartState  = errors.New("grammar has no \"start\" state")
	ErrUnknownState  = errors.New("unknown state")
	ErrIncludeCycle  = errors.New("include cycle")
	ErrLabelMismatch = errors.New("number of labels does not match number of capture groups")
	ErrHiddenLabel   = errors.New("empty label used but the grammar does not declare it hidden")
	ErrEmptyRule     = errors.New("rule has no regex, next state or default token")
	ErrNoClassifier  = errors.New("keyword rule has no classifier")
	ErrNamedGroup    = errors.New("named capture groups cannot be paired with labels")
)

// CompileError identifies the state and rule a grammar compilation failed on.
// Rule is -1 for errors that concern a whole state.
type CompileError struct {
	Grammar string
	State   string
	Rule    int
	Err     error
}

func (e *CompileError) Error() string {
	if e.Rule < 0 {
		return fmt.Sprintf("grammar %q, state %q: %v", e.Grammar, e.State, e.Err)
	}
	return fmt.Sprintf("grammar %q, state %q, rule %d: %v", e.Grammar, e.State, e.Rule, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Option configures compilation.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	coalesce   bool
	maxTokens  int
	sequential bool
}

// WithLogger sets the logger used for grammar warnings. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCoalesce controls merging of adjacent tokens that share a label.
func WithCoalesce(on bool) Option {
	return func(o *options) { o.coalesce = on }
}

// WithMaxTokens sets the per-line token cap; n <= 0 restores the default.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = DefaultMaxTokens
		}
		o.maxTokens = n
	}
}

// WithSequentialMatching disables merging a state's patterns into one
// alternation and tries each rule in turn instead.
func WithSequentialMatching() Option {
	return func(o *options) { o.sequential = true }
}

// Compiled is an immutable compiled grammar, safe for concurrent use.
type Compiled struct {
	name      string
	states    map[string]*compiledState
	hidden    map[string]bool
	logger    *slog.Logger
	coalesce  bool
	maxTokens int
	warnings  []string
}

type compiledState struct {
	name         string
	rules        []*compiledRule
	defaultToken string
	matcher      matcher
}

// ruleRef locates a rule as declared, before include expansion.
type ruleRef struct {
	state string
	index int
}

type flatRule struct {
	Rule
	origin ruleRef
}

// Compile validates g and builds its runtime form.
func Compile(g *Grammar, opts ...Option) (*Compiled, error) {
	o := options{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		coalesce:  true,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if g == nil {
		return nil, errors.New("nil grammar")
	}

	c := &Compiled{
		name:      g.Name,
		states:    make(map[string]*compiledState, len(g.States)),
		hidden:    make(map[string]bool, len(g.Hidden)),
		logger:    o.logger,
		coalesce:  o.coalesce,
		maxTokens: o.maxTokens,
	}
	for _, label := range g.Hidden {
		c.hidden[label] = true
	}
	if _, ok := g.States[StartState]; !ok {
		return nil, &CompileError{Grammar: g.Name, State: StartState, Rule: -1, Err: ErrNoStartState}
	}

	names := g.StateNames()
	for _, name := range names {
		st, err := c.compileState(g, name, names, o.sequential)
		if err != nil {
			return nil, err
		}
		c.states[name] = st
	}

	c.warnings = c.zeroWidthCycles(names)
	for _, w := range c.warnings {
		c.logger.Warn("grammar warning", "grammar", c.name, "warning", w)
	}
	c.logger.Debug("compiled grammar", "grammar", c.name, "states", len(c.states))
	return c, nil
}

// MustCompile is like Compile but panics on error. It is meant for built-in
// grammars that are known to be valid.
func MustCompile(g *Grammar, opts ...Option) *Compiled {
	c, err := Compile(g, opts...)
	if err != nil {
		panic(fmt.Sprintf("Invalid grammar: %v", err))
	}
	return c
}

func (c *Compiled) compileState(g *Grammar, name string, names []string, sequential bool) (*compiledState, error) {
	flat, err := expandIncludes(g, name, nil, names)
	if err != nil {
		return nil, err
	}

	st := &compiledState{name: name}
	mergeable := !sequential
	for _, fr := range flat {
		fail := func(err error) error {
			return &CompileError{Grammar: g.Name, State: fr.origin.state, Rule: fr.origin.index, Err: err}
		}
		isDefaultOnly := fr.Regex == "" && fr.Token == nil && fr.Next == ""
		if isDefaultOnly {
			if fr.DefaultToken == "" {
				return nil, fail(ErrEmptyRule)
			}
			if st.defaultToken == "" {
				st.defaultToken = fr.DefaultToken
			}
			continue
		}
		if fr.DefaultToken != "" && st.defaultToken == "" {
			st.defaultToken = fr.DefaultToken
		}
		if fr.Next != "" {
			if _, ok := g.States[fr.Next]; !ok {
				return nil, fail(unknownState(fr.Next, names))
			}
		}

		r, err := compileRule(fr)
		if err != nil {
			return nil, fail(err)
		}
		if err := c.checkKind(r); err != nil {
			return nil, fail(err)
		}
		mergeable = mergeable && r.mergeable()
		st.rules = append(st.rules, r)
	}

	switch {
	case len(st.rules) == 0:
		st.matcher = emptyMatcher{}
	case mergeable:
		m, err := newCombinedMatcher(st.rules)
		if err != nil {
			return nil, &CompileError{Grammar: g.Name, State: name, Rule: -1, Err: err}
		}
		st.matcher = m
	default:
		st.matcher = &sequentialMatcher{rules: st.rules}
	}
	return st, nil
}

func compileRule(fr flatRule) (*compiledRule, error) {
	r := &compiledRule{
		origin:  fr.origin,
		pattern: fr.Regex,
		kind:    fr.Token,
		next:    fr.Next,
		options: regexp2.None,
	}
	if r.kind == nil {
		r.kind = Label(TextLabel)
	}
	if fr.CaseInsensitive {
		r.options |= regexp2.IgnoreCase
	}

	var err error
	if r.search, err = regexp2.Compile(fr.Regex, r.options); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", fr.Regex, err)
	}
	if r.anchored, err = regexp2.Compile(`\G(?:`+fr.Regex+`)`, r.options); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", fr.Regex, err)
	}
	r.groups = len(r.search.GetGroupNumbers()) - 1
	return r, nil
}

func (c *Compiled) checkKind(r *compiledRule) error {
	switch kind := r.kind.(type) {
	case Labels:
		// A single label with no groups labels the whole match.
		if len(kind) == 1 && r.groups == 0 {
			break
		}
		if len(kind) == 0 || len(kind) != r.groups {
			return fmt.Errorf("%w: %d labels, %d groups in %q", ErrLabelMismatch, len(kind), r.groups, r.pattern)
		}
		if r.groups > 1 && r.namedGroups() {
			return fmt.Errorf("%w: %q", ErrNamedGroup, r.pattern)
		}
		for _, label := range kind {
			if label == "" && !c.hidden[""] {
				return ErrHiddenLabel
			}
		}
	case *KeywordClassifier:
		if kind == nil {
			return ErrNoClassifier
		}
	}
	return nil
}

// expandIncludes flattens the rules of state, splicing in included states.
func expandIncludes(g *Grammar, state string, stack []string, names []string) ([]flatRule, error) {
	stack = append(stack, state)
	var out []flatRule
	for i, rule := range g.States[state] {
		if rule.Include == "" {
			out = append(out, flatRule{Rule: rule, origin: ruleRef{state: state, index: i}})
			continue
		}
		ref := &CompileError{Grammar: g.Name, State: state, Rule: i}
		if _, ok := g.States[rule.Include]; !ok {
			ref.Err = unknownState(rule.Include, names)
			return nil, ref
		}
		if contains(stack, rule.Include) {
			ref.Err = fmt.Errorf("%w: %s -> %s", ErrIncludeCycle, strings.Join(stack, " -> "), rule.Include)
			return nil, ref
		}
		included, err := expandIncludes(g, rule.Include, stack, names)
		if err != nil {
			return nil, err
		}
		out = append(out, included...)
	}
	return out, nil
}

func unknownState(name string, names []string) error {
	if s := suggest(name, names); len(s) > 0 {
		return fmt.Errorf("%w %q (did you mean %s?)", ErrUnknownState, name, strings.Join(s, ", "))
	}
	return fmt.Errorf("%w %q", ErrUnknownState, name)
}

// suggest ranks state names close to name: fuzzy subsequence matches first,
// then names within a small edit distance.
func suggest(name string, candidates []string) []string {
	var out []string
	ranks := fuzzy.RankFindFold(name, candidates)
	sort.Sort(ranks)
	for _, r := range ranks {
		out = append(out, r.Target)
	}
	for _, c := range candidates {
		if !contains(out, c) && fuzzy.LevenshteinDistance(name, c) <= 2 {
			out = append(out, c)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// zeroWidthCycles reports cycles of states that, on an empty line, move from
// one to the next without consuming input. The engine breaks such loops at
// scan time; they still point at a grammar mistake.
func (c *Compiled) zeroWidthCycles(names []string) []string {
	edge := make(map[string]string)
	for _, name := range names {
		st := c.states[name]
		h, ok := st.matcher.matchAt(nil, 0)
		if !ok {
			continue
		}
		if next := st.rules[h.rule].next; next != "" && next != name {
			edge[name] = next
		}
	}

	var warnings []string
	for _, name := range names {
		path := []string{name}
		for cur := edge[name]; cur != ""; cur = edge[cur] {
			if cur == name {
				if isSmallest(name, path) {
					warnings = append(warnings, fmt.Sprintf("zero-width transition cycle: %s -> %s", strings.Join(path, " -> "), name))
				}
				break
			}
			if contains(path, cur) {
				break
			}
			path = append(path, cur)
		}
	}
	return warnings
}

func isSmallest(name string, path []string) bool {
	for _, p := range path {
		if p < name {
			return false
		}
	}
	return true
}

// Name returns the grammar's name.
func (c *Compiled) Name() string {
	return c.name
}

// HasState reports whether the grammar declares state.
func (c *Compiled) HasState(state string) bool {
	_, ok := c.states[state]
	return ok
}

// States returns the grammar's state names in sorted order.
func (c *Compiled) States() []string {
	names := make([]string, 0, len(c.states))
	for name := range c.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Warnings returns the grammar-authoring warnings found at compile time.
func (c *Compiled) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// Hidden reports whether tokens with label are dropped from the output.
func (c *Compiled) Hidden(label string) bool {
	return c.hidden[label]
}
