package lexer

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockGrammar has a C-style block comment that spans lines.
func blockGrammar() *Grammar {
	return &Grammar{Name: "block", States: map[string][]Rule{
		"start": {
			{Regex: `/\*`, Token: Label("comment"), Next: "comment"},
			{Regex: `\b(?:if|then|else)\b`, Token: Label("keyword")},
			{Regex: `[a-z]+`, Token: Label("identifier")},
			{Regex: `\s+`, Token: Label("whitespace")},
		},
		"comment": {
			{Regex: `\*/`, Token: Label("comment"), Next: "start"},
			{DefaultToken: "comment"},
		},
	}}
}

// byGrammar switches to a rule-name state after "by" and back to "start" at
// the end of the line through a zero-width rule.
func byGrammar() *Grammar {
	return &Grammar{Name: "by", States: map[string][]Rule{
		"start": {
			{Regex: `by`, Token: Label("operator.by"), Next: "rulename"},
			{Regex: `\s+`, Token: Label("whitespace")},
			{Regex: `[a-z]+`, Token: Label("identifier")},
		},
		"rulename": {
			{Regex: `\s+`, Token: Label("whitespace")},
			{Regex: `lem|mp`, Token: Label("rule"), Next: "start"},
			{Regex: `$`, Token: Label("text"), Next: "start"},
		},
	}}
}

func labelsOf(tokens []Token) []string {
	labels := make([]string, len(tokens))
	for i, t := range tokens {
		labels[i] = t.Type
	}
	return labels
}

func textsOf(tokens []Token) []string {
	texts := make([]string, len(tokens))
	for i, t := range tokens {
		texts[i] = t.Text
	}
	return texts
}

func mustCompile(t *testing.T, g *Grammar, opts ...Option) *Compiled {
	t.Helper()
	c, err := Compile(g, opts...)
	require.NoError(t, err, "compiling grammar %s", g.Name)
	return c
}

func TestFirstMatchPriority(t *testing.T) {
	c := mustCompile(t, blockGrammar())

	tests := []struct {
		input    string
		expected []string
	}{
		{"if", []string{"keyword"}},
		{"foo", []string{"identifier"}},
		{"ifx", []string{"identifier"}},
		{"if x", []string{"keyword", "whitespace", "identifier"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, _ := c.TokenizeLine(tt.input, "start")
			assert.Equal(t, tt.expected, labelsOf(tokens))
		})
	}
}

func TestFirstMatchPriorityOverlappingRules(t *testing.T) {
	// Both rules match "if"; the one declared first must win.
	g := &Grammar{Name: "overlap", States: map[string][]Rule{
		"start": {
			{Regex: `if|then|else`, Token: Label("keyword")},
			{Regex: `[a-z]+`, Token: Label("identifier")},
		},
	}}
	c := mustCompile(t, g)

	tokens, _ := c.TokenizeLine("if", "")
	assert.Equal(t, []string{"keyword"}, labelsOf(tokens))
	tokens, _ = c.TokenizeLine("foo", "")
	assert.Equal(t, []string{"identifier"}, labelsOf(tokens))
}

func TestKeywordRule(t *testing.T) {
	words := NewKeywordClassifier([]KeywordClass{{Label: "keyword", Words: "if|then|else"}}, "identifier", false)
	g := &Grammar{Name: "kw", States: map[string][]Rule{
		"start": {
			{Regex: `[a-zA-Z_]\w*`, Token: words},
			{Regex: `\s+`, Token: Label("whitespace")},
		},
	}}
	c := mustCompile(t, g)

	tests := []struct {
		input string
		label string
	}{
		{"ifx", "identifier"},
		{"if", "keyword"},
		{"else", "keyword"},
		{"Else", "identifier"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, _ := c.TokenizeLine(tt.input, "start")
			require.Len(t, tokens, 1)
			assert.Equal(t, tt.label, tokens[0].Type)
			assert.Equal(t, tt.input, tokens[0].Text)
		})
	}
}

func TestStatePropagation(t *testing.T) {
	c := mustCompile(t, blockGrammar())

	tokens, state := c.TokenizeLine("x /* open", "start")
	require.Equal(t, "comment", state)
	assert.Equal(t, []string{"identifier", "whitespace", "comment"}, labelsOf(tokens))

	tokens, state = c.TokenizeLine("still inside", state)
	assert.Equal(t, "comment", state)
	assert.Equal(t, []string{"comment"}, labelsOf(tokens))

	tokens, state = c.TokenizeLine("done */ if y", state)
	assert.Equal(t, "start", state)
	assert.Equal(t, []string{"comment", "whitespace", "keyword", "whitespace", "identifier"}, labelsOf(tokens))
	assert.Equal(t, []string{"done */", " ", "if", " ", "y"}, textsOf(tokens))
}

func TestZeroWidthEndOfLineTransition(t *testing.T) {
	c := mustCompile(t, byGrammar())

	tests := []struct {
		input    string
		expected []string
	}{
		{"x by", []string{"identifier", "whitespace", "operator.by"}},
		{"x by lem", []string{"identifier", "whitespace", "operator.by", "whitespace", "rule"}},
		{"by ", []string{"operator.by", "whitespace"}},
		{"by ?", []string{"operator.by", "whitespace", "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, state := c.TokenizeLine(tt.input, "start")
			assert.Equal(t, "start", state)
			assert.Equal(t, tt.expected, labelsOf(tokens))
		})
	}

	// An empty line in the rule-name state still takes the "$" transition.
	tokens, state := c.TokenizeLine("", "rulename")
	assert.Empty(t, tokens)
	assert.Equal(t, "start", state)
}

func TestZeroWidthMatchWithoutTransitionGivesWay(t *testing.T) {
	g := &Grammar{Name: "look", States: map[string][]Rule{
		"start": {
			{Regex: `(?=x)`, Token: Label("look")},
			{Regex: `x`, Token: Label("kw")},
			{Regex: `(?=y)`, Next: "start"},
			{Regex: `y`, Token: Label("why")},
		},
	}}

	for _, opts := range [][]Option{nil, {WithSequentialMatching()}} {
		c := mustCompile(t, g, opts...)
		tokens, state := c.TokenizeLine("xyz", "start")
		assert.Equal(t, []string{"kw", "why", "text"}, labelsOf(tokens))
		assert.Equal(t, "start", state)
	}
}

func TestZeroWidthLoopIsBroken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	g := &Grammar{Name: "loop", States: map[string][]Rule{
		"start": {{Regex: "", Next: "other"}, {Regex: `\w+`, Token: Label("word")}},
		"other": {{Regex: "", Next: "start"}},
	}}
	c := mustCompile(t, g, WithLogger(logger))

	tokens, state := c.TokenizeLine("ab", "start")
	assert.Equal(t, "ab", Reconstruct(tokens))
	assert.True(t, c.HasState(state), "unknown end state %q", state)
	assert.Contains(t, buf.String(), "zero-width transition loop")
}

func TestDefaultToken(t *testing.T) {
	c := mustCompile(t, blockGrammar(), WithCoalesce(false))

	tokens, state := c.TokenizeLine("abc */ d", "comment")
	assert.Equal(t, []string{"comment", "comment", "whitespace", "identifier"}, labelsOf(tokens))
	assert.Equal(t, []string{"abc ", "*/", " ", "d"}, textsOf(tokens))
	assert.Equal(t, "start", state)
}

func TestUnrecognizedText(t *testing.T) {
	c := mustCompile(t, blockGrammar(), WithCoalesce(false))

	tokens, _ := c.TokenizeLine("a+-b", "start")
	assert.Equal(t, []Token{
		{Type: "identifier", Text: "a", Span: Span{0, 1}},
		{Type: TextLabel, Text: "+", Span: Span{1, 2}},
		{Type: TextLabel, Text: "-", Span: Span{2, 3}},
		{Type: "identifier", Text: "b", Span: Span{3, 4}},
	}, tokens)

	// With coalescing the two unrecognized runes form one token.
	c = mustCompile(t, blockGrammar())
	tokens, _ = c.TokenizeLine("a+-b", "start")
	assert.Equal(t, []string{"a", "+-", "b"}, textsOf(tokens))
}

func TestMultiLabelRule(t *testing.T) {
	g := &Grammar{Name: "multi", States: map[string][]Rule{
		"start": {
			{Regex: `(\w+)(=)(\w+)`, Token: Labels{"key", "operator", "value"}},
			{Regex: `(a)-(b)`, Token: Labels{"x", "y"}},
			{Regex: `(^|\s)(%.*)$`, Token: Labels{"text", "comment"}},
		},
	}}
	c := mustCompile(t, g)

	tests := []struct {
		input  string
		labels []string
		texts  []string
	}{
		{"k=v", []string{"key", "operator", "value"}, []string{"k", "=", "v"}},
		{"a-b", []string{"x", TextLabel, "y"}, []string{"a", "-", "b"}},
		{"% note", []string{"comment"}, []string{"% note"}},
		{" % note", []string{"text", "comment"}, []string{" ", "% note"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, _ := c.TokenizeLine(tt.input, "")
			assert.Equal(t, tt.labels, labelsOf(tokens))
			assert.Equal(t, tt.texts, textsOf(tokens))
		})
	}
}

func TestHiddenLabels(t *testing.T) {
	g := &Grammar{
		Name:   "hidden",
		Hidden: []string{""},
		States: map[string][]Rule{
			"start": {{Regex: `(\s*)(\w+)`, Token: Labels{"", "word"}}},
		},
	}
	c := mustCompile(t, g)

	tokens, _ := c.TokenizeLine("  ab cd", "")
	assert.Equal(t, []Token{
		{Type: "word", Text: "ab", Span: Span{2, 4}},
		{Type: "word", Text: "cd", Span: Span{5, 7}},
	}, tokens)
}

func TestTokenCap(t *testing.T) {
	g := &Grammar{Name: "chars", States: map[string][]Rule{
		"start": {{Regex: `\w`, Token: Label("char")}},
		"other": {{Regex: `\w`, Token: Label("char")}},
	}}
	c := mustCompile(t, g, WithMaxTokens(3), WithCoalesce(false))

	tokens, state := c.TokenizeLine("abcdef", "other")
	require.Len(t, tokens, 4)
	assert.Equal(t, Token{Type: OverflowLabel, Text: "def", Span: Span{3, 6}}, tokens[3])
	assert.Equal(t, StartState, state)
}

func TestUnknownStartState(t *testing.T) {
	c := mustCompile(t, blockGrammar())

	for _, state := range []string{"", "nonexistent"} {
		tokens, end := c.TokenizeLine("/* x", state)
		require.NotEmpty(t, tokens)
		assert.Equal(t, "comment", tokens[0].Type, "from %q", state)
		assert.Equal(t, "comment", end, "from %q", state)
	}
}

func TestUnicodeColumns(t *testing.T) {
	c := mustCompile(t, blockGrammar())

	tokens, _ := c.TokenizeLine("é✓ ab", "start")
	last := tokens[len(tokens)-1]
	assert.Equal(t, "ab", last.Text)
	assert.Equal(t, Span{3, 5}, last.Span)
}

func TestInvalidUTF8KeepsOriginalBytes(t *testing.T) {
	c := mustCompile(t, blockGrammar(), WithCoalesce(false))

	tokens, _ := c.TokenizeLine("ab\xffcd", "start")
	assert.Equal(t, []Token{
		{Type: "identifier", Text: "ab", Span: Span{0, 2}},
		{Type: TextLabel, Text: "\xff", Span: Span{2, 3}},
		{Type: "identifier", Text: "cd", Span: Span{3, 5}},
	}, tokens)
}

// TestTotalityAndReconstruction checks that every call terminates with a
// known end state and that the tokens partition the line.
func TestTotalityAndReconstruction(t *testing.T) {
	grammars := []*Grammar{
		blockGrammar(),
		byGrammar(),
		{Name: "loop", States: map[string][]Rule{
			"start": {{Regex: "", Next: "other"}, {Regex: `\w+`, Token: Label("word")}},
			"other": {{Regex: "", Next: "start"}},
		}},
		{Name: "empty", States: map[string][]Rule{"start": {}}},
	}
	lines := []string{
		"",
		" ",
		"\t",
		"if then else",
		"/* open",
		"close */ x",
		"/**/",
		"*/ /* */ /*",
		"by lem on 1,2",
		"héllo ✓ wörld",
		"%$#@!",
		"ab\xffcd",
		"\xc3(/*\xe2\x82 */",
		strings.Repeat("ab ", 50),
	}
	states := []string{"", "start", "comment", "rulename", "other", "bogus"}

	for _, g := range grammars {
		for _, coalesce := range []bool{true, false} {
			c := mustCompile(t, g, WithCoalesce(coalesce))
			for _, line := range lines {
				for _, state := range states {
					tokens, end := c.TokenizeLine(line, state)
					assert.Equal(t, line, Reconstruct(tokens), "%s: %q from %q", g.Name, line, state)
					assert.True(t, c.HasState(end), "%s: %q from %q ends in unknown state %q", g.Name, line, state, end)
					pos := 0
					for _, tok := range tokens {
						assert.Equal(t, pos, tok.Span.Start, "%s: %q from %q has a gap", g.Name, line, state)
						assert.Positive(t, tok.Span.Len(), "%s: %q from %q has an empty token", g.Name, line, state)
						pos = tok.Span.End
					}
				}
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	c := mustCompile(t, blockGrammar())
	line := "x /* y */ if z /* w"

	tokens1, state1 := c.TokenizeLine(line, "start")
	tokens2, state2 := c.TokenizeLine(line, "start")
	assert.Equal(t, tokens1, tokens2)
	assert.Equal(t, state1, state2)
}

func TestConcurrentTokenization(t *testing.T) {
	c := mustCompile(t, blockGrammar())
	lines := []string{"if x", "/* a", "b */ c", "then else"}

	expected := make([][]Token, len(lines))
	for i, line := range lines {
		expected[i], _ = c.TokenizeLine(line, "start")
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				i := n % len(lines)
				got, _ := c.TokenizeLine(lines[i], "start")
				if !assert.Equal(t, expected[i], got, "concurrent result for %q", lines[i]) {
					return
				}
			}
		}()
	}
	wg.Wait()
}
