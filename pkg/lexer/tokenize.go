package lexer

// TokenizeLine scans one line starting in startState and returns its tokens
// and the state to start the next line in. An empty or unknown startState
// means "start". TokenizeLine never fails: input no rule matches becomes
// default-token or "text" tokens, so every call terminates and the returned
// state is always one of the grammar's states.
func (c *Compiled) TokenizeLine(line, startState string) ([]Token, string) {
	st, ok := c.states[startState]
	if !ok {
		st = c.states[StartState]
	}

	s := newScan(line, c.hidden, c.coalesce)
	n := len(s.runes)
	cursor := 0
	var visited []string // States left through zero-width matches at cursor

	for {
		if s.count >= c.maxTokens && cursor < n {
			s.emit(OverflowLabel, cursor, n)
			return s.tokens, StartState
		}

		h, ok := st.matcher.matchAt(s.runes, cursor)
		moved := false
		for ok && h.start == h.end {
			next := st.rules[h.rule].next
			if next != "" && next != st.name {
				if !contains(visited, next) {
					visited = append(visited, st.name)
					st = c.states[next]
					moved = true
					break
				}
				c.logger.Warn("zero-width transition loop",
					"grammar", c.name, "state", st.name, "next", next, "column", cursor)
			}
			// A zero-width match that goes nowhere new gives way to later rules.
			h, ok = matchFrom(st.rules, s.runes, cursor, h.rule+1)
		}
		if moved {
			continue
		}
		if cursor >= n {
			break
		}
		visited = visited[:0]

		switch {
		case ok:
			rule := st.rules[h.rule]
			s.emitMatch(rule, h)
			cursor = h.end
			if rule.next != "" {
				st = c.states[rule.next]
			}
		case st.defaultToken != "":
			end := st.matcher.nextMatch(s.runes, cursor+1)
			if end < 0 {
				end = n
			}
			s.emit(st.defaultToken, cursor, end)
			cursor = end
		default:
			s.emit(TextLabel, cursor, cursor+1)
			cursor++
		}
	}
	return s.tokens, st.name
}

// scan accumulates the tokens of one TokenizeLine call.
type scan struct {
	line     string
	runes    []rune
	offsets  []int // Byte offset in line of each rune column, plus len(line)
	tokens   []Token
	hidden   map[string]bool
	coalesce bool
	count    int // Tokens emitted before coalescing
}

func newScan(line string, hidden map[string]bool, coalesce bool) *scan {
	s := &scan{
		line:     line,
		runes:    make([]rune, 0, len(line)),
		offsets:  make([]int, 0, len(line)+1),
		hidden:   hidden,
		coalesce: coalesce,
	}
	// Ranging over a string yields one rune per invalid byte, as []rune does.
	for i, r := range line {
		s.runes = append(s.runes, r)
		s.offsets = append(s.offsets, i)
	}
	s.offsets = append(s.offsets, len(line))
	return s
}

// text returns the original bytes of rune columns [start, end).
func (s *scan) text(start, end int) string {
	return s.line[s.offsets[start]:s.offsets[end]]
}

func (s *scan) emit(label string, start, end int) {
	if start >= end {
		return
	}
	s.count++
	if s.hidden[label] {
		return
	}
	if s.coalesce && len(s.tokens) > 0 {
		last := &s.tokens[len(s.tokens)-1]
		// Text dropped for a hidden label leaves a gap that must not be bridged.
		if last.Type == label && last.Span.End == start {
			last.Span.End = end
			last.Text = s.text(last.Span.Start, end)
			return
		}
	}
	s.tokens = append(s.tokens, NewToken(label, s.text(start, end), start, end))
}

func (s *scan) emitMatch(r *compiledRule, h hit) {
	switch kind := r.kind.(type) {
	case Label:
		s.emit(string(kind), h.start, h.end)
	case *KeywordClassifier:
		s.emit(kind.Classify(s.text(h.start, h.end)), h.start, h.end)
	case Labels:
		if len(h.groups) == 0 {
			s.emit(kind[0], h.start, h.end)
			return
		}
		pos := h.start
		for i, g := range h.groups {
			// Skip groups that did not match, are empty, nest inside an
			// earlier group or reach outside the match through a lookaround.
			if !g.ok || g.start == g.end || g.start < pos || g.end > h.end {
				continue
			}
			s.emit(TextLabel, pos, g.start)
			s.emit(kind[i], g.start, g.end)
			pos = g.end
		}
		s.emit(TextLabel, pos, h.end)
	}
}
