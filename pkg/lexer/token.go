package lexer

import (
	"encoding/json"
	"strings"
)

// Labels emitted by the engine itself rather than by a grammar rule.
const (
	TextLabel     = "text"     // Unrecognized input and text outside capture groups
	OverflowLabel = "overflow" // Remainder of a line past the token cap
)

// Span is the half-open rune column range [Start, End) of a token within its line.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MarshalJSON implements custom JSON marshaling for Span.
func (s Span) MarshalJSON() ([]byte, error) {
	arr := [2]int{s.Start, s.End}
	return json.Marshal(arr)
}

// UnmarshalJSON implements custom JSON unmarshaling for Span.
func (s *Span) UnmarshalJSON(data []byte) error {
	var arr [2]int
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	s.Start = arr[0]
	s.End = arr[1]
	return nil
}

// Len returns the number of runes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Token is a labelled, positioned substring of one line of input.
type Token struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Span Span   `json:"span"`
}

// NewToken creates a token with the given text covering rune columns
// [start, end) of a line.
func NewToken(label, text string, start, end int) Token {
	return Token{
		Type: label,
		Text: text,
		Span: Span{Start: start, End: end},
	}
}

// Reconstruct concatenates the text of the tokens in order.
func Reconstruct(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}
