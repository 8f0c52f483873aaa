package lexer

import "strings"

// KeywordClass pairs a label with a pipe-delimited list of words, e.g.
// {"keyword", "if|then|else"}.
type KeywordClass struct {
	Label string
	Words string
}

// KeywordClassifier resolves matched identifier text to a label by exact
// lookup, falling back to a default label for unknown words.
type KeywordClassifier struct {
	classes         []KeywordClass
	fallback        string
	caseInsensitive bool

	// Precomputed lookup map for efficient classification
	lookup map[string]string
}

// NewKeywordClassifier builds the lookup table eagerly. A word listed in more
// than one class takes the label of the last class that lists it.
func NewKeywordClassifier(classes []KeywordClass, fallback string, caseInsensitive bool) *KeywordClassifier {
	k := &KeywordClassifier{
		classes:         append([]KeywordClass(nil), classes...),
		fallback:        fallback,
		caseInsensitive: caseInsensitive,
		lookup:          make(map[string]string),
	}
	for _, class := range classes {
		for _, word := range splitWords(class.Words) {
			if caseInsensitive {
				word = strings.ToLower(word)
			}
			k.lookup[word] = class.Label
		}
	}
	return k
}

// Classify returns the label for text.
func (k *KeywordClassifier) Classify(text string) string {
	if k.caseInsensitive {
		text = strings.ToLower(text)
	}
	if label, ok := k.lookup[text]; ok {
		return label
	}
	return k.fallback
}

// Fallback returns the label used for words not found in any class.
func (k *KeywordClassifier) Fallback() string {
	return k.fallback
}

// CaseInsensitive reports whether lookups ignore case.
func (k *KeywordClassifier) CaseInsensitive() bool {
	return k.caseInsensitive
}

// Classes returns a copy of the classes the classifier was built from.
func (k *KeywordClassifier) Classes() []KeywordClass {
	return append([]KeywordClass(nil), k.classes...)
}

// Len returns the number of distinct words in the table.
func (k *KeywordClassifier) Len() int {
	return len(k.lookup)
}

func (*KeywordClassifier) isTokenKind() {}

func splitWords(list string) []string {
	parts := strings.Split(list, "|")
	words := parts[:0]
	for _, p := range parts {
		if p != "" {
			words = append(words, p)
		}
	}
	return words
}
