package lexer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile represents the structure of a YAML grammar file
type RulesFile struct {
	Name     string                  `yaml:"name"`
	Extends  string                  `yaml:"extends,omitempty"`
	Hidden   []string                `yaml:"hidden,omitempty"`
	Keywords map[string]KeywordsRule `yaml:"keywords,omitempty"`
	States   map[string][]RuleEntry  `yaml:"states,omitempty"`
	Prepend  map[string][]RuleEntry  `yaml:"prepend,omitempty"`
	Append   map[string][]RuleEntry  `yaml:"append,omitempty"`
}

// KeywordsRule represents a named keyword classifier
type KeywordsRule struct {
	CaseInsensitive bool               `yaml:"case_insensitive,omitempty"`
	Fallback        string             `yaml:"fallback"`
	Classes         []KeywordClassRule `yaml:"classes"`
}

// KeywordClassRule represents one label and its pipe-delimited words
type KeywordClassRule struct {
	Label string `yaml:"label"`
	Words string `yaml:"words"`
}

// RuleEntry represents one rule of a state. At most one of Token, Tokens and
// Keywords may be set.
type RuleEntry struct {
	Regex           string   `yaml:"regex,omitempty"`
	Token           string   `yaml:"token,omitempty"`
	Tokens          []string `yaml:"tokens,omitempty,flow"`
	Keywords        string   `yaml:"keywords,omitempty"`
	Next            string   `yaml:"next,omitempty"`
	CaseInsensitive bool     `yaml:"case_insensitive,omitempty"`
	DefaultToken    string   `yaml:"default_token,omitempty"`
	Include         string   `yaml:"include,omitempty"`
}

// Resolver looks up a grammar by name, for files that extend another grammar.
type Resolver func(name string) (*Grammar, error)

// LoadRulesFile loads and parses a YAML grammar file
func LoadRulesFile(filename string) (*RulesFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file '%s': %w", filename, err)
	}

	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules file '%s': %w", filename, err)
	}
	return rules, nil
}

// ParseRules parses a YAML grammar document.
func ParseRules(data []byte) (*RulesFile, error) {
	var rules RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &rules, nil
}

// Marshal renders the rules file as YAML.
func (rf *RulesFile) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(rf)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules to YAML: %w", err)
	}
	return data, nil
}

// Grammar builds the grammar the file describes. resolve is consulted only
// when the file extends another grammar and may be nil otherwise.
func (rf *RulesFile) Grammar(resolve Resolver) (*Grammar, error) {
	classifiers := make(map[string]*KeywordClassifier, len(rf.Keywords))
	for name, kw := range rf.Keywords {
		classes := make([]KeywordClass, len(kw.Classes))
		for i, c := range kw.Classes {
			classes[i] = KeywordClass{Label: c.Label, Words: c.Words}
		}
		classifiers[name] = NewKeywordClassifier(classes, kw.Fallback, kw.CaseInsensitive)
	}

	convert := func(section string, m map[string][]RuleEntry) (map[string][]Rule, error) {
		if m == nil {
			return nil, nil
		}
		out := make(map[string][]Rule, len(m))
		for state, entries := range m {
			rules := make([]Rule, len(entries))
			for i, e := range entries {
				r, err := e.rule(classifiers)
				if err != nil {
					return nil, fmt.Errorf("%s: state '%s', rule %d: %w", section, state, i, err)
				}
				rules[i] = r
			}
			out[state] = rules
		}
		return out, nil
	}

	ext := Extension{Hidden: rf.Hidden}
	var err error
	if ext.Replace, err = convert("states", rf.States); err != nil {
		return nil, err
	}
	if ext.Prepend, err = convert("prepend", rf.Prepend); err != nil {
		return nil, err
	}
	if ext.Append, err = convert("append", rf.Append); err != nil {
		return nil, err
	}

	base := &Grammar{Name: rf.Name, States: map[string][]Rule{}}
	if rf.Extends != "" {
		if resolve == nil {
			return nil, fmt.Errorf("grammar '%s' extends '%s' but no resolver was given", rf.Name, rf.Extends)
		}
		if base, err = resolve(rf.Extends); err != nil {
			return nil, fmt.Errorf("grammar '%s' extends '%s': %w", rf.Name, rf.Extends, err)
		}
	}
	return base.Extend(rf.Name, ext), nil
}

func (e RuleEntry) rule(classifiers map[string]*KeywordClassifier) (Rule, error) {
	r := Rule{
		Regex:           e.Regex,
		Next:            e.Next,
		CaseInsensitive: e.CaseInsensitive,
		DefaultToken:    e.DefaultToken,
		Include:         e.Include,
	}
	set := 0
	if e.Token != "" {
		r.Token = Label(e.Token)
		set++
	}
	if e.Tokens != nil {
		r.Token = Labels(e.Tokens)
		set++
	}
	if e.Keywords != "" {
		kw, ok := classifiers[e.Keywords]
		if !ok {
			return Rule{}, fmt.Errorf("unknown keywords '%s'", e.Keywords)
		}
		r.Token = kw
		set++
	}
	if set > 1 {
		return Rule{}, fmt.Errorf("only one of token, tokens and keywords may be set")
	}
	return r, nil
}

// RulesFileFor converts a grammar back to its YAML form. Keyword classifiers
// are named "keywords", "keywords2", ... in order of first use.
func RulesFileFor(g *Grammar) *RulesFile {
	rf := &RulesFile{
		Name:   g.Name,
		Hidden: append([]string(nil), g.Hidden...),
		States: make(map[string][]RuleEntry, len(g.States)),
	}
	names := make(map[*KeywordClassifier]string)

	for _, state := range g.StateNames() {
		entries := make([]RuleEntry, 0, len(g.States[state]))
		for _, r := range g.States[state] {
			e := RuleEntry{
				Regex:           r.Regex,
				Next:            r.Next,
				CaseInsensitive: r.CaseInsensitive,
				DefaultToken:    r.DefaultToken,
				Include:         r.Include,
			}
			switch kind := r.Token.(type) {
			case Label:
				e.Token = string(kind)
			case Labels:
				e.Tokens = append([]string{}, kind...)
			case *KeywordClassifier:
				name, ok := names[kind]
				if !ok {
					name = classifierName(len(names))
					names[kind] = name
				}
				e.Keywords = name
			}
			entries = append(entries, e)
		}
		rf.States[state] = entries
	}

	if len(names) > 0 {
		rf.Keywords = make(map[string]KeywordsRule, len(names))
		for kw, name := range names {
			rule := KeywordsRule{CaseInsensitive: kw.CaseInsensitive(), Fallback: kw.Fallback()}
			for _, c := range kw.Classes() {
				rule.Classes = append(rule.Classes, KeywordClassRule{Label: c.Label, Words: c.Words})
			}
			rf.Keywords[name] = rule
		}
	}
	return rf
}

func classifierName(i int) string {
	if i == 0 {
		return "keywords"
	}
	return fmt.Sprintf("keywords%d", i+1)
}
