// Package grammars provides the built-in grammars, stored as embedded YAML
// grammar files.
package grammars

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/spicery/linelex/pkg/lexer"
)

//go:embed data/*.yaml
var files embed.FS

var ErrUnknownGrammar = errors.New("unknown grammar")

var (
	loadOnce sync.Once
	loaded   map[string]*lexer.RulesFile
	loadErr  error
)

func load() (map[string]*lexer.RulesFile, error) {
	loadOnce.Do(func() {
		entries, err := files.ReadDir("data")
		if err != nil {
			loadErr = err
			return
		}
		loaded = make(map[string]*lexer.RulesFile, len(entries))
		for _, e := range entries {
			data, err := files.ReadFile(path.Join("data", e.Name()))
			if err != nil {
				loadErr = err
				return
			}
			rf, err := lexer.ParseRules(data)
			if err != nil {
				loadErr = fmt.Errorf("built-in grammar %s: %w", e.Name(), err)
				return
			}
			loaded[strings.TrimSuffix(e.Name(), ".yaml")] = rf
		}
	})
	return loaded, loadErr
}

// Names returns the names of the built-in grammars, sorted.
func Names() []string {
	rfs, err := load()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(rfs))
	for name := range rfs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a fresh copy of the named built-in grammar. Built-in grammars
// may extend one another. Get is a lexer.Resolver, so user grammar files can
// extend a built-in grammar.
func Get(name string) (*lexer.Grammar, error) {
	return get(name, nil)
}

func get(name string, chain []string) (*lexer.Grammar, error) {
	rfs, err := load()
	if err != nil {
		return nil, err
	}
	rf, ok := rfs[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (available: %s)", ErrUnknownGrammar, name, strings.Join(Names(), ", "))
	}
	for _, c := range chain {
		if c == name {
			return nil, fmt.Errorf("grammar '%s' extends itself through %s", name, strings.Join(chain, " -> "))
		}
	}
	return rf.Grammar(func(base string) (*lexer.Grammar, error) {
		return get(base, append(chain, name))
	})
}

// Compile looks up and compiles the named built-in grammar.
func Compile(name string, opts ...lexer.Option) (*lexer.Compiled, error) {
	g, err := Get(name)
	if err != nil {
		return nil, err
	}
	return lexer.Compile(g, opts...)
}
