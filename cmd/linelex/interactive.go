package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spicery/linelex/pkg/lexer"
	"github.com/spicery/linelex/pkg/renumber"
)

const interactiveHelp = `Each line entered is tokenized in the state left by the previous one.
Commands:
  :quit          Exit
  :state <name>  Continue in the given state
  :reset         Forget earlier lines and return to "start"
`

// runInteractive reads lines from the terminal and prints their tokens. With
// autonumber, a line whose first non-blank character is ")" gets the next
// free proof step label, renumbering earlier lines if needed.
func runInteractive(c *lexer.Compiled, state string, autonumber bool) int {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	fmt.Printf("linelex %s, grammar %q. Ctrl+D exits, :help lists commands.\n", version, c.Name())

	var doc renumber.Lines
	for {
		line, err := ln.Prompt(fmt.Sprintf("[%s]> ", state))
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			return 1
		}

		if cmd, ok := strings.CutPrefix(strings.TrimSpace(line), ":"); ok {
			fields := strings.Fields(cmd)
			switch {
			case cmd == "quit":
				return 0
			case cmd == "help":
				fmt.Print(interactiveHelp)
			case cmd == "reset":
				doc = nil
				state = lexer.StartState
			case len(fields) == 2 && fields[0] == "state":
				if !c.HasState(fields[1]) {
					fmt.Fprintf(os.Stderr, "unknown state %q; states: %s\n", fields[1], strings.Join(c.States(), ", "))
					continue
				}
				state = fields[1]
			default:
				fmt.Println("unknown command. Type :help for a list.")
			}
			continue
		}
		ln.AppendHistory(line)

		if autonumber {
			line = numberLine(&doc, line)
		} else {
			doc = append(doc, line)
		}

		tokens, endState := c.TokenizeLine(line, state)
		printTokens(tokens, endState)
		state = endState
	}
}

// numberLine appends line to doc, first replacing a leading ")" with a
// numbered label when the renumber behaviour applies. It reports lines the
// behaviour rewrote and returns the line as it ends up in doc.
func numberLine(doc *renumber.Lines, line string) string {
	col := strings.Index(line, ")")
	if col < 0 || strings.TrimSpace(line[:col]) != "" {
		*doc = append(*doc, line)
		return line
	}

	before := doc.Lines()
	row := len(before)
	*doc = append(*doc, line[:col])
	cursor := renumber.Position{Row: row, Column: len([]rune(line[:col]))}
	ins, ok := renumber.OnInsert(doc, renumber.Range{Start: cursor, End: cursor}, ")")
	if !ok {
		(*doc)[row] = line
		return line
	}

	numbered := (*doc)[row] + ins.Text + strings.TrimPrefix(line[col+1:], " ")
	(*doc)[row] = numbered
	for i, old := range before {
		if (*doc)[i] != old {
			fmt.Printf("  line %d renumbered: %s\n", i+1, (*doc)[i])
		}
	}
	fmt.Printf("  %s\n", numbered)
	return numbered
}

func printTokens(tokens []lexer.Token, endState string) {
	for _, t := range tokens {
		fmt.Printf("  %-28s %-20q [%d,%d)\n", t.Type, t.Text, t.Span.Start, t.Span.End)
	}
	fmt.Printf("  -> %s\n", endState)
}
