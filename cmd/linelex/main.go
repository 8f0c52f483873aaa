package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/spicery/linelex/pkg/grammars"
	"github.com/spicery/linelex/pkg/lexer"
)

const (
	version = "0.1.0"
	usage   = `linelex - A line-by-line, state-carrying tokenizer driven by grammar files

Usage:
  linelex [options]

Options:
  -h, --help            Show this help message
  -v, --version         Show version information
  --grammar <name>      Built-in grammar to use (default "george")
  --rules <file>        YAML grammar file; may extend a built-in grammar
  --input <file>        Input file (defaults to stdin)
  --output <file>       Output file (defaults to stdout)
  --state <name>        State to start the first line in (default "start")
  --make-rules          Print the selected grammar as YAML to stdout
  --list                List the built-in grammars
  --interactive         Tokenize lines as they are typed
  --autonumber          In interactive mode, number George proof steps on ")"
  --dump                Dump the selected grammar to stderr
  --no-coalesce         Keep adjacent tokens with the same label separate
  --verbose             Log debug information to stderr

Examples:
  linelex --input proof.grg                       # Tokenize a George file
  linelex --grammar turing --input prog.t         # Tokenize a Turing file
  linelex --rules mylang.yaml --input source.txt  # Use a custom grammar
  linelex --grammar turing --make-rules           # Print a grammar as YAML
  echo "/* open" | linelex --grammar turing       # Read from stdin

The tokenizer outputs one JSON object per input line with its tokens and the
state carried into the next line.
`
)

// lineResult is the output record for one input line.
type lineResult struct {
	Line     int           `json:"line"`
	State    string        `json:"state"`
	EndState string        `json:"end_state"`
	Tokens   []lexer.Token `json:"tokens"`
}

func main() {
	var showHelp, showVersion, makeRules, list, interactive, autonumber, dump, noCoalesce, verbose bool
	var grammarName, rulesFile, inputFile, outputFile, startState string

	flag.BoolVar(&showHelp, "h", false, "Show help")
	flag.BoolVar(&showHelp, "help", false, "Show help")
	flag.BoolVar(&showVersion, "v", false, "Show version")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&makeRules, "make-rules", false, "Print the grammar as YAML")
	flag.BoolVar(&list, "list", false, "List built-in grammars")
	flag.BoolVar(&interactive, "interactive", false, "Interactive mode")
	flag.BoolVar(&autonumber, "autonumber", false, "Number proof steps in interactive mode")
	flag.BoolVar(&dump, "dump", false, "Dump the grammar to stderr")
	flag.BoolVar(&noCoalesce, "no-coalesce", false, "Do not merge adjacent tokens")
	flag.BoolVar(&verbose, "verbose", false, "Log debug information")
	flag.StringVar(&grammarName, "grammar", "george", "Built-in grammar")
	flag.StringVar(&rulesFile, "rules", "", "YAML grammar file (optional)")
	flag.StringVar(&inputFile, "input", "", "Input file (defaults to stdin)")
	flag.StringVar(&outputFile, "output", "", "Output file (defaults to stdout)")
	flag.StringVar(&startState, "state", lexer.StartState, "Initial state")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("linelex version %s\n", version)
		os.Exit(0)
	}

	if list {
		for _, name := range grammars.Names() {
			fmt.Println(name)
		}
		os.Exit(0)
	}

	// Reject any positional arguments
	if len(flag.Args()) > 0 {
		fmt.Fprintf(os.Stderr, "Error: Unexpected positional arguments. Use --input and --output flags instead.\n\n")
		flag.Usage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	grammar, err := loadGrammar(grammarName, rulesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading grammar: %v\n", err)
		os.Exit(1)
	}

	if dump {
		spew.Fdump(os.Stderr, grammar)
	}

	if makeRules {
		data, err := lexer.RulesFileFor(grammar).Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating rules: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		os.Exit(0)
	}

	compiled, err := lexer.Compile(grammar,
		lexer.WithLogger(logger),
		lexer.WithCoalesce(!noCoalesce),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling grammar: %v\n", err)
		os.Exit(1)
	}

	if interactive {
		os.Exit(runInteractive(compiled, startState, autonumber))
	}

	if err := tokenizeFiles(compiled, startState, inputFile, outputFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadGrammar returns the grammar from rulesFile if given, else the named
// built-in grammar.
func loadGrammar(name, rulesFile string) (*lexer.Grammar, error) {
	if rulesFile == "" {
		return grammars.Get(name)
	}
	rules, err := lexer.LoadRulesFile(rulesFile)
	if err != nil {
		return nil, err
	}
	return rules.Grammar(grammars.Get)
}

// tokenizeFiles runs tokenizeStream between the named files; an empty name
// means stdin or stdout. Files it opens are closed before it returns.
func tokenizeFiles(c *lexer.Compiled, state, inputFile, outputFile string) (err error) {
	var input io.Reader = os.Stdin
	if inputFile != "" {
		file, err := os.Open(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read file '%s': %w", inputFile, err)
		}
		defer file.Close()
		input = file
	}

	var output io.Writer = os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file '%s': %w", outputFile, err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file '%s': %w", outputFile, cerr)
			}
		}()
		output = file
	}

	return tokenizeStream(c, state, input, output)
}

// tokenizeStream tokenizes input line by line, threading each line's end
// state into the next, and writes one JSON record per line.
func tokenizeStream(c *lexer.Compiled, state string, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(output)
	enc.SetEscapeHTML(false)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		tokens, endState := c.TokenizeLine(line, state)
		if tokens == nil {
			tokens = []lexer.Token{}
		}
		if err := enc.Encode(lineResult{Line: lineNo, State: state, EndState: endState, Tokens: tokens}); err != nil {
			return fmt.Errorf("JSON encoding error: %w", err)
		}
		state = endState
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
