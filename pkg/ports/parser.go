package ports

// GrammarParser is a compiled grammar.
type GrammarParser interface {
	// Verify fails if the grammar is malformed or target is unreachable.
	// An empty target verifies the grammar as a whole.
	Verify(target string) error

	// Parse returns the structured semantics of sentence under target.
	// Returns an error matching domain.ErrParse if no derivation exists.
	Parse(target, sentence string) (any, error)

	// RandomSentences generates n example sentences. Diagnostic only.
	RandomSentences(target string, n int) ([]string, error)
}

// ParserFactory compiles grammar text into a GrammarParser.
type ParserFactory func(grammar string) (GrammarParser, error)
