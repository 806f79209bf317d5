package grammar

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
	"gopkg.in/yaml.v3"
)

// maxDepth bounds random expansion of recursive grammars.
const maxDepth = 32

// Rule is one production: LHS[Annotation] -> RHS.
type Rule struct {
	LHS        string
	Annotation any
	RHS        []string

	annotationText string
}

func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.LHS)
	if r.annotationText != "" {
		b.WriteString("[" + r.annotationText + "]")
	}
	b.WriteString(" ->")
	for _, tok := range r.RHS {
		b.WriteString(" " + tok)
	}
	return b.String()
}

// Parser is a compiled grammar.
type Parser struct {
	rules   map[string][]Rule
	symbols []string
	rng     *rand.Rand
}

// Option configures a Parser.
type Option func(*Parser)

// WithRand makes random sentence generation deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(p *Parser) {
		p.rng = rng
	}
}

var _ ports.GrammarParser = (*Parser)(nil)

// Factory is the ports.ParserFactory backed by this package.
func Factory(grammar string) (ports.GrammarParser, error) {
	return FromString(grammar)
}

// FromString compiles grammar text. Productions are separated by ';' or newlines,
// alternatives by '|'. A production head may carry a YAML flow annotation,
// e.g. COLOR[{color: red}] -> red.
func FromString(text string, opts ...Option) (*Parser, error) {
	p := &Parser{rules: make(map[string][]Rule)}
	for _, opt := range opts {
		opt(p)
	}

	for _, raw := range splitProductions(text) {
		rules, err := parseProduction(raw)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			if _, seen := p.rules[r.LHS]; !seen {
				p.symbols = append(p.symbols, r.LHS)
			}
			p.rules[r.LHS] = append(p.rules[r.LHS], r)
		}
	}

	if len(p.symbols) == 0 {
		return nil, fmt.Errorf("%w: no productions", domain.ErrInvalidGrammar)
	}
	return p, nil
}

// Symbols returns the defined nonterminals in order of first definition.
func (p *Parser) Symbols() []string {
	return slices.Clone(p.symbols)
}

// Rules returns the productions of symbol.
func (p *Parser) Rules(symbol string) []Rule {
	return slices.Clone(p.rules[symbol])
}

// Verify checks that every referenced nonterminal is defined and, if target
// is not empty, that target is defined.
func (p *Parser) Verify(target string) error {
	if target != "" {
		if _, ok := p.rules[target]; !ok {
			return fmt.Errorf("%w: target %q is not defined", domain.ErrInvalidGrammar, target)
		}
	}
	for _, sym := range p.symbols {
		for _, r := range p.rules[sym] {
			for _, tok := range r.RHS {
				if !IsNonterminal(tok) {
					continue
				}
				if _, ok := p.rules[tok]; !ok {
					return fmt.Errorf("%w: %s references undefined nonterminal %s", domain.ErrInvalidGrammar, sym, tok)
				}
			}
		}
	}
	return nil
}

// RandomSentences expands target n times, picking alternatives uniformly.
func (p *Parser) RandomSentences(target string, n int) ([]string, error) {
	if _, ok := p.rules[target]; !ok {
		return nil, fmt.Errorf("%w: target %q is not defined", domain.ErrInvalidGrammar, target)
	}
	sentences := make([]string, 0, n)
	for range n {
		words, err := p.expand(target, 0, nil)
		if err != nil {
			return nil, err
		}
		sentences = append(sentences, strings.Join(words, " "))
	}
	return sentences, nil
}

func (p *Parser) expand(symbol string, depth int, words []string) ([]string, error) {
	rules, ok := p.rules[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: undefined nonterminal %s", domain.ErrInvalidGrammar, symbol)
	}
	if depth > maxDepth {
		rules = slices.DeleteFunc(slices.Clone(rules), func(r Rule) bool {
			return slices.ContainsFunc(r.RHS, IsNonterminal)
		})
		if len(rules) == 0 {
			return nil, fmt.Errorf("%w: expansion of %s exceeds depth %d", domain.ErrInvalidGrammar, symbol, maxDepth)
		}
	}

	r := rules[p.intN(len(rules))]
	for _, tok := range r.RHS {
		if !IsNonterminal(tok) {
			words = append(words, tok)
			continue
		}
		var err error
		words, err = p.expand(tok, depth+1, words)
		if err != nil {
			return nil, err
		}
	}
	return words, nil
}

func (p *Parser) intN(n int) int {
	if p.rng != nil {
		return p.rng.IntN(n)
	}
	return rand.IntN(n)
}

// IsNonterminal reports whether tok names a nonterminal: upper-case letters,
// digits and underscores with at least one letter.
func IsNonterminal(tok string) bool {
	letter := false
	for _, c := range tok {
		switch {
		case c >= 'A' && c <= 'Z':
			letter = true
		case c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return letter
}

// splitProductions splits on ';' and newlines outside of annotations.
func splitProductions(text string) []string {
	var (
		out   []string
		depth int
		quote rune
		start int
	)
	for i, c := range text {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			if depth > 0 && opensScalar(text, i) {
				quote = c
			}
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case (c == ';' || c == '\n') && depth == 0:
			out = append(out, text[start:i])
			start = i + 1
		}
	}
	out = append(out, text[start:])

	return slices.DeleteFunc(out, func(s string) bool { return strings.TrimSpace(s) == "" })
}

func parseProduction(raw string) ([]Rule, error) {
	head, body, ok := cutArrow(raw)
	if !ok {
		return nil, fmt.Errorf("%w: missing '->' in %q", domain.ErrInvalidGrammar, strings.TrimSpace(raw))
	}
	head = strings.TrimSpace(head)

	lhs, annotationText := head, ""
	if i := strings.IndexByte(head, '['); i >= 0 {
		if !strings.HasSuffix(head, "]") {
			return nil, fmt.Errorf("%w: unterminated annotation in %q", domain.ErrInvalidGrammar, head)
		}
		lhs = strings.TrimSpace(head[:i])
		annotationText = strings.TrimSpace(head[i+1 : len(head)-1])
	}
	if !IsNonterminal(lhs) {
		return nil, fmt.Errorf("%w: %q is not a nonterminal", domain.ErrInvalidGrammar, lhs)
	}

	var annotation any
	if annotationText != "" {
		if err := yaml.Unmarshal([]byte(annotationText), &annotation); err != nil {
			return nil, fmt.Errorf("%w: annotation of %s: %v", domain.ErrInvalidGrammar, lhs, err)
		}
		annotation = normalize(annotation)
	}

	var rules []Rule
	for _, alt := range strings.Split(body, "|") {
		rules = append(rules, Rule{
			LHS:            lhs,
			Annotation:     annotation,
			RHS:            strings.Fields(alt),
			annotationText: annotationText,
		})
	}
	return rules, nil
}

// cutArrow splits a production at the first "->" outside of its annotation.
func cutArrow(raw string) (string, string, bool) {
	depth := 0
	var quote byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case depth > 0 && (c == '"' || c == '\'') && opensScalar(raw, i):
			quote = c
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == '-' && i+1 < len(raw) && raw[i+1] == '>':
			return raw[:i], raw[i+2:], true
		}
	}
	return "", "", false
}

// opensScalar reports whether the quote at i starts a flow scalar. Quotes
// inside a plain scalar, such as the apostrophe in o'clock, are literal.
func opensScalar(text string, i int) bool {
	prev := strings.TrimRight(text[:i], " \t")
	if prev == "" {
		return true
	}
	return strings.ContainsRune("[{:,", rune(prev[len(prev)-1]))
}

// normalize converts YAML-decoded values into the shapes encoding/json produces,
// so fallback semantics compare equal to server-provided ones.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	default:
		return v
	}
}
