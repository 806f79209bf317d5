package grammar

import (
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/hmi/pkg/domain"
)

var refPattern = regexp.MustCompile(`^\$(\d+)$`)

type span struct {
	symbol string
	pos    int
}

type match struct {
	end       int
	semantics any
}

// chart memoizes derivations per (symbol, position), keeping the first
// derivation for each end position. A symbol re-entered at the same position
// while still being expanded sees its current seed, and the seed is regrown
// until no new end position appears, so left-recursive rules parse.
type chart struct {
	p        *Parser
	words    []string
	memo     map[span][]match
	added    []span
	active   map[span]bool
	seeds    map[span][]match
	recursed map[span]bool
}

// Parse returns the semantics of the first complete derivation of sentence
// under target. Words are matched exactly after whitespace splitting.
func (p *Parser) Parse(target, sentence string) (any, error) {
	if _, ok := p.rules[target]; !ok {
		return nil, &domain.ParseError{Target: target, Sentence: sentence, Reason: "target is not defined"}
	}

	c := &chart{
		p:        p,
		words:    strings.Fields(sentence),
		memo:     make(map[span][]match),
		active:   make(map[span]bool),
		seeds:    make(map[span][]match),
		recursed: make(map[span]bool),
	}
	for _, m := range c.symbol(target, 0) {
		if m.end == len(c.words) {
			return m.semantics, nil
		}
	}
	return nil, &domain.ParseError{Target: target, Sentence: sentence, Reason: "no derivation"}
}

func (c *chart) symbol(symbol string, pos int) []match {
	key := span{symbol, pos}
	if m, ok := c.memo[key]; ok {
		return m
	}
	if c.active[key] {
		c.recursed[key] = true
		return c.seeds[key]
	}
	c.active[key] = true
	mark := len(c.added)

	out := c.expand(symbol, pos)
	for c.recursed[key] {
		// Entries memoized against the previous seed are stale.
		c.forget(mark)
		c.seeds[key] = out
		grown := c.expand(symbol, pos)
		if len(grown) <= len(out) {
			break
		}
		out = grown
	}

	delete(c.active, key)
	delete(c.seeds, key)
	delete(c.recursed, key)
	c.memo[key] = out
	c.added = append(c.added, key)
	return out
}

func (c *chart) expand(symbol string, pos int) []match {
	var out []match
	seen := make(map[int]bool)
	for _, r := range c.p.rules[symbol] {
		for _, m := range c.sequence(r, 0, pos, nil) {
			if !seen[m.end] {
				seen[m.end] = true
				out = append(out, m)
			}
		}
	}
	return out
}

func (c *chart) forget(mark int) {
	for _, k := range c.added[mark:] {
		delete(c.memo, k)
	}
	c.added = c.added[:mark]
}

func (c *chart) sequence(r Rule, i, pos int, children []any) []match {
	if i == len(r.RHS) {
		return []match{{end: pos, semantics: r.semantics(children)}}
	}

	tok := r.RHS[i]
	if !IsNonterminal(tok) {
		if pos < len(c.words) && c.words[pos] == tok {
			return c.sequence(r, i+1, pos+1, children)
		}
		return nil
	}

	var out []match
	for _, m := range c.symbol(tok, pos) {
		next := append(slices.Clip(children), m.semantics)
		out = append(out, c.sequence(r, i+1, m.end, next)...)
	}
	return out
}

// semantics combines the children of a derivation with the rule annotation.
// Without $N references, child maps are merged and the annotation overrides them.
// With references, the resolved annotation alone is the result.
func (r Rule) semantics(children []any) any {
	if r.Annotation != nil {
		resolved, referenced := resolve(r.Annotation, children)
		if referenced {
			return resolved
		}
		merged := mergeMaps(children)
		if m, ok := resolved.(map[string]any); ok {
			maps.Copy(merged, m)
			return merged
		}
		return resolved
	}
	return mergeMaps(children)
}

func mergeMaps(children []any) map[string]any {
	merged := make(map[string]any)
	for _, child := range children {
		if m, ok := child.(map[string]any); ok {
			maps.Copy(merged, m)
		}
	}
	return merged
}

func resolve(v any, children []any) (any, bool) {
	switch t := v.(type) {
	case string:
		if sub := refPattern.FindStringSubmatch(t); sub != nil {
			n, _ := strconv.Atoi(sub[1])
			if n >= 1 && n <= len(children) {
				return children[n-1], true
			}
		}
		return t, false
	case map[string]any:
		out := make(map[string]any, len(t))
		referenced := false
		for k, val := range t {
			r, ref := resolve(val, children)
			out[k] = r
			referenced = referenced || ref
		}
		return out, referenced
	case []any:
		out := make([]any, len(t))
		referenced := false
		for i, val := range t {
			r, ref := resolve(val, children)
			out[i] = r
			referenced = referenced || ref
		}
		return out, referenced
	default:
		return v, false
	}
}
