// Package legacy translates choice-based queries (a spec with <placeholders>
// plus the permitted values of each placeholder) into an equivalent grammar.
package legacy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/grammar"
	"gopkg.in/yaml.v3"
)

// Target is the start symbol of every translated grammar.
const Target = "T"

// reserved are the characters the grammar text format uses as separators.
const reserved = ";|[]{}"

var (
	placeholderPattern = regexp.MustCompile(`<([^<>\s]+)>`)
	plainValuePattern  = regexp.MustCompile(`^[\p{L}\p{N}_ .-]+$`)
)

// Choice is one placeholder and its permitted values, in order.
type Choice struct {
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values" yaml:"values"`
}

// ChoiceSet is an ordered mapping from choice name to values.
type ChoiceSet []Choice

// Add appends a choice and returns the extended set.
func (cs ChoiceSet) Add(name string, values ...string) ChoiceSet {
	return append(cs, Choice{Name: name, Values: values})
}

// ParseChoices reads a YAML or JSON mapping of choice name to value list,
// keeping the document order, e.g. `{color: [red, blue], size: [big]}`.
func ParseChoices(text string) (ChoiceSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: choices: %v", domain.ErrValidation, err)
	}
	if len(doc.Content) == 0 {
		return ChoiceSet{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: choices must be a mapping", domain.ErrValidation)
	}

	var cs ChoiceSet
	for i := 0; i+1 < len(root.Content); i += 2 {
		var values []string
		if err := root.Content[i+1].Decode(&values); err != nil {
			return nil, fmt.Errorf("%w: values of %q: %v", domain.ErrValidation, root.Content[i].Value, err)
		}
		cs = cs.Add(root.Content[i].Value, values...)
	}
	return cs, nil
}

// Production is one grammar rule built by the translator.
type Production struct {
	LHS       string
	Semantics map[string]string
	RHS       []string
}

func (p Production) String() string {
	var b strings.Builder
	b.WriteString(p.LHS)
	for k, v := range p.Semantics {
		b.WriteString("[{" + k + ": " + quote(v) + "}]")
	}
	b.WriteString(" -> ")
	b.WriteString(strings.Join(p.RHS, " "))
	return b.String()
}

// Grammar is an ordered production list. It is serialized only when sent.
type Grammar []Production

// String renders the grammar as text, productions separated by "; ".
func (g Grammar) String() string {
	parts := make([]string, len(g))
	for i, p := range g {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

// Translate builds the grammar for spec and choices. Only placeholders naming
// a known choice are replaced; the production order follows the choice order.
func Translate(spec string, choices ChoiceSet) (Grammar, string, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, "", fmt.Errorf("%w: empty spec", domain.ErrValidation)
	}

	symbols := make(map[string]string, len(choices))
	owners := map[string]string{Target: ""}
	for _, c := range choices {
		sym := strings.ToUpper(c.Name)
		if !grammar.IsNonterminal(sym) {
			return nil, "", fmt.Errorf("%w: choice %q cannot be used as a nonterminal", domain.ErrValidation, c.Name)
		}
		if owner, taken := owners[sym]; taken {
			return nil, "", fmt.Errorf("%w: choice %q collides with %q as %s", domain.ErrValidation, c.Name, owner, sym)
		}
		owners[sym] = c.Name
		symbols[c.Name] = sym
	}

	start := placeholderPattern.ReplaceAllStringFunc(spec, func(ph string) string {
		if sym, ok := symbols[ph[1:len(ph)-1]]; ok {
			return " " + sym + " "
		}
		return ph
	})

	rhs := strings.Fields(start)
	for _, tok := range rhs {
		if strings.ContainsAny(tok, reserved) {
			return nil, "", fmt.Errorf("%w: spec word %q contains one of %q", domain.ErrValidation, tok, reserved)
		}
		if _, ok := owners[tok]; grammar.IsNonterminal(tok) && (!ok || tok == Target) {
			return nil, "", fmt.Errorf("%w: spec word %q would be read as a nonterminal", domain.ErrValidation, tok)
		}
	}

	g := Grammar{{LHS: Target, RHS: rhs}}
	for _, c := range choices {
		for _, v := range c.Values {
			words := strings.Fields(v)
			if len(words) == 0 {
				return nil, "", fmt.Errorf("%w: choice %q has an empty value", domain.ErrValidation, c.Name)
			}
			if strings.ContainsAny(v, reserved) {
				return nil, "", fmt.Errorf("%w: value %q of choice %q contains one of %q", domain.ErrValidation, v, c.Name, reserved)
			}
			for _, w := range words {
				if grammar.IsNonterminal(w) {
					return nil, "", fmt.Errorf("%w: value %q of choice %q would be read as a nonterminal", domain.ErrValidation, v, c.Name)
				}
			}
			g = append(g, Production{
				LHS:       symbols[c.Name],
				Semantics: map[string]string{c.Name: v},
				RHS:       words,
			})
		}
	}
	return g, Target, nil
}

// quote leaves simple values bare and JSON-quotes anything YAML could misread.
func quote(v string) string {
	if plainValuePattern.MatchString(v) && strings.TrimSpace(v) == v {
		var decoded any
		if err := yaml.Unmarshal([]byte(v), &decoded); err == nil && decoded == v {
			return v
		}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
