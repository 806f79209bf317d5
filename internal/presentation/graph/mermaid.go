package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/hmi/pkg/codec"
	"github.com/aretw0/hmi/pkg/grammar"
)

// maxEdgeLabel bounds the literal words shown on an edge.
const maxEdgeLabel = 24

// GenerateMermaid produces a Mermaid flowchart of the nonterminals of p.
// Shapes:
// - Target: ((Circle))
// - Lexical (only literal alternatives): [/Parallelogram/]
// - Annotated (carries semantics): [[Subroutine]]
// - Default: [Rectangle]
// Symbols not reachable from target are styled as unreachable.
func GenerateMermaid(p *grammar.Parser, target string) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, sym := range p.Symbols() {
		rules := p.Rules(sym)
		safeID := sanitizeMermaidID(sym)

		opener, closer := "[", "]"
		switch {
		case sym == target:
			opener, closer = "((", "))"
		case lexical(rules):
			opener, closer = "[/", "/]"
		case annotated(rules):
			opener, closer = "[[", "]]"
		}

		label := sym
		if lexical(rules) {
			label = fmt.Sprintf("%s <br/> %d words", sym, len(rules))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		seen := make(map[string]bool)
		for _, r := range rules {
			var words []string
			for _, tok := range r.RHS {
				if !grammar.IsNonterminal(tok) {
					words = append(words, tok)
					continue
				}
				edge := tok + "|" + strings.Join(words, " ")
				if seen[edge] {
					words = nil
					continue
				}
				seen[edge] = true

				arrow := "-->"
				if len(words) > 0 {
					text := codec.Trim(strings.Join(words, " "), maxEdgeLabel, "...")
					arrow = fmt.Sprintf("-- \"%s\" -->", strings.ReplaceAll(text, "\"", "'"))
				}
				sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(tok)))
				words = nil
			}
		}
	}

	if target != "" {
		reachable := Reachable(p, target)
		sb.WriteString("\n    %% Reachability\n")
		sb.WriteString("    classDef target fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef unreachable fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4,color:#000;\n")
		sb.WriteString(fmt.Sprintf("    class %s target;\n", sanitizeMermaidID(target)))
		for _, sym := range p.Symbols() {
			if !slices.Contains(reachable, sym) {
				sb.WriteString(fmt.Sprintf("    class %s unreachable;\n", sanitizeMermaidID(sym)))
			}
		}
	}

	return sb.String()
}

// Reachable returns the defined symbols derivable from target, target first.
func Reachable(p *grammar.Parser, target string) []string {
	var out []string
	seen := map[string]bool{}
	queue := []string{target}
	for len(queue) > 0 {
		sym := queue[0]
		queue = queue[1:]
		if seen[sym] {
			continue
		}
		seen[sym] = true
		rules := p.Rules(sym)
		if len(rules) == 0 {
			continue
		}
		out = append(out, sym)
		for _, r := range rules {
			for _, tok := range r.RHS {
				if grammar.IsNonterminal(tok) && !seen[tok] {
					queue = append(queue, tok)
				}
			}
		}
	}
	return out
}

func lexical(rules []grammar.Rule) bool {
	for _, r := range rules {
		if slices.ContainsFunc(r.RHS, grammar.IsNonterminal) {
			return false
		}
	}
	return len(rules) > 0
}

func annotated(rules []grammar.Rule) bool {
	return slices.ContainsFunc(rules, func(r grammar.Rule) bool { return r.Annotation != nil })
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
