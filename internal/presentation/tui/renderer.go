package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/hmi/internal/presentation/graph"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// GrammarReport describes a grammar as markdown: its productions, whether
// target is derivable, example sentences and a Mermaid graph of its symbols.
func GrammarReport(p *grammar.Parser, target string, samples int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Grammar `%s`\n\n", target)

	if err := p.Verify(target); err != nil {
		fmt.Fprintf(&b, "> **Invalid:** %s\n\n", err)
	} else {
		b.WriteString("> **Valid**\n\n")
	}

	b.WriteString("## Productions\n\n| Symbol | Production |\n| --- | --- |\n")
	for _, sym := range p.Symbols() {
		for _, r := range p.Rules(sym) {
			fmt.Fprintf(&b, "| `%s` | `%s` |\n", sym, strings.ReplaceAll(r.String(), "|", "\\|"))
		}
	}
	b.WriteString("\n")

	if samples > 0 {
		if sentences, err := p.RandomSentences(target, samples); err == nil {
			b.WriteString("## Examples\n\n")
			for _, s := range sentences {
				fmt.Fprintf(&b, "- %s\n", s)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Graph\n\n```mermaid\n")
	b.WriteString(graph.GenerateMermaid(p, target))
	b.WriteString("```\n")
	return b.String()
}
