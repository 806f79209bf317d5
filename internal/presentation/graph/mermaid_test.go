package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/hmi/internal/presentation/graph"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const order = `
T -> i want QTY ITEM | ITEM please
QTY[{qty: 1}] -> one
QTY[{qty: 2}] -> two
ITEM -> DRINK
DRINK[{item: coffee}] -> coffee
DRINK[{item: tea}] -> tea
SPARE -> unused
`

func TestGenerateMermaid(t *testing.T) {
	p, err := grammar.FromString(order)
	require.NoError(t, err)

	out := graph.GenerateMermaid(p, "T")

	tests := []struct {
		name     string
		contains []string
	}{
		{"Target Shape", []string{`T(("T"))`}},
		{"Lexical Shape", []string{`QTY[/"QTY <br/> 2 words"/]`, `DRINK[/"DRINK <br/> 2 words"/]`}},
		{"Default Shape", []string{`ITEM["ITEM"]`}},
		{"Labelled Edges", []string{`T -- "i want" --> QTY`}},
		{"Plain Edges", []string{`T --> ITEM`, `ITEM --> DRINK`}},
		{"Reachability", []string{"class T target;", "class SPARE unreachable;"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.NotContains(t, out, "class ITEM unreachable;")
}

func TestGenerateMermaid_AnnotatedShape(t *testing.T) {
	p, err := grammar.FromString(`T -> say X; X[{x: y}] -> Y; Y -> y`)
	require.NoError(t, err)
	assert.Contains(t, graph.GenerateMermaid(p, ""), `X[["X"]]`)
}

func TestReachable(t *testing.T) {
	p, err := grammar.FromString(order)
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "QTY", "ITEM", "DRINK"}, graph.Reachable(p, "T"))
	assert.Empty(t, graph.Reachable(p, "NOPE"))
}
