package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/hmi"
	hmimcp "github.com/aretw0/hmi/pkg/adapters/mcp"
	"github.com/aretw0/hmi/pkg/adapters/memory"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/aretw0/hmi/pkg/simulate"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const colors = `T -> pick COLOR; COLOR[{color: red}] -> red; COLOR[{color: blue}] -> blue`

func newMCPClient(t *testing.T, handler ports.Handler) *client.Client {
	t.Helper()
	srv := memory.NewServer(handler)
	t.Cleanup(func() { _ = srv.Close() })

	q, err := hmi.New(context.Background(), "", hmi.WithTransport(srv.Transport()), hmi.WithGracePeriod(100*time.Millisecond))
	require.NoError(t, err)

	c, err := client.NewInProcessClient(hmimcp.NewServer(q).MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "hmi-test", Version: "1.0.0"},
		},
	})
	require.NoError(t, err)
	return c
}

func call[T any](t *testing.T, c *client.Client, name string, args map[string]any) T {
	t.Helper()
	res, err := c.CallTool(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool returned an error: %+v", res.Content)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestQueryTool(t *testing.T) {
	c := newMCPClient(t, simulate.Say("pick red", simulate.WithTalkerID("erin")))

	out := call[hmimcp.QueryResult](t, c, "hmi_query", map[string]any{
		"description": "Which color?",
		"grammar":     colors,
		"target":      "T",
		"timeout_ms":  1000,
	})
	assert.Equal(t, domain.OutcomeSuccess, out.Outcome)
	assert.Equal(t, "pick red", out.Sentence)
	assert.Equal(t, map[string]any{"color": "red"}, out.Semantics)
	assert.Equal(t, "erin", out.TalkerID)
}

func TestQueryTool_TimeoutIsAnOutcome(t *testing.T) {
	c := newMCPClient(t, simulate.Silent())

	out := call[hmimcp.QueryResult](t, c, "hmi_query", map[string]any{
		"grammar":    colors,
		"target":     "T",
		"timeout_ms": 20,
	})
	assert.Equal(t, domain.OutcomeTimeout, out.Outcome)
	assert.Equal(t, "PREEMPTED", out.State)
}

func TestQueryTool_FailureIsAnOutcome(t *testing.T) {
	c := newMCPClient(t, simulate.Failing())

	out := call[hmimcp.QueryResult](t, c, "hmi_query", map[string]any{
		"grammar": colors,
		"target":  "T",
	})
	assert.Equal(t, domain.OutcomeFailure, out.Outcome)
	assert.Equal(t, "ABORTED", out.State)
}

func TestOldQueryTool(t *testing.T) {
	c := newMCPClient(t, simulate.Say("a large pizza"))

	out := call[hmimcp.QueryResult](t, c, "hmi_old_query", map[string]any{
		"spec":    "a <size> pizza",
		"choices": "{size: [small, large]}",
	})
	assert.Equal(t, domain.OutcomeSuccess, out.Outcome)
	assert.Equal(t, "a large pizza", out.Sentence)
	assert.Equal(t, map[string]any{"size": "large"}, out.Semantics)
}

func TestVerifyTool(t *testing.T) {
	c := newMCPClient(t, simulate.Silent())

	ok := call[hmimcp.VerifyResult](t, c, "grammar_verify", map[string]any{
		"grammar": colors,
		"target":  "T",
		"samples": 2,
	})
	assert.True(t, ok.Valid)
	assert.Len(t, ok.Samples, 2)

	bad := call[hmimcp.VerifyResult](t, c, "grammar_verify", map[string]any{
		"grammar": "T -> pick COLOR",
	})
	assert.False(t, bad.Valid)
	assert.Contains(t, bad.Error, "COLOR")
}
