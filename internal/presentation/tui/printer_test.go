package tui_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aretw0/hmi/internal/presentation/tui"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_Hooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := tui.NewPrinter(&buf).Hooks()
	ctx := context.Background()

	hooks.OnSubmit(ctx, &domain.QueryEvent{Description: "What would you like?"})
	hooks.OnExtend(ctx, &domain.QueryEvent{})
	hooks.OnResult(ctx, &domain.ResultEvent{
		Outcome: domain.OutcomeSuccess,
		Result:  &domain.HMIResult{Sentence: "bring tea"},
	})
	hooks.OnResult(ctx, &domain.ResultEvent{Outcome: domain.OutcomeTimeout})
	hooks.OnResult(ctx, &domain.ResultEvent{Outcome: domain.OutcomeFailure})
	hooks.OnResult(ctx, &domain.ResultEvent{Outcome: domain.OutcomeError, Err: errors.New("no server")})

	assert.Equal(t, "Robot asks: What would you like?\n"+
		"...still listening\n"+
		"Robot heard 'bring tea'\n"+
		"Robot did not hear you (timeout)\n"+
		"Robot did not hear you (speech failed)\n"+
		"Robot could not ask: no server\n", buf.String())
}

func TestPrinter_SilentSubmit(t *testing.T) {
	var buf bytes.Buffer
	tui.NewPrinter(&buf).Asking("")
	assert.Empty(t, buf.String())
}

func TestPrinter_Banner(t *testing.T) {
	var buf bytes.Buffer
	tui.NewPrinter(&buf).Banner()
	assert.Contains(t, buf.String(), "|_| |_|_|  |_|___|")
	assert.Contains(t, buf.String(), " v")
}
