package ports

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TransportFactory builds a Transport whose service side runs handler.
// Implementations register their own cleanup on t.
type TransportFactory func(t *testing.T, handler Handler) Transport

// RunTransportContract runs a suite of tests to verify that a Transport implementation
// adheres to the defined interface contract.
func RunTransportContract(t *testing.T, newTransport TransportFactory) {
	query := domain.Query{
		Description: "contract",
		Grammar:     "T -> hello world",
		Target:      "T",
	}

	t.Run("Succeeded With Feedback", func(t *testing.T) {
		ctx := context.Background()
		transport := newTransport(t, func(ctx context.Context, goal GoalContext) (domain.ResultRecord, error) {
			if err := goal.PublishFeedback(ctx); err != nil {
				return domain.ResultRecord{}, err
			}
			return domain.ResultRecord{
				TalkerID:  "speaker-1",
				Sentence:  "hello world",
				Semantics: `{"greeting":true}`,
			}, nil
		})

		var pulses atomic.Int32
		goal, err := transport.Submit(ctx, query, func(domain.Feedback) { pulses.Add(1) })
		require.NoError(t, err)
		assert.NotEmpty(t, goal.ID)

		done, err := transport.WaitForResult(ctx, goal, 5*time.Second)
		require.NoError(t, err)
		require.True(t, done, "goal should finish before the deadline")

		state, err := transport.State(ctx, goal)
		require.NoError(t, err)
		assert.Equal(t, domain.GoalSucceeded, state)

		record, err := transport.Result(ctx, goal)
		require.NoError(t, err)
		assert.Equal(t, "speaker-1", record.TalkerID)
		assert.Equal(t, "hello world", record.Sentence)
		assert.JSONEq(t, `{"greeting":true}`, record.Semantics)

		assert.Eventually(t, func() bool { return pulses.Load() == 1 }, time.Second, 10*time.Millisecond)
		release(t, transport, goal)
	})

	t.Run("Cancel Preempts", func(t *testing.T) {
		ctx := context.Background()
		transport := newTransport(t, func(ctx context.Context, goal GoalContext) (domain.ResultRecord, error) {
			<-ctx.Done()
			return domain.ResultRecord{}, ctx.Err()
		})

		goal, err := transport.Submit(ctx, query, nil)
		require.NoError(t, err)

		done, err := transport.WaitForResult(ctx, goal, 50*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, done, "goal should still be running")

		require.NoError(t, transport.Cancel(ctx, goal))
		done, err = transport.WaitForResult(ctx, goal, 5*time.Second)
		require.NoError(t, err)
		require.True(t, done, "goal should settle after cancel")

		state, err := transport.State(ctx, goal)
		require.NoError(t, err)
		assert.True(t, state == domain.GoalPreempted || state == domain.GoalRecalled, "got %s", state)
		release(t, transport, goal)
	})

	t.Run("Handler Error Aborts", func(t *testing.T) {
		ctx := context.Background()
		transport := newTransport(t, func(ctx context.Context, goal GoalContext) (domain.ResultRecord, error) {
			return domain.ResultRecord{}, errors.New("recognizer crashed")
		})

		goal, err := transport.Submit(ctx, query, nil)
		require.NoError(t, err)

		done, err := transport.WaitForResult(ctx, goal, 5*time.Second)
		require.NoError(t, err)
		require.True(t, done)

		state, err := transport.State(ctx, goal)
		require.NoError(t, err)
		assert.Equal(t, domain.GoalAborted, state)
		release(t, transport, goal)
	})

	t.Run("Unknown Goal", func(t *testing.T) {
		transport := newTransport(t, func(ctx context.Context, goal GoalContext) (domain.ResultRecord, error) {
			return domain.ResultRecord{}, nil
		})
		_, err := transport.State(context.Background(), domain.GoalHandle{ID: "does-not-exist"})
		assert.ErrorIs(t, err, domain.ErrGoalNotFound)
	})
}

func release(t *testing.T, transport Transport, goal domain.GoalHandle) {
	t.Helper()
	if r, ok := transport.(GoalReleaser); ok {
		assert.NoError(t, r.Release(context.Background(), goal))
	}
}
