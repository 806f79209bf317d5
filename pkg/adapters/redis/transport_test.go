package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/pkg/adapters/redis"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/aretw0/hmi/pkg/simulate"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const colors = `T -> pick COLOR; COLOR[{color: red}] -> red; COLOR[{color: blue}] -> blue`

func newRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// startServer runs a server until the test ends.
func startServer(t *testing.T, client *backend.Client, name string, handler ports.Handler, opts ...redis.Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := redis.NewServer(client, name, handler, opts...)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
}

func TestRedisTransport_Contract(t *testing.T) {
	ports.RunTransportContract(t, func(t *testing.T, handler ports.Handler) ports.Transport {
		_, client := newRedis(t)
		startServer(t, client, "contract", handler)
		transport := redis.NewTransport(client, "contract")
		t.Cleanup(func() { _ = transport.Close() })
		return transport
	})
}

func TestRedisTransport_RecallBeforeStart(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	transport := redis.NewTransport(client, "late")
	defer transport.Close()

	goal, err := transport.Submit(ctx, domain.Query{Grammar: colors, Target: "T"}, nil)
	require.NoError(t, err)

	state, err := transport.State(ctx, goal)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalPending, state)

	require.NoError(t, transport.Cancel(ctx, goal))
	state, err = transport.State(ctx, goal)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalRecalling, state)

	startServer(t, client, "late", simulate.RandomSentence())

	done, err := transport.WaitForResult(ctx, goal, 5*time.Second)
	require.NoError(t, err)
	require.True(t, done)

	state, err = transport.State(ctx, goal)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalRecalled, state)
}

func TestRedisTransport_CancelUnknownGoal(t *testing.T) {
	_, client := newRedis(t)
	transport := redis.NewTransport(client, "x")
	err := transport.Cancel(context.Background(), domain.GoalHandle{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrGoalNotFound)
}

func TestRedisTransport_PrefixAndTTL(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	transport := redis.NewTransport(client, "robot", redis.WithPrefix("lab:"), redis.WithGoalTTL(time.Minute))
	defer transport.Close()

	goal, err := transport.Submit(ctx, domain.Query{Description: "hi", Grammar: colors, Target: "T"}, nil)
	require.NoError(t, err)

	assert.True(t, mr.Exists("lab:goal:"+goal.ID))
	assert.Equal(t, time.Minute, mr.TTL("lab:goal:"+goal.ID))

	queued, err := mr.List("lab:robot:goals")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Contains(t, queued[0], goal.ID)
	assert.Contains(t, queued[0], `"timeout_ms":10000`)

	mr.FastForward(2 * time.Minute)
	_, err = transport.State(ctx, goal)
	assert.ErrorIs(t, err, domain.ErrGoalNotFound)
}

func TestRedisDialer(t *testing.T) {
	_, client := newRedis(t)

	t.Run("Unavailable", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		_, err := redis.NewDialer(client).Dial(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrServerUnavailable)
	})

	t.Run("Client Round Trip", func(t *testing.T) {
		startServer(t, client, "robot", simulate.Say("pick red", simulate.WithTalkerID("carol")),
			redis.WithHeartbeat(50*time.Millisecond))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := hmi.New(ctx, "robot", hmi.WithDialer(redis.NewDialer(client)))
		require.NoError(t, err)
		defer c.Close()

		result, err := c.Query(ctx, "Which color?", colors, "T", 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "pick red", result.Sentence)
		assert.Equal(t, map[string]any{"color": "red"}, result.Semantics)
		assert.Equal(t, "carol", c.LastTalkerID())
	})

	t.Run("Client Timeout", func(t *testing.T) {
		startServer(t, client, "deaf", simulate.Silent(), redis.WithHeartbeat(50*time.Millisecond))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := hmi.New(ctx, "deaf", hmi.WithDialer(redis.NewDialer(client)), hmi.WithGracePeriod(500*time.Millisecond))
		require.NoError(t, err)
		defer c.Close()

		_, err = c.Query(ctx, "", colors, "T", 100*time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrTimeout)
	})
}
