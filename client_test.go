package hmi_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/pkg/adapters/memory"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/legacy"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/aretw0/hmi/pkg/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const colors = `T -> pick COLOR; COLOR[{color: red}] -> red; COLOR[{color: blue}] -> blue`

// countingTransport records how often the client cancels.
type countingTransport struct {
	ports.Transport
	cancels atomic.Int32
}

func (c *countingTransport) Cancel(ctx context.Context, h domain.GoalHandle) error {
	c.cancels.Add(1)
	return c.Transport.Cancel(ctx, h)
}

func (c *countingTransport) Release(ctx context.Context, h domain.GoalHandle) error {
	return c.Transport.(ports.GoalReleaser).Release(ctx, h)
}

func newClient(t *testing.T, handler ports.Handler, opts ...hmi.Option) (*hmi.Client, *countingTransport, *memory.Server) {
	t.Helper()
	srv := memory.NewServer(handler)
	t.Cleanup(func() { _ = srv.Close() })

	transport := &countingTransport{Transport: srv.Transport()}
	opts = append([]hmi.Option{hmi.WithTransport(transport), hmi.WithGracePeriod(200 * time.Millisecond)}, opts...)
	client, err := hmi.New(context.Background(), "", opts...)
	require.NoError(t, err)
	return client, transport, srv
}

func TestNew_Binding(t *testing.T) {
	srv := memory.NewServer(simulate.RandomSentence())
	defer srv.Close()
	ctx := context.Background()

	t.Run("Neither", func(t *testing.T) {
		_, err := hmi.New(ctx, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Both", func(t *testing.T) {
		_, err := hmi.New(ctx, "hmi", hmi.WithTransport(srv.Transport()))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Transport", func(t *testing.T) {
		client, err := hmi.New(ctx, "", hmi.WithTransport(srv.Transport()))
		require.NoError(t, err)
		assert.NoError(t, client.Close())
	})

	t.Run("Name", func(t *testing.T) {
		reg := memory.NewRegistry()
		reg.Register("hmi", srv)
		client, err := hmi.New(ctx, "hmi", hmi.WithDialer(reg))
		require.NoError(t, err)
		assert.NoError(t, client.Close())
	})

	t.Run("Name Unavailable", func(t *testing.T) {
		dialCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := hmi.New(dialCtx, "nobody", hmi.WithDialer(memory.NewRegistry()))
		assert.ErrorIs(t, err, domain.ErrServerUnavailable)
	})
}

func TestQuery_Success(t *testing.T) {
	client, transport, srv := newClient(t, simulate.Say("pick blue", simulate.WithTalkerID("alice")))

	result, err := client.Query(context.Background(), "Which color?", colors, "T", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pick blue", result.Sentence)
	assert.Equal(t, map[string]any{"color": "blue"}, result.Semantics)
	assert.Equal(t, "alice", client.LastTalkerID())
	assert.Zero(t, transport.cancels.Load())
	assert.Zero(t, srv.Active(), "goal must be released")
}

func TestQuery_FallbackParseMatchesServerSemantics(t *testing.T) {
	withSemantics, _, _ := newClient(t, simulate.Say("pick red"))
	without, _, _ := newClient(t, simulate.Say("pick red", simulate.WithOmitSemantics()))
	ctx := context.Background()

	direct, err := withSemantics.Query(ctx, "", colors, "T", time.Second)
	require.NoError(t, err)
	parsed, err := without.Query(ctx, "", colors, "T", time.Second)
	require.NoError(t, err)

	assert.Equal(t, direct, parsed)
}

func TestQuery_FallbackParseError(t *testing.T) {
	client, _, _ := newClient(t, simulate.Fixed(domain.ResultRecord{TalkerID: "x", Sentence: "pick green"}))

	_, err := client.Query(context.Background(), "", colors, "T", time.Second)
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "pick green", perr.Sentence)
	assert.Equal(t, "T", perr.Target)
	assert.Equal(t, "x", client.LastTalkerID())
}

func TestQuery_TimeoutWithoutFeedback(t *testing.T) {
	client, transport, _ := newClient(t, simulate.Silent())
	const timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := client.Query(context.Background(), "", colors, "T", timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, int32(1), transport.cancels.Load(), "exactly one cancel")
	assert.Less(t, elapsed, timeout+200*time.Millisecond+150*time.Millisecond)
	assert.Empty(t, client.LastTalkerID())
}

func TestQuery_FeedbackExtendsDeadline(t *testing.T) {
	handler := simulate.Say("pick red",
		simulate.WithListenTime(300*time.Millisecond),
		simulate.WithPulseInterval(15*time.Millisecond),
	)
	var extensions atomic.Int32
	client, transport, _ := newClient(t, handler, hmi.WithLifecycleHooks(domain.LifecycleHooks{
		OnExtend: func(context.Context, *domain.QueryEvent) { extensions.Add(1) },
	}))

	result, err := client.Query(context.Background(), "", colors, "T", 60*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "pick red", result.Sentence)
	assert.Zero(t, transport.cancels.Load())
	assert.Positive(t, extensions.Load())
}

func TestQuery_FeedbackStopsThenTimesOut(t *testing.T) {
	// Pulses for a while, then goes quiet without answering.
	handler := func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		for range 3 {
			if err := goal.PublishFeedback(ctx); err != nil {
				return domain.ResultRecord{}, err
			}
			time.Sleep(10 * time.Millisecond)
		}
		<-ctx.Done()
		return domain.ResultRecord{}, ctx.Err()
	}
	client, transport, _ := newClient(t, handler)

	_, err := client.Query(context.Background(), "", colors, "T", 50*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, int32(1), transport.cancels.Load())
}

func TestQuery_Failure(t *testing.T) {
	client, _, _ := newClient(t, simulate.Failing())

	_, err := client.Query(context.Background(), "", colors, "T", time.Second)
	assert.ErrorIs(t, err, domain.ErrQueryFailed)

	var failure *domain.QueryFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.GoalAborted, failure.State)
	assert.EqualError(t, err, "goal did not succeed, it was: ABORTED")
}

func TestQuery_GoalThatNeverSettles(t *testing.T) {
	release := make(chan struct{})
	handler := func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		<-release
		return domain.ResultRecord{}, ctx.Err()
	}
	client, transport, _ := newClient(t, handler, hmi.WithGracePeriod(20*time.Millisecond))
	defer close(release)

	_, err := client.Query(context.Background(), "", colors, "T", 30*time.Millisecond)

	var failure *domain.QueryFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.GoalPreempting, failure.State)
	assert.Equal(t, int32(1), transport.cancels.Load())
}

func TestQuery_ContextCanceled(t *testing.T) {
	client, transport, srv := newClient(t, simulate.Silent())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := client.Query(ctx, "", colors, "T", time.Minute)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), transport.cancels.Load(), "abandoned goal is canceled")
	assert.Zero(t, srv.Active())
}

func TestQuery_LifecycleHooks(t *testing.T) {
	var (
		mu     sync.Mutex
		events []domain.EventType
		result *domain.ResultEvent
	)
	record := func(_ context.Context, e *domain.QueryEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	}
	hooks := domain.LifecycleHooks{
		OnSubmit: record,
		OnCancel: record,
		OnResult: func(_ context.Context, e *domain.ResultEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e.Type)
			result = e
		},
	}
	client, _, _ := newClient(t, simulate.Silent(), hmi.WithLifecycleHooks(hooks))

	_, err := client.Query(context.Background(), "Say something", colors, "T", 20*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrTimeout)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.EventType{domain.EventSubmit, domain.EventCancel, domain.EventResult}, events)
	require.NotNil(t, result)
	assert.Equal(t, domain.OutcomeTimeout, result.Outcome)
	assert.Equal(t, domain.GoalPreempted, result.State)
	assert.Equal(t, "Say something", result.Description)
	assert.NotEmpty(t, result.GoalID)
	assert.Nil(t, result.Result)
}

func TestQuery_EarlyFeedbackEvents(t *testing.T) {
	// Feedback published before Submit returns must carry the query context.
	handler := func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		if err := goal.PublishFeedback(ctx); err != nil {
			return domain.ResultRecord{}, err
		}
		return domain.ResultRecord{Sentence: "pick red", Semantics: `{"color":"red"}`}, nil
	}
	var (
		mu     sync.Mutex
		events []domain.QueryEvent
	)
	client, _, _ := newClient(t, handler, hmi.WithLifecycleHooks(domain.LifecycleHooks{
		OnFeedback: func(_ context.Context, e *domain.QueryEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, *e)
		},
	}))

	for range 20 {
		_, err := client.Query(context.Background(), "Pick a color", colors, "T", time.Second)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, domain.EventFeedback, e.Type)
		assert.NotEmpty(t, e.GoalID)
		assert.Equal(t, "Pick a color", e.Description)
	}
}

func TestQuery_SerializesConcurrentCalls(t *testing.T) {
	var running, peak atomic.Int32
	handler := func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return domain.ResultRecord{Sentence: "pick red", Semantics: `{"color":"red"}`}, nil
	}
	client, _, _ := newClient(t, handler)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Query(context.Background(), "", colors, "T", time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestOldQuery(t *testing.T) {
	choices := legacy.ChoiceSet{}.Add("color", "red", "blue")
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		client, _, _ := newClient(t, simulate.Say("pick red"))
		res, err := client.OldQuery(ctx, "pick <color>", choices, time.Second)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "pick red", res.Result)
		assert.Equal(t, map[string]any{"color": "red"}, res.Choices)
	})

	t.Run("Timeout Recovered As Empty Result", func(t *testing.T) {
		client, _, _ := newClient(t, simulate.Silent())
		res, err := client.OldQuery(ctx, "pick <color>", choices, 20*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Empty(t, res.Result)
		assert.Nil(t, res.Choices)
	})

	t.Run("Failure Recovered As Nil", func(t *testing.T) {
		client, _, _ := newClient(t, simulate.Failing())
		res, err := client.OldQuery(ctx, "pick <color>", choices, time.Second)
		assert.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("Parse Error Recovered As Nil", func(t *testing.T) {
		client, _, _ := newClient(t, simulate.Fixed(domain.ResultRecord{Sentence: "pick green"}))
		res, err := client.OldQuery(ctx, "pick <color>", choices, time.Second)
		assert.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("Validation Propagates", func(t *testing.T) {
		client, _, _ := newClient(t, simulate.Silent())
		_, err := client.OldQuery(ctx, "", choices, time.Second)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Cancellation Propagates", func(t *testing.T) {
		client, _, _ := newClient(t, simulate.Silent())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := client.OldQuery(cctx, "pick <color>", choices, time.Second)
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})
}
