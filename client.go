package hmi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/hmi/internal/logging"
	redisAdapter "github.com/aretw0/hmi/pkg/adapters/redis"
	"github.com/aretw0/hmi/pkg/codec"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/aretw0/hmi/pkg/legacy"
	"github.com/aretw0/hmi/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRedisAddr is used by the default Dialer when binding by name.
const DefaultRedisAddr = "localhost:6379"

// Client is the entry point for HMI queries.
// It holds at most one outstanding goal: concurrent calls are serialized.
type Client struct {
	name          string
	transport     ports.Transport
	ownsTransport bool
	closers       []io.Closer
	dialer        ports.Dialer
	parsers       ports.ParserFactory
	codec         *codec.Codec
	hooks         []domain.LifecycleHooks
	logger        *slog.Logger
	gracePeriod   time.Duration

	inflight sync.Mutex

	talkerMu     sync.RWMutex
	lastTalkerID string
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithTransport binds the client to an externally supplied transport.
// It is mutually exclusive with an endpoint name.
func WithTransport(t ports.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithDialer sets how an endpoint name is resolved to a transport.
// Defaults to the Redis goal channel at DefaultRedisAddr.
func WithDialer(d ports.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithParserFactory sets the grammar engine used for decode fallback and examples.
func WithParserFactory(f ports.ParserFactory) Option {
	return func(c *Client) {
		c.parsers = f
	}
}

// WithLifecycleHooks registers observability hooks. It can be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) {
		c.hooks = append(c.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithGracePeriod overrides how long a canceled goal may take to settle (default: 1s).
func WithGracePeriod(d time.Duration) Option {
	return func(c *Client) {
		c.gracePeriod = d
	}
}

// New creates a client bound to exactly one of an endpoint name or a transport
// supplied with WithTransport. Binding by name blocks until the endpoint is ready.
func New(ctx context.Context, name string, opts ...Option) (*Client, error) {
	c := &Client{
		name:        name,
		parsers:     grammar.Factory,
		gracePeriod: domain.DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(c)
	}

	if (name == "") == (c.transport == nil) {
		return nil, fmt.Errorf("%w: name or transport should be set, but not both", domain.ErrValidation)
	}

	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.gracePeriod <= 0 {
		c.gracePeriod = domain.DefaultGracePeriod
	}

	if c.transport == nil {
		if c.dialer == nil {
			rdb := backend.NewClient(&backend.Options{Addr: DefaultRedisAddr})
			d := redisAdapter.NewDialer(rdb, redisAdapter.WithLogger(c.logger))
			c.dialer = d
			c.closers = append(c.closers, d)
		}
		c.logger.Info("waiting for server", "name", name)
		t, err := c.dialer.Dial(ctx, name)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to bind %q: %w", name, err)
		}
		c.transport = t
		c.ownsTransport = true
		c.logger = c.logger.With("endpoint", name)
	}

	c.codec = codec.New(codec.WithParserFactory(c.parsers), codec.WithLogger(c.logger))
	return c, nil
}

// Close releases a transport the client dialed itself.
func (c *Client) Close() error {
	var errs []error
	if closer, ok := c.transport.(io.Closer); ok && c.ownsTransport {
		errs = append(errs, closer.Close())
	}
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// LastTalkerID returns the talker id of the last successful query.
func (c *Client) LastTalkerID() string {
	c.talkerMu.RLock()
	defer c.talkerMu.RUnlock()
	return c.lastTalkerID
}

// Query submits an interpretation request and returns the decoded result.
// A timeout <= 0 means domain.DefaultTimeout. Errors match domain.ErrTimeout,
// domain.ErrQueryFailed or domain.ErrParse.
func (c *Client) Query(ctx context.Context, description, grammarText, target string, timeout time.Duration) (domain.HMIResult, error) {
	c.logger.Info("question", "description", description, "grammar", codec.TrimDefault(grammarText))
	return c.run(ctx, domain.Query{
		Description: description,
		Grammar:     grammarText,
		Target:      target,
		Timeout:     timeout,
	})
}

// OldQuery runs a choice-based query. Unlike Query it recovers failures:
// a timeout returns an empty LegacyResult, a failed goal or unparseable
// sentence returns nil. Validation, transport and context errors are returned.
func (c *Client) OldQuery(ctx context.Context, spec string, choices legacy.ChoiceSet, timeout time.Duration) (*domain.LegacyResult, error) {
	c.logger.Info("spec", "spec", codec.TrimDefault(spec))

	g, target, err := legacy.Translate(spec, choices)
	if err != nil {
		return nil, err
	}
	grammarText := g.String()
	c.logger.Info("grammar", "grammar", codec.TrimDefault(grammarText))

	result, err := c.run(ctx, domain.Query{Grammar: grammarText, Target: target, Timeout: timeout})
	switch {
	case err == nil:
		return &domain.LegacyResult{Result: result.Sentence, Choices: result.Semantics}, nil
	case errors.Is(err, domain.ErrTimeout):
		return &domain.LegacyResult{}, nil
	case errors.Is(err, domain.ErrQueryFailed), errors.Is(err, domain.ErrParse):
		c.logger.Warn("legacy query failed, returning no result", "error", err)
		return nil, nil
	default:
		return nil, err
	}
}

func (c *Client) run(ctx context.Context, q domain.Query) (domain.HMIResult, error) {
	ctx, span := tracer.Start(ctx, "hmi.query", trace.WithAttributes(
		attribute.String("hmi.target", q.Target),
		attribute.String("hmi.timeout", q.EffectiveTimeout().String()),
	))
	defer span.End()

	c.inflight.Lock()
	defer c.inflight.Unlock()

	c.logExample(ctx, q)

	start := time.Now()
	ev := &domain.QueryEvent{Description: q.Description, Target: q.Target}
	record, state, err := c.execute(ctx, q, ev)

	var result domain.HMIResult
	if err == nil {
		c.setLastTalkerID(record.TalkerID)
		result, err = c.codec.Decode(record, q.Grammar, q.Target)
	}

	outcome := classify(err)
	span.SetAttributes(
		attribute.String("hmi.goal_id", ev.GoalID),
		attribute.String("hmi.state", state.String()),
		attribute.String("hmi.outcome", string(outcome)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		c.logger.Info("robot heard", "sentence", result.Sentence, "semantics", result.Semantics)
	}

	resEv := &domain.ResultEvent{
		QueryEvent: c.event(ev, domain.EventResult),
		Outcome:    outcome,
		State:      state,
		Duration:   time.Since(start),
		Err:        err,
	}
	if err == nil {
		resEv.Result = &result
	}
	for _, h := range c.hooks {
		if h.OnResult != nil {
			h.OnResult(ctx, resEv)
		}
	}
	return result, err
}

// execute submits q and drives it to a terminal state. The goal never outlives the call.
func (c *Client) execute(ctx context.Context, q domain.Query, ev *domain.QueryEvent) (domain.ResultRecord, domain.GoalStatus, error) {
	var fb feedbackFlag
	// Feedback may arrive before Submit returns, so the callback works on a copy.
	base := *ev
	goal, err := c.transport.Submit(ctx, q, func(f domain.Feedback) {
		c.logger.Info("received feedback", "goal", f.GoalID)
		fb.set()
		fired := base
		fired.GoalID = f.GoalID
		c.fire(ctx, func(h domain.LifecycleHooks) func(context.Context, *domain.QueryEvent) { return h.OnFeedback }, &fired, domain.EventFeedback)
	})
	if err != nil {
		return domain.ResultRecord{}, domain.GoalLost, fmt.Errorf("failed to submit goal: %w", err)
	}
	ev.GoalID = goal.ID
	defer c.release(ctx, goal)

	c.fire(ctx, func(h domain.LifecycleHooks) func(context.Context, *domain.QueryEvent) { return h.OnSubmit }, ev, domain.EventSubmit)

	state, err := c.waitForResult(ctx, goal, q.EffectiveTimeout(), &fb, ev)
	if err != nil {
		return domain.ResultRecord{}, state, err
	}

	record, err := c.transport.Result(ctx, goal)
	if err != nil {
		return domain.ResultRecord{}, state, fmt.Errorf("failed to get result: %w", err)
	}
	return record, state, nil
}

func (c *Client) release(ctx context.Context, goal domain.GoalHandle) {
	r, ok := c.transport.(ports.GoalReleaser)
	if !ok {
		return
	}
	if err := r.Release(context.WithoutCancel(ctx), goal); err != nil {
		c.logger.Warn("failed to release goal", "goal", goal.ID, "error", err)
	}
}

func (c *Client) setLastTalkerID(id string) {
	c.talkerMu.Lock()
	defer c.talkerMu.Unlock()
	c.lastTalkerID = id
}

// logExample logs one random sentence of the grammar when debug logging is on.
func (c *Client) logExample(ctx context.Context, q domain.Query) {
	if !c.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	examples, err := codec.RandomSentences(c.parsers, q.Grammar, q.Target, 1)
	if err != nil {
		c.logger.Debug("no example sentence", "error", err)
		return
	}
	c.logger.Debug("example", "sentence", examples[0])
}

func (c *Client) event(base *domain.QueryEvent, typ domain.EventType) domain.QueryEvent {
	ev := *base
	ev.Timestamp = time.Now()
	ev.Type = typ
	return ev
}

func (c *Client) fire(ctx context.Context, pick func(domain.LifecycleHooks) func(context.Context, *domain.QueryEvent), base *domain.QueryEvent, typ domain.EventType) {
	for _, h := range c.hooks {
		if fn := pick(h); fn != nil {
			ev := c.event(base, typ)
			fn(ctx, &ev)
		}
	}
}

func classify(err error) domain.Outcome {
	switch {
	case err == nil:
		return domain.OutcomeSuccess
	case errors.Is(err, domain.ErrTimeout):
		return domain.OutcomeTimeout
	case errors.Is(err, domain.ErrQueryFailed), errors.Is(err, domain.ErrParse):
		return domain.OutcomeFailure
	default:
		return domain.OutcomeError
	}
}
