package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	_ ports.Transport    = (*Transport)(nil)
	_ ports.GoalReleaser = (*Transport)(nil)
)

// envelope is the queued form of a goal.
type envelope struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Grammar     string `json:"grammar"`
	Target      string `json:"target"`
	TimeoutMS   int64  `json:"timeout_ms"`
}

func (e envelope) query() domain.Query {
	return domain.Query{
		Description: e.Description,
		Grammar:     e.Grammar,
		Target:      e.Target,
		Timeout:     time.Duration(e.TimeoutMS) * time.Millisecond,
	}
}

// subscription tracks the events channel of one submitted goal.
type subscription struct {
	pubsub *backend.PubSub
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (s *subscription) markDone() {
	s.once.Do(func() { close(s.done) })
}

// Transport implements ports.Transport over Redis.
// Goals are queued on a list, tracked in a hash and report feedback and
// completion on a per-goal pub/sub channel.
type Transport struct {
	client *backend.Client
	keys   keys
	cfg    config

	mu   sync.Mutex
	subs map[string]*subscription
}

// NewTransport creates a transport for the endpoint name. It does not check
// that a server is listening; use a Dialer for that.
func NewTransport(client *backend.Client, name string, opts ...Option) *Transport {
	cfg := newConfig(opts)
	return &Transport{
		client: client,
		keys:   keys{prefix: cfg.prefix, name: name},
		cfg:    cfg,
		subs:   make(map[string]*subscription),
	}
}

// Submit records the goal, subscribes to its events and queues it.
func (t *Transport) Submit(ctx context.Context, query domain.Query, onFeedback ports.FeedbackFunc) (domain.GoalHandle, error) {
	id := uuid.NewString()
	goalKey := t.keys.goal(id)

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, goalKey, fieldState, domain.GoalPending.String())
	pipe.Expire(ctx, goalKey, t.cfg.goalTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.GoalHandle{}, fmt.Errorf("redis error creating goal: %w", err)
	}

	// Subscribe before queueing so no event can be missed.
	pubsub := t.client.Subscribe(ctx, t.keys.events(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return domain.GoalHandle{}, fmt.Errorf("redis error subscribing to goal events: %w", err)
	}

	sub := &subscription{pubsub: pubsub, done: make(chan struct{})}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for msg := range pubsub.Channel() {
			switch msg.Payload {
			case eventFeedback:
				if onFeedback != nil {
					onFeedback(domain.Feedback{GoalID: id, Timestamp: time.Now()})
				}
			case eventDone:
				sub.markDone()
			}
		}
	}()

	t.mu.Lock()
	t.subs[id] = sub
	t.mu.Unlock()

	payload, err := json.Marshal(envelope{
		ID:          id,
		Description: query.Description,
		Grammar:     query.Grammar,
		Target:      query.Target,
		TimeoutMS:   query.EffectiveTimeout().Milliseconds(),
	})
	if err != nil {
		t.drop(id)
		return domain.GoalHandle{}, fmt.Errorf("failed to marshal goal: %w", err)
	}
	if err := t.client.LPush(ctx, t.keys.queue(), payload).Err(); err != nil {
		t.drop(id)
		return domain.GoalHandle{}, fmt.Errorf("redis error queueing goal: %w", err)
	}

	t.cfg.logger.Debug("goal queued", "goal", id, "queue", t.keys.queue())
	return domain.GoalHandle{ID: id}, nil
}

// Cancel flags the goal and notifies the server. It does not wait.
func (t *Transport) Cancel(ctx context.Context, h domain.GoalHandle) error {
	found, err := t.client.Eval(ctx, cancelScript, []string{t.keys.goal(h.ID)}).Int()
	if err != nil {
		return fmt.Errorf("redis error canceling goal: %w", err)
	}
	if found == 0 {
		return fmt.Errorf("%w: %s", domain.ErrGoalNotFound, h.ID)
	}
	if err := t.client.Publish(ctx, t.keys.cancel(), h.ID).Err(); err != nil {
		return fmt.Errorf("redis error publishing cancel: %w", err)
	}
	return nil
}

// WaitForResult blocks until the goal is terminal, timeout elapses or ctx is done.
func (t *Transport) WaitForResult(ctx context.Context, h domain.GoalHandle, timeout time.Duration) (bool, error) {
	t.mu.Lock()
	sub, ok := t.subs[h.ID]
	t.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s was not submitted by this transport", domain.ErrGoalNotFound, h.ID)
	}

	state, err := t.State(ctx, h)
	if err != nil {
		return false, err
	}
	if state.Terminal() {
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-sub.done:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// State reads the goal record.
func (t *Transport) State(ctx context.Context, h domain.GoalHandle) (domain.GoalStatus, error) {
	label, err := t.client.HGet(ctx, t.keys.goal(h.ID), fieldState).Result()
	if errors.Is(err, backend.Nil) {
		return domain.GoalLost, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, h.ID)
	}
	if err != nil {
		return domain.GoalLost, fmt.Errorf("redis error reading goal state: %w", err)
	}
	return domain.ParseGoalStatus(label)
}

// Result returns the record of a succeeded goal.
func (t *Transport) Result(ctx context.Context, h domain.GoalHandle) (domain.ResultRecord, error) {
	fields, err := t.client.HGetAll(ctx, t.keys.goal(h.ID)).Result()
	if err != nil {
		return domain.ResultRecord{}, fmt.Errorf("redis error reading goal result: %w", err)
	}
	if len(fields) == 0 {
		return domain.ResultRecord{}, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, h.ID)
	}
	if fields[fieldState] != domain.GoalSucceeded.String() {
		return domain.ResultRecord{}, fmt.Errorf("goal %s has no result, it is %s", h.ID, fields[fieldState])
	}
	return domain.ResultRecord{
		TalkerID:  fields[fieldTalkerID],
		Sentence:  fields[fieldSentence],
		Semantics: fields[fieldSemantics],
	}, nil
}

// Release closes the goal's subscription. The record expires on its own.
func (t *Transport) Release(ctx context.Context, h domain.GoalHandle) error {
	if !t.drop(h.ID) {
		return fmt.Errorf("%w: %s", domain.ErrGoalNotFound, h.ID)
	}
	return nil
}

// Close releases every goal still held by the transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	ids := make([]string, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.drop(id)
	}
	return nil
}

func (t *Transport) drop(id string) bool {
	t.mu.Lock()
	sub, ok := t.subs[id]
	delete(t.subs, id)
	t.mu.Unlock()
	if !ok {
		return false
	}
	if err := sub.pubsub.Close(); err != nil {
		t.cfg.logger.Warn("failed to close goal subscription", "goal", id, "error", err)
	}
	sub.wg.Wait()
	return true
}
