package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// pollTimeout bounds each blocking pop so shutdown is noticed promptly.
const pollTimeout = time.Second

// Server consumes the goal queue of one endpoint and runs a Handler per goal,
// one goal at a time.
type Server struct {
	client  *backend.Client
	keys    keys
	cfg     config
	handler ports.Handler

	mu      sync.Mutex
	running map[string]*serverGoal
}

// NewServer creates a server for the endpoint name.
func NewServer(client *backend.Client, name string, handler ports.Handler, opts ...Option) *Server {
	cfg := newConfig(opts)
	return &Server{
		client:  client,
		keys:    keys{prefix: cfg.prefix, name: name},
		cfg:     cfg,
		handler: handler,
		running: make(map[string]*serverGoal),
	}
}

// Run serves goals until ctx is done. It advertises readiness while running.
func (s *Server) Run(ctx context.Context) error {
	cancels := s.client.Subscribe(ctx, s.keys.cancel())
	defer cancels.Close()
	if _, err := cancels.Receive(ctx); err != nil {
		return fmt.Errorf("redis error subscribing to cancels: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.heartbeat(gctx) })
	g.Go(func() error { return s.listenCancels(gctx, cancels) })
	g.Go(func() error { return s.consume(gctx) })

	s.cfg.logger.Info("hmi server ready", "queue", s.keys.queue())
	err := g.Wait()

	if derr := s.client.Del(context.WithoutCancel(ctx), s.keys.ready()).Err(); derr != nil {
		s.cfg.logger.Warn("failed to clear readiness", "error", derr)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.heartbeat)
	defer ticker.Stop()
	for {
		if err := s.client.Set(ctx, s.keys.ready(), time.Now().UTC().Format(time.RFC3339), 3*s.cfg.heartbeat).Err(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("redis error advertising readiness: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) listenCancels(ctx context.Context, cancels *backend.PubSub) error {
	msgs := cancels.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.mu.Lock()
			goal, running := s.running[msg.Payload]
			s.mu.Unlock()
			if running {
				s.cfg.logger.Debug("preempting goal", "goal", goal.id)
				goal.preempt()
			}
		}
	}
}

func (s *Server) consume(ctx context.Context) error {
	for {
		items, err := s.client.BRPop(ctx, pollTimeout, s.keys.queue()).Result()
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, backend.Nil):
			continue
		case err != nil:
			return fmt.Errorf("redis error reading goal queue: %w", err)
		}

		var env envelope
		if err := json.Unmarshal([]byte(items[1]), &env); err != nil {
			s.cfg.logger.Warn("dropping malformed goal", "error", err)
			continue
		}
		if err := s.serve(ctx, env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.cfg.logger.Error("failed to serve goal", "goal", env.ID, "error", err)
		}
	}
}

func (s *Server) serve(ctx context.Context, env envelope) error {
	goalKey := s.keys.goal(env.ID)
	goalCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	goal := &serverGoal{id: env.ID, query: env.query(), server: s, cancel: cancel}
	s.mu.Lock()
	s.running[env.ID] = goal
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, env.ID)
		s.mu.Unlock()
	}()

	state, err := s.client.Eval(ctx, acceptScript, []string{goalKey}).Text()
	if err != nil {
		return fmt.Errorf("redis error accepting goal: %w", err)
	}
	switch state {
	case domain.GoalActive.String():
	case domain.GoalRecalled.String():
		s.cfg.logger.Info("goal recalled before it started", "goal", env.ID)
		return s.publish(ctx, env.ID, eventDone)
	default:
		s.cfg.logger.Warn("skipping goal", "goal", env.ID, "state", state)
		return nil
	}

	s.cfg.logger.Info("goal started", "goal", env.ID, "target", env.Target)
	record, herr := s.handler(goalCtx, goal)
	final := domain.OutcomeStatus(herr, goal.preempted.Load())

	// The outcome is written even when the server is shutting down.
	wctx := context.WithoutCancel(ctx)
	fields := []any{fieldState, final.String()}
	if final == domain.GoalSucceeded {
		fields = append(fields,
			fieldTalkerID, record.TalkerID,
			fieldSentence, record.Sentence,
			fieldSemantics, record.Semantics,
		)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(wctx, goalKey, fields...)
	pipe.Expire(wctx, goalKey, s.cfg.goalTTL)
	if _, err := pipe.Exec(wctx); err != nil {
		return fmt.Errorf("redis error storing goal outcome: %w", err)
	}

	s.cfg.logger.Info("goal finished", "goal", env.ID, "state", final, "error", herr)
	return s.publish(wctx, env.ID, eventDone)
}

func (s *Server) publish(ctx context.Context, id, event string) error {
	if err := s.client.Publish(ctx, s.keys.events(id), event).Err(); err != nil {
		return fmt.Errorf("redis error publishing %s: %w", event, err)
	}
	return nil
}

// serverGoal implements ports.GoalContext.
type serverGoal struct {
	id        string
	query     domain.Query
	server    *Server
	cancel    context.CancelFunc
	preempted atomic.Bool
}

func (g *serverGoal) ID() string          { return g.id }
func (g *serverGoal) Query() domain.Query { return g.query }

func (g *serverGoal) PublishFeedback(ctx context.Context) error {
	return g.server.publish(ctx, g.id, eventFeedback)
}

func (g *serverGoal) preempt() {
	g.preempted.Store(true)
	g.cancel()
}
