package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/hmi/internal/logging"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/google/uuid"
)

// Server runs a Handler for every goal submitted through its Transport.
// Safe for concurrent use.
type Server struct {
	handler ports.Handler
	logger  *slog.Logger

	mu    sync.Mutex
	goals map[string]*goal
	wg    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an in-process goal server.
func NewServer(handler ports.Handler, opts ...Option) *Server {
	s := &Server{
		handler: handler,
		logger:  logging.NewNop(),
		goals:   make(map[string]*goal),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transport returns a client-side view of the server.
func (s *Server) Transport() *Transport {
	return &Transport{server: s}
}

// Close preempts every running goal and waits for their handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	for _, g := range s.goals {
		g.requestCancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Active returns the number of goals not yet released.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.goals)
}

func (s *Server) submit(query domain.Query, onFeedback ports.FeedbackFunc) *goal {
	ctx, cancel := context.WithCancel(context.Background())
	g := &goal{
		id:         uuid.NewString(),
		query:      query,
		state:      domain.GoalActive,
		done:       make(chan struct{}),
		cancel:     cancel,
		onFeedback: onFeedback,
	}

	s.mu.Lock()
	s.goals[g.id] = g
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.logger.Debug("goal accepted", "goal", g.id, "target", query.Target)

		record, err := s.handler(ctx, g)
		g.finish(record, err)

		s.logger.Debug("goal finished", "goal", g.id, "state", g.status(), "error", err)
	}()
	return g
}

func (s *Server) lookup(id string) (*goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, id)
	}
	return g, nil
}

func (s *Server) release(id string) error {
	s.mu.Lock()
	g, ok := s.goals[id]
	delete(s.goals, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrGoalNotFound, id)
	}
	g.detach()
	return nil
}

// goal is the server-side record of one submission. It implements ports.GoalContext.
type goal struct {
	id     string
	query  domain.Query
	done   chan struct{}
	cancel context.CancelFunc

	mu              sync.Mutex
	state           domain.GoalStatus
	record          domain.ResultRecord
	cancelRequested bool

	// feedbackMu is held while the callback runs, so detach waits for it.
	feedbackMu sync.Mutex
	onFeedback ports.FeedbackFunc
}

func (g *goal) ID() string          { return g.id }
func (g *goal) Query() domain.Query { return g.query }

func (g *goal) PublishFeedback(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.feedbackMu.Lock()
	defer g.feedbackMu.Unlock()
	if g.onFeedback != nil {
		g.onFeedback(domain.Feedback{GoalID: g.id, Timestamp: time.Now()})
	}
	return nil
}

func (g *goal) requestCancel() {
	g.mu.Lock()
	if !g.state.Terminal() {
		g.cancelRequested = true
		g.state = domain.GoalPreempting
	}
	g.mu.Unlock()
	g.cancel()
}

func (g *goal) finish(record domain.ResultRecord, err error) {
	g.mu.Lock()
	g.state = domain.OutcomeStatus(err, g.cancelRequested)
	if g.state == domain.GoalSucceeded {
		g.record = record
	}
	g.mu.Unlock()
	close(g.done)
}

func (g *goal) status() domain.GoalStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// detach stops feedback delivery and preempts the goal if it is still running.
// No callback runs once detach returns.
func (g *goal) detach() {
	g.feedbackMu.Lock()
	g.onFeedback = nil
	g.feedbackMu.Unlock()
	select {
	case <-g.done:
	default:
		g.requestCancel()
	}
}
