package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
)

var (
	_ ports.Transport    = (*Transport)(nil)
	_ ports.GoalReleaser = (*Transport)(nil)
)

// Transport implements ports.Transport against an in-process Server.
type Transport struct {
	server *Server
}

// Submit starts the server handler for query on its own goroutine.
func (t *Transport) Submit(ctx context.Context, query domain.Query, onFeedback ports.FeedbackFunc) (domain.GoalHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.GoalHandle{}, err
	}
	g := t.server.submit(query, onFeedback)
	return domain.GoalHandle{ID: g.id}, nil
}

// Cancel requests preemption. It does not wait for the handler to return.
func (t *Transport) Cancel(ctx context.Context, h domain.GoalHandle) error {
	g, err := t.server.lookup(h.ID)
	if err != nil {
		return err
	}
	g.requestCancel()
	return nil
}

// WaitForResult blocks until the goal is terminal, timeout elapses or ctx is done.
func (t *Transport) WaitForResult(ctx context.Context, h domain.GoalHandle, timeout time.Duration) (bool, error) {
	g, err := t.server.lookup(h.ID)
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-g.done:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// State returns the current state of the goal.
func (t *Transport) State(ctx context.Context, h domain.GoalHandle) (domain.GoalStatus, error) {
	g, err := t.server.lookup(h.ID)
	if err != nil {
		return domain.GoalLost, err
	}
	return g.status(), nil
}

// Result returns the record of a succeeded goal.
func (t *Transport) Result(ctx context.Context, h domain.GoalHandle) (domain.ResultRecord, error) {
	g, err := t.server.lookup(h.ID)
	if err != nil {
		return domain.ResultRecord{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != domain.GoalSucceeded {
		return domain.ResultRecord{}, fmt.Errorf("goal %s has no result, it is %s", h.ID, g.state)
	}
	return g.record, nil
}

// Release forgets the goal, preempting it if still running.
func (t *Transport) Release(ctx context.Context, h domain.GoalHandle) error {
	return t.server.release(h.ID)
}
