package hmi

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
)

// feedbackFlag records whether any pulse arrived since the last check.
type feedbackFlag struct {
	seen atomic.Bool
}

func (f *feedbackFlag) set() { f.seen.Store(true) }

// take reports and clears the flag in one step, so a pulse landing between
// the check and the reset is never lost.
func (f *feedbackFlag) take() bool { return f.seen.Swap(false) }

// waitForResult blocks until the goal is terminal. Each window of timeout
// without a terminal state ends in either an extension (a pulse arrived during
// the window) or a cancel followed by the grace period.
func (c *Client) waitForResult(ctx context.Context, goal domain.GoalHandle, timeout time.Duration, fb *feedbackFlag, ev *domain.QueryEvent) (domain.GoalStatus, error) {
	for {
		done, err := c.transport.WaitForResult(ctx, goal, timeout)
		if err != nil {
			c.abandon(ctx, goal)
			return domain.GoalLost, fmt.Errorf("failed waiting for goal %s: %w", goal.ID, err)
		}
		if done {
			break
		}

		if fb.take() {
			c.logger.Info(fmt.Sprintf("received feedback, waiting another %s", timeout), "goal", goal.ID)
			c.fire(ctx, func(h domain.LifecycleHooks) func(context.Context, *domain.QueryEvent) { return h.OnExtend }, ev, domain.EventExtend)
			continue
		}

		c.logger.Debug("no feedback within the time limit, canceling", "goal", goal.ID, "timeout", timeout)
		c.fire(ctx, func(h domain.LifecycleHooks) func(context.Context, *domain.QueryEvent) { return h.OnCancel }, ev, domain.EventCancel)
		if err := c.transport.Cancel(ctx, goal); err != nil {
			return domain.GoalLost, fmt.Errorf("failed to cancel goal %s: %w", goal.ID, err)
		}
		settled, err := c.transport.WaitForResult(ctx, goal, c.gracePeriod)
		if err != nil {
			return domain.GoalLost, fmt.Errorf("failed waiting for goal %s: %w", goal.ID, err)
		}
		if settled {
			c.logger.Info("preempted goal settled", "goal", goal.ID)
		} else {
			c.logger.Warn("goal did not settle within the grace period", "goal", goal.ID, "grace", c.gracePeriod)
		}
		break
	}

	state, err := c.transport.State(ctx, goal)
	if err != nil {
		return domain.GoalLost, fmt.Errorf("failed to get goal state: %w", err)
	}

	switch state {
	case domain.GoalSucceeded:
		return state, nil
	case domain.GoalPreempted:
		c.logger.Info("robot did not hear you (timeout)", "goal", goal.ID)
		return state, domain.ErrTimeout
	default:
		c.logger.Error("robot did not hear you", "goal", goal.ID, "state", state)
		return state, &domain.QueryFailure{State: state}
	}
}

// abandon cancels a goal whose caller went away, bounded by the grace period.
func (c *Client) abandon(ctx context.Context, goal domain.GoalHandle) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.gracePeriod)
	defer cancel()
	if err := c.transport.Cancel(cctx, goal); err != nil {
		c.logger.Warn("failed to cancel abandoned goal", "goal", goal.ID, "error", err)
	}
}
