package ports

import (
	"context"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
)

// FeedbackFunc receives feedback pulses for one goal.
// It is called on a goroutine owned by the transport.
type FeedbackFunc func(domain.Feedback)

// Transport defines the goal-oriented request/response channel used by the client.
type Transport interface {
	// Submit sends the query and registers onFeedback for the lifetime of the goal.
	Submit(ctx context.Context, query domain.Query, onFeedback FeedbackFunc) (domain.GoalHandle, error)

	// Cancel requests cooperative preemption of the goal. It does not wait.
	Cancel(ctx context.Context, goal domain.GoalHandle) error

	// WaitForResult blocks up to timeout and reports whether the goal reached a terminal state.
	WaitForResult(ctx context.Context, goal domain.GoalHandle, timeout time.Duration) (bool, error)

	// State returns the last known state of the goal.
	// Returns domain.ErrGoalNotFound for unknown handles.
	State(ctx context.Context, goal domain.GoalHandle) (domain.GoalStatus, error)

	// Result returns the record of a succeeded goal.
	Result(ctx context.Context, goal domain.GoalHandle) (domain.ResultRecord, error)
}

// GoalReleaser is implemented by transports that hold per-goal resources
// (subscriptions, buffers). The client releases every goal before returning.
type GoalReleaser interface {
	Release(ctx context.Context, goal domain.GoalHandle) error
}

// Dialer binds an endpoint name to a Transport.
// Dial blocks until the endpoint acknowledges readiness or ctx is done.
type Dialer interface {
	Dial(ctx context.Context, name string) (Transport, error)
}
