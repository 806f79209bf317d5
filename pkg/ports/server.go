package ports

import (
	"context"

	"github.com/aretw0/hmi/pkg/domain"
)

// GoalContext is the server-side view of one goal.
type GoalContext interface {
	ID() string
	Query() domain.Query
	// PublishFeedback emits one liveness pulse to the submitting client.
	PublishFeedback(ctx context.Context) error
}

// Handler executes a goal on the service side.
// ctx is canceled when the client requests preemption. Returning a nil error
// marks the goal succeeded, otherwise it ends Preempted (after a cancel) or Aborted.
type Handler func(ctx context.Context, goal GoalContext) (domain.ResultRecord, error)
