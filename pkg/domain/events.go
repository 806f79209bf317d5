package domain

import (
	"context"
	"time"
)

// EventType defines the category of a query lifecycle event.
type EventType string

const (
	EventSubmit   EventType = "submit"
	EventFeedback EventType = "feedback"
	EventExtend   EventType = "extend"
	EventCancel   EventType = "cancel"
	EventResult   EventType = "result"
)

// Outcome labels how a query resolved.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	GoalID    string    `json:"goal_id"`
}

// QueryEvent is emitted while a goal is in flight.
type QueryEvent struct {
	EventBase
	Description string `json:"description,omitempty"`
	Target      string `json:"target,omitempty"`
}

// ResultEvent is emitted once per query after classification.
type ResultEvent struct {
	QueryEvent
	Outcome  Outcome       `json:"outcome"`
	State    GoalStatus    `json:"state"`
	Duration time.Duration `json:"duration"`
	Result   *HMIResult    `json:"result,omitempty"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for client observability.
// OnFeedback runs on the transport's delivery goroutine.
type LifecycleHooks struct {
	OnSubmit   func(context.Context, *QueryEvent)
	OnFeedback func(context.Context, *QueryEvent)
	OnExtend   func(context.Context, *QueryEvent)
	OnCancel   func(context.Context, *QueryEvent)
	OnResult   func(context.Context, *ResultEvent)
}
