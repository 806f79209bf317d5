package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GoalStatus is the transport-level state of a submitted goal.
type GoalStatus int

const (
	GoalPending GoalStatus = iota
	GoalActive
	GoalPreempted
	GoalSucceeded
	GoalAborted
	GoalRejected
	GoalPreempting
	GoalRecalling
	GoalRecalled
	GoalLost
)

var goalStatusLabels = [...]string{
	GoalPending:    "PENDING",
	GoalActive:     "ACTIVE",
	GoalPreempted:  "PREEMPTED",
	GoalSucceeded:  "SUCCEEDED",
	GoalAborted:    "ABORTED",
	GoalRejected:   "REJECTED",
	GoalPreempting: "PREEMPTING",
	GoalRecalling:  "RECALLING",
	GoalRecalled:   "RECALLED",
	GoalLost:       "LOST",
}

func (s GoalStatus) String() string {
	if s < 0 || int(s) >= len(goalStatusLabels) {
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
	return goalStatusLabels[s]
}

// Terminal reports whether no further transitions can happen from s.
func (s GoalStatus) Terminal() bool {
	switch s {
	case GoalPreempted, GoalSucceeded, GoalAborted, GoalRejected, GoalRecalled, GoalLost:
		return true
	}
	return false
}

// ParseGoalStatus maps a label produced by GoalStatus.String back to its value.
func ParseGoalStatus(label string) (GoalStatus, error) {
	for i, l := range goalStatusLabels {
		if strings.EqualFold(l, label) {
			return GoalStatus(i), nil
		}
	}
	return GoalLost, fmt.Errorf("unknown goal status %q", label)
}

// OutcomeStatus classifies how a server-side handler finished.
// A nil error always succeeds, even if a cancel was requested meanwhile.
func OutcomeStatus(err error, cancelRequested bool) GoalStatus {
	switch {
	case err == nil:
		return GoalSucceeded
	case cancelRequested || errors.Is(err, context.Canceled):
		return GoalPreempted
	default:
		return GoalAborted
	}
}

// GoalHandle identifies a submitted goal on its transport.
type GoalHandle struct {
	ID string
}

// Feedback is a liveness pulse. It carries no payload beyond its occurrence.
type Feedback struct {
	GoalID    string
	Timestamp time.Time
}
