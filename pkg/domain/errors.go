package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is returned on construction or input misuse.
var ErrValidation = errors.New("validation error")

// ErrTimeout is returned when a goal was preempted after the no-feedback deadline.
var ErrTimeout = errors.New("goal did not succeed within the time limit")

// ErrQueryFailed is matched by every QueryFailure.
var ErrQueryFailed = errors.New("goal did not succeed")

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("sentence could not be parsed")

// ErrInvalidGrammar is returned when a grammar is malformed or a target is unreachable.
var ErrInvalidGrammar = errors.New("invalid grammar")

// ErrGoalNotFound is returned by transports for an unknown goal handle.
var ErrGoalNotFound = errors.New("goal not found")

// ErrServerUnavailable is returned when an endpoint never acknowledged readiness.
var ErrServerUnavailable = errors.New("server unavailable")

// QueryFailure reports a goal that reached a non-success terminal state
// other than Preempted.
type QueryFailure struct {
	State GoalStatus
}

func (e *QueryFailure) Error() string {
	return fmt.Sprintf("goal did not succeed, it was: %s", e.State)
}

// Is makes errors.Is(err, ErrQueryFailed) hold for any QueryFailure.
func (e *QueryFailure) Is(target error) bool {
	return target == ErrQueryFailed
}

// ParseError reports that no derivation of Sentence exists under Target.
type ParseError struct {
	Target   string
	Sentence string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot parse %q under target %q", e.Sentence, e.Target)
	}
	return fmt.Sprintf("cannot parse %q under target %q: %s", e.Sentence, e.Target, e.Reason)
}

// Is makes errors.Is(err, ErrParse) hold for any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
