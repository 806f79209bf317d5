package domain

import "time"

// DefaultTimeout is used when a Query carries no positive timeout.
const DefaultTimeout = 10 * time.Second

// DefaultGracePeriod bounds the wait for a goal to settle after a cancel.
const DefaultGracePeriod = 1 * time.Second

// Query is one interpretation request.
type Query struct {
	Description string        `json:"description" yaml:"description" mapstructure:"description"`
	Grammar     string        `json:"grammar" yaml:"grammar" mapstructure:"grammar"`
	Target      string        `json:"target" yaml:"target" mapstructure:"target"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// EffectiveTimeout returns Timeout, or DefaultTimeout when unset.
func (q Query) EffectiveTimeout() time.Duration {
	if q.Timeout <= 0 {
		return DefaultTimeout
	}
	return q.Timeout
}
