package redis

import (
	"log/slog"
	"time"

	"github.com/aretw0/hmi/internal/logging"
)

// DefaultPrefix namespaces every key written by this adapter.
const DefaultPrefix = "hmi:"

// Event payloads published on a goal's events channel.
const (
	eventFeedback = "feedback"
	eventDone     = "done"
)

type config struct {
	prefix    string
	goalTTL   time.Duration
	heartbeat time.Duration
	poll      time.Duration
	logger    *slog.Logger
}

// Option configures the transport, server and dialer.
type Option func(*config)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithGoalTTL sets how long goal records are kept after their last update (default: 10m).
func WithGoalTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.goalTTL = ttl
	}
}

// WithHeartbeat sets how often a server refreshes its readiness key (default: 500ms).
func WithHeartbeat(d time.Duration) Option {
	return func(c *config) {
		c.heartbeat = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) config {
	c := config{
		prefix:    DefaultPrefix,
		goalTTL:   10 * time.Minute,
		heartbeat: 500 * time.Millisecond,
		poll:      100 * time.Millisecond,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// keys derives every key and channel name for one endpoint.
type keys struct {
	prefix string
	name   string
}

func (k keys) queue() string           { return k.prefix + k.name + ":goals" }
func (k keys) ready() string           { return k.prefix + k.name + ":ready" }
func (k keys) cancel() string          { return k.prefix + k.name + ":cancel" }
func (k keys) goal(id string) string   { return k.prefix + "goal:" + id }
func (k keys) events(id string) string { return k.prefix + "goal:" + id + ":events" }

// Hash fields of a goal record.
const (
	fieldState     = "state"
	fieldCancel    = "cancel"
	fieldTalkerID  = "talker_id"
	fieldSentence  = "sentence"
	fieldSemantics = "semantics"
)

// cancelScript flags a goal for preemption and moves it to the matching
// transitional state. Returns 0 for unknown goals.
const cancelScript = `
local s = redis.call("HGET", KEYS[1], "state")
if not s then
	return 0
end
redis.call("HSET", KEYS[1], "cancel", "1")
if s == "ACTIVE" then
	redis.call("HSET", KEYS[1], "state", "PREEMPTING")
elseif s == "PENDING" then
	redis.call("HSET", KEYS[1], "state", "RECALLING")
end
return 1
`

// acceptScript activates a pending goal, or recalls one canceled before it
// was picked up. Returns the resulting state, or "" for unknown goals.
const acceptScript = `
local s = redis.call("HGET", KEYS[1], "state")
if s == "PENDING" then
	redis.call("HSET", KEYS[1], "state", "ACTIVE")
	return "ACTIVE"
elseif s == "RECALLING" then
	redis.call("HSET", KEYS[1], "state", "RECALLED")
	return "RECALLED"
end
return s or ""
`
