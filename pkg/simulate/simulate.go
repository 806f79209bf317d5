// Package simulate provides scripted interpretation services for the
// server side of a transport. They stand in for a speech recognizer in
// tests, demos and the serve-mock command.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/hmi/pkg/codec"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/aretw0/hmi/pkg/ports"
)

// ErrRecognizer is returned by Failing handlers.
var ErrRecognizer = errors.New("speech recognition failed")

// DefaultTalkerID is reported by simulated services unless overridden.
const DefaultTalkerID = "simulated-speaker"

type config struct {
	parsers       ports.ParserFactory
	listen        time.Duration
	pulse         time.Duration
	talkerID      string
	omitSemantics bool
}

// Option configures a simulated handler.
type Option func(*config)

// WithParserFactory sets the grammar engine used to pick and parse sentences.
func WithParserFactory(f ports.ParserFactory) Option {
	return func(c *config) {
		c.parsers = f
	}
}

// WithListenTime sets how long the service "listens" before answering.
func WithListenTime(d time.Duration) Option {
	return func(c *config) {
		c.listen = d
	}
}

// WithPulseInterval makes the service publish feedback every d while listening.
// Zero disables feedback.
func WithPulseInterval(d time.Duration) Option {
	return func(c *config) {
		c.pulse = d
	}
}

// WithTalkerID sets the talker id reported with each result.
func WithTalkerID(id string) Option {
	return func(c *config) {
		c.talkerID = id
	}
}

// WithOmitSemantics leaves the semantics field empty, forcing the client to parse.
func WithOmitSemantics() Option {
	return func(c *config) {
		c.omitSemantics = true
	}
}

func newConfig(opts []Option) config {
	c := config{
		parsers:  grammar.Factory,
		talkerID: DefaultTalkerID,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// RandomSentence answers every goal with a random sentence of its grammar.
func RandomSentence(opts ...Option) ports.Handler {
	cfg := newConfig(opts)
	return func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		q := goal.Query()
		sentences, err := codec.RandomSentences(cfg.parsers, q.Grammar, q.Target, 1)
		if err != nil {
			return domain.ResultRecord{}, fmt.Errorf("cannot generate a sentence: %w", err)
		}
		return cfg.answer(ctx, goal, sentences[0])
	}
}

// Say answers every goal with sentence, parsed under the goal's grammar.
func Say(sentence string, opts ...Option) ports.Handler {
	cfg := newConfig(opts)
	return func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		return cfg.answer(ctx, goal, sentence)
	}
}

// Fixed answers every goal with record as is, after the listen time.
func Fixed(record domain.ResultRecord, opts ...Option) ports.Handler {
	cfg := newConfig(opts)
	return func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		if err := cfg.listenTo(ctx, goal); err != nil {
			return domain.ResultRecord{}, err
		}
		return record, nil
	}
}

// Silent never answers. It publishes feedback if configured and returns
// only when the goal is preempted.
func Silent(opts ...Option) ports.Handler {
	cfg := newConfig(opts)
	return func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		for {
			if err := cfg.pulseUntil(ctx, goal, time.Hour); err != nil {
				return domain.ResultRecord{}, err
			}
		}
	}
}

// Failing aborts every goal after the listen time.
func Failing(opts ...Option) ports.Handler {
	cfg := newConfig(opts)
	return func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		if err := cfg.listenTo(ctx, goal); err != nil {
			return domain.ResultRecord{}, err
		}
		return domain.ResultRecord{}, ErrRecognizer
	}
}

func (c config) answer(ctx context.Context, goal ports.GoalContext, sentence string) (domain.ResultRecord, error) {
	if err := c.listenTo(ctx, goal); err != nil {
		return domain.ResultRecord{}, err
	}

	q := goal.Query()
	record := domain.ResultRecord{Sentence: sentence}
	if !c.omitSemantics {
		semantics, err := codec.ParseSentence(c.parsers, sentence, q.Grammar, q.Target)
		if err != nil {
			return domain.ResultRecord{}, err
		}
		record, err = codec.New(codec.WithParserFactory(c.parsers)).Encode(domain.HMIResult{
			Sentence:  sentence,
			Semantics: semantics,
		})
		if err != nil {
			return domain.ResultRecord{}, err
		}
	}
	record.TalkerID = c.talkerID
	return record, nil
}

func (c config) listenTo(ctx context.Context, goal ports.GoalContext) error {
	return c.pulseUntil(ctx, goal, c.listen)
}

// pulseUntil waits for d, publishing feedback every pulse interval.
func (c config) pulseUntil(ctx context.Context, goal ports.GoalContext, d time.Duration) error {
	deadline := time.NewTimer(d)
	defer deadline.Stop()

	var tick <-chan time.Time
	if c.pulse > 0 {
		ticker := time.NewTicker(c.pulse)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-tick:
			if err := goal.PublishFeedback(ctx); err != nil {
				return err
			}
		}
	}
}
