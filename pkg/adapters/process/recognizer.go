package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/hmi/internal/logging"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
)

// DefaultTalkerID is reported when neither the config nor the output names a talker.
const DefaultTalkerID = "process"

// ErrNoSentence is returned when the recognizer exits cleanly without output.
var ErrNoSentence = errors.New("recognizer produced no sentence")

// output is the JSON form a recognizer may print instead of a bare sentence.
type output struct {
	TalkerID  string          `json:"talker_id"`
	Sentence  string          `json:"sentence"`
	Semantics json.RawMessage `json:"semantics"`
}

type options struct {
	killDelay time.Duration
	logger    *slog.Logger
}

// Option configures the recognizer handler.
type Option func(*options)

// WithKillDelay sets how long a canceled recognizer may take to exit after
// the interrupt before it is killed (default: 5s).
func WithKillDelay(d time.Duration) Option {
	return func(o *options) {
		o.killDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Recognizer returns a handler that runs cfg.Command once per goal.
//
// The query is passed in the environment as HMI_GOAL_ID, HMI_DESCRIPTION,
// HMI_GRAMMAR, HMI_TARGET and HMI_TIMEOUT_MS. Every line the command writes
// to stderr is published as feedback. Its stdout is the answer: either a bare
// sentence or a JSON object with talker_id, sentence and optional semantics.
// Without semantics the client parses the sentence itself.
//
// A canceled goal interrupts the command and kills it after the kill delay.
func Recognizer(cfg Config, opts ...Option) ports.Handler {
	o := options{killDelay: 5 * time.Second, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, goal ports.GoalContext) (domain.ResultRecord, error) {
		q := goal.Query()
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		cmd.Dir = cfg.Dir
		cmd.Cancel = func() error {
			if runtime.GOOS == "windows" {
				return cmd.Process.Kill()
			}
			return cmd.Process.Signal(os.Interrupt)
		}
		cmd.WaitDelay = o.killDelay

		cmd.Env = cmd.Environ()
		for k, v := range cfg.Environment {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		cmd.Env = append(cmd.Env,
			"HMI_GOAL_ID="+goal.ID(),
			"HMI_DESCRIPTION="+q.Description,
			"HMI_GRAMMAR="+q.Grammar,
			"HMI_TARGET="+q.Target,
			"HMI_TIMEOUT_MS="+strconv.FormatInt(q.EffectiveTimeout().Milliseconds(), 10),
		)

		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		lines := &lineWriter{onLine: func() {
			if err := goal.PublishFeedback(ctx); err != nil {
				o.logger.Warn("failed to publish feedback", "goal", goal.ID(), "error", err)
			}
		}}
		cmd.Stderr = lines

		if err := cmd.Start(); err != nil {
			return domain.ResultRecord{}, fmt.Errorf("failed to start recognizer: %w", err)
		}
		o.logger.Debug("recognizer started", "goal", goal.ID(), "pid", cmd.Process.Pid)

		err := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			return domain.ResultRecord{}, ctx.Err()
		case err != nil:
			return domain.ResultRecord{}, fmt.Errorf("recognizer failed: %w. Stderr: %s", err, lines.last())
		}

		return cfg.record(stdout.String())
	}
}

func (cfg Config) record(raw string) (domain.ResultRecord, error) {
	rec := domain.ResultRecord{TalkerID: cfg.TalkerID}
	if rec.TalkerID == "" {
		rec.TalkerID = DefaultTalkerID
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var out output
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			if out.TalkerID != "" {
				rec.TalkerID = out.TalkerID
			}
			rec.Sentence = out.Sentence
			if len(out.Semantics) > 0 && string(out.Semantics) != "null" {
				rec.Semantics = string(out.Semantics)
			}
			trimmed = out.Sentence
		}
	} else {
		rec.Sentence = trimmed
	}

	if trimmed == "" {
		return domain.ResultRecord{}, ErrNoSentence
	}
	return rec, nil
}

// lineWriter calls onLine for every complete line written to it.
type lineWriter struct {
	onLine func()

	mu      sync.Mutex
	partial []byte
	lastOne string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.partial = append(w.partial, p...)
	var complete int
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.lastOne = strings.TrimSpace(string(w.partial[:i]))
		w.partial = w.partial[i+1:]
		complete++
	}
	w.mu.Unlock()

	for range complete {
		w.onLine()
	}
	return len(p), nil
}

func (w *lineWriter) last() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		return strings.TrimSpace(string(w.partial))
	}
	return w.lastOne
}
