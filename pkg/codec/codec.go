// Package codec converts between wire-level result records and domain results.
package codec

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aretw0/hmi/internal/logging"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/aretw0/hmi/pkg/ports"
)

// Codec encodes and decodes ResultRecords.
type Codec struct {
	parsers ports.ParserFactory
	logger  *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithParserFactory sets the grammar engine used by the decode fallback.
func WithParserFactory(f ports.ParserFactory) Option {
	return func(c *Codec) {
		c.parsers = f
	}
}

// WithLogger sets the logger used for fallback notices.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger
	}
}

// New creates a Codec backed by the built-in grammar engine unless overridden.
func New(opts ...Option) *Codec {
	c := &Codec{
		parsers: grammar.Factory,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode converts a result to its wire form. TalkerID is left for the server to assign.
func (c *Codec) Encode(result domain.HMIResult) (domain.ResultRecord, error) {
	semantics, err := json.Marshal(result.Semantics)
	if err != nil {
		return domain.ResultRecord{}, fmt.Errorf("failed to marshal semantics: %w", err)
	}
	return domain.ResultRecord{
		TalkerID:  "",
		Sentence:  result.Sentence,
		Semantics: string(semantics),
	}, nil
}

// Decode converts a wire record to a result. When the server left semantics
// empty, they are rebuilt by parsing the sentence with grammar under target.
func (c *Codec) Decode(record domain.ResultRecord, grammarText, target string) (domain.HMIResult, error) {
	if record.Semantics == "" {
		c.logger.Warn("semantics were not filled in by the server, parsing at the client side",
			"sentence", record.Sentence,
			"target", target,
		)
		semantics, err := ParseSentence(c.parsers, record.Sentence, grammarText, target)
		if err != nil {
			return domain.HMIResult{}, err
		}
		return domain.HMIResult{Sentence: record.Sentence, Semantics: semantics}, nil
	}

	var semantics any
	if err := json.Unmarshal([]byte(record.Semantics), &semantics); err != nil {
		return domain.HMIResult{}, fmt.Errorf("failed to unmarshal semantics: %w", err)
	}
	return domain.HMIResult{Sentence: record.Sentence, Semantics: semantics}, nil
}

// ParseSentence compiles grammarText and parses sentence under target.
// Compilation failures are reported as ParseErrors, since no derivation can exist.
func ParseSentence(parsers ports.ParserFactory, sentence, grammarText, target string) (any, error) {
	p, err := parsers(grammarText)
	if err != nil {
		return nil, &domain.ParseError{Target: target, Sentence: sentence, Reason: err.Error()}
	}
	return p.Parse(target, sentence)
}

// VerifyGrammar fails if grammarText is malformed or target is unreachable.
// An empty target verifies the grammar as a whole.
func VerifyGrammar(parsers ports.ParserFactory, grammarText, target string) error {
	p, err := parsers(grammarText)
	if err != nil {
		return err
	}
	return p.Verify(target)
}

// RandomSentences verifies grammarText and generates n example sentences for target.
func RandomSentences(parsers ports.ParserFactory, grammarText, target string, n int) ([]string, error) {
	p, err := parsers(grammarText)
	if err != nil {
		return nil, err
	}
	if err := p.Verify(""); err != nil {
		return nil, err
	}
	return p.RandomSentences(target, n)
}
