package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/internal/logging"
	"github.com/aretw0/hmi/pkg/codec"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/aretw0/hmi/pkg/legacy"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Querier is the part of hmi.Client exposed as MCP tools.
type Querier interface {
	Query(ctx context.Context, description, grammar, target string, timeout time.Duration) (domain.HMIResult, error)
	OldQuery(ctx context.Context, spec string, choices legacy.ChoiceSet, timeout time.Duration) (*domain.LegacyResult, error)
	LastTalkerID() string
}

// QueryArgs are the arguments of the hmi_query tool.
type QueryArgs struct {
	Description string `json:"description"`
	Grammar     string `json:"grammar"`
	Target      string `json:"target"`
	TimeoutMS   int64  `json:"timeout_ms"`
}

// OldQueryArgs are the arguments of the hmi_old_query tool.
type OldQueryArgs struct {
	Spec      string `json:"spec"`
	Choices   string `json:"choices"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// VerifyArgs are the arguments of the grammar_verify tool.
type VerifyArgs struct {
	Grammar string `json:"grammar"`
	Target  string `json:"target"`
	Samples int    `json:"samples"`
}

// QueryResult is the structured output of hmi_query and hmi_old_query.
// Timeouts and failed goals are outcomes, not tool errors.
type QueryResult struct {
	Outcome   domain.Outcome `json:"outcome" jsonschema_description:"success, timeout or failure"`
	Sentence  string         `json:"sentence,omitempty" jsonschema_description:"The recognized sentence"`
	Semantics any            `json:"semantics,omitempty" jsonschema_description:"Structured interpretation of the sentence"`
	TalkerID  string         `json:"talker_id,omitempty" jsonschema_description:"Who spoke, when known"`
	State     string         `json:"state,omitempty" jsonschema_description:"Final goal state of a failed query"`
	Error     string         `json:"error,omitempty" jsonschema_description:"Why the query failed"`
}

// VerifyResult is the structured output of grammar_verify.
type VerifyResult struct {
	Valid   bool     `json:"valid"`
	Error   string   `json:"error,omitempty"`
	Samples []string `json:"samples,omitempty"`
}

// Server exposes an hmi client as an MCP server.
type Server struct {
	querier   Querier
	parsers   ports.ParserFactory
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithParserFactory sets the grammar engine used by grammar_verify.
func WithParserFactory(f ports.ParserFactory) Option {
	return func(s *Server) {
		s.parsers = f
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(q Querier, opts ...Option) *Server {
	s := &Server{
		querier:   q,
		parsers:   grammar.Factory,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("hmi-mcp", hmi.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	queryTool := mcp.NewTool("hmi_query",
		mcp.WithDescription("Ask a person a question and listen for an answer that matches a grammar."),
		mcp.WithString("description", mcp.Description("The question shown or spoken to the person")),
		mcp.WithString("grammar", mcp.Required(), mcp.Description("Grammar of acceptable answers, e.g. 'T -> pick COLOR; COLOR[{color: red}] -> red'")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Start symbol of the grammar")),
		mcp.WithNumber("timeout_ms", mcp.Description("Time without feedback before giving up (default 10000)")),
		mcp.WithOutputSchema[QueryResult](),
	)
	s.mcpServer.AddTool(queryTool, mcp.NewStructuredToolHandler(s.handleQuery))

	oldQueryTool := mcp.NewTool("hmi_old_query",
		mcp.WithDescription("Ask a question using a sentence template with <choice> placeholders."),
		mcp.WithString("spec", mcp.Required(), mcp.Description("Sentence template, e.g. 'a <size> pizza'")),
		mcp.WithString("choices", mcp.Required(), mcp.Description("Ordered mapping of choice to values, e.g. '{size: [small, large]}'")),
		mcp.WithNumber("timeout_ms", mcp.Description("Time without feedback before giving up (default 10000)")),
		mcp.WithOutputSchema[QueryResult](),
	)
	s.mcpServer.AddTool(oldQueryTool, mcp.NewStructuredToolHandler(s.handleOldQuery))

	verifyTool := mcp.NewTool("grammar_verify",
		mcp.WithDescription("Check a grammar and optionally generate example sentences."),
		mcp.WithString("grammar", mcp.Required(), mcp.Description("Grammar text")),
		mcp.WithString("target", mcp.Description("Start symbol to check")),
		mcp.WithNumber("samples", mcp.Description("Number of example sentences to generate")),
		mcp.WithOutputSchema[VerifyResult](),
	)
	s.mcpServer.AddTool(verifyTool, mcp.NewStructuredToolHandler(s.handleVerify))
}

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest, args QueryArgs) (QueryResult, error) {
	result, err := s.querier.Query(ctx, args.Description, args.Grammar, args.Target, time.Duration(args.TimeoutMS)*time.Millisecond)
	if err != nil {
		return s.outcome(err)
	}
	return QueryResult{
		Outcome:   domain.OutcomeSuccess,
		Sentence:  result.Sentence,
		Semantics: result.Semantics,
		TalkerID:  s.querier.LastTalkerID(),
	}, nil
}

func (s *Server) handleOldQuery(ctx context.Context, request mcp.CallToolRequest, args OldQueryArgs) (QueryResult, error) {
	choices, err := legacy.ParseChoices(args.Choices)
	if err != nil {
		return QueryResult{}, err
	}

	result, err := s.querier.OldQuery(ctx, args.Spec, choices, time.Duration(args.TimeoutMS)*time.Millisecond)
	switch {
	case err != nil:
		return QueryResult{}, fmt.Errorf("old query failed: %w", err)
	case result == nil:
		return QueryResult{Outcome: domain.OutcomeFailure}, nil
	case result.Result == "":
		return QueryResult{Outcome: domain.OutcomeTimeout}, nil
	}
	return QueryResult{
		Outcome:   domain.OutcomeSuccess,
		Sentence:  result.Result,
		Semantics: result.Choices,
		TalkerID:  s.querier.LastTalkerID(),
	}, nil
}

func (s *Server) handleVerify(ctx context.Context, request mcp.CallToolRequest, args VerifyArgs) (VerifyResult, error) {
	if err := codec.VerifyGrammar(s.parsers, args.Grammar, args.Target); err != nil {
		return VerifyResult{Valid: false, Error: err.Error()}, nil
	}
	res := VerifyResult{Valid: true}
	if args.Samples > 0 && args.Target != "" {
		samples, err := codec.RandomSentences(s.parsers, args.Grammar, args.Target, args.Samples)
		if err != nil {
			return VerifyResult{Valid: false, Error: err.Error()}, nil
		}
		res.Samples = samples
	}
	return res, nil
}

// outcome turns classified query errors into results. Anything else is a tool error.
func (s *Server) outcome(err error) (QueryResult, error) {
	var failure *domain.QueryFailure
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return QueryResult{Outcome: domain.OutcomeTimeout, State: domain.GoalPreempted.String()}, nil
	case errors.As(err, &failure):
		return QueryResult{Outcome: domain.OutcomeFailure, State: failure.State.String(), Error: err.Error()}, nil
	case errors.Is(err, domain.ErrParse):
		return QueryResult{Outcome: domain.OutcomeFailure, Error: err.Error()}, nil
	default:
		s.logger.Error("MCP query failed", "error", err)
		return QueryResult{}, err
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("hmi://talker", "Last talker",
		mcp.WithResourceDescription("Talker id of the last successful query"),
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "hmi://talker",
				MIMEType: "text/plain",
				Text:     s.querier.LastTalkerID(),
			},
		}, nil
	})
}
