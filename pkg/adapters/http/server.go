package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/internal/logging"
	"github.com/aretw0/hmi/pkg/codec"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/grammar"
	"github.com/aretw0/hmi/pkg/legacy"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed openapi.yaml
var rawSpec []byte

// Querier is the part of hmi.Client the HTTP front door needs.
type Querier interface {
	Query(ctx context.Context, description, grammar, target string, timeout time.Duration) (domain.HMIResult, error)
	OldQuery(ctx context.Context, spec string, choices legacy.ChoiceSet, timeout time.Duration) (*domain.LegacyResult, error)
	LastTalkerID() string
}

var _ Querier = (*hmi.Client)(nil)

// Server serves queries over HTTP.
type Server struct {
	Querier Querier
	parsers ports.ParserFactory
	logger  *slog.Logger
	metrics prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes gatherer on GET /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = gatherer
	}
}

// WithParserFactory sets the grammar engine used by /grammar/verify.
func WithParserFactory(f ports.ParserFactory) Option {
	return func(s *Server) {
		s.parsers = f
	}
}

// LoadSpec parses the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return doc, nil
}

// NewHandler creates the HTTP handler. Request bodies of the API routes are
// validated against the embedded OpenAPI document before they reach q.
func NewHandler(q Querier, opts ...Option) (http.Handler, error) {
	s := &Server{
		Querier: q,
		parsers: grammar.Factory,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI router: %w", err)
	}

	r := chi.NewRouter()
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		if _, err := w.Write(rawSpec); err != nil {
			s.logger.Warn("failed to write OpenAPI document", "error", err)
		}
	})
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.validate(router))
		r.Post("/query", s.Query)
		r.Post("/old-query", s.OldQuery)
		r.Post("/grammar/verify", s.VerifyGrammar)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
	})
	return r, nil
}

func (s *Server) validate(router routers.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := router.FindRoute(r)
			if err != nil {
				writeError(w, http.StatusNotFound, err, "")
				return
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				s.logger.Warn("request rejected", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusBadRequest, err, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Description string `json:"description,omitempty"`
	Grammar     string `json:"grammar"`
	Target      string `json:"target"`
	TimeoutMS   int64  `json:"timeout_ms,omitempty"`
}

// QueryResponse is the body of a successful POST /query.
type QueryResponse struct {
	Sentence  string `json:"sentence"`
	Semantics any    `json:"semantics"`
	TalkerID  string `json:"talker_id,omitempty"`
}

// Choice is one named choice of an old-style query.
type Choice struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// OldQueryRequest is the body of POST /old-query. Choices keep their order.
type OldQueryRequest struct {
	Spec      string   `json:"spec"`
	Choices   []Choice `json:"choices"`
	TimeoutMS int64    `json:"timeout_ms,omitempty"`
}

// OldQueryResponse is the body of a POST /old-query that produced a result.
type OldQueryResponse struct {
	Result  string `json:"result"`
	Choices any    `json:"choices"`
}

// VerifyRequest is the body of POST /grammar/verify.
type VerifyRequest struct {
	Grammar string `json:"grammar"`
	Target  string `json:"target,omitempty"`
	Samples int    `json:"samples,omitempty"`
}

// VerifyResponse is the body of a successful POST /grammar/verify.
type VerifyResponse struct {
	Valid   bool     `json:"valid"`
	Samples []string `json:"samples,omitempty"`
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var body QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	result, err := s.Querier.Query(r.Context(), body.Description, body.Grammar, body.Target, millis(body.TimeoutMS))
	if err != nil {
		s.fail(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Sentence:  result.Sentence,
		Semantics: result.Semantics,
		TalkerID:  s.Querier.LastTalkerID(),
	})
}

// OldQuery handles POST /old-query.
func (s *Server) OldQuery(w http.ResponseWriter, r *http.Request) {
	var body OldQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	choices := legacy.ChoiceSet{}
	for _, c := range body.Choices {
		choices = choices.Add(c.Name, c.Values...)
	}

	result, err := s.Querier.OldQuery(r.Context(), body.Spec, choices, millis(body.TimeoutMS))
	if err != nil {
		s.fail(w, "old-query", err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, OldQueryResponse{Result: result.Result, Choices: result.Choices})
}

// VerifyGrammar handles POST /grammar/verify.
func (s *Server) VerifyGrammar(w http.ResponseWriter, r *http.Request) {
	var body VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	if err := codec.VerifyGrammar(s.parsers, body.Grammar, body.Target); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	resp := VerifyResponse{Valid: true}
	if body.Samples > 0 && body.Target != "" {
		samples, err := codec.RandomSentences(s.parsers, body.Grammar, body.Target, body.Samples)
		if err != nil {
			writeError(w, http.StatusBadRequest, err, "")
			return
		}
		resp.Samples = samples
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := LoadSpec(r.Context()); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "hmi-http",
		"version":     hmi.Version,
		"api_version": apiVersion,
	})
}

// fail maps query errors to status codes.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	var failure *domain.QueryFailure
	switch {
	case errors.Is(err, domain.ErrTimeout):
		s.logger.Info("query timed out", "op", op)
		writeError(w, http.StatusGatewayTimeout, err, domain.GoalPreempted.String())
	case errors.As(err, &failure):
		s.logger.Warn("query failed", "op", op, "state", failure.State)
		writeError(w, http.StatusBadGateway, err, failure.State.String())
	case errors.Is(err, domain.ErrParse):
		writeError(w, http.StatusUnprocessableEntity, err, "")
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidGrammar):
		writeError(w, http.StatusBadRequest, err, "")
	default:
		s.logger.Error("query error", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, err, "")
	}
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error, state string) {
	body := map[string]string{"error": err.Error()}
	if state != "" {
		body["state"] = state
	}
	writeJSON(w, status, body)
}
