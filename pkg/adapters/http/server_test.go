package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/hmi"
	hmihttp "github.com/aretw0/hmi/pkg/adapters/http"
	"github.com/aretw0/hmi/pkg/adapters/memory"
	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/legacy"
	"github.com/aretw0/hmi/pkg/observability"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/aretw0/hmi/pkg/simulate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const colors = `T -> pick COLOR; COLOR[{color: red}] -> red; COLOR[{color: blue}] -> blue`

// stubQuerier returns canned errors.
type stubQuerier struct {
	err       error
	oldResult *domain.LegacyResult
	choices   legacy.ChoiceSet
}

func (s *stubQuerier) Query(ctx context.Context, description, grammar, target string, timeout time.Duration) (domain.HMIResult, error) {
	return domain.HMIResult{}, s.err
}

func (s *stubQuerier) OldQuery(ctx context.Context, spec string, choices legacy.ChoiceSet, timeout time.Duration) (*domain.LegacyResult, error) {
	s.choices = choices
	return s.oldResult, s.err
}

func (s *stubQuerier) LastTalkerID() string { return "" }

func newHandler(t *testing.T, handler ports.Handler, opts ...hmihttp.Option) http.Handler {
	t.Helper()
	srv := memory.NewServer(handler)
	t.Cleanup(func() { _ = srv.Close() })

	client, err := hmi.New(context.Background(), "", hmi.WithTransport(srv.Transport()))
	require.NoError(t, err)

	h, err := hmihttp.NewHandler(client, opts...)
	require.NoError(t, err)
	return h
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestQuery_Success(t *testing.T) {
	h := newHandler(t, simulate.Say("pick blue", simulate.WithTalkerID("dave")))

	body, _ := json.Marshal(hmihttp.QueryRequest{Grammar: colors, Target: "T", TimeoutMS: 1000})
	w := do(h, http.MethodPost, "/query", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp hmihttp.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pick blue", resp.Sentence)
	assert.Equal(t, map[string]any{"color": "blue"}, resp.Semantics)
	assert.Equal(t, "dave", resp.TalkerID)
}

func TestQuery_RejectedBySchema(t *testing.T) {
	h := newHandler(t, simulate.Silent())

	w := do(h, http.MethodPost, "/query", `{"grammar": "T -> a"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "target")

	w = do(h, http.MethodPost, "/query", `{"grammar": "T -> a", "target": "T", "timeout_ms": -5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery_ErrorStatus(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  int
		state string
	}{
		{"Timeout", domain.ErrTimeout, http.StatusGatewayTimeout, "PREEMPTED"},
		{"Failure", &domain.QueryFailure{State: domain.GoalAborted}, http.StatusBadGateway, "ABORTED"},
		{"Parse", &domain.ParseError{Target: "T", Sentence: "x"}, http.StatusUnprocessableEntity, ""},
		{"Validation", domain.ErrValidation, http.StatusBadRequest, ""},
		{"Other", context.Canceled, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := hmihttp.NewHandler(&stubQuerier{err: tt.err})
			require.NoError(t, err)

			w := do(h, http.MethodPost, "/query", `{"grammar": "T -> a", "target": "T"}`)
			assert.Equal(t, tt.code, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, tt.state, body["state"])
		})
	}
}

func TestOldQuery(t *testing.T) {
	t.Run("Keeps Choice Order", func(t *testing.T) {
		stub := &stubQuerier{oldResult: &domain.LegacyResult{Result: "a big dog", Choices: map[string]any{"size": "big"}}}
		h, err := hmihttp.NewHandler(stub)
		require.NoError(t, err)

		w := do(h, http.MethodPost, "/old-query",
			`{"spec": "a <size> <animal>", "choices": [{"name": "size", "values": ["big"]}, {"name": "animal", "values": ["dog", "cat"]}]}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"result": "a big dog", "choices": {"size": "big"}}`, w.Body.String())

		require.Len(t, stub.choices, 2)
		assert.Equal(t, "size", stub.choices[0].Name)
		assert.Equal(t, []string{"dog", "cat"}, stub.choices[1].Values)
	})

	t.Run("Failure Is No Content", func(t *testing.T) {
		h := newHandler(t, simulate.Failing())
		w := do(h, http.MethodPost, "/old-query", `{"spec": "pick <color>", "choices": [{"name": "color", "values": ["red"]}]}`)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Timeout Is Empty Result", func(t *testing.T) {
		h := newHandler(t, simulate.Silent())
		w := do(h, http.MethodPost, "/old-query", `{"spec": "pick <color>", "choices": [{"name": "color", "values": ["red"]}], "timeout_ms": 20}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"result": "", "choices": null}`, w.Body.String())
	})

	t.Run("Invalid Spec", func(t *testing.T) {
		h := newHandler(t, simulate.Silent())
		w := do(h, http.MethodPost, "/old-query", `{"spec": "", "choices": []}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestVerifyGrammar(t *testing.T) {
	h, err := hmihttp.NewHandler(&stubQuerier{})
	require.NoError(t, err)

	w := do(h, http.MethodPost, "/grammar/verify", `{"grammar": "`+colors+`", "target": "T", "samples": 3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp hmihttp.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Len(t, resp.Samples, 3)

	w = do(h, http.MethodPost, "/grammar/verify", `{"grammar": "T -> pick COLOR"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "COLOR")
}

func TestHealthInfoAndSpec(t *testing.T) {
	h, err := hmihttp.NewHandler(&stubQuerier{})
	require.NoError(t, err)

	w := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())

	w = do(h, http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, hmi.Version, info["version"])
	assert.Equal(t, "1.0.0", info["api_version"])

	w = do(h, http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
}

// brokenWriter fails every body write, like a client that hung up.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSpec_WriteFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h, err := hmihttp.NewHandler(&stubQuerier{}, hmihttp.WithLogger(logger))
	require.NoError(t, err)

	w := brokenWriter{httptest.NewRecorder()}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	assert.Contains(t, logs.String(), "failed to write OpenAPI document")
	assert.Contains(t, logs.String(), "connection reset")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.Cancels.Inc()

	h, err := hmihttp.NewHandler(&stubQuerier{}, hmihttp.WithMetrics(reg))
	require.NoError(t, err)

	w := do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hmi_cancels_total 1")
}
