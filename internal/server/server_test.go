package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/log"
	"github.com/mattjoyce/commitgate/internal/pipeline"
	"github.com/mattjoyce/commitgate/internal/secrets"
	"github.com/mattjoyce/commitgate/internal/trust"
	"github.com/mattjoyce/commitgate/internal/upstream"
	"github.com/mattjoyce/commitgate/internal/webhook"
)

type handlerFunc func(ctx context.Context, ev webhook.Event) (pipeline.Outcome, error)

func (f handlerFunc) Handle(ctx context.Context, ev webhook.Event) (pipeline.Outcome, error) {
	return f(ctx, ev)
}

type fakeLister struct {
	got     ledger.Filter
	entries []ledger.Entry
	err     error
}

func (f *fakeLister) List(_ context.Context, filter ledger.Filter) ([]ledger.Entry, error) {
	f.got = filter
	return f.entries, f.err
}

func newTestServer(h Handler, lister VerdictLister, ops bool) http.Handler {
	cfg := Config{Listen: "127.0.0.1:0", WebhookPath: "/webhook/github", MaxBodySize: 64}
	if ops {
		cfg.OpsToken = func(context.Context) (string, error) { return "ops-token", nil }
	}
	return New(cfg, h, lister, log.Discard()).Routes()
}

func TestWebhookStatusMapping(t *testing.T) {
	trusted := pipeline.Outcome{
		InvocationID: "inv-1",
		Kind:         webhook.KindPush,
		Repository:   "acme/widgets",
		SHA:          "abc1234",
		Verdict:      trust.Verdict{Trusted: true, Reason: trust.ReasonTrusted},
		Reported:     true,
	}

	tests := []struct {
		name       string
		out        pipeline.Outcome
		err        error
		wantStatus int
		wantBody   string
	}{
		{"verdict reported", trusted, nil, http.StatusOK, `"reason":"trusted"`},
		{"ping", pipeline.Outcome{Kind: webhook.KindPing}, nil, http.StatusOK, `"pong"`},
		{"ignored", pipeline.Outcome{Kind: webhook.KindIgnored}, nil, http.StatusAccepted, `"ignored"`},
		{"unauthenticated", pipeline.Outcome{}, webhook.ErrUnauthenticated, http.StatusForbidden, `{"error":"forbidden"}`},
		{"malformed", pipeline.Outcome{}, webhook.ErrMalformedEvent, http.StatusBadRequest, `malformed event`},
		{"secret missing", pipeline.Outcome{}, &secrets.RetrievalError{Name: "github_token", Err: secrets.ErrNotFound}, http.StatusInternalServerError, `internal error`},
		{"report failed", trusted, &upstream.ReportError{Op: "status", StatusCode: 502, Err: errors.New("x")}, http.StatusBadGateway, `"report_failed"`},
		{"unexpected", pipeline.Outcome{}, errors.New("boom"), http.StatusInternalServerError, `internal error`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlerFunc(func(context.Context, webhook.Event) (pipeline.Outcome, error) { return tt.out, tt.err })
			srv := newTestServer(h, nil, false)

			req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestWebhookPassesRawBodyAndHeaders(t *testing.T) {
	body := []byte(`{"after":"abc1234"}`)
	var got webhook.Event
	h := handlerFunc(func(_ context.Context, ev webhook.Event) (pipeline.Outcome, error) {
		got = ev
		return pipeline.Outcome{Kind: webhook.KindIgnored}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=00")
	req.Header.Set(webhook.EventHeader, "push")
	rec := httptest.NewRecorder()
	newTestServer(h, nil, false).ServeHTTP(rec, req)

	assert.Equal(t, body, got.Body)
	assert.Equal(t, "sha256=00", got.Headers.Get("X-Hub-Signature-256"))
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	called := false
	h := handlerFunc(func(context.Context, webhook.Event) (pipeline.Outcome, error) {
		called = true
		return pipeline.Outcome{}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(strings.Repeat("x", 65)))
	rec := httptest.NewRecorder()
	newTestServer(h, nil, false).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
}

func TestWebhookWrongMethod(t *testing.T) {
	h := handlerFunc(func(context.Context, webhook.Event) (pipeline.Outcome, error) { return pipeline.Outcome{}, nil })
	rec := httptest.NewRecorder()
	newTestServer(h, nil, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/github", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil, nil, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestVerdictQuery(t *testing.T) {
	lister := &fakeLister{entries: []ledger.Entry{{InvocationID: "inv-1", Repository: "acme/widgets", SHA: "abc1234", Reason: "trusted", Conclusion: "success"}}}
	srv := newTestServer(nil, lister, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/verdicts?repository=acme/widgets&sha=abc&limit=5", nil)
	req.Header.Set("Authorization", "Bearer ops-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ledger.Filter{Repository: "acme/widgets", SHA: "abc", Limit: 5}, lister.got)

	var resp verdictListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Verdicts, 1)
	assert.Equal(t, "inv-1", resp.Verdicts[0].InvocationID)
}

func TestVerdictQueryRejectsNonHexSHA(t *testing.T) {
	lister := &fakeLister{}
	srv := newTestServer(nil, lister, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/verdicts?sha=%25", nil)
	req.Header.Set("Authorization", "Bearer ops-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ledger.Filter{}, lister.got, "lister must not be queried")
}

func TestVerdictQueryRequiresToken(t *testing.T) {
	srv := newTestServer(nil, &fakeLister{}, true)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verdicts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/verdicts?limit=0", nil)
	req.Header.Set("Authorization", "Bearer ops-token")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerdictQueryDisabledWithoutToken(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil, &fakeLister{}, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verdicts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
