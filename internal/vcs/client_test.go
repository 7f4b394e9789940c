package vcs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/commitgate/internal/trust"
	"github.com/mattjoyce/commitgate/internal/upstream"
	"github.com/mattjoyce/commitgate/internal/vcs/vcstest"
)

const (
	testRepo = "acme/widgets"
	testSHA  = "0123456789abcdef0123456789abcdef01234567"
	ctxLabel = "commit-integrity-verification"
)

func newTestClient(t *testing.T, mode string) (*Client, *vcstest.Host) {
	t.Helper()
	host := vcstest.New()
	t.Cleanup(host.Close)
	c := NewClient(host.URL, time.Second, Options{Mode: mode, Context: ctxLabel})
	return c, host
}

func TestFetchCommit(t *testing.T) {
	c, host := newTestClient(t, ModeStatus)
	host.AddCommit(testRepo, testSHA, " alice@example.com ", vcstest.StringPtr("SIG"), vcstest.StringPtr("tree abc\n"))

	rec, err := c.FetchCommit(context.Background(), "gh-token", testRepo, testSHA)
	require.NoError(t, err)
	assert.Equal(t, testRepo, rec.Repository)
	assert.Equal(t, testSHA, rec.SHA)
	assert.Equal(t, "alice@example.com", rec.AuthorEmail)
	assert.Equal(t, "SIG", string(rec.SignaturePayload))
	assert.Equal(t, "tree abc\n", string(rec.SignedContent))
	assert.Equal(t, "Bearer gh-token", host.LastAuthorization())
	assert.Equal(t, 1, host.FetchCalls())
}

func TestFetchCommitNullSignatureIsEmpty(t *testing.T) {
	c, host := newTestClient(t, ModeStatus)
	host.AddCommit(testRepo, testSHA, "alice@example.com", nil, nil)

	rec, err := c.FetchCommit(context.Background(), "tok", testRepo, testSHA)
	require.NoError(t, err)
	assert.Empty(t, rec.SignaturePayload)
	assert.Empty(t, rec.SignedContent)
}

func TestFetchCommitCustomFieldPaths(t *testing.T) {
	host := vcstest.New()
	defer host.Close()
	host.SetCommitDocument(testRepo, testSHA, map[string]any{
		"meta": map[string]any{"owner": "bob@example.com"},
		"sig":  map[string]any{"cms": "PAYLOAD", "content": "DATA"},
	})
	c := NewClient(host.URL, time.Second, Options{Fields: FieldPaths{
		AuthorEmail:   "meta.owner",
		Signature:     "sig.cms",
		SignedContent: "sig.content",
	}})

	rec, err := c.FetchCommit(context.Background(), "tok", testRepo, testSHA)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", rec.AuthorEmail)
	assert.Equal(t, "PAYLOAD", string(rec.SignaturePayload))
	assert.Equal(t, "DATA", string(rec.SignedContent))
}

func TestFetchCommitFailures(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(h *vcstest.Host)
		repo          string
		wantTransient bool
		wantStatus    int
	}{
		{
			name:          "service unavailable",
			setup:         func(h *vcstest.Host) { h.FailNextFetches(1) },
			wantTransient: true,
			wantStatus:    503,
		},
		{
			name:       "unknown commit",
			setup:      func(h *vcstest.Host) {},
			wantStatus: 404,
		},
		{
			name: "missing author email",
			setup: func(h *vcstest.Host) {
				h.SetCommitDocument(testRepo, testSHA, map[string]any{"commit": map[string]any{
					"verification": map[string]any{"signature": "x", "payload": "y"},
				}})
			},
			wantStatus: 200,
		},
		{
			name: "signature field absent",
			setup: func(h *vcstest.Host) {
				h.SetCommitDocument(testRepo, testSHA, map[string]any{"commit": map[string]any{
					"author": map[string]any{"email": "a@example.com"},
				}})
			},
			wantStatus: 200,
		},
		{
			name: "signature not a string",
			setup: func(h *vcstest.Host) {
				h.SetCommitDocument(testRepo, testSHA, map[string]any{"commit": map[string]any{
					"author":       map[string]any{"email": "a@example.com"},
					"verification": map[string]any{"signature": 42, "payload": "y"},
				}})
			},
			wantStatus: 200,
		},
		{
			name:  "bad repository",
			setup: func(h *vcstest.Host) {},
			repo:  "no-slash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, host := newTestClient(t, ModeStatus)
			tt.setup(host)
			repo := tt.repo
			if repo == "" {
				repo = testRepo
			}

			_, err := c.FetchCommit(context.Background(), "tok", repo, testSHA)
			var fe *upstream.FetchError
			require.True(t, errors.As(err, &fe), "want FetchError, got %v", err)
			assert.Equal(t, "vcs", fe.Service)
			assert.Equal(t, tt.wantTransient, fe.Transient)
			assert.Equal(t, tt.wantStatus, fe.StatusCode)
		})
	}
}

func TestFetchCommitUnreachableIsTransient(t *testing.T) {
	host := vcstest.New()
	url := host.URL
	host.Close()

	c := NewClient(url, time.Second, Options{})
	_, err := c.FetchCommit(context.Background(), "tok", testRepo, testSHA)
	assert.True(t, upstream.IsTransient(err))
}

func TestReportStatusIsIdempotent(t *testing.T) {
	c, host := newTestClient(t, ModeStatus)
	v := trust.Verdict{Trusted: true, Reason: trust.ReasonTrusted}

	for i := 0; i < 3; i++ {
		ack, err := c.Report(context.Background(), "tok", testRepo, testSHA, v)
		require.NoError(t, err)
		assert.Equal(t, ModeStatus, ack.Mode)
	}

	statuses := host.Statuses()
	require.Len(t, statuses, 1)
	st := statuses[vcstest.Key{SHA: testSHA, Context: ctxLabel}]
	assert.Equal(t, "success", st.State)
	assert.Equal(t, v.Summary(), st.Description)
}

func TestReportStatusFailureVerdict(t *testing.T) {
	c, host := newTestClient(t, ModeStatus)
	v := trust.Indeterminate(trust.ReasonDirectoryUnavailable, strings.Repeat("x", 500))

	_, err := c.Report(context.Background(), "tok", testRepo, testSHA, v)
	require.NoError(t, err)

	st := host.Statuses()[vcstest.Key{SHA: testSHA, Context: ctxLabel}]
	assert.Equal(t, "failure", st.State)
	assert.Equal(t, "directory unavailable (indeterminate)", st.Description)
}

func TestReportCheckRunIsIdempotent(t *testing.T) {
	c, host := newTestClient(t, ModeCheckRun)

	_, err := c.Report(context.Background(), "tok", testRepo, testSHA, trust.Verdict{Reason: trust.ReasonSignatureInvalid})
	require.NoError(t, err)
	first := host.CheckRuns()[vcstest.Key{SHA: testSHA, Context: ctxLabel}]

	ack, err := c.Report(context.Background(), "tok", testRepo, testSHA, trust.Verdict{Trusted: true, Reason: trust.ReasonTrusted})
	require.NoError(t, err)
	assert.Equal(t, ModeCheckRun, ack.Mode)

	runs := host.CheckRuns()
	require.Len(t, runs, 1)
	second := runs[vcstest.Key{SHA: testSHA, Context: ctxLabel}]
	assert.Equal(t, first.ID, second.ID, "second report must update, not create")
	assert.Equal(t, first.ID, ack.ID)
	assert.Equal(t, "success", second.Conclusion)
	assert.Equal(t, "completed", second.Status)
}

func TestReportCheckRunOmitsDetail(t *testing.T) {
	c, host := newTestClient(t, ModeCheckRun)
	detail := "lookup devices: 500 Internal Server Error: db=devices-primary.internal:5432"
	v := trust.Indeterminate(trust.ReasonDirectoryUnavailable, detail)

	_, err := c.Report(context.Background(), "tok", testRepo, testSHA, v)
	require.NoError(t, err)

	run := host.CheckRuns()[vcstest.Key{SHA: testSHA, Context: ctxLabel}]
	assert.Equal(t, v.Summary(), run.Output.Title)
	assert.Contains(t, run.Output.Summary, string(trust.ReasonDirectoryUnavailable))
	assert.Contains(t, run.Output.Summary, v.Summary())
	assert.NotContains(t, run.Output.Summary, "devices-primary")
	assert.NotContains(t, run.Output.Title, "devices-primary")
}

func TestReportErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"server error", 502, true},
		{"rate limited", 429, true},
		{"forbidden", 403, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, host := newTestClient(t, ModeStatus)
			host.FailNextReports(1, tt.status)

			_, err := c.Report(context.Background(), "tok", testRepo, testSHA, trust.Verdict{Reason: trust.ReasonTrusted, Trusted: true})
			var re *upstream.ReportError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Equal(t, tt.wantTransient, upstream.IsTransient(err))
			assert.Empty(t, host.Statuses())
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 140))
	long := strings.Repeat("é", 200)
	out := truncate(long, 140)
	assert.Len(t, []rune(out), 140)
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestLookupPath(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": nil, "c": "v"}}

	v, ok := lookupPath(doc, "a.c")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	v, ok = lookupPath(doc, "a.b")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = lookupPath(doc, "a.x")
	assert.False(t, ok)
	_, ok = lookupPath(doc, "a.c.d")
	assert.False(t, ok)
}
