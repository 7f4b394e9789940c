// Package pipeline runs one webhook delivery through verification: secrets,
// authentication, commit fetch, device lookup, signature check, decision,
// report and audit record.
//
// Every path that gets past authentication ends in exactly one report to
// the VCS host. Failures to establish a fact produce an indeterminate
// verdict, which is reported as a failure.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/commitgate/internal/directory"
	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/log"
	"github.com/mattjoyce/commitgate/internal/secrets"
	"github.com/mattjoyce/commitgate/internal/trust"
	"github.com/mattjoyce/commitgate/internal/vcs"
	"github.com/mattjoyce/commitgate/internal/webhook"
)

const recordTimeout = 5 * time.Second

// Settings are the per-deployment knobs of a Pipeline.
type Settings struct {
	WebhookSecretRef  string
	VCSTokenRef       string
	DirectoryTokenRef string
	SignatureHeader   string
	Budget            time.Duration
	ReportGrace       time.Duration
	Retry             RetryPolicy
}

// Deps are the collaborators of a Pipeline. Recorder may be nil.
type Deps struct {
	Secrets  secrets.Provider
	Fetcher  CommitFetcher
	Resolver DeviceResolver
	Verifier SignatureVerifier
	Reporter StatusReporter
	Recorder VerdictRecorder
	Logger   *slog.Logger
}

// Outcome describes what happened to one delivery.
type Outcome struct {
	InvocationID string
	Kind         webhook.Kind
	Repository   string
	SHA          string
	Verdict      trust.Verdict
	Reported     bool
	Ack          vcs.Ack
}

// Pipeline is safe for concurrent use; invocations share nothing but the
// device cache inside the resolver.
type Pipeline struct {
	settings Settings
	deps     Deps
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

// New assembles a Pipeline.
func New(settings Settings, deps Deps) *Pipeline {
	if settings.SignatureHeader == "" {
		settings.SignatureHeader = "X-Hub-Signature-256"
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithComponent("pipeline")
	}
	return &Pipeline{
		settings: settings,
		deps:     deps,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Handle processes one delivery. It returns *secrets.RetrievalError,
// webhook.ErrUnauthenticated or webhook.ErrMalformedEvent before any
// network call, and *upstream.ReportError when the verdict could not be
// published. In the last case the Outcome still carries the verdict.
func (p *Pipeline) Handle(ctx context.Context, ev webhook.Event) (Outcome, error) {
	start := p.now()
	out := Outcome{InvocationID: p.newID()}
	logger := p.logger.With(
		"invocation_id", out.InvocationID,
		"delivery_id", ev.Headers.Get(webhook.DeliveryHeader),
	)

	creds, err := secrets.Require(ctx, p.deps.Secrets,
		p.settings.WebhookSecretRef, p.settings.VCSTokenRef, p.settings.DirectoryTokenRef)
	if err != nil {
		logger.Error("secret retrieval failed", "error", err)
		return out, err
	}

	header := ev.Headers.Get(p.settings.SignatureHeader)
	if !webhook.Authenticate(ev.Body, header, creds[p.settings.WebhookSecretRef]) {
		logger.Warn("webhook authentication failed", "signature_present", header != "")
		return out, webhook.ErrUnauthenticated
	}

	push, err := webhook.Parse(ev)
	out.Kind = push.Kind
	out.Repository = push.Repository
	out.SHA = push.SHA
	if err != nil {
		logger.Warn("malformed webhook event", "error", err)
		return out, err
	}
	switch push.Kind {
	case webhook.KindPing:
		logger.Info("ping received")
		return out, nil
	case webhook.KindIgnored:
		logger.Info("event ignored", "event", push.EventType, "reason", push.Reason)
		return out, nil
	}

	logger = logger.With("repository", push.Repository, "sha", push.SHA)
	tokens := invocationTokens{vcs: creds[p.settings.VCSTokenRef], directory: creds[p.settings.DirectoryTokenRef]}

	// Once authenticated, a delivery is seen through even if the caller
	// hangs up; the budget alone bounds the work.
	budgetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.settings.Budget)
	facts := p.evaluate(budgetCtx, logger, tokens, push)
	cancel()
	out.Verdict = facts.verdict

	// Reporting gets its own window so an exhausted budget still yields a
	// published failure.
	reportCtx, cancelReport := context.WithTimeout(context.WithoutCancel(ctx), p.settings.ReportGrace)
	defer cancelReport()
	ack, _, reportErr := withRetry(reportCtx, p.settings.Retry, logger, "report", func(ctx context.Context) (vcs.Ack, error) {
		return p.deps.Reporter.Report(ctx, tokens.vcs, push.Repository, push.SHA, facts.verdict)
	})
	out.Reported = reportErr == nil
	out.Ack = ack

	duration := p.now().Sub(start)
	attrs := []any{
		"trusted", facts.verdict.Trusted,
		"indeterminate", facts.verdict.Indeterminate,
		"reason", string(facts.verdict.Reason),
		"duration_ms", duration.Milliseconds(),
	}
	if reportErr != nil {
		logger.Error("verdict report failed", append(attrs, "error", reportErr)...)
	} else {
		logger.Info("verdict reported", attrs...)
	}

	p.record(ctx, logger, out, push, facts, reportErr, start, duration)
	return out, reportErr
}

type invocationTokens struct {
	vcs       string
	directory string
}

// facts is what evaluate learned, kept for the audit record.
type facts struct {
	verdict     trust.Verdict
	authorEmail string
	device      directory.DeviceRecord
}

func (p *Pipeline) evaluate(ctx context.Context, logger *slog.Logger, tokens invocationTokens, push webhook.PushEvent) facts {
	commit, attempts, err := withRetry(ctx, p.settings.Retry, logger, "fetch commit", func(ctx context.Context) (vcs.CommitRecord, error) {
		return p.deps.Fetcher.FetchCommit(ctx, tokens.vcs, push.Repository, push.SHA)
	})
	if err != nil {
		logger.Warn("commit unavailable", "attempts", attempts, "error", err)
		return facts{verdict: p.failClosed(ctx, trust.ReasonCommitUnavailable, err)}
	}

	f := facts{authorEmail: commit.AuthorEmail}
	device, attempts, lookupErr := withRetry(ctx, p.settings.Retry, logger, "resolve device", func(ctx context.Context) (directory.DeviceRecord, error) {
		return p.deps.Resolver.Resolve(ctx, tokens.directory, commit.AuthorEmail)
	})
	switch {
	case lookupErr == nil:
		f.device = device
	case errors.Is(lookupErr, directory.ErrNotFound):
	case budgetExceeded(ctx):
		f.verdict = p.failClosed(ctx, trust.ReasonDirectoryUnavailable, lookupErr)
		return f
	default:
		logger.Warn("directory unavailable", "attempts", attempts, "error", lookupErr)
	}

	sig := trust.SignatureSkipped
	if lookupErr == nil && device.Managed && device.Compliant {
		if err := p.deps.Verifier.Check(commit.SignedContent, commit.SignaturePayload, device.Certificate); err != nil {
			logger.Info("signature rejected", "device_id", device.ID, "reason", err.Error())
			sig = trust.SignatureInvalid
		} else {
			sig = trust.SignatureValid
		}
	}

	f.verdict = trust.Decide(device, lookupErr, sig)
	return f
}

// failClosed turns an unestablished fact into an indeterminate verdict,
// preferring budget_exceeded when the wall-clock budget ran out.
func (p *Pipeline) failClosed(ctx context.Context, code trust.ReasonCode, err error) trust.Verdict {
	if budgetExceeded(ctx) {
		return trust.Indeterminate(trust.ReasonBudgetExceeded, "invocation budget "+p.settings.Budget.String()+" exhausted")
	}
	return trust.Indeterminate(code, err.Error())
}

func budgetExceeded(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, out Outcome, push webhook.PushEvent, f facts, reportErr error, start time.Time, d time.Duration) {
	if p.deps.Recorder == nil {
		return
	}
	entry := ledger.Entry{
		InvocationID:    out.InvocationID,
		DeliveryID:      push.DeliveryID,
		Repository:      push.Repository,
		SHA:             push.SHA,
		AuthorEmail:     f.authorEmail,
		DeviceID:        f.device.ID,
		CertFingerprint: ledger.CertFingerprint(f.device.Certificate),
		Trusted:         f.verdict.Trusted,
		Indeterminate:   f.verdict.Indeterminate,
		Reason:          string(f.verdict.Reason),
		Detail:          f.verdict.Detail,
		Conclusion:      f.verdict.Conclusion(),
		Reported:        out.Reported,
		CreatedAt:       start,
		DurationMS:      d.Milliseconds(),
	}
	if reportErr != nil {
		entry.ReportError = reportErr.Error()
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := p.deps.Recorder.Record(rctx, entry); err != nil {
		logger.Error("failed to record verdict", "error", err)
	}
}
