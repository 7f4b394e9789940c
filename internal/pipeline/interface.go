package pipeline

import (
	"context"

	"github.com/mattjoyce/commitgate/internal/directory"
	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/trust"
	"github.com/mattjoyce/commitgate/internal/vcs"
)

//go:generate mockgen -destination=mocks/mock_pipeline.go -package=mocks github.com/mattjoyce/commitgate/internal/pipeline CommitFetcher,DeviceResolver,SignatureVerifier,StatusReporter,VerdictRecorder

// CommitFetcher loads one commit from the VCS host. Implementations make a
// single attempt; the pipeline owns retries.
type CommitFetcher interface {
	FetchCommit(ctx context.Context, token, repo, sha string) (vcs.CommitRecord, error)
}

// DeviceResolver maps an author email to a managed device.
type DeviceResolver interface {
	Resolve(ctx context.Context, token, email string) (directory.DeviceRecord, error)
}

// SignatureVerifier checks a commit signature against a device certificate.
type SignatureVerifier interface {
	Check(signedContent, payload, certificate []byte) error
}

// StatusReporter publishes a verdict to the VCS host.
type StatusReporter interface {
	Report(ctx context.Context, token, repo, sha string, verdict trust.Verdict) (vcs.Ack, error)
}

// VerdictRecorder keeps the audit trail.
type VerdictRecorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}
