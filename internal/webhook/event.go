package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// GitHub delivery headers.
const (
	EventHeader    = "X-GitHub-Event"
	DeliveryHeader = "X-GitHub-Delivery"
)

var (
	// ErrUnauthenticated means the delivery's HMAC did not verify.
	ErrUnauthenticated = errors.New("webhook authentication failed")

	// ErrMalformedEvent means the body lacks a repository or commit SHA.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

var (
	shaPattern      = regexp.MustCompile(`^[0-9a-fA-F]{7,64}$`)
	repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
)

// Event is one raw webhook delivery. It lives for a single invocation.
type Event struct {
	Headers http.Header
	Body    []byte
}

// Kind classifies a delivery after authentication.
type Kind int

const (
	// KindPush is a push that names a commit to verify.
	KindPush Kind = iota
	// KindPing is GitHub's hook configuration probe.
	KindPing
	// KindIgnored is an event that carries no commit to verify.
	KindIgnored
)

// PushEvent is the subset of a push delivery the pipeline needs.
type PushEvent struct {
	Kind       Kind
	Repository string
	SHA        string
	DeliveryID string
	EventType  string
	Reason     string // why the event is ignored, for logs
}

type pushPayload struct {
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	HeadCommit *struct {
		ID string `json:"id"`
	} `json:"head_commit"`
}

// Parse classifies an authenticated delivery and extracts the repository
// and commit SHA. The SHA comes from "after" (push) or, failing that,
// "head_commit.id" (legacy push shape).
func Parse(ev Event) (PushEvent, error) {
	out := PushEvent{
		DeliveryID: strings.TrimSpace(ev.Headers.Get(DeliveryHeader)),
		EventType:  strings.TrimSpace(ev.Headers.Get(EventHeader)),
	}

	switch out.EventType {
	case "ping":
		out.Kind = KindPing
		return out, nil
	case "", "push":
	default:
		out.Kind = KindIgnored
		out.Reason = "unsupported event type"
		return out, nil
	}

	var p pushPayload
	if err := json.Unmarshal(ev.Body, &p); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out.Repository = strings.TrimSpace(p.Repository.FullName)
	if !repoNamePattern.MatchString(out.Repository) {
		return out, fmt.Errorf("%w: repository.full_name missing or invalid", ErrMalformedEvent)
	}

	sha := strings.TrimSpace(p.After)
	if sha == "" && p.HeadCommit != nil {
		sha = strings.TrimSpace(p.HeadCommit.ID)
	}

	if p.Deleted || isZeroSHA(sha) {
		out.Kind = KindIgnored
		out.Reason = "branch deleted"
		return out, nil
	}

	if !shaPattern.MatchString(sha) {
		return out, fmt.Errorf("%w: commit sha missing or invalid", ErrMalformedEvent)
	}
	out.SHA = strings.ToLower(sha)
	out.Kind = KindPush
	return out, nil
}

func isZeroSHA(sha string) bool {
	return sha != "" && strings.Trim(sha, "0") == ""
}
