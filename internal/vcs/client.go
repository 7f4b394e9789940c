package vcs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/commitgate/internal/upstream"
)

// GitHub REST API version pinned for every call.
const apiVersion = "2022-11-28"

// Report modes.
const (
	ModeStatus   = "status"
	ModeCheckRun = "check_run"
)

// FieldPaths locates commit facts inside the commit-detail response as
// dotted JSON paths.
type FieldPaths struct {
	AuthorEmail   string
	Signature     string
	SignedContent string
}

// DefaultFieldPaths follows GitHub's commit API.
func DefaultFieldPaths() FieldPaths {
	return FieldPaths{
		AuthorEmail:   "commit.author.email",
		Signature:     "commit.verification.signature",
		SignedContent: "commit.verification.payload",
	}
}

// Options configures a Client.
type Options struct {
	Mode      string
	Context   string // status context / check run name
	TargetURL string
	Fields    FieldPaths
}

// Client is a GitHub REST client scoped to commit fetches and verdict
// reports.
type Client struct {
	http *upstream.Client
	opts Options
}

// NewClient returns a client for baseURL (https://api.github.com or a GHES
// /api/v3 root).
func NewClient(baseURL string, timeout time.Duration, opts Options) *Client {
	if opts.Mode == "" {
		opts.Mode = ModeStatus
	}
	def := DefaultFieldPaths()
	if opts.Fields.AuthorEmail == "" {
		opts.Fields.AuthorEmail = def.AuthorEmail
	}
	if opts.Fields.Signature == "" {
		opts.Fields.Signature = def.Signature
	}
	if opts.Fields.SignedContent == "" {
		opts.Fields.SignedContent = def.SignedContent
	}
	return &Client{
		http: upstream.New(baseURL, timeout,
			upstream.WithHeader("Accept", "application/vnd.github+json"),
			upstream.WithHeader("X-GitHub-Api-Version", apiVersion),
		),
		opts: opts,
	}
}

// repoPath escapes "owner/name" for use in a URL path.
func repoPath(repo string) (string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("repository %q is not owner/name", repo)
	}
	return url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}

func (c *Client) call(ctx context.Context, method, path, token string, body any) (*upstream.Response, error) {
	return c.http.Do(ctx, method, path, token, body)
}
