package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mattjoyce/commitgate/internal/upstream"
)

// CommitRecord is the subset of a commit needed for verification.
type CommitRecord struct {
	Repository       string
	SHA              string
	AuthorEmail      string
	SignaturePayload []byte
	SignedContent    []byte
}

// FetchCommit issues exactly one commit-detail GET. It never retries.
// Failures are *upstream.FetchError; a signature field that is present but
// null or empty yields an empty SignaturePayload rather than an error.
func (c *Client) FetchCommit(ctx context.Context, token, repo, sha string) (CommitRecord, error) {
	fail := func(status int, transient bool, err error) error {
		return &upstream.FetchError{Service: "vcs", Op: "fetch commit", StatusCode: status, Transient: transient, Err: err}
	}

	rp, err := repoPath(repo)
	if err != nil {
		return CommitRecord{}, fail(0, false, err)
	}

	resp, err := c.call(ctx, http.MethodGet, "/repos/"+rp+"/commits/"+sha, token, nil)
	if err != nil {
		return CommitRecord{}, fail(0, upstream.TransportTransient(ctx, err), err)
	}
	if !resp.OK() {
		return CommitRecord{}, fail(resp.StatusCode, upstream.TransientStatus(resp.StatusCode), upstream.StatusError(resp))
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return CommitRecord{}, fail(resp.StatusCode, false, fmt.Errorf("decode commit: %w", err))
	}

	rec := CommitRecord{Repository: repo, SHA: sha}

	email, _ := lookupPath(doc, c.opts.Fields.AuthorEmail)
	rec.AuthorEmail, _ = email.(string)
	rec.AuthorEmail = strings.TrimSpace(rec.AuthorEmail)
	if rec.AuthorEmail == "" {
		return CommitRecord{}, fail(resp.StatusCode, false, fmt.Errorf("commit has no author email at %q", c.opts.Fields.AuthorEmail))
	}

	if rec.SignaturePayload, err = stringField(doc, c.opts.Fields.Signature); err != nil {
		return CommitRecord{}, fail(resp.StatusCode, false, err)
	}
	if rec.SignedContent, err = stringField(doc, c.opts.Fields.SignedContent); err != nil {
		return CommitRecord{}, fail(resp.StatusCode, false, err)
	}
	return rec, nil
}

// stringField reads a string-or-null field. An absent field is an error.
func stringField(doc any, path string) ([]byte, error) {
	v, present := lookupPath(doc, path)
	if !present {
		return nil, fmt.Errorf("commit response has no field %q", path)
	}
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(s), nil
	default:
		return nil, errors.New("field " + path + " is not a string")
	}
}

// lookupPath walks a dotted path through decoded JSON objects. The second
// result distinguishes an explicit null from a missing key.
func lookupPath(doc any, path string) (any, bool) {
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
