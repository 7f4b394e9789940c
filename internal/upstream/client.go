// Package upstream is the shared HTTP plumbing for calls to the VCS host
// and the device directory: bearer authentication, a per-call timeout, and
// classification of failures into transient and permanent.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps how much of an upstream response is read.
const maxResponseBytes = 4 << 20

// Client issues authenticated JSON requests against one base URL.
type Client struct {
	baseURL string
	headers http.Header
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for baseURL with the given per-call timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: http.Header{},
		http:    &http.Client{Timeout: timeout},
	}
	c.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is a fully read upstream reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do sends method pathAndQuery with an optional JSON body, authenticated
// with token. A non-nil error means no response was obtained; non-2xx
// replies are returned as a Response for the caller to classify.
func (c *Client) Do(ctx context.Context, method, pathAndQuery, token string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, errors.New("response exceeds size limit")
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// StatusError renders a short message for a non-2xx reply without echoing
// large bodies into logs.
func StatusError(resp *Response) error {
	msg := strings.TrimSpace(string(resp.Body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return errors.New(msg)
}
