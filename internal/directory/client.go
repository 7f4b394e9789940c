package directory

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mattjoyce/commitgate/internal/upstream"
)

// Client queries the directory's identity-search endpoint.
type Client struct {
	http        *upstream.Client
	lookupPath  string
	filterParam string
}

// NewClient returns a lookup client. lookupPath is appended to the
// upstream base URL; filterParam names the query parameter carrying the
// "email=<addr>" filter.
func NewClient(http *upstream.Client, lookupPath, filterParam string) *Client {
	if filterParam == "" {
		filterParam = "filter"
	}
	return &Client{http: http, lookupPath: lookupPath, filterParam: filterParam}
}

type lookupResponse struct {
	Devices []struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		Managed     bool   `json:"managed"`
		Compliant   bool   `json:"compliant"`
		Certificate string `json:"certificate"`
	} `json:"devices"`
}

// Lookup performs one search for email and returns the first device whose
// owner email matches. No match is ErrNotFound; every other failure is a
// *upstream.FetchError.
func (c *Client) Lookup(ctx context.Context, token, email string) (DeviceRecord, error) {
	q := url.Values{}
	q.Set(c.filterParam, "email="+email)

	resp, err := c.http.Do(ctx, http.MethodGet, c.lookupPath+"?"+q.Encode(), token, nil)
	if err != nil {
		return DeviceRecord{}, &upstream.FetchError{
			Service:   "directory",
			Op:        "lookup",
			Transient: upstream.TransportTransient(ctx, err),
			Err:       err,
		}
	}
	if !resp.OK() {
		return DeviceRecord{}, &upstream.FetchError{
			Service:    "directory",
			Op:         "lookup",
			StatusCode: resp.StatusCode,
			Transient:  upstream.TransientStatus(resp.StatusCode),
			Err:        upstream.StatusError(resp),
		}
	}

	var body lookupResponse
	if err := resp.Decode(&body); err != nil {
		return DeviceRecord{}, &upstream.FetchError{Service: "directory", Op: "lookup", StatusCode: resp.StatusCode, Err: err}
	}

	want := NormalizeEmail(email)
	for _, d := range body.Devices {
		if NormalizeEmail(d.Email) != want {
			continue
		}
		return DeviceRecord{
			ID:          d.ID,
			OwnerEmail:  d.Email,
			Certificate: []byte(strings.TrimSpace(d.Certificate)),
			Managed:     d.Managed,
			Compliant:   d.Compliant,
		}, nil
	}
	return DeviceRecord{}, ErrNotFound
}
