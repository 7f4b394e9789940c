package vcs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mattjoyce/commitgate/internal/trust"
	"github.com/mattjoyce/commitgate/internal/upstream"
)

// maxDescription is GitHub's limit for a commit status description.
const maxDescription = 140

// Ack describes what the host accepted.
type Ack struct {
	Mode string
	ID   int64 // check run or status id, when the host returns one
}

type statusRequest struct {
	State       string `json:"state"`
	Context     string `json:"context"`
	Description string `json:"description"`
	TargetURL   string `json:"target_url,omitempty"`
}

type checkOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type checkRunRequest struct {
	Name       string      `json:"name"`
	HeadSHA    string      `json:"head_sha,omitempty"`
	Status     string      `json:"status"`
	Conclusion string      `json:"conclusion"`
	DetailsURL string      `json:"details_url,omitempty"`
	Output     checkOutput `json:"output"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

type checkRunList struct {
	TotalCount int          `json:"total_count"`
	CheckRuns  []idResponse `json:"check_runs"`
}

// Report publishes verdict for sha under the configured context label.
// Reposting the same verdict leaves exactly one entry on the host.
func (c *Client) Report(ctx context.Context, token, repo, sha string, verdict trust.Verdict) (Ack, error) {
	rp, err := repoPath(repo)
	if err != nil {
		return Ack{}, &upstream.ReportError{Op: c.opts.Mode, Err: err}
	}
	if c.opts.Mode == ModeCheckRun {
		return c.reportCheckRun(ctx, token, rp, sha, verdict)
	}
	return c.reportStatus(ctx, token, rp, sha, verdict)
}

func (c *Client) reportStatus(ctx context.Context, token, rp, sha string, verdict trust.Verdict) (Ack, error) {
	req := statusRequest{
		State:       verdict.Conclusion(),
		Context:     c.opts.Context,
		Description: truncate(verdict.Summary(), maxDescription),
		TargetURL:   c.opts.TargetURL,
	}
	resp, err := c.call(ctx, http.MethodPost, "/repos/"+rp+"/statuses/"+sha, token, req)
	if err := reportFailure(ctx, "status", resp, err); err != nil {
		return Ack{}, err
	}
	var out idResponse
	_ = resp.Decode(&out)
	return Ack{Mode: ModeStatus, ID: out.ID}, nil
}

func (c *Client) reportCheckRun(ctx context.Context, token, rp, sha string, verdict trust.Verdict) (Ack, error) {
	q := url.Values{}
	q.Set("check_name", c.opts.Context)
	resp, err := c.call(ctx, http.MethodGet, "/repos/"+rp+"/commits/"+sha+"/check-runs?"+q.Encode(), token, nil)
	if err := reportFailure(ctx, "list check runs", resp, err); err != nil {
		return Ack{}, err
	}
	var existing checkRunList
	if err := resp.Decode(&existing); err != nil {
		return Ack{}, &upstream.ReportError{Op: "list check runs", StatusCode: resp.StatusCode, Err: err}
	}

	req := checkRunRequest{
		Name:       c.opts.Context,
		Status:     "completed",
		Conclusion: verdict.Conclusion(),
		DetailsURL: c.opts.TargetURL,
		Output: checkOutput{
			Title:   verdict.Summary(),
			Summary: checkSummary(verdict),
		},
	}

	op := "create check run"
	method, path := http.MethodPost, "/repos/"+rp+"/check-runs"
	if len(existing.CheckRuns) > 0 {
		op = "update check run"
		method = http.MethodPatch
		path += "/" + strconv.FormatInt(existing.CheckRuns[0].ID, 10)
	} else {
		req.HeadSHA = sha
	}

	resp, err = c.call(ctx, method, path, token, req)
	if err := reportFailure(ctx, op, resp, err); err != nil {
		return Ack{}, err
	}
	var out idResponse
	_ = resp.Decode(&out)
	return Ack{Mode: ModeCheckRun, ID: out.ID}, nil
}

func reportFailure(ctx context.Context, op string, resp *upstream.Response, err error) error {
	if err != nil {
		return &upstream.ReportError{Op: op, Transient: upstream.TransportTransient(ctx, err), Err: err}
	}
	if !resp.OK() {
		return &upstream.ReportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Transient:  upstream.TransientStatus(resp.StatusCode),
			Err:        upstream.StatusError(resp),
		}
	}
	return nil
}

// checkSummary carries the reason code only. Detail can hold upstream error
// text, so it stays in the ledger and the logs.
func checkSummary(v trust.Verdict) string {
	return fmt.Sprintf("Reason: `%s`\n\n%s", v.Reason, v.Summary())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
