package server

import (
	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/pipeline"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status       string `json:"status"`
	InvocationID string `json:"invocation_id,omitempty"`
}

type verdictResponse struct {
	Status        string `json:"status"`
	InvocationID  string `json:"invocation_id"`
	Repository    string `json:"repository"`
	SHA           string `json:"sha"`
	Trusted       bool   `json:"trusted"`
	Indeterminate bool   `json:"indeterminate"`
	Reason        string `json:"reason"`
	Conclusion    string `json:"conclusion"`
}

func newVerdictResponse(out pipeline.Outcome, status string) verdictResponse {
	return verdictResponse{
		Status:        status,
		InvocationID:  out.InvocationID,
		Repository:    out.Repository,
		SHA:           out.SHA,
		Trusted:       out.Verdict.Trusted,
		Indeterminate: out.Verdict.Indeterminate,
		Reason:        string(out.Verdict.Reason),
		Conclusion:    out.Verdict.Conclusion(),
	}
}

type verdictListResponse struct {
	Verdicts []ledger.Entry `json:"verdicts"`
}
