// Package trust turns the facts gathered for one commit into a verdict.
//
// Decide is a pure function over the directory lookup result and the
// signature check. The first matching row of the decision table wins, and
// every failure path resolves to an untrusted or indeterminate verdict.
package trust

import (
	"errors"

	"github.com/mattjoyce/commitgate/internal/directory"
)

// ReasonCode identifies why a verdict was reached.
type ReasonCode string

const (
	ReasonTrusted              ReasonCode = "trusted"
	ReasonAuthorNotManaged     ReasonCode = "author_not_managed"
	ReasonDirectoryUnavailable ReasonCode = "directory_unavailable"
	ReasonDeviceNotCompliant   ReasonCode = "device_not_compliant"
	ReasonSignatureInvalid     ReasonCode = "signature_invalid"
	ReasonCommitUnavailable    ReasonCode = "commit_unavailable"
	ReasonBudgetExceeded       ReasonCode = "budget_exceeded"
)

var summaries = map[ReasonCode]string{
	ReasonTrusted:              "commit signed on a managed, compliant device",
	ReasonAuthorNotManaged:     "author not a managed device",
	ReasonDirectoryUnavailable: "directory unavailable",
	ReasonDeviceNotCompliant:   "device not compliant",
	ReasonSignatureInvalid:     "signature invalid",
	ReasonCommitUnavailable:    "commit unavailable",
	ReasonBudgetExceeded:       "verification timed out",
}

// Conclusions reported to the VCS host.
const (
	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
)

// Verdict is the immutable outcome of one verification.
type Verdict struct {
	Trusted       bool
	Indeterminate bool
	Reason        ReasonCode
	Detail        string
}

// Summary is the human-readable line shown next to the status.
func (v Verdict) Summary() string {
	s, ok := summaries[v.Reason]
	if !ok {
		s = string(v.Reason)
	}
	if v.Indeterminate {
		s += " (indeterminate)"
	}
	return s
}

// Conclusion maps the verdict onto the host's pass/fail vocabulary.
// Indeterminate verdicts fail closed.
func (v Verdict) Conclusion() string {
	if v.Trusted {
		return ConclusionSuccess
	}
	return ConclusionFailure
}

// SignatureCheck is the signature verifier's contribution to a decision.
type SignatureCheck int

const (
	// SignatureSkipped means verification was not attempted.
	SignatureSkipped SignatureCheck = iota
	SignatureValid
	SignatureInvalid
)

// Decide applies the decision table. device is only consulted when
// lookupErr is nil.
func Decide(device directory.DeviceRecord, lookupErr error, sig SignatureCheck) Verdict {
	switch {
	case errors.Is(lookupErr, directory.ErrNotFound):
		return untrusted(ReasonAuthorNotManaged)
	case lookupErr != nil:
		return Indeterminate(ReasonDirectoryUnavailable, lookupErr.Error())
	case !device.Managed || !device.Compliant:
		return untrusted(ReasonDeviceNotCompliant)
	case sig == SignatureValid:
		return Verdict{Trusted: true, Reason: ReasonTrusted}
	default:
		return untrusted(ReasonSignatureInvalid)
	}
}

// Indeterminate builds a fail-closed verdict for a fact that could not be
// established.
func Indeterminate(code ReasonCode, detail string) Verdict {
	return Verdict{Indeterminate: true, Reason: code, Detail: detail}
}

func untrusted(code ReasonCode) Verdict {
	return Verdict{Reason: code}
}
