// Package directory resolves a commit author's email to the managed device
// registered for them in the organization's device directory.
//
// Lookups go through a read-through cache. A cached record older than its
// TTL is never returned, and concurrent misses for the same email share one
// upstream call.
package directory

import (
	"errors"
	"strings"
)

// ErrNotFound is the directory's definitive answer that no managed device
// is registered for the email.
var ErrNotFound = errors.New("no managed device for author")

// DeviceRecord is the directory's view of one managed device.
type DeviceRecord struct {
	ID          string `json:"id"`
	OwnerEmail  string `json:"owner_email"`
	Certificate []byte `json:"certificate"`
	Managed     bool   `json:"managed"`
	Compliant   bool   `json:"compliant"`
}

func (r DeviceRecord) clone() DeviceRecord {
	r.Certificate = append([]byte(nil), r.Certificate...)
	return r
}

// NormalizeEmail is the cache key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
