// Package ledger keeps an insert-only audit log of every verification
// outcome in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Entry is one recorded invocation.
type Entry struct {
	InvocationID    string    `json:"invocation_id"`
	DeliveryID      string    `json:"delivery_id,omitempty"`
	Repository      string    `json:"repository"`
	SHA             string    `json:"sha"`
	AuthorEmail     string    `json:"author_email,omitempty"`
	DeviceID        string    `json:"device_id,omitempty"`
	CertFingerprint string    `json:"cert_fingerprint,omitempty"`
	Trusted         bool      `json:"trusted"`
	Indeterminate   bool      `json:"indeterminate"`
	Reason          string    `json:"reason"`
	Detail          string    `json:"detail,omitempty"`
	Conclusion      string    `json:"conclusion"`
	Reported        bool      `json:"reported"`
	ReportError     string    `json:"report_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	DurationMS      int64     `json:"duration_ms"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Repository string
	SHA        string // exact or prefix match
	Limit      int
}

const defaultLimit = 50

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps a database bootstrapped by storage.OpenSQLite.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record inserts e. Entries are never updated.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.InvocationID == "" {
		return fmt.Errorf("ledger entry has no invocation id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO verdict_log(
  invocation_id, delivery_id, repository, sha, author_email, device_id,
  cert_fingerprint, trusted, indeterminate, reason, detail, conclusion,
  reported, report_error, created_at, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.InvocationID,
		nullIfEmpty(e.DeliveryID),
		e.Repository,
		e.SHA,
		nullIfEmpty(e.AuthorEmail),
		nullIfEmpty(e.DeviceID),
		nullIfEmpty(e.CertFingerprint),
		boolInt(e.Trusted),
		boolInt(e.Indeterminate),
		e.Reason,
		nullIfEmpty(e.Detail),
		e.Conclusion,
		boolInt(e.Reported),
		nullIfEmpty(e.ReportError),
		e.CreatedAt.UTC().Format(timeLayout),
		e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// ErrInvalidSHA is returned by List for a SHA filter that is not a hex prefix.
var ErrInvalidSHA = errors.New("sha filter must be 1-64 hex characters")

// ValidSHAPrefix reports whether s can be used as a SHA filter.
func ValidSHAPrefix(s string) bool {
	if len(s) == 0 || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// List returns matching entries, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Repository != "" {
		where = append(where, "repository = ?")
		args = append(args, f.Repository)
	}
	if f.SHA != "" {
		// Hex only, so the prefix never carries LIKE wildcards.
		if !ValidSHAPrefix(f.SHA) {
			return nil, ErrInvalidSHA
		}
		where = append(where, "sha LIKE ?")
		args = append(args, strings.ToLower(f.SHA)+"%")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	q := `
SELECT invocation_id, delivery_id, repository, sha, author_email, device_id,
       cert_fingerprint, trusted, indeterminate, reason, detail, conclusion,
       reported, report_error, created_at, duration_ms
FROM verdict_log`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY created_at DESC, rowid DESC\nLIMIT ?;"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                              Entry
			delivery, email, device, fp, detail, reportErr sql.NullString
			trusted, indeterminate, reported               int
			created                                        string
		)
		if err := rows.Scan(
			&e.InvocationID, &delivery, &e.Repository, &e.SHA, &email, &device,
			&fp, &trusted, &indeterminate, &e.Reason, &detail, &e.Conclusion,
			&reported, &reportErr, &created, &e.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		e.DeliveryID = delivery.String
		e.AuthorEmail = email.String
		e.DeviceID = device.String
		e.CertFingerprint = fp.String
		e.Detail = detail.String
		e.ReportError = reportErr.String
		e.Trusted = trusted != 0
		e.Indeterminate = indeterminate != 0
		e.Reported = reported != 0
		if t, err := time.Parse(timeLayout, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return out, nil
}

// Prune deletes entries older than retention and returns how many.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM verdict_log WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune verdicts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CertFingerprint identifies the certificate a verdict was checked against
// without storing the certificate itself.
func CertFingerprint(cert []byte) string {
	if len(cert) == 0 {
		return ""
	}
	sum := blake3.Sum256(cert)
	return "blake3:" + hex.EncodeToString(sum[:])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
