// Package webhook authenticates and parses inbound VCS webhook deliveries.
//
// Every delivery must carry an X-Hub-Signature-256 header holding
// "sha256=<hex>", the HMAC-SHA256 of the raw request body keyed by the
// shared webhook secret. Authentication is purely local and CPU-bound; an
// unauthenticated delivery never causes an outbound call.
//
// # Request Flow
//
//  1. HTTP POST arrives at the configured path (internal/server)
//  2. Body size checked (413 if too large)
//  3. Authenticate compares the HMAC in constant time (403 on mismatch)
//  4. Parse classifies the delivery: push, ping or ignored
//  5. Push events name one repository and one commit SHA for the pipeline
//
// # Accepted Payloads
//
// The commit SHA is read from "after" (push events) or "head_commit.id"
// (the legacy push shape). Branch deletions and non-push events are
// acknowledged without processing.
package webhook
