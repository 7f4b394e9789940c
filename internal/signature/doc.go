// Package signature checks that a commit's signature was produced by the
// private key behind a device certificate.
//
// The certificate is handled as data (PEM, base64 DER or raw DER) and is
// never interpreted as a filesystem path. Verify answers false for every
// failure, including malformed input; Check returns the reason.
package signature
