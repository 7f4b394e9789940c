// Package vcs talks to the hosted VCS (GitHub REST API): it fetches the
// commit under verification and publishes the verdict as a commit status
// or a check run.
//
// Reporting is idempotent. Every report for a commit uses the same context
// label, so the host keeps one verdict per commit no matter how often the
// same delivery is processed.
package vcs
