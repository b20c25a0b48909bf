// Package push delivers notifications through Firebase Cloud Messaging.
//
// FCMGateway splits a broadcast into SendEach calls of at most MaxBatchSize
// messages and reports the outcome of every message in submission order.
// Per-message failures are classified with ClassifyError so callers can
// tell stale tokens (FailureUnregistered) from transient conditions.
package push
