// Package pushhandler implements the HTTP handlers for token registration
// and broadcast, and a Client for calling them.
//
// Every request goes through the same pipeline: method check, platform
// check, body decoding and validation, then the upstream call under a
// bounded timeout. Errors are mapped onto HTTP at the handler boundary:
//
//   - *interfaces.MethodError: 405
//   - *interfaces.ValidationError: 400
//   - *interfaces.ConfigurationError: 503
//   - *interfaces.UpstreamError and anything else: 500
//
// Per-recipient delivery failures are data, not errors: a broadcast that
// reached the gateway answers 200 with successCount and failureCount.
package pushhandler
