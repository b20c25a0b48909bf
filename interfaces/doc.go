// Package interfaces defines the core types and contracts of the push relay,
// separating interface definitions from their implementations.
//
// # Storage
//
// RegistrationStore is a flat keyed collection mapping a client identifier
// (a phone number) to its latest delivery token. Implementations live in the
// storage package (Firestore, Redis, in-memory) and are selected by a
// StoreLocation URI.
//
// # Messaging
//
// PushGateway submits a batch of PushMessage values and returns a
// BatchResult with per-recipient outcomes. A failed recipient is data, not an
// error: token invalidation is a steady-state condition.
//
// # Errors
//
// ConfigurationError, ValidationError, MethodError and UpstreamError form the
// error taxonomy that request handlers map to HTTP status codes.
package interfaces
