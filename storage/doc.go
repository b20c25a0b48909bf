// Package storage provides registration stores with pluggable backends.
//
// A registration maps a client identifier (phone number) to its most recent
// push token and the time the token was stored. Every backend implements
// interfaces.RegistrationStore with merge, last-write-wins upserts.
//
// # Store URI Format
//
// Stores are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - firestore://tokens
//   - redis://:password@localhost:6379/0?prefix=push-relay:tokens:
//   - rediss://redis.example.com:6380/0
//   - memory://
//
// Several locations can be combined with StoreFactory.CreateMirroredStore,
// which writes to all of them and reads from the first available one.
//
// # Compare-and-delete
//
// DeleteIfToken removes a registration only while it still holds the given
// token. Firestore runs the check in a transaction, Redis in a Lua script.
package storage
