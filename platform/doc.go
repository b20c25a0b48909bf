// Package platform bootstraps the Firebase services used by the handlers.
//
// Bootstrap runs at most once per process. Its outcome is a Handle which
// either holds a ready Client (registration store and push gateway) or the
// *interfaces.ConfigurationError that prevented building one. Handlers ask
// the handle for the client on every request and answer 503 when it failed,
// so a misconfigured deployment keeps serving health checks and diagnostics.
package platform
