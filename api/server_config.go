package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the relay's API and metrics listeners.
type HTTPServerConfig struct {
	// ListenAddr is the host:port of the API listener.
	ListenAddr string

	// MetricsAddr is the host:port of the Prometheus listener. Empty disables it.
	MetricsAddr string

	// EnablePprof mounts /debug/pprof on the API router.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long readiness stays off before shutdown so load
	// balancers stop routing new requests.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests.
	GracefulShutdownDuration time.Duration

	// ReadTimeout and WriteTimeout bound a single request. WriteTimeout must
	// exceed the upstream timeout of a broadcast.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
