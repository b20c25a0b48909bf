/*
Package httpserver runs the push relay API.

The server mounts the API handlers behind request logging and adds the
health and diagnostic endpoints:

  - GET /livez - process is alive
  - GET /readyz - 200 when serving, 503 while draining or when the platform
    failed to initialize
  - GET /drain - mark the server not ready ahead of a shutdown
  - GET /undrain - mark the server ready again
  - /debug/pprof - profiling, when enabled

Prometheus metrics are served by a separate listener on MetricsAddr.

Shutdown first drains (readiness off for DrainDuration), then waits up to
GracefulShutdownDuration for in-flight requests.
*/
package httpserver
