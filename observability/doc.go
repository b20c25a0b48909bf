// Package observability configures OpenTelemetry tracing. Spans are exported
// over OTLP/HTTP when a collector endpoint is configured.
package observability
