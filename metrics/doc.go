// Package metrics defines the Prometheus collectors of the relay and the
// server exposing them.
package metrics
