// Package observability wires structured logging, Prometheus metrics and
// OpenTelemetry tracing for the PrimeGrid processes.
package observability
