// Package observability provides structured logging and Prometheus metrics
// for the chat gateway.
//
// This package implements:
//   - zap logger construction from configuration
//   - Per-provider request and error counters
//   - The /metrics exporter handler
package observability
