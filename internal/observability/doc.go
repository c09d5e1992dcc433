// Package observability provides logging, metrics, and context propagation
// for the paper digest service.
//
// Logging is built on zerolog with structured JSON output by default.
// Metrics are Prometheus collectors registered via promauto. Context helpers
// carry request and task run identifiers across orchestration boundaries so
// every log line produced while processing a paper can be correlated with
// the run that triggered it.
package observability
