package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldComponent = "component"

	// Work items
	FieldRepoURL  = "repo_url"
	FieldPaperURL = "paper_url"
	FieldSeq      = "seq"
	FieldBatch    = "batch"
	FieldWorkerID = "worker_id"
	FieldAttempt  = "attempt"
	FieldKind     = "kind"
	FieldHost     = "host"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldBackoff    = "backoff"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount      = "count"
	FieldBytes      = "bytes"
	FieldBatchSize  = "batch_size"
	FieldTotalCount = "total_count"
	FieldStatements = "statements"

	// Status
	FieldStatus = "status"

	// Files and paths
	FieldPath     = "path"
	FieldArtifact = "artifact"
	FieldLine     = "line"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	pool := pulse.NewWorkerPool(cfg, fetcher, logger.ComponentLogger("pulse"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
