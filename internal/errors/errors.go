// Package errors defines the structured error taxonomy used across
// semindex's ingestion pipeline. It follows the spec's "surface taxonomy,
// not type names" instruction: a single closed Kind enum on one error
// struct, rather than the teacher's one-struct-per-concern split.
package errors

import (
	"fmt"
	"time"
)

// Kind is the closed set of error surfaces a run can report.
type Kind string

const (
	// KindIOUnavailable: a file or database was not readable/writable.
	// Recovered by skipping the affected file.
	KindIOUnavailable Kind = "io_unavailable"

	// KindParseFailure: the source could not be tokenized into an AST.
	// The file is still stored with zero blocks and zero relationships.
	KindParseFailure Kind = "parse_failure"

	// KindExtractionAnomaly: the AST parsed but a block lacked a
	// recognizable name or range; a synthesized name was substituted.
	KindExtractionAnomaly Kind = "extraction_anomaly"

	// KindEmbeddingFailure: ONNX inference failed for a chunk or batch.
	KindEmbeddingFailure Kind = "embedding_failure"

	// KindIntegrityViolation: a relational-store constraint was violated
	// by a computed insert; the transaction was rolled back.
	KindIntegrityViolation Kind = "integrity_violation"

	// KindCancellation: orderly shutdown at the next checkpoint.
	KindCancellation Kind = "cancellation"
)

// IndexError wraps a low-level failure with the context needed for a run
// report: what kind of failure, which file, which operation, and whether
// the orchestrator can keep going.
type IndexError struct {
	Kind        Kind
	FilePath    string
	Op          string
	Err         error
	Recoverable bool
	Timestamp   time.Time
}

// New creates an IndexError for the given kind and operation.
func New(kind Kind, op string, err error) *IndexError {
	return &IndexError{
		Kind:        kind,
		Op:          op,
		Err:         err,
		Recoverable: kind != KindCancellation,
		Timestamp:   time.Now(),
	}
}

// WithFile attaches the file path the error occurred on.
func (e *IndexError) WithFile(path string) *IndexError {
	e.FilePath = path
	return e
}

// WithRecoverable overrides the default recoverability for this error.
func (e *IndexError) WithRecoverable(recoverable bool) *IndexError {
	e.Recoverable = recoverable
	return e
}

func (e *IndexError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Op, e.FilePath, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Op, e.Err)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether the orchestrator should continue the run
// past this error rather than abort it.
func (e *IndexError) IsRecoverable() bool {
	return e.Recoverable
}

// FailureRecord is the per-file entry in a run report's failed list.
type FailureRecord struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// MultiError aggregates independent failures collected during a run (e.g.
// several files failing for unrelated reasons) into one error value.
type MultiError struct {
	Errors []error
}

// NewMultiError filters nils and wraps the rest.
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

// Unwrap supports errors.Is/errors.As across all wrapped errors (Go 1.20+).
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
