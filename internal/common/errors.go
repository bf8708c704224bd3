package common

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transient external-dependency failures. Wrapped by
// StageError so callers can both errors.Is the class and read the context.
var (
	// ErrEmbeddingService indicates the embedding backend failed after the
	// retry budget was exhausted.
	ErrEmbeddingService = errors.New("embedding service unavailable")

	// ErrGenerationService indicates the generation backend failed after the
	// retry budget was exhausted.
	ErrGenerationService = errors.New("generation service unavailable")

	// ErrDocumentNotFound indicates a document ID that is not in the corpus.
	ErrDocumentNotFound = errors.New("document not found")
)

// NoAnswerSentinel is the fixed answer text returned when retrieval produces
// no supporting documents or the verifier rejects the generated answer.
// It is a successful response, not an error.
const NoAnswerSentinel = "I don't know — couldn't find supporting documents."

// ConfigError represents an invalid configuration value. Fatal at startup or
// at index-build time; never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// ValidationError represents a bad request from a caller (for example k <= 0).
// Surfaced to the caller as a 400; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IndexConsistencyError reports a chunk present in one index side but missing
// from the other. The snapshot that produced it must never serve queries.
type IndexConsistencyError struct {
	ChunkID string
	Missing string // which side lacks the chunk: "vector" or "lexical"
}

func (e *IndexConsistencyError) Error() string {
	return fmt.Sprintf("index consistency error: chunk %s missing from %s index", e.ChunkID, e.Missing)
}

// StageError wraps a pipeline failure with enough context to log and to let
// the caller decide what to surface: the failing stage, the query and how
// many attempts were made before giving up.
type StageError struct {
	Stage    string
	Query    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsServiceUnavailable reports whether err represents an exhausted external
// dependency (embedding or generation) rather than a caller mistake.
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingService) || errors.Is(err, ErrGenerationService)
}

// IsValidation reports whether err is a caller-side validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err means the requested document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}
