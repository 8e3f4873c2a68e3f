package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidDatasetPath = errors.New("invalid dataset path")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrExtraction         = errors.New("extraction failed")
	ErrCacheCorruption    = errors.New("cache corruption")
	ErrSearchTooLarge     = errors.New("search too large")
	ErrDegeneratePairSet  = errors.New("degenerate pair set")
	ErrInvalidParameter   = errors.New("invalid parameter")
)

// StageError annotates an error with the pipeline stage and, when known, the
// record or dimension it concerns.
//
// The underlying error can be accessed via errors.Unwrap.
type StageError struct {
	Stage     string
	Record    string
	Dimension int // -1 when not applicable
	Err       error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage)
	if e.Record != "" {
		fmt.Fprintf(&b, " [record %s]", e.Record)
	}
	if e.Dimension >= 0 {
		fmt.Fprintf(&b, " [dimension %d]", e.Dimension)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err for stage without record or dimension context.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Dimension: -1, Err: err}
}

// RecordError wraps err for a specific record.
func RecordError(stage, record string, err error) *StageError {
	return &StageError{Stage: stage, Record: record, Dimension: -1, Err: err}
}

// InvalidParameter builds an ErrInvalidParameter with a formatted reason.
func InvalidParameter(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// DimensionMismatch builds an ErrDimensionMismatch error.
func DimensionMismatch(expected, actual int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, expected, actual)
}
