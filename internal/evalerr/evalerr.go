// Package evalerr defines the error taxonomy shared by the evaluation pipeline.
package evalerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for unknown model or dataset selectors and invalid options.
	// It is fatal and aborts the run before any example is processed.
	ErrConfiguration = errors.New("configuration error")

	// ErrLookup is returned when an index position has no image mapping or a
	// referenced image has no caption.
	ErrLookup = errors.New("lookup error")

	// ErrDegenerateMetric marks a summary metric whose denominator is zero.
	ErrDegenerateMetric = errors.New("degenerate metric")

	// ErrAdapter wraps failures from the scorer, generator or index backends.
	ErrAdapter = errors.New("adapter failure")
)

// Stage names the pipeline step an example failed in.
type Stage string

const (
	StageRetrieve Stage = "retrieve"
	StageRerank   Stage = "rerank"
	StageGenerate Stage = "generate"
	StageScore    Stage = "score"
	StagePersist  Stage = "persist"
)

// ExampleError records a failure contained to a single example.
type ExampleError struct {
	GUID  string
	Stage Stage
	Err   error
}

func (e *ExampleError) Error() string {
	return fmt.Sprintf("example %s: %s: %v", e.GUID, e.Stage, e.Err)
}

func (e *ExampleError) Unwrap() error {
	return e.Err
}

// Configf returns an ErrConfiguration with a formatted message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Lookupf returns an ErrLookup with a formatted message.
func Lookupf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLookup, fmt.Sprintf(format, args...))
}

// Adapter wraps err as an ErrAdapter for the named backend. A nil err stays nil.
func Adapter(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrAdapter, name, err)
}

// Code classifies err into a short label for logs and metric labels.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrLookup):
		return "lookup"
	case errors.Is(err, ErrDegenerateMetric):
		return "degenerate_metric"
	case errors.Is(err, ErrAdapter):
		return "adapter"
	default:
		return "unknown"
	}
}
