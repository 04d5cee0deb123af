package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad or missing input fields. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrGeneration marks an LLM/TTS response that was empty or unusable.
	// The pipeline aborts the run; retry is the caller's decision.
	ErrGeneration = errors.New("generation error")
	// ErrNotFound marks a missing package or artifact.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks a document/blob store failure after the configured
	// retry budget is exhausted.
	ErrStorage = errors.New("storage error")
	// ErrConflict marks a create on an already-existing document id, or a
	// version mismatch on replace.
	ErrConflict = errors.New("conflict")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Generationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGeneration, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Storagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStorage, fmt.Sprintf(format, args...))
}

// AudioPipelineError is the fatal wrap for unrecoverable audio
// post-processing failures. It always carries the package id so an orphaned
// blob can be traced back to its run.
type AudioPipelineError struct {
	PackageID string
	Err       error
}

func (e *AudioPipelineError) Error() string {
	return fmt.Sprintf("audio pipeline failed for package %s: %v", e.PackageID, e.Err)
}

func (e *AudioPipelineError) Unwrap() error { return e.Err }
