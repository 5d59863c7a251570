package extractor

import (
	"errors"
	"fmt"
)

// ErrUnknownModel is returned for a model name missing from the registry.
var ErrUnknownModel = errors.New("unknown embedding model")

// ModelLoadError means the model (or the runtime that executes it) could not be loaded.
// It is fatal for the process: once returned for a model it is returned for every later call.
type ModelLoadError struct {
	Model  string
	Path   string // where the artifact was expected
	EnvVar string // environment variable that overrides Path
	Err    error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %s from %s (set %s to override): %v", e.Model, e.Path, e.EnvVar, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError is a decode or inference failure scoped to one image.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference with %s failed: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// IsModelLoad reports whether err is (or wraps) a ModelLoadError.
func IsModelLoad(err error) bool {
	var mle *ModelLoadError
	return errors.As(err, &mle)
}
