package diagnosis

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse     = errors.New("empty response from model")
	ErrMalformedResponse = errors.New("model response has no diagnoses array")

	// ErrRequestFailed matches every error returned by
	// RequestDifferentialDiagnoses. Callers should not look further.
	ErrRequestFailed = errors.New("diagnosis request failed")
)

// RequestFailedError carries the underlying cause for logging.
type RequestFailedError struct {
	Cause error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("%v: %v", ErrRequestFailed, e.Cause)
}

func (e *RequestFailedError) Unwrap() error { return e.Cause }

func (e *RequestFailedError) Is(target error) bool { return target == ErrRequestFailed }

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	default:
		return "model_error"
	}
}
