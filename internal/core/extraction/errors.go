package extraction

import "fmt"

// SoftError marks a recoverable cloud-path failure: unavailable service,
// poll timeout, reported failure, or an empty result. It never reaches the
// caller of Extract; the orchestrator converts it into a fallback attempt.
type SoftError struct {
	Reason string
	Err    error
}

func (e *SoftError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction soft failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction soft failure (%s)", e.Reason)
}

func (e *SoftError) Unwrap() error { return e.Err }

func softf(reason string, err error) *SoftError {
	return &SoftError{Reason: reason, Err: err}
}

// HardError means every extraction path was exhausted. It is terminal: the
// document transitions to failed with this message.
type HardError struct {
	Msg string
	Err error
}

func (e *HardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *HardError) Unwrap() error { return e.Err }
