package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("invalid analysis request")
	ErrEngineSpawn   = errors.New("engine could not be started")
	ErrEngineExit    = errors.New("engine exited with failure")
	ErrEngineTimeout = errors.New("engine timed out")
	ErrEngineBusy    = errors.New("engine capacity exhausted")
	ErrDecode        = errors.New("engine output could not be decoded")
	ErrPersistence   = errors.New("report could not be persisted")
	ErrNotFound      = errors.New("report not found")
)

// ValidationError lists every problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid analysis request: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// EngineExitError reports a non-zero engine exit. Stderr holds the tail of
// the engine's error stream for logging; it is never shown to API clients.
type EngineExitError struct {
	Code   int
	Stderr string
}

func (e *EngineExitError) Error() string {
	return fmt.Sprintf("engine exited with status %d", e.Code)
}

func (e *EngineExitError) Is(target error) bool { return target == ErrEngineExit }

// DecodeError reports output that breaks the engine wire contract.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode engine output: %s: %v", e.Reason, e.Err)
	}
	return "decode engine output: " + e.Reason
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeError) Unwrap() error { return e.Err }

// PipelineError is the single failure a run yields; Stage is where it stopped.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("analysis failed while %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Kind names the taxonomy bucket of err, used for logs, metrics and the
// failure journal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEngineBusy):
		return "engine_busy"
	case errors.Is(err, ErrEngineTimeout):
		return "engine_timeout"
	case errors.Is(err, ErrEngineSpawn):
		return "engine_spawn"
	case errors.Is(err, ErrEngineExit):
		return "engine_exit"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// StageOf returns the stage recorded on a PipelineError, or StageFailed.
func StageOf(err error) Stage {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return StageFailed
}
