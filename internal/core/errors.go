package core

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline phases, used in errors and log records.
const (
	PhaseBible      = "story_bible"
	PhaseOutline    = "outline"
	PhaseIndex      = "index"
	PhaseChapter    = "chapter"
	PhaseContinuity = "continuity"
	PhaseResume     = "resume"
	PhaseImport     = "import"
)

// ValidationError rejects caller input before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// PhaseError reports which step of a run failed. Chapter is 1-based and
// zero outside the chapter loop.
type PhaseError struct {
	Phase   string
	Chapter int
	Cause   error
}

func (e *PhaseError) Error() string {
	if e.Chapter > 0 {
		return fmt.Sprintf("%s failed for chapter %d: %v", e.Phase, e.Chapter, e.Cause)
	}
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Cause)
}

func (e *PhaseError) Unwrap() error {
	return e.Cause
}

// ErrIncompleteState means persisted data cannot support a resume. The
// recovery is to reset and start over.
var ErrIncompleteState = errors.New("incomplete save data")

// IncompleteStateError lists the keys that were missing or unreadable.
type IncompleteStateError struct {
	Missing []string
	Reason  string
}

func (e *IncompleteStateError) Error() string {
	msg := ErrIncompleteState.Error()
	if len(e.Missing) > 0 {
		msg += ": missing " + strings.Join(e.Missing, ", ")
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *IncompleteStateError) Unwrap() error {
	return ErrIncompleteState
}

func phaseError(phase string, chapter int, err error) error {
	if err == nil {
		return nil
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PhaseError{Phase: phase, Chapter: chapter, Cause: err}
}
