package metronome

import (
	"errors"
	"fmt"
)

var (
	ErrClockUnavailable = errors.New("metronome: clock unavailable")
	ErrInvalidTempo     = errors.New("metronome: tempo must be positive and at most MaxTempo")
	ErrInvalidTiming    = errors.New("metronome: poll interval must be at most a third of the lookahead")
)

// TaskError describes a scheduled task that panicked.
type TaskError struct {
	Seq      uint64  // registration sequence of the task
	Repeat   bool    // repeating tasks stay queued after a failure
	TickTime float64 // virtual time of the tick being processed
	Panic    any
	Stack    string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("metronome: task %d panicked at tick %.3fs: %v", e.Seq, e.TickTime, e.Panic)
}

// Unwrap exposes the panic value when a task panicked with an error.
func (e *TaskError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}
