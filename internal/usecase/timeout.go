package usecase

import (
	"context"
	"fmt"
	"time"
)

// phaseTimeoutError is returned when a phase loses the race against its timer.
// The message always contains "timeout" so it classifies as analysis.FailureTimeout.
type phaseTimeoutError struct {
	phase string
	after time.Duration
	hint  string
}

func (e *phaseTimeoutError) Error() string {
	msg := fmt.Sprintf("%s timeout after %s", e.phase, e.after)
	if e.hint != "" {
		msg += " - " + e.hint
	}
	return msg
}

func (e *phaseTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// raceTimeout runs fn against a timer of length d and returns whichever
// settles first. fn's context is cancelled when the timer fires, but a slow
// fn that ignores it does not hold up the caller.
func raceTimeout[T any](ctx context.Context, d time.Duration, phase, hint string, fn func(context.Context) (T, error)) (T, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(phaseCtx)
		done <- outcome{value: value, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && phaseCtx.Err() == context.DeadlineExceeded {
			return zero, &phaseTimeoutError{phase: phase, after: d, hint: hint}
		}
		return out.value, out.err
	case <-phaseCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &phaseTimeoutError{phase: phase, after: d, hint: hint}
	}
}
