package analysis

import (
	"context"
	"errors"
	"strings"
)

// FailureKind buckets upstream failures for user-facing messages.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureQueueBusy FailureKind = "queue-busy"
	FailureAnalysis  FailureKind = "analysis-failed"
)

// Message is the text shown to the user for k.
func (k FailureKind) Message() string {
	switch k {
	case FailureTimeout:
		return "The AI model is taking too long to respond. Please try again."
	case FailureQueueBusy:
		return "The AI service is currently busy. Please try again in a moment."
	default:
		return "Failed to analyze image. Please try again."
	}
}

// Error is a classified upstream failure. Error() returns the user-facing
// message; the cause stays reachable through Unwrap.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify buckets err by matching its message against "timeout" and then
// "queue". Errors that are already classified are returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: FailureTimeout, Err: err}
	case strings.Contains(msg, "queue"):
		return &Error{Kind: FailureQueueBusy, Err: err}
	default:
		return &Error{Kind: FailureAnalysis, Err: err}
	}
}
