package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{errors.New("connection timeout after 1m0s"), FailureTimeout},
		{errors.New("Prediction Timeout - the model may be loading"), FailureTimeout},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), FailureTimeout},
		{errors.New("upstream queue is full (status 503)"), FailureQueueBusy},
		{errors.New("queue timeout"), FailureTimeout},
		{errors.New("connection refused"), FailureAnalysis},
	}
	for _, tc := range cases {
		got := Classify(tc.err)
		if got.Kind != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.err, got.Kind, tc.want)
		}
		if !errors.Is(got, tc.err) {
			t.Errorf("Classify(%q) lost the cause", tc.err)
		}
		if got.Error() != tc.want.Message() {
			t.Errorf("unexpected message %q", got.Error())
		}
	}
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	original := &Error{Kind: FailureQueueBusy, Err: errors.New("timeout")}
	wrapped := fmt.Errorf("outer: %w", original)

	if got := Classify(wrapped); got != original {
		t.Fatalf("expected the existing classification, got %+v", got)
	}
	if Classify(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
