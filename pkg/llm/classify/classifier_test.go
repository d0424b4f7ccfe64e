package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"qa-guru-be/pkg/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  Kind
		retryable bool
		delay     time.Duration
	}{
		{"http 429", errors.New("gemini request failed: status 429: try later"), KindRateLimit, true, 5 * time.Second},
		{"quota", errors.New("RESOURCE_EXHAUSTED: quota exceeded for project"), KindRateLimit, true, 5 * time.Second},
		{"token overflow", errors.New("The input token count (120000) exceeds the maximum"), KindContextOverflow, true, 0},
		{"context length", errors.New("request exceeds the model context length"), KindContextOverflow, true, 0},
		{"auth 401", errors.New("status 401: unauthorized"), KindAuth, false, 0},
		{"bad api key", errors.New("API key not valid. Please pass a valid API key"), KindAuth, false, 0},
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connection refused"), KindNetwork, true, time.Second},
		{"no such host", errors.New("lookup api.example.com: no such host"), KindNetwork, true, time.Second},
		{"server 503", errors.New("status 503: service unavailable"), KindTransient, true, time.Second},
		{"overloaded", errors.New("the model is overloaded, try again"), KindTransient, true, time.Second},
		{"unknown", errors.New("something inexplicable happened"), KindUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.RetryDelay != tt.delay {
				t.Errorf("RetryDelay = %v, want %v", got.RetryDelay, tt.delay)
			}
			if got.UserMessage == "" {
				t.Error("UserMessage empty")
			}
			if !errors.Is(got, tt.err) {
				t.Error("cause not wrapped")
			}
		})
	}
}

func TestClassifyOrderMatters(t *testing.T) {
	// "deadline exceeded" could read as overflow ("exceeds") but the overflow
	// signature also needs "token count"; network must win here.
	got := Classify(fmt.Errorf("context deadline exceeded"))
	if got.Kind != KindNetwork {
		t.Errorf("Kind = %s, want network", got.Kind)
	}
}

func TestIsRetryableCancellation(t *testing.T) {
	if IsRetryable(llm.CancelledError(context.Canceled)) {
		t.Error("cancellation must never be retryable")
	}
	if !IsRetryable(errors.New("status 503: unavailable")) {
		t.Error("transient failure should be retryable")
	}
}
