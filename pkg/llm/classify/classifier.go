package classify

import (
	"fmt"
	"strings"
	"time"

	"qa-guru-be/pkg/llm"
)

// Kind buckets a raw provider failure into a recovery category.
type Kind string

const (
	KindRateLimit       Kind = "rate_limit"
	KindContextOverflow Kind = "context_overflow"
	KindAuth            Kind = "auth"
	KindNetwork         Kind = "network"
	KindTransient       Kind = "transient"
	KindUnknown         Kind = "unknown"
)

// ClassifiedError is a provider failure mapped to a recovery category.
// It is derived per failure and never retained beyond its handling.
type ClassifiedError struct {
	Kind        Kind
	UserMessage string
	Retryable   bool
	RetryDelay  time.Duration
	Cause       error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// signature matches a known failure pattern in the raw error message.
type signature struct {
	substrings []string
	kind       Kind
}

// Order matters: the first signature whose substrings all appear wins.
// Substrings are matched case-insensitively against the raw message.
var signatures = []signature{
	{[]string{"429"}, KindRateLimit},
	{[]string{"rate limit"}, KindRateLimit},
	{[]string{"resource_exhausted"}, KindRateLimit},
	{[]string{"quota"}, KindRateLimit},
	{[]string{"token count", "exceeds"}, KindContextOverflow},
	{[]string{"context length"}, KindContextOverflow},
	{[]string{"too many tokens"}, KindContextOverflow},
	{[]string{"input is too long"}, KindContextOverflow},
	{[]string{"400", "token"}, KindContextOverflow},
	{[]string{"401"}, KindAuth},
	{[]string{"403"}, KindAuth},
	{[]string{"api key"}, KindAuth},
	{[]string{"unauthenticated"}, KindAuth},
	{[]string{"permission_denied"}, KindAuth},
	{[]string{"connection refused"}, KindNetwork},
	{[]string{"no such host"}, KindNetwork},
	{[]string{"timeout"}, KindNetwork},
	{[]string{"deadline exceeded"}, KindNetwork},
	{[]string{"eof"}, KindNetwork},
	{[]string{"broken pipe"}, KindNetwork},
	{[]string{"500"}, KindTransient},
	{[]string{"502"}, KindTransient},
	{[]string{"503"}, KindTransient},
	{[]string{"504"}, KindTransient},
	{[]string{"unavailable"}, KindTransient},
	{[]string{"overloaded"}, KindTransient},
	{[]string{"internal error"}, KindTransient},
}

var userMessages = map[Kind]string{
	KindRateLimit:       "The AI service is receiving too many requests. Retrying shortly...",
	KindContextOverflow: "The conversation grew too large for the model. Older messages were trimmed; retrying...",
	KindAuth:            "The AI service rejected the configured credentials. Check the API key.",
	KindNetwork:         "Could not reach the AI service. Retrying...",
	KindTransient:       "The AI service had a temporary problem. Retrying...",
	KindUnknown:         "The AI service returned an unexpected error.",
}

// Classify maps a raw provider error to its recovery category. Cancellation is
// deliberately not classified here: callers must check llm.IsCancelled first.
func Classify(err error) *ClassifiedError {
	msg := strings.ToLower(err.Error())

	kind := KindUnknown
	for _, sig := range signatures {
		matched := true
		for _, sub := range sig.substrings {
			if !strings.Contains(msg, sub) {
				matched = false
				break
			}
		}
		if matched {
			kind = sig.kind
			break
		}
	}

	classified := &ClassifiedError{
		Kind:        kind,
		UserMessage: userMessages[kind],
		Cause:       err,
	}

	switch kind {
	case KindRateLimit:
		classified.Retryable = true
		classified.RetryDelay = 5 * time.Second
	case KindContextOverflow:
		classified.Retryable = true
	case KindNetwork, KindTransient:
		classified.Retryable = true
		classified.RetryDelay = 1 * time.Second
	}
	return classified
}

// IsRetryable is a convenience for retry wrappers: cancellation never retries.
func IsRetryable(err error) bool {
	if llm.IsCancelled(err) {
		return false
	}
	return Classify(err).Retryable
}
