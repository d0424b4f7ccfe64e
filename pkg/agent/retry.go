package agent

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"qa-guru-be/pkg/llm"
	"qa-guru-be/pkg/llm/classify"
)

// retryPolicy decides whether a failed model call gets attempted again within
// the same turn. Each error kind gets at most one retry, so a turn can recover
// from a blip without looping on a persistent failure.
type retryPolicy struct {
	logger  *log.Logger
	delays  *backoff.ExponentialBackOff
	tried   map[classify.Kind]bool
	sleepFn func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(logger *log.Logger) *retryPolicy {
	if logger == nil {
		logger = log.Default()
	}
	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = 500 * time.Millisecond
	delays.MaxInterval = 10 * time.Second
	return &retryPolicy{
		logger:  logger,
		delays:  delays,
		tried:   map[classify.Kind]bool{},
		sleepFn: sleepCtx,
	}
}

// retryDecision is the outcome of classifying one failed call.
type retryDecision struct {
	retry bool
	// pruneHistory is set when the failure was a context overflow: the caller
	// must shrink the conversation before retrying or the retry will fail the
	// same way.
	pruneHistory bool
	classified   *classify.ClassifiedError
}

// decide classifies err and records the attempt. Cancellation never retries.
func (p *retryPolicy) decide(err error) retryDecision {
	if llm.IsCancelled(err) {
		return retryDecision{}
	}

	classified := classify.Classify(err)
	d := retryDecision{classified: classified}
	if !classified.Retryable || p.tried[classified.Kind] {
		return d
	}
	p.tried[classified.Kind] = true
	d.retry = true
	d.pruneHistory = classified.Kind == classify.KindContextOverflow
	p.logger.Printf("[RETRY] %s error, retrying once: %v", classified.Kind, classified.Cause)
	return d
}

// wait blocks for the larger of the classifier's suggested delay and the
// exponential schedule, or until ctx is done.
func (p *retryPolicy) wait(ctx context.Context, d retryDecision) error {
	delay := p.delays.NextBackOff()
	if d.classified != nil && d.classified.RetryDelay > delay {
		delay = d.classified.RetryDelay
	}
	if delay <= 0 {
		return ctx.Err()
	}
	return p.sleepFn(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
