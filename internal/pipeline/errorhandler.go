package pipeline

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Decision is how the orchestrator proceeds after a step invocation.
type Decision int

const (
	DecisionSucceeded Decision = iota
	DecisionFallback
	DecisionAbort
	DecisionCancelled
)

func (d Decision) String() string {
	switch d {
	case DecisionSucceeded:
		return "succeeded"
	case DecisionFallback:
		return "fallback"
	case DecisionAbort:
		return "abort"
	case DecisionCancelled:
		return "cancelled"
	}
	return "unknown"
}

// RetryPolicy configures transient retries.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// AttemptTimeout bounds a single Execute call. Zero disables it.
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		Multiplier:      2,
		AttemptTimeout:  90 * time.Second,
	}
}

// Outcome is the resolved result of running one step.
type Outcome struct {
	Decision Decision
	Output   Output
	Class    Class
	Err      error
	Attempts int
}

// RetryObserver is notified before every retry.
type RetryObserver func(desc Descriptor, attempt int, err error, wait time.Duration)

// ErrorHandler is the single place where step failures become decisions.
type ErrorHandler struct {
	policy  RetryPolicy
	onRetry RetryObserver
}

func NewErrorHandler(policy RetryPolicy, onRetry RetryObserver) *ErrorHandler {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = DefaultRetryPolicy().Multiplier
	}
	return &ErrorHandler{policy: policy, onRetry: onRetry}
}

func (h *ErrorHandler) Policy() RetryPolicy { return h.policy }

// Execute runs step against snap and applies the failure policy:
// transient errors are retried with exponential backoff and then fall back,
// validation errors fall back immediately and fatal errors abort.
func (h *ErrorHandler) Execute(ctx context.Context, step Step, snap *Snapshot) Outcome {
	desc := step.Descriptor()

	var (
		attempts  int
		lastErr   error
		lastClass Class
	)

	operation := func() (Output, error) {
		attempts++
		out, err := h.attempt(ctx, step, snap)
		if err == nil {
			return out, nil
		}
		lastErr = err
		lastClass = classifyIn(ctx, err, desc.Critical)
		if lastClass != ClassTransient {
			return Output{}, backoff.Permanent(err)
		}
		return Output{}, err
	}

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(h.newBackOff()),
		backoff.WithMaxTries(uint(h.policy.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if h.onRetry != nil {
				h.onRetry(desc, attempts, err, wait)
			}
		}),
	)
	if err == nil {
		return Outcome{Decision: DecisionSucceeded, Output: out, Attempts: attempts}
	}

	if ctx.Err() != nil {
		return Outcome{Decision: DecisionCancelled, Class: ClassCancelled, Err: ctx.Err(), Attempts: attempts}
	}
	if lastErr == nil {
		lastErr = err
		lastClass = classifyIn(ctx, err, desc.Critical)
	}

	switch lastClass {
	case ClassFatal:
		return Outcome{Decision: DecisionAbort, Class: lastClass, Err: lastErr, Attempts: attempts}
	case ClassCancelled:
		return Outcome{Decision: DecisionCancelled, Class: lastClass, Err: lastErr, Attempts: attempts}
	default:
		return Outcome{Decision: DecisionFallback, Class: lastClass, Err: lastErr, Attempts: attempts}
	}
}

// Retry runs fn under the transient retry policy. It is used for reads that
// happen outside a step, such as loading the session seed.
func (h *ErrorHandler) Retry(ctx context.Context, name string, fn func(ctx context.Context) error) (Class, error) {
	var lastErr error
	var lastClass Class
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		lastErr = err
		lastClass = classifyIn(ctx, err, false)
		if lastClass != ClassTransient {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(h.newBackOff()),
		backoff.WithMaxTries(uint(h.policy.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Printf("[ErrorHandler] %s failed, retrying in %s: %v", name, wait, err)
		}),
	)
	if err == nil {
		return ClassNone, nil
	}
	if ctx.Err() != nil {
		return ClassCancelled, ctx.Err()
	}
	if lastErr == nil {
		return classifyIn(ctx, err, false), err
	}
	return lastClass, lastErr
}

// classifyIn is Classify for an error returned under ctx. A cancellation
// that did not come from ctx, such as one raised inside a client library,
// is transient: only the session's own context may cancel a run.
func classifyIn(ctx context.Context, err error, critical bool) Class {
	class := Classify(err, critical)
	if class == ClassCancelled && ctx.Err() == nil {
		return ClassTransient
	}
	return class
}

func (h *ErrorHandler) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.policy.InitialInterval
	b.MaxInterval = h.policy.MaxInterval
	b.Multiplier = h.policy.Multiplier
	b.RandomizationFactor = 0.1
	return b
}

// attempt runs a single Execute call. A call that outlives AttemptTimeout
// is abandoned and reported as transient.
func (h *ErrorHandler) attempt(ctx context.Context, step Step, snap *Snapshot) (Output, error) {
	desc := step.Descriptor()
	actx := ctx
	cancel := func() {}
	if h.policy.AttemptTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, h.policy.AttemptTimeout)
	}
	defer cancel()

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: Fatalf("%s panicked: %v", desc, r)}
			}
		}()
		out, err := step.Execute(actx, snap)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Output{}, r.err
		}
		if err := validateOutput(desc, r.out); err != nil {
			return Output{}, err
		}
		return r.out, nil
	case <-actx.Done():
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, Transientf("%s timed out after %s", desc, h.policy.AttemptTimeout)
	}
}

// validateOutput rejects result shapes no consumer can interpret.
func validateOutput(desc Descriptor, out Output) error {
	if out.Payload == nil {
		return Fatalf("%s returned no payload", desc)
	}
	if math.IsNaN(out.QualityScore) || out.QualityScore < 0 || out.QualityScore > 1 {
		return Fatal(fmt.Errorf("%s returned quality score %v outside [0,1]", desc, out.QualityScore))
	}
	return nil
}
