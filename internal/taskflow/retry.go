package taskflow

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/llm"
)

// ErrorClass buckets every pipeline failure into one retry behavior.
type ErrorClass string

const (
	// ClassTransientIO covers network hiccups, timeouts, and upstream 5xx.
	ClassTransientIO ErrorClass = "transient_io"

	// ClassAuthFailure covers invalid credentials. Never retried.
	ClassAuthFailure ErrorClass = "auth_failure"

	// ClassMalformedResponse covers provider responses that violate the
	// analysis contract. Retries must alter the request.
	ClassMalformedResponse ErrorClass = "malformed_response"

	// ClassResourceExhausted covers rate limiting and quota errors.
	// Retried with an extended delay.
	ClassResourceExhausted ErrorClass = "resource_exhausted"

	// ClassPersistenceConflict covers unique-constraint conflicts on
	// persist. The conflicting row proves the work already succeeded, so
	// the failure is treated as an idempotent success.
	ClassPersistenceConflict ErrorClass = "persistence_conflict"

	// ClassFatalInfrastructure covers failures of the service's own
	// infrastructure. Aborts the whole run instead of a single item.
	ClassFatalInfrastructure ErrorClass = "fatal_infrastructure"
)

// transientNeedles are substrings that mark an otherwise unclassified
// error as transient. Unknown errors default to transient anyway; the list
// exists so wrapped library errors land in the right bucket explicitly.
var transientNeedles = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporar",
	"unavailable",
	"unexpected EOF",
}

// Classify maps an error to its retry class. Structured errors win over
// sentinels, sentinels over substring matching. Errors that fit no bucket
// classify as transient: retrying an unknown failure a bounded number of
// times is cheaper than silently dropping work that would have succeeded.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	if domain.IsFatalInfrastructure(err) {
		return ClassFatalInfrastructure
	}

	var malformed *llm.MalformedResponseError
	if errors.As(err, &malformed) {
		return ClassMalformedResponse
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuthFailure():
			return ClassAuthFailure
		case apiErr.IsRateLimited():
			return ClassResourceExhausted
		default:
			return ClassTransientIO
		}
	}

	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		return ClassPersistenceConflict
	case errors.Is(err, domain.ErrRateLimited):
		return ClassResourceExhausted
	case errors.Is(err, domain.ErrUnauthorized):
		return ClassAuthFailure
	case errors.Is(err, domain.ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransientIO
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range transientNeedles {
		if strings.Contains(msg, strings.ToLower(needle)) {
			return ClassTransientIO
		}
	}

	return ClassTransientIO
}

// Decision is the policy verdict for one failed attempt.
type Decision struct {
	// Class is the error classification the verdict is based on.
	Class ErrorClass

	// Retry reports whether the item should be attempted again.
	Retry bool

	// Delay is how long to wait before the next attempt.
	Delay time.Duration

	// Reformulate instructs the next attempt to alter the request.
	Reformulate bool

	// Success marks the failure as an idempotent success: the work's
	// effect is already persisted.
	Success bool

	// Abort marks the failure as fatal to the whole run.
	Abort bool
}

// Policy decides whether and when failed attempts are retried. Budgets are
// per error class; the delay grows exponentially from BaseDelay, takes
// jitter, and never exceeds MaxDelay.
type Policy struct {
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// ExhaustedDelay is the extended wait applied to resource exhaustion.
	ExhaustedDelay time.Duration

	// Jitter is the fraction of random spread applied to each delay
	// (0.2 means +/-20%). Zero disables jitter.
	Jitter float64

	// MaxRetries holds the per-class retry budget. A class absent from
	// the map is never retried.
	MaxRetries map[ErrorClass]int
}

// Default retry budgets per error class.
const (
	defaultTransientRetries  = 3
	defaultMalformedRetries  = 2
	defaultExhaustedRetries  = 3
	defaultJitterFraction    = 0.2
	defaultExhaustedMultiple = 2
)

// NewPolicy creates a policy with the default per-class budgets.
func NewPolicy(baseDelay, maxDelay time.Duration) *Policy {
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	return &Policy{
		BaseDelay:      baseDelay,
		MaxDelay:       maxDelay,
		ExhaustedDelay: defaultExhaustedMultiple * maxDelay,
		Jitter:         defaultJitterFraction,
		MaxRetries: map[ErrorClass]int{
			ClassTransientIO:       defaultTransientRetries,
			ClassMalformedResponse: defaultMalformedRetries,
			ClassResourceExhausted: defaultExhaustedRetries,
		},
	}
}

// Decide returns the verdict for a failure on the given attempt. Attempts
// are 1-based: attempt 1 is the first try, so with a budget of 3 retries
// an item is tried at most 4 times.
func (p *Policy) Decide(err error, attempt int) Decision {
	class := Classify(err)
	decision := Decision{Class: class}

	switch class {
	case ClassPersistenceConflict:
		decision.Success = true
		return decision
	case ClassFatalInfrastructure:
		decision.Abort = true
		return decision
	case ClassAuthFailure:
		return decision
	}

	budget := p.MaxRetries[class]
	if attempt > budget {
		return decision
	}

	decision.Retry = true
	decision.Delay = p.backoff(attempt)
	decision.Reformulate = class == ClassMalformedResponse

	if class == ClassResourceExhausted {
		decision.Delay = p.exhaustedDelay(err, decision.Delay)
	}

	return decision
}

// backoff computes base*2^(attempt-1) with jitter, capped at MaxDelay.
// MaxDelay is a hard ceiling: jitter never pushes the delay past it.
func (p *Policy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}

	delay = p.applyJitter(delay)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}

	return delay
}

// exhaustedDelay stretches the wait for rate-limited work. An upstream
// Retry-After hint wins when it is longer than the policy's own delay.
func (p *Policy) exhaustedDelay(err error, computed time.Duration) time.Duration {
	delay := computed
	if p.ExhaustedDelay > delay {
		delay = p.ExhaustedDelay
	}

	var rateLimited *domain.RateLimitError
	if errors.As(err, &rateLimited) && rateLimited.RetryAfter > delay {
		delay = rateLimited.RetryAfter
	}

	return delay
}

func (p *Policy) applyJitter(delay time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return delay
	}

	spread := float64(delay) * p.Jitter
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(delay) + offset)
}
