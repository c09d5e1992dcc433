package taskflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{
			name: "api error with 5xx is transient",
			err:  &llm.APIError{Provider: "openai", StatusCode: 503, Message: "overloaded"},
			want: ClassTransientIO,
		},
		{
			name: "api error with network failure is transient",
			err:  &llm.APIError{Provider: "openai", StatusCode: 0, Type: "network_error"},
			want: ClassTransientIO,
		},
		{
			name: "api error with 401 is auth failure",
			err:  &llm.APIError{Provider: "anthropic", StatusCode: 401, Message: "invalid key"},
			want: ClassAuthFailure,
		},
		{
			name: "api error with 403 is auth failure",
			err:  &llm.APIError{Provider: "openai", StatusCode: 403},
			want: ClassAuthFailure,
		},
		{
			name: "api error with 429 is resource exhausted",
			err:  &llm.APIError{Provider: "openai", StatusCode: 429},
			want: ClassResourceExhausted,
		},
		{
			name: "wrapped api error keeps its class",
			err:  errors.Join(errors.New("attempt failed"), &llm.APIError{StatusCode: 401}),
			want: ClassAuthFailure,
		},
		{
			name: "malformed response",
			err:  &llm.MalformedResponseError{Provider: "openai", Detail: "not json"},
			want: ClassMalformedResponse,
		},
		{
			name: "already exists sentinel is persistence conflict",
			err:  domain.NewAlreadyExistsError("report", "arxiv:1:gpt-4"),
			want: ClassPersistenceConflict,
		},
		{
			name: "rate limit error is resource exhausted",
			err:  &domain.RateLimitError{Source: "arxiv", RetryAfter: 30 * time.Second},
			want: ClassResourceExhausted,
		},
		{
			name: "fatal infrastructure",
			err:  domain.NewFatalInfrastructureError("connect database", errors.New("pool closed")),
			want: ClassFatalInfrastructure,
		},
		{
			name: "fatal wins over transient substring",
			err:  domain.NewFatalInfrastructureError("write report", errors.New("connection refused")),
			want: ClassFatalInfrastructure,
		},
		{
			name: "deadline exceeded is transient",
			err:  context.DeadlineExceeded,
			want: ClassTransientIO,
		},
		{
			name: "connection refused substring is transient",
			err:  errors.New("dial tcp 10.0.0.1:5432: connection refused"),
			want: ClassTransientIO,
		},
		{
			name: "unknown error defaults to transient",
			err:  errors.New("something odd happened"),
			want: ClassTransientIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}

	t.Run("nil error has empty class", func(t *testing.T) {
		assert.Equal(t, ErrorClass(""), Classify(nil))
	})
}

func TestPolicy_Decide(t *testing.T) {
	policy := NewPolicy(time.Second, 8*time.Second)
	policy.Jitter = 0

	transient := &llm.APIError{StatusCode: 502}

	t.Run("transient retried within budget", func(t *testing.T) {
		for attempt := 1; attempt <= defaultTransientRetries; attempt++ {
			decision := policy.Decide(transient, attempt)
			assert.True(t, decision.Retry, "attempt %d should retry", attempt)
			assert.Equal(t, ClassTransientIO, decision.Class)
			assert.False(t, decision.Reformulate)
		}
	})

	t.Run("transient exhausted past budget", func(t *testing.T) {
		decision := policy.Decide(transient, defaultTransientRetries+1)
		assert.False(t, decision.Retry)
		assert.False(t, decision.Abort)
		assert.False(t, decision.Success)
	})

	t.Run("auth failure never retried", func(t *testing.T) {
		decision := policy.Decide(&llm.APIError{StatusCode: 401}, 1)
		assert.Equal(t, ClassAuthFailure, decision.Class)
		assert.False(t, decision.Retry)
		assert.False(t, decision.Abort)
	})

	t.Run("malformed response retried with reformulation", func(t *testing.T) {
		malformed := &llm.MalformedResponseError{Provider: "openai", Detail: "truncated"}

		decision := policy.Decide(malformed, 1)
		assert.True(t, decision.Retry)
		assert.True(t, decision.Reformulate)

		decision = policy.Decide(malformed, defaultMalformedRetries+1)
		assert.False(t, decision.Retry)
	})

	t.Run("persistence conflict is idempotent success", func(t *testing.T) {
		decision := policy.Decide(domain.NewAlreadyExistsError("report", "x"), 1)
		assert.True(t, decision.Success)
		assert.False(t, decision.Retry)
	})

	t.Run("fatal infrastructure aborts", func(t *testing.T) {
		decision := policy.Decide(domain.NewFatalInfrastructureError("db", errors.New("down")), 1)
		assert.True(t, decision.Abort)
		assert.False(t, decision.Retry)
	})

	t.Run("backoff doubles and caps at max delay", func(t *testing.T) {
		wants := []time.Duration{
			time.Second,
			2 * time.Second,
			4 * time.Second,
		}
		for i, want := range wants {
			decision := policy.Decide(transient, i+1)
			assert.Equal(t, want, decision.Delay, "attempt %d", i+1)
		}

		// Past the cap the delay stops growing.
		wide := NewPolicy(time.Second, 4*time.Second)
		wide.Jitter = 0
		wide.MaxRetries[ClassTransientIO] = 10
		assert.Equal(t, 4*time.Second, wide.Decide(transient, 5).Delay)
		assert.Equal(t, 4*time.Second, wide.Decide(transient, 9).Delay)
	})

	t.Run("resource exhaustion gets extended delay", func(t *testing.T) {
		decision := policy.Decide(&llm.APIError{StatusCode: 429}, 1)
		assert.True(t, decision.Retry)
		assert.Equal(t, policy.ExhaustedDelay, decision.Delay)
	})

	t.Run("retry-after hint wins when longer", func(t *testing.T) {
		err := &domain.RateLimitError{Source: "openai", RetryAfter: 5 * time.Minute}
		decision := policy.Decide(err, 1)
		assert.Equal(t, 5*time.Minute, decision.Delay)
	})

	t.Run("retry-after hint ignored when shorter", func(t *testing.T) {
		err := &domain.RateLimitError{Source: "openai", RetryAfter: time.Second}
		decision := policy.Decide(err, 1)
		assert.Equal(t, policy.ExhaustedDelay, decision.Delay)
	})

	t.Run("jitter stays within the configured spread", func(t *testing.T) {
		jittered := NewPolicy(time.Second, 8*time.Second)
		for i := 0; i < 50; i++ {
			decision := jittered.Decide(transient, 1)
			assert.GreaterOrEqual(t, decision.Delay, 800*time.Millisecond)
			assert.LessOrEqual(t, decision.Delay, 1200*time.Millisecond)
		}
	})

	t.Run("jitter never pushes a capped delay past max", func(t *testing.T) {
		jittered := NewPolicy(time.Second, 4*time.Second)
		jittered.MaxRetries[ClassTransientIO] = 10
		for i := 0; i < 100; i++ {
			decision := jittered.Decide(transient, 8)
			assert.LessOrEqual(t, decision.Delay, 4*time.Second)
			assert.GreaterOrEqual(t, decision.Delay, time.Duration(0))
		}
	})
}

func TestNewPolicy_Defaults(t *testing.T) {
	policy := NewPolicy(0, 0)

	assert.Equal(t, 2*time.Second, policy.BaseDelay)
	assert.Equal(t, 2*time.Second, policy.MaxDelay)
	assert.Equal(t, defaultJitterFraction, policy.Jitter)
	assert.Equal(t, defaultTransientRetries, policy.MaxRetries[ClassTransientIO])
	assert.Equal(t, defaultMalformedRetries, policy.MaxRetries[ClassMalformedResponse])
	assert.Equal(t, defaultExhaustedRetries, policy.MaxRetries[ClassResourceExhausted])
}
