package httpserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyMiddleware(t *testing.T) {
	t.Run("rejects requests without a key", func(t *testing.T) {
		f := newServerFixture(t, "secret-key")

		rec := f.do(t, http.MethodGet, "/api/v1/papers", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing API key")
	})

	t.Run("rejects a wrong key", func(t *testing.T) {
		f := newServerFixture(t, "secret-key")

		rec := f.do(t, http.MethodGet, "/api/v1/papers", nil, "X-API-Key", "wrong")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid API key")
	})

	t.Run("accepts any configured key", func(t *testing.T) {
		f := newServerFixture(t, "first-key", "second-key")

		rec := f.do(t, http.MethodGet, "/api/v1/papers", nil, "X-API-Key", "second-key")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("leaves health endpoints open", func(t *testing.T) {
		f := newServerFixture(t, "secret-key")

		rec := f.do(t, http.MethodGet, "/healthz", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("auth is disabled when no keys are configured", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/papers", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCorrelationIDMiddleware(t *testing.T) {
	t.Run("echoes a provided correlation ID", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet, "/healthz", nil, "X-Correlation-ID", "trace-42")

		assert.Equal(t, "trace-42", rec.Header().Get("X-Correlation-ID"))
	})

	t.Run("generates a correlation ID when absent", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet, "/healthz", nil)

		assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	})
}

func TestJSONContentType(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
