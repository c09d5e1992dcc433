package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-digest-service/internal/domain"
)

type stubPublisher struct {
	name      string
	configErr error
}

func (s *stubPublisher) Name() string          { return s.name }
func (s *stubPublisher) ValidateConfig() error { return s.configErr }

func (s *stubPublisher) Authenticate(context.Context) error { return nil }

func (s *stubPublisher) FormatContent(_ context.Context, report *domain.Report) (*Content, error) {
	return &Content{Title: report.PaperIdentity, ReportID: report.ID.String()}, nil
}

func (s *stubPublisher) Publish(_ context.Context, _ *Content) (string, error) {
	return "pub-1", nil
}

func (s *stubPublisher) GetStatus(_ context.Context, _ string) (*Status, error) {
	return &Status{Published: true}, nil
}

func TestRegistry_Register(t *testing.T) {
	t.Run("registers a valid publisher", func(t *testing.T) {
		registry := NewRegistry()

		require.NoError(t, registry.Register(&stubPublisher{name: "devblog"}))

		got, err := registry.Get("devblog")
		require.NoError(t, err)
		assert.Equal(t, "devblog", got.Name())
	})

	t.Run("rejects a duplicate name", func(t *testing.T) {
		registry := NewRegistry()

		require.NoError(t, registry.Register(&stubPublisher{name: "devblog"}))
		err := registry.Register(&stubPublisher{name: "devblog"})
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
	})

	t.Run("rejects a failing config check", func(t *testing.T) {
		registry := NewRegistry()

		err := registry.Register(&stubPublisher{name: "devblog", configErr: errors.New("missing token")})
		assert.ErrorContains(t, err, "missing token")
	})

	t.Run("rejects nil and unnamed publishers", func(t *testing.T) {
		registry := NewRegistry()

		assert.Error(t, registry.Register(nil))
		assert.Error(t, registry.Register(&stubPublisher{name: ""}))
	})
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get("missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubPublisher{name: "zulip"}))
	require.NoError(t, registry.Register(&stubPublisher{name: "devblog"}))

	assert.Equal(t, []string{"devblog", "zulip"}, registry.Names())
}
