package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Helper to create a valid paper for testing.
func newTestPaper() *domain.Paper {
	now := time.Now().UTC()
	pubDate := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	return &domain.Paper{
		ID:              uuid.New(),
		Identity:        domain.PaperIdentity(domain.SourceTypeHuggingFace, "2501.12345"),
		ExternalID:      "2501.12345",
		Title:           "Scaling Laws for Synthetic Pretraining",
		Authors:         []string{"Ada Lovelace", "Alan Turing"},
		Abstract:        "We study scaling behavior under synthetic data mixtures.",
		PublicationDate: &pubDate,
		Source:          domain.SourceTypeHuggingFace,
		PDFURL:          "https://arxiv.org/pdf/2501.12345",
		Categories:      []string{"cs.LG"},
		RawPayload: map[string]interface{}{
			"upvotes": float64(42),
		},
		Status:    domain.PaperStatusDiscovered,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewPgPaperRepository(t *testing.T) {
	t.Run("creates repository with mock db", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		assert.NotNil(t, repo)
		assert.NotNil(t, repo.db)
	})
}

func TestPgPaperRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates paper successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), paper.Identity, paper.ExternalID, paper.Title, paper.Authors, paper.Abstract,
				paper.PublicationDate, paper.Source, paper.PDFURL, paper.Categories, pgxmock.AnyArg(),
				paper.Status, paper.AttemptCount, paper.LastError, pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(paper.ID, paper.CreatedAt, paper.UpdatedAt))

		result, err := repo.Create(ctx, paper)
		require.NoError(t, err)
		assert.Equal(t, paper.ID, result.ID)
		assert.Equal(t, paper.Identity, result.Identity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("binds authors and categories as string slices", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()
		paper.Authors = []string{"Grace Hopper"}
		paper.Categories = []string{"cs.CL", "cs.LG"}

		// The columns are text[]; the driver only maps them correctly when
		// the slices are bound as-is, not pre-serialized.
		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), paper.Identity, paper.ExternalID, paper.Title, []string{"Grace Hopper"}, paper.Abstract,
				paper.PublicationDate, paper.Source, paper.PDFURL, []string{"cs.CL", "cs.LG"}, pgxmock.AnyArg(),
				paper.Status, paper.AttemptCount, paper.LastError, pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(paper.ID, paper.CreatedAt, paper.UpdatedAt))

		_, err = repo.Create(ctx, paper)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for nil paper", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		result, err := repo.Create(ctx, nil)

		assert.Nil(t, result)
		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "paper", validationErr.Field)
	})

	t.Run("returns validation error for missing identity", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()
		paper.Identity = ""

		result, err := repo.Create(ctx, paper)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("returns already exists on identity conflict", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), paper.Identity, paper.ExternalID, paper.Title, paper.Authors, paper.Abstract,
				paper.PublicationDate, paper.Source, paper.PDFURL, paper.Categories, pgxmock.AnyArg(),
				paper.Status, paper.AttemptCount, paper.LastError, pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		result, err := repo.Create(ctx, paper)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func paperRows(paper *domain.Paper) *pgxmock.Rows {
	payloadJSON, _ := json.Marshal(paper.RawPayload)

	return pgxmock.NewRows([]string{
		"id", "identity", "external_id", "title", "authors", "abstract",
		"publication_date", "source", "pdf_url", "categories", "raw_payload",
		"status", "attempt_count", "last_error", "created_at", "updated_at",
	}).AddRow(
		paper.ID, paper.Identity, paper.ExternalID, paper.Title, paper.Authors, paper.Abstract,
		paper.PublicationDate, paper.Source, paper.PDFURL, paper.Categories, payloadJSON,
		paper.Status, paper.AttemptCount, paper.LastError, paper.CreatedAt, paper.UpdatedAt,
	)
}

func TestPgPaperRepository_GetByIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("returns paper when found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("SELECT (.+) FROM papers WHERE identity").
			WithArgs(paper.Identity).
			WillReturnRows(paperRows(paper))

		result, err := repo.GetByIdentity(ctx, paper.Identity)
		require.NoError(t, err)
		assert.Equal(t, paper.ID, result.ID)
		assert.Equal(t, paper.Authors, result.Authors)
		assert.Equal(t, paper.Categories, result.Categories)
		assert.Equal(t, paper.Status, result.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing identity", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)

		mock.ExpectQuery("SELECT (.+) FROM papers WHERE identity").
			WithArgs("huggingface:nope").
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetByIdentity(ctx, "huggingface:nope")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("returns validation error for empty identity", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		result, err := repo.GetByIdentity(ctx, "")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgPaperRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns not found for missing ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT (.+) FROM papers WHERE id").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetByID(ctx, id)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("lists papers with status filter", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("SELECT COUNT").
			WithArgs(domain.PaperStatusDiscovered).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

		mock.ExpectQuery("SELECT (.+) FROM papers").
			WithArgs(domain.PaperStatusDiscovered).
			WillReturnRows(paperRows(paper))

		papers, total, err := repo.List(ctx, PaperFilter{
			Statuses: []domain.PaperStatus{domain.PaperStatusDiscovered},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, papers, 1)
		assert.Equal(t, paper.Identity, papers[0].Identity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lists papers without filters", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)

		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))

		mock.ExpectQuery("SELECT (.+) FROM papers").
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "identity", "external_id", "title", "authors", "abstract",
				"publication_date", "source", "pdf_url", "categories", "raw_payload",
				"status", "attempt_count", "last_error", "created_at", "updated_at",
			}))

		papers, total, err := repo.List(ctx, PaperFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
		assert.Empty(t, papers)
	})
}

func TestPgPaperRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("applies allowed transition", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs(domain.PaperStatusAnalyzing, pgxmock.AnyArg(), id, domain.PaperStatusDiscovered).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.UpdateStatus(ctx, id, domain.PaperStatusDiscovered, domain.PaperStatusAnalyzing)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects illegal transition without touching the database", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)

		err = repo.UpdateStatus(ctx, uuid.New(), domain.PaperStatusCompleted, domain.PaperStatusAnalyzing)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost CAS race reports invalid transition with current status", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs(domain.PaperStatusAnalyzing, pgxmock.AnyArg(), id, domain.PaperStatusDiscovered).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		mock.ExpectQuery("SELECT status FROM papers").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.PaperStatusCompleted))

		err = repo.UpdateStatus(ctx, id, domain.PaperStatusDiscovered, domain.PaperStatusAnalyzing)
		require.Error(t, err)

		var transitionErr *domain.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, domain.PaperStatusCompleted, transitionErr.From)
	})

	t.Run("missing paper reports not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs(domain.PaperStatusAnalyzing, pgxmock.AnyArg(), id, domain.PaperStatusDiscovered).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		mock.ExpectQuery("SELECT status FROM papers").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		err = repo.UpdateStatus(ctx, id, domain.PaperStatusDiscovered, domain.PaperStatusAnalyzing)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_RecordOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("records failure outcome", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs(domain.PaperStatusFailed, 3, "llm timeout", pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.RecordOutcome(ctx, id, domain.PaperStatusFailed, 3, "llm timeout")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing paper reports not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs(domain.PaperStatusCompleted, 1, "", pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.RecordOutcome(ctx, id, domain.PaperStatusCompleted, 1, "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
