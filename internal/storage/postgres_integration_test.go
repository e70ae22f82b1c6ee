//go:build integration
// +build integration

package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepository connects to TEST_POSTGRES_DSN.
// Skips test if Postgres is not configured or not running.
func setupTestRepository(t *testing.T) *FilmRepository {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	repo := NewFilmRepository(db, nil)
	if err := repo.Health(context.Background()); err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestFilmRoundTrip(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, repo.UpsertFilm(ctx, rec))

	got, err := repo.GetFilm(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.BasicDetails, got.BasicDetails)
	assert.Equal(t, rec.RawDetails, got.RawDetails)

	// Upsert replaces the row.
	rec.RawDetails = map[string]string{"plot": "rewritten"}
	require.NoError(t, repo.UpsertFilm(ctx, rec))
	got, err = repo.GetFilm(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"plot": "rewritten"}, got.RawDetails)
}

func TestKeywordSearch(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	marker := "Marker" + uuid.New().String()[:8]
	a := sampleRecord()
	a.Title = "B " + marker
	b := sampleRecord()
	b.Title = "A film"
	b.RawDetails = map[string]string{"production": "Shot in " + marker + " studios."}
	c := sampleRecord()
	c.Title = "Unrelated"
	c.RawDetails = nil
	for _, r := range []*FilmRecord{a, b, c} {
		require.NoError(t, repo.UpsertFilm(ctx, r))
	}

	ids, err := repo.KeywordSearch(ctx, "  "+marker+" ")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, ids)

	ids, err = repo.KeywordSearch(ctx, "%"+marker)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = repo.KeywordSearch(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyKeyword)
}

func TestGetFilmNotFound(t *testing.T) {
	repo := setupTestRepository(t)

	_, err := repo.GetFilm(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrFilmNotFound)
}
