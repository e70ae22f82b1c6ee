//go:build integration
// +build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/filmsearch/internal/taxonomy"
)

const testDimension = 8

// setupTestStore creates a store on a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestStore(t *testing.T) *QdrantStore {
	store, err := NewQdrantStore(QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "films_test_" + uuid.New().String()[:8],
		Dimension:  testDimension,
	})
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx), "Failed to ensure collection")
	t.Cleanup(func() {
		_ = store.client.DeleteCollection(context.Background(), store.collection)
		store.Close()
	})
	return store
}

func unit(i int) []float32 {
	v := make([]float32, testDimension)
	v[i%testDimension] = 1
	return v
}

func TestSimilaritySearchRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	nayakan := uuid.New().String()
	iruvar := uuid.New().String()
	require.NoError(t, store.UpsertFilmVectors(ctx, &FilmVectors{
		FilmID: nayakan, Title: "Nayakan",
		Vectors: map[string][]float32{"plot": unit(0), "soundtrack": unit(3)},
	}))
	require.NoError(t, store.UpsertFilmVectors(ctx, &FilmVectors{
		FilmID: iruvar, Title: "Iruvar",
		Vectors: map[string][]float32{"plot": unit(1)},
	}))

	ids, err := store.SimilaritySearch(ctx, SimilarityQuery{
		Field: "plot", Vector: unit(0), Threshold: 0.3, Limit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{nayakan}, ids)

	// Orthogonal vectors fall below the threshold.
	ids, err = store.SimilaritySearch(ctx, SimilarityQuery{
		Field: "plot", Vector: unit(5), Threshold: 0.3, Limit: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSimilaritySearchRestriction(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a, b := uuid.New().String(), uuid.New().String()
	for _, id := range []string{a, b} {
		require.NoError(t, store.UpsertFilmVectors(ctx, &FilmVectors{
			FilmID: id, Title: id, Vectors: map[string][]float32{"themes": unit(2)},
		}))
	}

	ids, err := store.SimilaritySearch(ctx, SimilarityQuery{
		Field: "themes", Vector: unit(2), Threshold: 0.3, Limit: 5, RestrictTo: []string{b},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{b}, ids)

	ids, err = store.SimilaritySearch(ctx, SimilarityQuery{
		Field: "themes", Vector: unit(2), Threshold: 0.3, Limit: 5, RestrictTo: []string{},
	})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUpsertFilmVectorsValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.UpsertFilmVectors(ctx, &FilmVectors{
		FilmID: uuid.New().String(), Vectors: map[string][]float32{"plot": make([]float32, 3)},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = store.UpsertFilmVectors(ctx, &FilmVectors{
		FilmID: uuid.New().String(), Vectors: map[string][]float32{"genre": unit(0)},
	})
	assert.ErrorIs(t, err, taxonomy.ErrUnknownField)
}

func TestCollectionInfoAndClear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFilmVectors(ctx, &FilmVectors{
		FilmID: uuid.New().String(), Title: "Roja",
		Vectors: map[string][]float32{"plot": unit(4)},
	}))

	info, err := store.GetCollectionInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.PointsCount)

	require.NoError(t, store.ClearCollection(ctx))
	info, err = store.GetCollectionInfo(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.PointsCount)
}
