package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/filmsearch/internal/taxonomy"
)

// DefaultCollection holds one point per film.
const DefaultCollection = "films"

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
	Taxonomy   *taxonomy.Registry
	Logger     *slog.Logger
}

// QdrantStore keeps one named vector per taxonomy field on each film point and
// answers per-field similarity queries.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	taxonomy   *taxonomy.Registry
	logger     *slog.Logger
}

// NewQdrantStore creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := newQdrantStore(client, cfg)

	if err := store.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return store, nil
}

func newQdrantStore(client *qdrant.Client, cfg QdrantConfig) *QdrantStore {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = taxonomy.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		taxonomy:   cfg.Taxonomy,
		logger:     cfg.Logger.With("component", "qdrant"),
	}
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the films collection with one cosine vector per
// taxonomy field. Idempotent - safe to call multiple times.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(s.vectorParams()),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "title",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create title index: %w", err)
	}

	s.logger.Info("Created collection", "collection", s.collection, "vectors", len(s.vectorParams()))
	return nil
}

func (s *QdrantStore) vectorParams() map[string]*qdrant.VectorParams {
	fields := s.taxonomy.AllFields()
	params := make(map[string]*qdrant.VectorParams, len(fields))
	for _, f := range fields {
		params[f.Name] = &qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}
	}
	return params
}

// ClearCollection drops and recreates the collection.
// Useful for re-indexing scenarios.
func (s *QdrantStore) ClearCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// UpsertFilmVectors stores a film's per-field embeddings as one point. The
// point replaces any earlier version, so fields missing now are dropped.
func (s *QdrantStore) UpsertFilmVectors(ctx context.Context, fv *FilmVectors) error {
	point, err := s.filmPoint(fv)
	if err != nil {
		return err
	}
	return s.upsertWithRetry(ctx, []*qdrant.PointStruct{point})
}

func (s *QdrantStore) filmPoint(fv *FilmVectors) (*qdrant.PointStruct, error) {
	if _, err := uuid.Parse(fv.FilmID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilmID, fv.FilmID)
	}

	vectors := make(map[string]*qdrant.Vector, len(fv.Vectors))
	fields := make([]any, 0, len(fv.Vectors))
	for name, vec := range fv.Vectors {
		if err := s.taxonomy.ValidateField(name); err != nil {
			return nil, err
		}
		if len(vec) != s.dimension {
			return nil, fmt.Errorf("%w: field %s has %d dimensions, expected %d",
				ErrDimensionMismatch, name, len(vec), s.dimension)
		}
		vectors[name] = qdrant.NewVector(vec...)
		fields = append(fields, name)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(fv.FilmID),
		Vectors: qdrant.NewVectorsMap(vectors),
		Payload: qdrant.NewValueMap(map[string]any{
			"film_id":    fv.FilmID,
			"title":      fv.Title,
			"fields":     fields,
			"indexed_at": time.Now().UTC().Format(time.RFC3339),
		}),
	}, nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// SimilaritySearch returns film ids whose q.Field embedding has cosine
// similarity above q.Threshold, best first, at most q.Limit of them.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, q SimilarityQuery) ([]string, error) {
	req, err := s.buildQuery(q)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return []string{}, nil
	}

	results, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("similarity search on %s: %w", q.Field, err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if id := r.GetId().GetUuid(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// buildQuery validates q and translates it. A nil request with nil error
// means the restriction excludes every film.
func (s *QdrantStore) buildQuery(q SimilarityQuery) (*qdrant.QueryPoints, error) {
	if err := s.taxonomy.ValidateField(q.Field); err != nil {
		return nil, err
	}
	if len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(q.Vector), s.dimension)
	}
	if q.Limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if q.RestrictTo != nil && len(q.RestrictTo) == 0 {
		return nil, nil
	}

	using := q.Field
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Using:          &using,
		ScoreThreshold: qdrant.PtrOf(q.Threshold),
		Limit:          qdrant.PtrOf(uint64(q.Limit)),
		WithPayload:    qdrant.NewWithPayload(false),
	}

	if q.RestrictTo != nil {
		ids := make([]*qdrant.PointId, 0, len(q.RestrictTo))
		for _, id := range q.RestrictTo {
			if _, err := uuid.Parse(id); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidFilmID, id)
			}
			ids = append(ids, qdrant.NewIDUUID(id))
		}
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewHasID(ids...)},
		}
	}

	return req, nil
}

// GetCollectionInfo retrieves collection statistics including total points count.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &CollectionInfo{
		PointsCount: collection.GetPointsCount(),
	}, nil
}
