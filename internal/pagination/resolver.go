package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/bull/filmsearch/internal/metrics"
	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/storage"
)

// DefaultWorkers bounds concurrent detail fetches across all requests.
const DefaultWorkers = 6

// FilmFetcher loads one film record.
type FilmFetcher interface {
	GetFilm(ctx context.Context, id string) (*storage.FilmRecord, error)
}

// Resolver turns page ids into film records on a shared worker pool.
type Resolver struct {
	fetcher FilmFetcher
	pool    *ants.Pool
	retry   retry.Policy
	logger  *slog.Logger
}

// NewResolver creates a resolver with a pool of workers goroutines.
func NewResolver(fetcher FilmFetcher, workers int, policy retry.Policy, logger *slog.Logger) (*Resolver, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create resolve pool: %w", err)
	}
	logger = logger.With("component", "pagination")
	policy.Logger = logger
	return &Resolver{fetcher: fetcher, pool: pool, retry: policy, logger: logger}, nil
}

// Release stops the worker pool.
func (r *Resolver) Release() {
	r.pool.Release()
}

// Resolve fetches a record for every id, preserving order. Ids whose fetch
// fails after retries are left out and returned as dropped; one failure never
// cancels the others. A cancelled or expired ctx fails the whole page.
func (r *Resolver) Resolve(ctx context.Context, ids []string) ([]storage.FilmRecord, []string, error) {
	records := make([]*storage.FilmRecord, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		task := func() {
			defer wg.Done()
			records[i], errs[i] = r.fetch(ctx, id)
		}
		wg.Add(1)
		if err := r.pool.Submit(task); err != nil {
			// Pool closed or overloaded; fetch on the caller's goroutine.
			task()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("resolve page: %w", err)
	}

	films := make([]storage.FilmRecord, 0, len(ids))
	var dropped []string
	for i, id := range ids {
		if errs[i] != nil {
			r.logger.Warn("Dropping film from page", "film_id", id, "error", errs[i])
			dropped = append(dropped, id)
			continue
		}
		films = append(films, *records[i])
	}

	if len(dropped) > 0 {
		metrics.PageDroppedFilms.Add(float64(len(dropped)))
		r.logger.Warn("Partial page result", "requested", len(ids), "dropped", len(dropped))
	}
	return films, dropped, nil
}

func (r *Resolver) fetch(ctx context.Context, id string) (*storage.FilmRecord, error) {
	return retry.Do(ctx, r.retry, "get_film", func(ctx context.Context) (*storage.FilmRecord, error) {
		rec, err := r.fetcher.GetFilm(ctx, id)
		if errors.Is(err, storage.ErrFilmNotFound) || errors.Is(err, storage.ErrInvalidFilmID) {
			return nil, retry.Permanent(err)
		}
		if err == nil && rec == nil {
			return nil, retry.Permanent(storage.ErrFilmNotFound)
		}
		return rec, err
	})
}
