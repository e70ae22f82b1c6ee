// Package app builds the service graph from configuration. The server and
// the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/filmsearch/internal/chat"
	"github.com/bull/filmsearch/internal/config"
	"github.com/bull/filmsearch/internal/embedding"
	"github.com/bull/filmsearch/internal/engine"
	"github.com/bull/filmsearch/internal/mcp"
	"github.com/bull/filmsearch/internal/nlp"
	"github.com/bull/filmsearch/internal/pagination"
	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/search"
	"github.com/bull/filmsearch/internal/session"
	"github.com/bull/filmsearch/internal/storage"
	"github.com/bull/filmsearch/internal/taxonomy"
)

// sweepInterval is how often the in-memory session store drops expired entries.
const sweepInterval = 10 * time.Minute

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Taxonomy *taxonomy.Registry

	Qdrant   *storage.QdrantStore
	Films    *storage.FilmRepository
	Redis    *session.RedisStore // nil unless redis.enabled
	Sessions session.Store

	Embedder *embedding.Embedder
	NLP      *nlp.OpenAI

	Search *search.Orchestrator
	Pages  *pagination.Resolver
	Chat   *chat.Service
	Engine *engine.Engine

	closers []func() error
	stop    context.CancelFunc
}

// New connects to every dependency and wires the engine. On error, anything
// already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Taxonomy: taxonomy.Default()}
	defer func() {
		if err != nil {
			if cerr := a.Close(); cerr != nil {
				logger.Warn("Cleanup after failed start", "error", cerr)
			}
		}
	}()

	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay, Logger: logger}

	a.Qdrant, err = storage.NewQdrantStore(storage.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: cfg.Qdrant.Collection,
		Dimension:  cfg.OpenAI.Dimension,
		Taxonomy:   a.Taxonomy,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	a.closers = append(a.closers, a.Qdrant.Close)
	if err = a.Qdrant.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	db, err := storage.OpenPostgres(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.Films = storage.NewFilmRepository(db, logger)
	a.closers = append(a.closers, a.Films.Close)
	if err = a.Films.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.Redis.Enabled {
		a.Redis, err = session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Session.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, a.Redis.Close)
		a.Sessions = a.Redis
	} else {
		mem := session.NewMemoryStore(cfg.Session.TTL)
		a.Sessions = mem
		a.startSweeper(mem)
	}

	client, err := embedding.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedding.NewEmbedder(client, embedding.Config{
		Model:     cfg.OpenAI.EmbeddingModel,
		Dimension: cfg.OpenAI.Dimension,
	})
	a.NLP = nlp.NewOpenAI(client.Client(), cfg.OpenAI.ChatModel, logger)

	a.Search = search.New(search.Deps{
		Entities:   a.NLP,
		Intent:     a.NLP,
		Classifier: a.NLP,
		Structurer: a.NLP,
		Embedder:   a.Embedder,
		Keyword:    a.Films,
		Similarity: a.Qdrant,
	}, search.Config{
		Threshold:           cfg.Search.SimilarityThreshold,
		Cap:                 cfg.Search.PerFieldCap,
		FanOut:              cfg.Search.FanOut,
		FrameworkEmbeddings: cfg.Search.FrameworkEmbeddings,
		Retry:               policy,
		Taxonomy:            a.Taxonomy,
		Logger:              logger,
	})

	a.Pages, err = pagination.NewResolver(a.Films, cfg.Search.ResolveWorkers, policy, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Pages.Release(); return nil })

	grounder, err := chat.NewGrounder(chat.GrounderConfig{
		Mode:       chat.Mode(cfg.Chat.Grounding),
		Classifier: a.NLP,
		Embedder:   a.Embedder,
		Taxonomy:   a.Taxonomy,
		TopFields:  cfg.Chat.TopFields,
		Retry:      policy,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	a.Chat = chat.NewService(grounder, a.NLP, policy, logger)

	a.Engine = engine.New(engine.Config{
		Searcher: a.Search,
		Pages:    a.Pages,
		Films:    a.Films,
		Sessions: a.Sessions,
		Chat:     a.Chat,
		PageSize: cfg.Search.PageSize,
		Logger:   logger,
	})

	logger.Info("Service graph ready",
		"collection", cfg.Qdrant.Collection,
		"sessions", sessionBackend(cfg),
		"grounding", cfg.Chat.Grounding,
	)
	return a, nil
}

func sessionBackend(cfg *config.Config) string {
	if cfg.Redis.Enabled {
		return "redis"
	}
	return "memory"
}

func (a *App) startSweeper(mem *session.MemoryStore) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stop = cancel
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := mem.Sweep(); n > 0 {
					a.Logger.Debug("Swept expired sessions", "count", n)
				}
			}
		}
	}()
}

// HealthChecks lists the dependencies /health reports on. Redis is nil
// (reported as disabled) when the in-memory store is used.
func (a *App) HealthChecks() map[string]mcp.HealthChecker {
	checks := map[string]mcp.HealthChecker{
		"qdrant":   a.Qdrant,
		"postgres": a.Films,
		"redis":    nil,
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	if a.stop != nil {
		a.stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
