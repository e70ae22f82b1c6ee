// Package engine composes search, pagination, the session cache and chat into
// the request-level operations exposed over HTTP, MCP and the CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/filmsearch/internal/chat"
	"github.com/bull/filmsearch/internal/pagination"
	"github.com/bull/filmsearch/internal/search"
	"github.com/bull/filmsearch/internal/session"
	"github.com/bull/filmsearch/internal/storage"
)

// Searcher resolves a query to ranked film ids.
type Searcher interface {
	ResolveDetailed(ctx context.Context, query string) (*search.Resolution, error)
}

// PageResolver loads records for page ids, dropping failures.
type PageResolver interface {
	Resolve(ctx context.Context, ids []string) ([]storage.FilmRecord, []string, error)
}

// FilmGetter loads one film.
type FilmGetter interface {
	GetFilm(ctx context.Context, id string) (*storage.FilmRecord, error)
}

// Answerer answers a question about one film.
type Answerer interface {
	Answer(ctx context.Context, req chat.Request) (string, error)
}

// SearchResult is the first page of a new search.
type SearchResult struct {
	Results        []storage.FilmRecord `json:"results"`
	PageCount      int                  `json:"pageCount"`
	CandidateIndex string               `json:"candidateIndex"`
	Total          int                  `json:"total"`
	Branch         string               `json:"branch"`
}

// PageResult is one later page of a stored search.
type PageResult struct {
	Results    []storage.FilmRecord `json:"results"`
	PageNumber int                  `json:"pageNumber"`
	PageCount  int                  `json:"pageCount"`
}

// Config wires an Engine.
type Config struct {
	Searcher Searcher
	Pages    PageResolver
	Films    FilmGetter
	Sessions session.Store
	Chat     Answerer
	PageSize int
	Logger   *slog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	searcher Searcher
	pages    PageResolver
	films    FilmGetter
	sessions session.Store
	chat     Answerer
	pageSize int
	logger   *slog.Logger
	now      func() time.Time
}

// New builds an engine. A zero PageSize selects pagination.DefaultPageSize.
func New(cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		searcher: cfg.Searcher,
		pages:    cfg.Pages,
		films:    cfg.Films,
		sessions: cfg.Sessions,
		chat:     cfg.Chat,
		pageSize: cfg.PageSize,
		logger:   cfg.Logger.With("component", "engine"),
		now:      time.Now,
	}
}

// Search runs query, stores its candidates under sessionKey (a new key when
// empty) and returns page one. The session's previous search is discarded
// even if this one fails.
func (e *Engine) Search(ctx context.Context, sessionKey, query string) (*SearchResult, error) {
	if sessionKey == "" {
		sessionKey = session.NewKey()
	} else if err := session.ValidateKey(sessionKey); err != nil {
		return nil, err
	} else if err := e.sessions.Delete(ctx, sessionKey); err != nil {
		e.logger.Warn("Failed to clear previous search", "session_id", sessionKey, "error", err)
	}

	res, err := e.searcher.ResolveDetailed(ctx, query)
	if err != nil {
		return nil, err
	}

	pages, err := pagination.Paginate(res.IDs, e.pageSize)
	if err != nil {
		return nil, err
	}

	entry := session.Entry{
		Query:     strings.TrimSpace(query),
		IDs:       res.IDs,
		PageSize:  e.pageSize,
		CreatedAt: e.now().UTC(),
	}
	if err := e.sessions.Put(ctx, sessionKey, entry); err != nil {
		return nil, fmt.Errorf("store candidates: %w", err)
	}

	first, err := pages.Page(1)
	if err != nil {
		return nil, err
	}
	films, err := e.resolve(ctx, first)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Results:        films,
		PageCount:      pages.Count(),
		CandidateIndex: sessionKey,
		Total:          pages.Total(),
		Branch:         string(res.Branch),
	}, nil
}

// Page returns 1-based page n of the search stored under candidateIndex.
func (e *Engine) Page(ctx context.Context, candidateIndex string, n int) (*PageResult, error) {
	entry, err := e.sessions.Get(ctx, candidateIndex)
	if err != nil {
		return nil, err
	}

	size := entry.PageSize
	if size <= 0 {
		size = e.pageSize
	}
	pages, err := pagination.Paginate(entry.IDs, size)
	if err != nil {
		return nil, err
	}
	ids, err := pages.Page(n)
	if err != nil {
		return nil, err
	}

	films, err := e.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &PageResult{Results: films, PageNumber: n, PageCount: pages.Count()}, nil
}

func (e *Engine) resolve(ctx context.Context, ids []string) ([]storage.FilmRecord, error) {
	films, _, err := e.pages.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	if films == nil {
		films = []storage.FilmRecord{}
	}
	return films, nil
}

// Chat answers question about film using conversationContext as memory.
func (e *Engine) Chat(ctx context.Context, question string, film *storage.FilmRecord, conversationContext string) (string, error) {
	return e.chat.Answer(ctx, chat.Request{
		Question: question,
		Film:     film,
		Context:  conversationContext,
	})
}

// FilmByID loads a film record.
func (e *Engine) FilmByID(ctx context.Context, id string) (*storage.FilmRecord, error) {
	return e.films.GetFilm(ctx, id)
}

// IsNotFound reports whether err means a stored search or film is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound) || errors.Is(err, storage.ErrFilmNotFound)
}
