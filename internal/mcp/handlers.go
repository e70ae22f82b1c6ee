package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/filmsearch/internal/chat"
	"github.com/bull/filmsearch/internal/engine"
	"github.com/bull/filmsearch/internal/search"
	"github.com/bull/filmsearch/internal/session"
)

const noMatchesMessage = "No films matched. Try describing the film differently or naming a person or title."

// makeSearchHandler creates the search_films tool handler.
// An unknown or expired session id starts a fresh candidate list.
func makeSearchHandler(b Backend, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, SearchFilmsInput,
) (*mcp.CallToolResult, SearchFilmsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchFilmsInput) (
		*mcp.CallToolResult, SearchFilmsOutput, error,
	) {
		res, err := b.Search(ctx, strings.TrimSpace(input.SessionID), input.Query)
		if errors.Is(err, session.ErrInvalidKey) {
			logger.Info("Ignoring malformed session id", "session_id", input.SessionID)
			res, err = b.Search(ctx, "", input.Query)
		}
		if err != nil {
			if errors.Is(err, search.ErrEmptyQuery) {
				return nil, SearchFilmsOutput{}, fmt.Errorf("query is empty, describe the film you are looking for: %w", err)
			}
			return nil, SearchFilmsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchFilmsOutput{
			Results:        summarize(res.Results),
			PageCount:      res.PageCount,
			CandidateIndex: res.CandidateIndex,
			Total:          res.Total,
		}
		if res.Total == 0 {
			out.Message = noMatchesMessage
		}
		return nil, out, nil
	}
}

// makePageHandler creates the get_results_page tool handler.
func makePageHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, GetResultsPageInput,
) (*mcp.CallToolResult, GetResultsPageOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetResultsPageInput) (
		*mcp.CallToolResult, GetResultsPageOutput, error,
	) {
		page, err := b.Page(ctx, input.CandidateIndex, input.Page)
		if err != nil {
			if engine.IsNotFound(err) {
				return nil, GetResultsPageOutput{}, fmt.Errorf("candidate index %q is unknown or expired, run search_films again: %w", input.CandidateIndex, err)
			}
			return nil, GetResultsPageOutput{}, fmt.Errorf("failed to load page %d: %w", input.Page, err)
		}
		return nil, GetResultsPageOutput{
			Results:   summarize(page.Results),
			Page:      page.PageNumber,
			PageCount: page.PageCount,
		}, nil
	}
}

// makeFilmHandler creates the get_film tool handler.
func makeFilmHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, GetFilmInput,
) (*mcp.CallToolResult, GetFilmOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetFilmInput) (
		*mcp.CallToolResult, GetFilmOutput, error,
	) {
		film, err := b.FilmByID(ctx, input.FilmID)
		if err != nil {
			if engine.IsNotFound(err) {
				return nil, GetFilmOutput{Found: false}, nil
			}
			return nil, GetFilmOutput{}, fmt.Errorf("failed to fetch film: %w", err)
		}
		return nil, GetFilmOutput{Film: film, Found: true}, nil
	}
}

// makeAskHandler creates the ask_about_film tool handler. Only the last
// contextTurns history entries reach the model.
func makeAskHandler(b Backend, contextTurns int) func(
	context.Context, *mcp.CallToolRequest, AskAboutFilmInput,
) (*mcp.CallToolResult, AskAboutFilmOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskAboutFilmInput) (
		*mcp.CallToolResult, AskAboutFilmOutput, error,
	) {
		var conv chat.Conversation
		for i, turn := range input.History {
			if err := conv.Add(chat.Sender(strings.ToLower(turn.Sender)), turn.Text); err != nil {
				return nil, AskAboutFilmOutput{}, fmt.Errorf("history[%d]: %w", i, err)
			}
		}

		film, err := b.FilmByID(ctx, input.FilmID)
		if err != nil {
			if engine.IsNotFound(err) {
				return nil, AskAboutFilmOutput{}, fmt.Errorf("film %q not found: %w", input.FilmID, err)
			}
			return nil, AskAboutFilmOutput{}, fmt.Errorf("failed to fetch film: %w", err)
		}

		answer, err := b.Chat(ctx, input.Question, film, conv.Context(contextTurns))
		if err != nil {
			return nil, AskAboutFilmOutput{}, fmt.Errorf("failed to answer: %w", err)
		}
		return nil, AskAboutFilmOutput{Answer: answer, Title: film.Title}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(index IndexInfo, collection string) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		info, err := index.GetCollectionInfo(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("qdrant_error: failed to get collection info: %w", err)
		}
		return nil, StatusOutput{
			Collection:   collection,
			IndexedFilms: info.PointsCount,
		}, nil
	}
}
