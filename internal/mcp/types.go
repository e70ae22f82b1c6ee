// Package mcp exposes film search and film chat as Model Context Protocol tools.
package mcp

import "github.com/bull/filmsearch/internal/storage"

// SearchFilmsInput defines the input parameters for the search_films tool.
type SearchFilmsInput struct {
	// Query is the user's natural-language description of the films wanted.
	Query string `json:"query" jsonschema:"Natural-language description of the films to find, e.g. gangster films set in Bombay directed by Mani Ratnam"`
	// SessionID keeps the candidate list of a previous search; a new search replaces it.
	SessionID string `json:"session_id,omitempty" jsonschema:"Optional candidate index returned by an earlier search_films call to reuse"`
}

// SearchFilmsOutput is the first page of a search.
type SearchFilmsOutput struct {
	Results        []FilmSummary `json:"results"`
	PageCount      int           `json:"page_count"`
	CandidateIndex string        `json:"candidate_index"`
	Total          int           `json:"total"`
	// Message provides informational context (e.g., "No films matched").
	Message string `json:"message,omitempty"`
}

// FilmSummary is the compact view of a film used in result lists.
type FilmSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	DirectedBy string `json:"directed_by,omitempty"`
	Language   string `json:"language,omitempty"`
	Starring   string `json:"starring,omitempty"`
}

func summarize(films []storage.FilmRecord) []FilmSummary {
	out := make([]FilmSummary, 0, len(films))
	for _, f := range films {
		out = append(out, FilmSummary{
			ID:         f.ID,
			Title:      f.Title,
			DirectedBy: f.BasicDetails.DirectedBy,
			Language:   f.BasicDetails.Language,
			Starring:   f.BasicDetails.Starring,
		})
	}
	return out
}

// GetResultsPageInput defines the input parameters for the get_results_page tool.
type GetResultsPageInput struct {
	CandidateIndex string `json:"candidate_index" jsonschema:"The candidate_index returned by search_films"`
	Page           int    `json:"page" jsonschema:"1-based page number"`
}

// GetResultsPageOutput is one later page of a search.
type GetResultsPageOutput struct {
	Results   []FilmSummary `json:"results"`
	Page      int           `json:"page"`
	PageCount int           `json:"page_count"`
}

// GetFilmInput defines the input parameters for the get_film tool.
type GetFilmInput struct {
	FilmID string `json:"film_id" jsonschema:"Film id from a search result"`
}

// GetFilmOutput contains the full stored record of one film.
type GetFilmOutput struct {
	Film  *storage.FilmRecord `json:"film,omitempty"`
	Found bool                `json:"found"`
}

// HistoryTurn is one earlier message of a film conversation.
type HistoryTurn struct {
	Sender string `json:"sender" jsonschema:"Either user or assistant"`
	Text   string `json:"text"`
}

// AskAboutFilmInput defines the input parameters for the ask_about_film tool.
type AskAboutFilmInput struct {
	FilmID   string        `json:"film_id" jsonschema:"Film id from a search result"`
	Question string        `json:"question" jsonschema:"The follow-up question about the film"`
	History  []HistoryTurn `json:"history,omitempty" jsonschema:"Earlier turns of this conversation, oldest first"`
}

// AskAboutFilmOutput carries the grounded answer.
type AskAboutFilmOutput struct {
	Answer string `json:"answer"`
	Title  string `json:"title"`
}

// StatusInput defines the input parameters for the get_index_status tool.
type StatusInput struct{}

// StatusOutput reports the size of the film index.
type StatusOutput struct {
	Collection   string `json:"collection"`
	IndexedFilms uint64 `json:"indexed_films"`
}
