package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bull/filmsearch/internal/engine"
	"github.com/bull/filmsearch/internal/logger"
	"github.com/bull/filmsearch/internal/storage"
)

// Engine is the request-level film API. *engine.Engine implements it.
type Engine interface {
	Search(ctx context.Context, sessionKey, query string) (*engine.SearchResult, error)
	Page(ctx context.Context, candidateIndex string, n int) (*engine.PageResult, error)
	FilmByID(ctx context.Context, id string) (*storage.FilmRecord, error)
	Chat(ctx context.Context, question string, film *storage.FilmRecord, conversationContext string) (string, error)
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// PageRequest is the body of POST /api/page.
type PageRequest struct {
	PageNumber     int    `json:"pageNumber"`
	CandidateIndex string `json:"candidateIndex" binding:"required"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Question            string              `json:"question"`
	FilmDetails         *storage.FilmRecord `json:"filmDetails"`
	ConversationContext string              `json:"conversationContext"`
}

// ChatResponse is the body of a successful POST /api/chat.
type ChatResponse struct {
	Answer string `json:"answer"`
}

type handler struct {
	engine Engine
	logger *slog.Logger
}

// search runs a new search for the caller's session. The session key comes
// from X-Session-ID; a fresh one is issued when absent and echoed back.
func (h *handler) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	key := strings.TrimSpace(c.GetHeader(SessionIDHeader))
	ctx := c.Request.Context()
	if key != "" {
		ctx = logger.WithSessionID(ctx, key)
	}

	res, err := h.engine.Search(ctx, key, req.Query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	logger.FromContext(logger.WithSessionID(ctx, res.CandidateIndex), h.logger).Info("Search served",
		"branch", res.Branch, "total", res.Total, "pages", res.PageCount)
	c.Header(SessionIDHeader, res.CandidateIndex)
	c.JSON(http.StatusOK, res)
}

func (h *handler) page(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "candidateIndex and pageNumber are required")
		return
	}

	ctx := logger.WithSessionID(c.Request.Context(), req.CandidateIndex)
	res, err := h.engine.Page(ctx, req.CandidateIndex, req.PageNumber)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// chat answers a question about the film the client sends. A film sent by id
// only is loaded from the store.
func (h *handler) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	film := req.FilmDetails
	if film != nil && len(film.RawDetails) == 0 && film.ID != "" {
		stored, err := h.engine.FilmByID(ctx, film.ID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		film = stored
	}

	answer, err := h.engine.Chat(ctx, req.Question, film, req.ConversationContext)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Answer: answer})
}

func (h *handler) film(c *gin.Context) {
	film, err := h.engine.FilmByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, film)
}
