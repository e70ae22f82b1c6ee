package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bull/filmsearch/internal/chat"
	"github.com/bull/filmsearch/internal/engine"
	"github.com/bull/filmsearch/internal/logger"
	"github.com/bull/filmsearch/internal/nlp"
	"github.com/bull/filmsearch/internal/pagination"
	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/search"
	"github.com/bull/filmsearch/internal/session"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest          = "bad_request"
	CodeEmptyQuery          = "empty_query"
	CodePageOutOfRange      = "page_out_of_range"
	CodeNotFound            = "not_found"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeTimeout             = "timeout"
	CodeInternal            = "internal"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type apiError struct {
	status  int
	code    string
	message string
}

// classify maps a domain error to its HTTP rendering. Upstream details are
// logged, never returned.
func classify(err error) apiError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusGatewayTimeout, CodeTimeout, "The request took too long. Please try again."}
	case errors.Is(err, search.ErrEmptyQuery):
		return apiError{http.StatusUnprocessableEntity, CodeEmptyQuery,
			"We couldn't find anything to search for in that query. Try rephrasing it."}
	case errors.Is(err, search.ErrUpstreamUnavailable),
		errors.Is(err, retry.ErrRetriesExhausted),
		errors.Is(err, nlp.ErrMalformedResponse),
		errors.Is(err, nlp.ErrEmptyResponse):
		return apiError{http.StatusServiceUnavailable, CodeUpstreamUnavailable,
			"The service is temporarily unavailable. Please try again shortly."}
	case errors.Is(err, pagination.ErrPageOutOfRange):
		return apiError{http.StatusBadRequest, CodePageOutOfRange, "Page number is out of range."}
	case engine.IsNotFound(err):
		return apiError{http.StatusNotFound, CodeNotFound,
			"That search or film is no longer available. Please search again."}
	case errors.Is(err, session.ErrInvalidKey),
		errors.Is(err, chat.ErrEmptyQuestion),
		errors.Is(err, chat.ErrNoFilm):
		return apiError{http.StatusBadRequest, CodeBadRequest, err.Error()}
	default:
		return apiError{http.StatusInternalServerError, CodeInternal, "An error occurred while processing your request."}
	}
}

func respondError(c *gin.Context, log *slog.Logger, err error) {
	e := classify(err)
	l := logger.FromContext(c.Request.Context(), log)
	if e.status >= http.StatusInternalServerError {
		var ue *search.UpstreamError
		if errors.As(err, &ue) {
			l.Error("Request failed", "path", c.FullPath(), "stage", ue.Stage, "attempts", ue.Attempts, "error", err)
		} else {
			l.Error("Request failed", "path", c.FullPath(), "error", err)
		}
	} else {
		l.Info("Request rejected", "path", c.FullPath(), "code", e.code, "error", err)
	}
	c.AbortWithStatusJSON(e.status, ErrorResponse{Error: e.message, Code: e.code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeBadRequest})
}
