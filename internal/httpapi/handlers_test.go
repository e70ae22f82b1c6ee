package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/filmsearch/internal/chat"
	"github.com/bull/filmsearch/internal/engine"
	"github.com/bull/filmsearch/internal/mcp"
	"github.com/bull/filmsearch/internal/nlp"
	"github.com/bull/filmsearch/internal/pagination"
	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/search"
	"github.com/bull/filmsearch/internal/session"
	"github.com/bull/filmsearch/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEngine struct {
	searchKey string
	searchErr error
	pageErr   error
	chatErr   error
	chatFilm  *storage.FilmRecord
	chatCtx   string
	films     map[string]*storage.FilmRecord
	panicOn   string
}

func (s *stubEngine) Search(_ context.Context, key, query string) (*engine.SearchResult, error) {
	if query == s.panicOn {
		panic("boom")
	}
	s.searchKey = key
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if key == "" {
		key = "generated-key"
	}
	return &engine.SearchResult{
		Results:        []storage.FilmRecord{{ID: "f1", Title: "Nayakan", Poster: storage.NoImage}},
		PageCount:      3,
		CandidateIndex: key,
		Total:          40,
		Branch:         string(search.BranchHybrid),
	}, nil
}

func (s *stubEngine) Page(_ context.Context, idx string, n int) (*engine.PageResult, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return &engine.PageResult{Results: []storage.FilmRecord{{ID: "f19", Title: "Thalapathi"}}, PageNumber: n, PageCount: 3}, nil
}

func (s *stubEngine) FilmByID(_ context.Context, id string) (*storage.FilmRecord, error) {
	if f, ok := s.films[id]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("get film: %w", storage.ErrFilmNotFound)
}

func (s *stubEngine) Chat(_ context.Context, _ string, film *storage.FilmRecord, conversationContext string) (string, error) {
	s.chatFilm = film
	s.chatCtx = conversationContext
	if s.chatErr != nil {
		return "", s.chatErr
	}
	return "Ilaiyaraaja", nil
}

func newTestRouter(e Engine) *gin.Engine {
	return NewRouter(Config{Engine: e, CORSOrigins: []string{"http://localhost:3000"}})
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestSearch_IssuesSessionID(t *testing.T) {
	e := &stubEngine{}
	rec := do(t, newTestRouter(e), http.MethodPost, "/api/search", SearchRequest{Query: "Tamil gangster films"}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generated-key", rec.Header().Get(SessionIDHeader))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Empty(t, e.searchKey)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "generated-key", body["candidateIndex"])
	assert.EqualValues(t, 3, body["pageCount"])
	assert.Len(t, body["results"], 1)
}

func TestSearch_ReusesSessionID(t *testing.T) {
	e := &stubEngine{}
	rec := do(t, newTestRouter(e), http.MethodPost, "/api/search", SearchRequest{Query: "q"},
		map[string]string{SessionIDHeader: "abc", RequestIDHeader: "req-7"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", e.searchKey)
	assert.Equal(t, "abc", rec.Header().Get(SessionIDHeader))
	assert.Equal(t, "req-7", rec.Header().Get(RequestIDHeader))
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"empty query", search.ErrEmptyQuery, http.StatusUnprocessableEntity, CodeEmptyQuery},
		{"upstream", &search.UpstreamError{Stage: "similarity", Attempts: 4, Err: errors.New("qdrant down")},
			http.StatusServiceUnavailable, CodeUpstreamUnavailable},
		{"bad session key", session.ErrInvalidKey, http.StatusBadRequest, CodeBadRequest},
		{"deadline", fmt.Errorf("keyword: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, CodeTimeout},
		{"deadline during upstream stage", &search.UpstreamError{Stage: "entities", Attempts: 2, Err: context.DeadlineExceeded},
			http.StatusGatewayTimeout, CodeTimeout},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(&stubEngine{searchErr: tt.err}), http.MethodPost, "/api/search", SearchRequest{Query: "q"}, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			got := decodeError(t, rec)
			assert.Equal(t, tt.wantBody, got.Code)
			assert.NotContains(t, got.Error, "qdrant down", "upstream detail is not leaked")
		})
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	rec := do(t, newTestRouter(&stubEngine{}), http.MethodPost, "/api/search", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, rec).Code)
}

func TestPage(t *testing.T) {
	r := newTestRouter(&stubEngine{})
	rec := do(t, r, http.MethodPost, "/api/page", PageRequest{PageNumber: 2, CandidateIndex: "abc"}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body engine.PageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.PageNumber)
	assert.Equal(t, "Thalapathi", body.Results[0].Title)

	rec = do(t, r, http.MethodPost, "/api/page", map[string]any{"pageNumber": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPage_ErrorMapping(t *testing.T) {
	rec := do(t, newTestRouter(&stubEngine{pageErr: pagination.ErrPageOutOfRange}), http.MethodPost, "/api/page",
		PageRequest{PageNumber: 9, CandidateIndex: "abc"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodePageOutOfRange, decodeError(t, rec).Code)

	rec = do(t, newTestRouter(&stubEngine{pageErr: session.ErrNotFound}), http.MethodPost, "/api/page",
		PageRequest{PageNumber: 1, CandidateIndex: "expired"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)

	rec = do(t, newTestRouter(&stubEngine{pageErr: fmt.Errorf("resolve page: %w", context.DeadlineExceeded)}), http.MethodPost, "/api/page",
		PageRequest{PageNumber: 1, CandidateIndex: "abc"}, nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, CodeTimeout, decodeError(t, rec).Code)
}

func TestChat(t *testing.T) {
	e := &stubEngine{}
	film := &storage.FilmRecord{ID: "f1", Title: "Nayakan", RawDetails: map[string]string{"soundtrack": "Ilaiyaraaja"}}
	rec := do(t, newTestRouter(e), http.MethodPost, "/api/chat", ChatRequest{
		Question:            "Who composed the music?",
		FilmDetails:         film,
		ConversationContext: "user: hi",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Ilaiyaraaja", body.Answer)
	assert.Equal(t, film, e.chatFilm)
	assert.Equal(t, "user: hi", e.chatCtx)
}

func TestChat_LoadsFilmByID(t *testing.T) {
	stored := &storage.FilmRecord{ID: "f1", Title: "Nayakan", RawDetails: map[string]string{"plot": "..."}}
	e := &stubEngine{films: map[string]*storage.FilmRecord{"f1": stored}}
	r := newTestRouter(e)

	rec := do(t, r, http.MethodPost, "/api/chat", ChatRequest{Question: "q", FilmDetails: &storage.FilmRecord{ID: "f1"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, stored, e.chatFilm)

	rec = do(t, r, http.MethodPost, "/api/chat", ChatRequest{Question: "q", FilmDetails: &storage.FilmRecord{ID: "gone"}}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"empty question", chat.ErrEmptyQuestion, http.StatusBadRequest},
		{"no film", chat.ErrNoFilm, http.StatusBadRequest},
		{"exhausted", fmt.Errorf("generate answer: %w", &retry.ExhaustedError{Op: "answer", Attempts: 4, Err: errors.New("503")}),
			http.StatusServiceUnavailable},
		{"malformed", fmt.Errorf("classify question: %w", nlp.ErrMalformedResponse), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(&stubEngine{chatErr: tt.err}), http.MethodPost, "/api/chat",
				ChatRequest{Question: "q", FilmDetails: &storage.FilmRecord{ID: "f1", RawDetails: map[string]string{"plot": "x"}}}, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestFilmByID(t *testing.T) {
	r := newTestRouter(&stubEngine{films: map[string]*storage.FilmRecord{"f1": {ID: "f1", Title: "Nayakan"}}})

	rec := do(t, r, http.MethodGet, "/api/films/f1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nayakan")

	rec = do(t, r, http.MethodGet, "/api/films/zzz", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecovery(t *testing.T) {
	rec := do(t, newTestRouter(&stubEngine{panicOn: "explode"}), http.MethodPost, "/api/search", SearchRequest{Query: "explode"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, decodeError(t, rec).Code)
}

type downChecker struct{}

func (downChecker) Health(context.Context) error { return errors.New("down") }

func TestHealthAndMetricsRoutes(t *testing.T) {
	r := NewRouter(Config{
		Engine: &stubEngine{},
		Health: map[string]mcp.HealthChecker{"qdrant": downChecker{}, "redis": nil},
	})

	rec := do(t, r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"qdrant":"disconnected"`)

	do(t, r, http.MethodPost, "/api/page", PageRequest{PageNumber: 1, CandidateIndex: "abc"}, nil)
	rec = do(t, r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `filmsearch_http_requests_total{method="POST",path="/api/page",status="200"}`)

	rec = do(t, r, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMCPMounted(t *testing.T) {
	called := false
	r := NewRouter(Config{
		Engine: &stubEngine{},
		MCP: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusAccepted)
		}),
	})
	rec := do(t, r, http.MethodPost, "/mcp", `{}`, nil)
	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCORSPreflightExposesSessionHeader(t *testing.T) {
	r := newTestRouter(&stubEngine{})
	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", SessionIDHeader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
