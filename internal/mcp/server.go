package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/filmsearch/internal/chat"
	"github.com/bull/filmsearch/internal/engine"
	"github.com/bull/filmsearch/internal/storage"
)

// Backend is the request-level film API the tools call into.
// *engine.Engine implements it.
type Backend interface {
	Search(ctx context.Context, sessionKey, query string) (*engine.SearchResult, error)
	Page(ctx context.Context, candidateIndex string, n int) (*engine.PageResult, error)
	FilmByID(ctx context.Context, id string) (*storage.FilmRecord, error)
	Chat(ctx context.Context, question string, film *storage.FilmRecord, conversationContext string) (string, error)
}

// IndexInfo reports vector index statistics.
type IndexInfo interface {
	GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	backend Backend
}

// Config holds server dependencies. Index and Collection are optional; without
// Index the get_index_status tool is not registered.
type Config struct {
	Backend      Backend
	Index        IndexInfo
	Collection   string
	ContextTurns int
	Version      string
	Logger       *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = chat.DefaultContextTurns
	}
	if cfg.Version == "" {
		cfg.Version = "v0.1.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "mcp")

	impl := &mcp.Implementation{
		Name:    "filmsearch",
		Version: cfg.Version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_films",
		Description: "Find films from a natural-language description (people, titles, places, plot, music, reception). Returns the first page of results and a candidate_index for paging.",
	}, makeSearchHandler(cfg.Backend, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_results_page",
		Description: "Get a later page of a previous search_films call using its candidate_index.",
	}, makePageHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_film",
		Description: "Retrieve the full stored record of one film by id, including all article sections.",
	}, makeFilmHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_about_film",
		Description: "Ask a follow-up question about one film. The answer is grounded in that film's stored article. Pass earlier turns as history to keep the conversation going.",
	}, makeAskHandler(cfg.Backend, cfg.ContextTurns))

	if cfg.Index != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_index_status",
			Description: "Get the number of films in the search index.",
		}, makeStatusHandler(cfg.Index, cfg.Collection))
	}

	return &Server{
		server:  server,
		backend: cfg.Backend,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
