// Package ingest loads film pages into the record store and the vector index.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bull/filmsearch/internal/markdown"
	"github.com/bull/filmsearch/internal/metrics"
	"github.com/bull/filmsearch/internal/source"
	"github.com/bull/filmsearch/internal/storage"
	"github.com/bull/filmsearch/internal/taxonomy"
)

const (
	// DefaultWorkers is how many pages are processed concurrently.
	DefaultWorkers = 4

	// maxEmbedRunes keeps a section within the embedding model's input limit.
	maxEmbedRunes = 24000
)

// filmNamespace seeds deterministic film ids so re-ingesting a page replaces
// the earlier record instead of duplicating it.
var filmNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("filmsearch/film"))

// Result contains statistics about an ingest run.
type Result struct {
	TotalPages  int
	Ingested    int
	TotalFields int
	FailedPages []FailedPage
	Revision    string
	Duration    time.Duration
}

// FailedPage represents a page that failed to ingest.
type FailedPage struct {
	Path   string
	Reason string
}

// BatchEmbedder embeds texts in input order.
type BatchEmbedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// RecordStore persists film records.
type RecordStore interface {
	UpsertFilm(ctx context.Context, rec *storage.FilmRecord) error
}

// VectorStore persists per-field film embeddings.
type VectorStore interface {
	UpsertFilmVectors(ctx context.Context, fv *storage.FilmVectors) error
}

// Config wires a Pipeline.
type Config struct {
	Source   source.Source
	Parser   *markdown.PageParser
	Embedder BatchEmbedder
	Records  RecordStore
	Vectors  VectorStore
	Taxonomy *taxonomy.Registry
	Workers  int
	Logger   *slog.Logger
}

// Pipeline orchestrates ingestion from source pages to storage.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// NewPipeline creates a pipeline, defaulting the parser, taxonomy and workers.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Parser == nil {
		cfg.Parser = markdown.NewPageParser()
	}
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = taxonomy.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger.With("component", "ingest")}
}

// FilmID returns the stable id for a film title.
func FilmID(title string) string {
	return uuid.NewSHA1(filmNamespace, []byte(normalizeTitle(title))).String()
}

func normalizeTitle(title string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// IngestAll processes every page of the source. Page failures are collected
// in the result; only listing the source is fatal.
func (p *Pipeline) IngestAll(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if rev, ok := p.cfg.Source.(source.Revisioner); ok {
		sha, err := rev.Revision(ctx)
		if err != nil {
			p.logger.Warn("Could not resolve source revision", "error", err)
		}
		result.Revision = sha
	}
	p.logger.Info("Starting ingest", "revision", result.Revision)

	paths, err := p.cfg.Source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	result.TotalPages = len(paths)
	p.logger.Info("Found pages", "count", len(paths))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, path := range paths {
		g.Go(func() error {
			fields, err := p.IngestPage(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("Failed to ingest page", "path", path, "error", err)
				metrics.IngestedFilms.WithLabelValues("failed").Inc()
				result.FailedPages = append(result.FailedPages, FailedPage{Path: path, Reason: err.Error()})
				return nil
			}
			metrics.IngestedFilms.WithLabelValues("ok").Inc()
			result.Ingested++
			result.TotalFields += fields
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.FailedPages, func(i, j int) bool {
		return result.FailedPages[i].Path < result.FailedPages[j].Path
	})
	result.Duration = time.Since(start)
	p.logger.Info("Ingest complete",
		"ingested", result.Ingested,
		"failed", len(result.FailedPages),
		"fields", result.TotalFields,
		"duration", result.Duration,
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// IngestPage fetches, parses, embeds and stores one page. It returns the
// number of vectorised fields.
func (p *Pipeline) IngestPage(ctx context.Context, path string) (int, error) {
	doc, err := p.cfg.Source.Fetch(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	page, err := p.cfg.Parser.Parse(doc.Content)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	rec, fieldText := p.BuildRecord(page)
	p.logger.Debug("Parsed page", "path", path, "title", rec.Title,
		"details", len(rec.RawDetails), "fields", len(fieldText))

	names := make([]string, 0, len(fieldText))
	for name := range fieldText {
		names = append(names, name)
	}
	sort.Strings(names)
	texts := make([]string, len(names))
	for i, name := range names {
		texts[i] = truncateRunes(fieldText[name], maxEmbedRunes)
	}

	vectors := make(map[string][]float32, len(names))
	if len(texts) > 0 {
		embeddings, err := p.cfg.Embedder.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embeddings: %w", err)
		}
		if len(embeddings) != len(texts) {
			return 0, fmt.Errorf("embeddings: got %d vectors for %d fields", len(embeddings), len(texts))
		}
		for i, name := range names {
			vectors[name] = embeddings[i]
		}
	}

	if err := p.cfg.Records.UpsertFilm(ctx, rec); err != nil {
		return 0, fmt.Errorf("store record: %w", err)
	}
	if len(vectors) > 0 {
		err := p.cfg.Vectors.UpsertFilmVectors(ctx, &storage.FilmVectors{
			FilmID:  rec.ID,
			Title:   rec.Title,
			Vectors: vectors,
		})
		if err != nil {
			return 0, fmt.Errorf("store vectors: %w", err)
		}
	}

	p.logger.Info("Ingested film", "path", path, "title", rec.Title, "fields", len(vectors))
	return len(vectors), nil
}

// BuildRecord turns a parsed page into a film record and the text of each
// taxonomy field to embed. Sections whose heading maps to no field are kept
// in the record under a normalised heading but are not embedded.
func (p *Pipeline) BuildRecord(page *markdown.Page) (*storage.FilmRecord, map[string]string) {
	rec := &storage.FilmRecord{
		ID:    FilmID(page.Title),
		Title: page.Title,
		BasicDetails: storage.BasicDetails{
			DirectedBy:  page.Infobox["directed_by"],
			Language:    page.Infobox["language"],
			Country:     page.Infobox["country"],
			RunningTime: page.Infobox["running_time"],
			Starring:    page.Infobox["starring"],
		},
		Poster:     page.Infobox["poster"],
		RawDetails: make(map[string]string),
	}
	if rec.Poster == "" {
		rec.Poster = storage.NoImage
	}

	fields := make(map[string]string)
	add := func(field, body string) {
		if prev, ok := fields[field]; ok {
			body = prev + "\n\n" + body
		}
		fields[field] = body
		rec.RawDetails[field] = body
	}

	if _, ok := p.cfg.Taxonomy.Lookup("title"); ok {
		fields["title"] = page.Title
	}
	if page.Lead != "" {
		add("generalinfo", page.Lead)
	}
	for _, s := range page.Sections {
		if field, ok := p.cfg.Taxonomy.FieldForHeading(s.Heading); ok {
			add(field, s.Body)
			continue
		}
		key := detailKey(s.Heading)
		if key == "" {
			continue
		}
		if prev, ok := rec.RawDetails[key]; ok {
			rec.RawDetails[key] = prev + "\n\n" + s.Body
		} else {
			rec.RawDetails[key] = s.Body
		}
	}
	for k, v := range page.Infobox {
		switch k {
		case "directed_by", "language", "country", "running_time", "starring", "poster":
		default:
			if _, taken := rec.RawDetails[k]; !taken {
				rec.RawDetails[k] = v
			}
		}
	}
	return rec, fields
}

// detailKey normalises an unmapped heading ("Home media") to "home_media".
func detailKey(heading string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(heading), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), "_")
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
