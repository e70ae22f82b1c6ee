// Package search turns a free-text film query into an ordered list of film ids.
//
// Named entities narrow the candidate set through keyword search; the
// thematic remainder of the query is classified into taxonomy categories and
// matched field by field against stored embeddings, restricted to the keyword
// candidates when there are any.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/bull/filmsearch/internal/embedding"
	"github.com/bull/filmsearch/internal/metrics"
	"github.com/bull/filmsearch/internal/nlp"
	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/storage"
	"github.com/bull/filmsearch/internal/taxonomy"
)

const (
	DefaultThreshold = 0.3
	DefaultCap       = 1
	DefaultFanOut    = 8
)

var tracer = otel.Tracer("github.com/bull/filmsearch/internal/search")

// KeywordSearcher returns ids of films whose metadata mentions term.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, term string) ([]string, error)
}

// SimilaritySearcher returns ids of films whose field embedding is close to a
// query vector.
type SimilaritySearcher interface {
	SimilaritySearch(ctx context.Context, q storage.SimilarityQuery) ([]string, error)
}

// Embedder turns text into a query vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Branch names the path a query took through the pipeline.
type Branch string

const (
	BranchNone     Branch = "none"
	BranchKeyword  Branch = "keyword"
	BranchSemantic Branch = "semantic"
	BranchHybrid   Branch = "hybrid"
)

// Resolution is a resolved query together with what was extracted from it.
type Resolution struct {
	IDs        []string
	Branch     Branch
	Entities   []string
	Intent     string
	Categories []string
}

// Deps are the collaborators the orchestrator calls. Structurer is only
// needed when Config.FrameworkEmbeddings is set.
type Deps struct {
	Entities   nlp.EntityExtractor
	Intent     nlp.IntentExtractor
	Classifier nlp.CategoryClassifier
	Structurer nlp.Structurer
	Embedder   Embedder
	Keyword    KeywordSearcher
	Similarity SimilaritySearcher
}

// Config tunes the similarity stage and retries.
type Config struct {
	Threshold float32 // minimum cosine similarity per field
	Cap       int     // max hits per field
	FanOut    int     // concurrent per-field searches
	// FrameworkEmbeddings embeds one structured restatement of the intent per
	// framework label instead of the raw intent text.
	FrameworkEmbeddings bool
	Retry               retry.Policy
	Taxonomy            *taxonomy.Registry
	Logger              *slog.Logger
}

// Orchestrator resolves queries. It is safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// New builds an orchestrator, filling zero config values with defaults.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultCap
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = DefaultFanOut
	}
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = taxonomy.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Retry.Logger = cfg.Logger
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "search"),
	}
}

// Resolve returns the deduplicated film ids matching query.
func (o *Orchestrator) Resolve(ctx context.Context, query string) ([]string, error) {
	res, err := o.ResolveDetailed(ctx, query)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// ResolveDetailed is Resolve plus the extracted entities, intent, chosen
// categories and branch.
func (o *Orchestrator) ResolveDetailed(ctx context.Context, query string) (*Resolution, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		metrics.SearchTotal.WithLabelValues(string(BranchNone), "empty").Inc()
		return nil, ErrEmptyQuery
	}

	ctx, span := tracer.Start(ctx, "search.Resolve")
	defer span.End()
	start := time.Now()

	res, err := o.resolve(ctx, query)

	branch := BranchNone
	if res != nil {
		branch = res.Branch
	}
	metrics.SearchDuration.WithLabelValues(string(branch)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("search.branch", string(branch)))

	switch {
	case errors.Is(err, ErrEmptyQuery):
		metrics.SearchTotal.WithLabelValues(string(branch), "empty").Inc()
		return nil, err
	case err != nil:
		metrics.SearchTotal.WithLabelValues(string(branch), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("Search failed", "branch", branch, "error", err)
		return nil, err
	}

	metrics.SearchTotal.WithLabelValues(string(branch), "ok").Inc()
	span.SetAttributes(attribute.Int("search.results", len(res.IDs)))
	o.logger.Info("Search resolved",
		"branch", branch,
		"entities", len(res.Entities),
		"categories", res.Categories,
		"results", len(res.IDs),
		"duration", time.Since(start),
	)
	return res, nil
}

func (o *Orchestrator) resolve(ctx context.Context, query string) (*Resolution, error) {
	entities, intent, hasIntent, err := o.extract(ctx, query)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Branch: BranchNone, Entities: entities, Intent: intent}
	switch {
	case len(entities) > 0 && hasIntent:
		res.Branch = BranchHybrid
	case len(entities) > 0:
		res.Branch = BranchKeyword
	case hasIntent:
		res.Branch = BranchSemantic
	default:
		return res, ErrEmptyQuery
	}

	var restrict []string
	if len(entities) > 0 {
		candidates, err := o.keywordStage(ctx, entities)
		if err != nil {
			return res, err
		}
		if res.Branch == BranchKeyword || len(candidates) == 0 {
			res.IDs = candidates
			return res, nil
		}
		restrict = candidates
	}

	categories, ids, err := o.similarityStage(ctx, intent, restrict)
	res.Categories = categories
	if err != nil {
		return res, err
	}
	res.IDs = ids
	return res, nil
}

// extract runs entity and intent extraction concurrently.
func (o *Orchestrator) extract(ctx context.Context, query string) ([]string, string, bool, error) {
	ctx, span := tracer.Start(ctx, "search.extract")
	defer span.End()

	type intentResult struct {
		text string
		ok   bool
	}

	var (
		entities []string
		intent   intentResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		got, err := retry.Do(gctx, o.cfg.Retry, "extract_entities", func(ctx context.Context) ([]string, error) {
			v, err := o.deps.Entities.ExtractEntities(ctx, query)
			return v, permanentIfMalformed(err)
		})
		if err != nil {
			return upstream("entity extraction", err)
		}
		entities = got
		return nil
	})
	g.Go(func() error {
		got, err := retry.Do(gctx, o.cfg.Retry, "extract_intent", func(ctx context.Context) (intentResult, error) {
			text, ok, err := o.deps.Intent.ExtractIntent(ctx, query)
			return intentResult{text: text, ok: ok}, permanentIfMalformed(err)
		})
		if err != nil {
			return upstream("intent extraction", err)
		}
		intent = got
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, "", false, err
	}

	entities = Dedupe(entities)
	text := strings.TrimSpace(intent.text)
	hasIntent := intent.ok && text != ""
	span.SetAttributes(
		attribute.Int("search.entities", len(entities)),
		attribute.Bool("search.has_intent", hasIntent),
	)
	return entities, text, hasIntent, nil
}

// keywordStage returns the films matching every entity.
func (o *Orchestrator) keywordStage(ctx context.Context, entities []string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "search.keyword")
	defer span.End()

	lists := make([][]string, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FanOut)
	for i, entity := range entities {
		g.Go(func() error {
			ids, err := retry.Do(gctx, o.cfg.Retry, "keyword_search", func(ctx context.Context) ([]string, error) {
				ids, err := o.deps.Keyword.KeywordSearch(ctx, entity)
				if errors.Is(err, storage.ErrEmptyKeyword) {
					return nil, retry.Permanent(err)
				}
				return ids, err
			})
			if err != nil {
				return upstream("keyword search", err)
			}
			lists[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	ids := Intersect(lists)
	span.SetAttributes(attribute.Int("search.candidates", len(ids)))
	o.logger.Debug("Keyword candidates", "entities", entities, "candidates", len(ids))
	return ids, nil
}

// similarityStage classifies intent, embeds it and searches every field of the
// chosen categories. restrict, when non-nil, limits hits to those ids.
func (o *Orchestrator) similarityStage(ctx context.Context, intent string, restrict []string) ([]string, []string, error) {
	ctx, span := tracer.Start(ctx, "search.similarity")
	defer span.End()

	categories, err := o.classify(ctx, intent)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	var fields []taxonomy.Field
	for _, c := range categories {
		fs, err := o.cfg.Taxonomy.Fields(c)
		if err != nil {
			return categories, nil, upstream("category classification", err)
		}
		fields = append(fields, fs...)
	}

	vectors, err := o.queryVectors(ctx, intent, fields)
	if err != nil {
		span.RecordError(err)
		return categories, nil, err
	}

	hits := make([][]string, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FanOut)
	for i, f := range fields {
		q := storage.SimilarityQuery{
			Field:      f.Name,
			Vector:     vectors[f.Framework],
			Threshold:  o.cfg.Threshold,
			Limit:      o.cfg.Cap,
			RestrictTo: restrict,
		}
		g.Go(func() error {
			ids, err := retry.Do(gctx, o.cfg.Retry, "similarity_search", func(ctx context.Context) ([]string, error) {
				ids, err := o.deps.Similarity.SimilaritySearch(ctx, q)
				if isInvalidQuery(err) {
					return nil, retry.Permanent(err)
				}
				return ids, err
			})
			if err != nil {
				return upstream("similarity search", err)
			}
			hits[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return categories, nil, err
	}

	var merged []string
	for _, h := range hits {
		merged = append(merged, h...)
	}
	ids := Dedupe(merged)
	if restrict != nil {
		ids = Intersect([][]string{ids, restrict})
	}

	span.SetAttributes(
		attribute.StringSlice("search.categories", categories),
		attribute.Int("search.fields", len(fields)),
	)
	return categories, ids, nil
}

func (o *Orchestrator) classify(ctx context.Context, intent string) ([]string, error) {
	offered := o.cfg.Taxonomy.Categories()
	got, err := retry.Do(ctx, o.cfg.Retry, "classify", func(ctx context.Context) ([]string, error) {
		v, err := o.deps.Classifier.Classify(ctx, intent, offered)
		return v, permanentIfMalformed(err)
	})
	if err != nil {
		return nil, upstream("category classification", err)
	}

	categories := make([]string, 0, len(got))
	for _, c := range got {
		name, err := o.cfg.Taxonomy.ParseCategory(c)
		if err != nil {
			return nil, upstream("category classification", errors.Join(nlp.ErrMalformedResponse, err))
		}
		categories = append(categories, name)
	}
	categories = Dedupe(categories)
	if len(categories) == 0 {
		return nil, upstream("category classification", nlp.ErrMalformedResponse)
	}
	return categories, nil
}

// queryVectors returns one query embedding per framework label used by
// fields. Without framework embeddings every label maps to the intent vector.
func (o *Orchestrator) queryVectors(ctx context.Context, intent string, fields []taxonomy.Field) (map[string][]float32, error) {
	var frameworks []string
	seen := make(map[string]struct{})
	for _, f := range fields {
		if _, ok := seen[f.Framework]; ok {
			continue
		}
		seen[f.Framework] = struct{}{}
		frameworks = append(frameworks, f.Framework)
	}

	if !o.cfg.FrameworkEmbeddings || o.deps.Structurer == nil {
		vec, err := o.embed(ctx, intent)
		if err != nil {
			return nil, err
		}
		out := make(map[string][]float32, len(frameworks))
		for _, fw := range frameworks {
			out[fw] = vec
		}
		return out, nil
	}

	texts := make([]string, len(frameworks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FanOut)
	for i, fw := range frameworks {
		g.Go(func() error {
			text, err := retry.Do(gctx, o.cfg.Retry, "structure", func(ctx context.Context) (string, error) {
				v, err := o.deps.Structurer.Structure(ctx, intent, fw, taxonomy.FrameworkSlots(fw))
				return v, permanentIfMalformed(err)
			})
			if err != nil {
				return upstream("framework restatement", err)
			}
			if strings.TrimSpace(text) == "" {
				text = intent
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Frameworks that restate to the same text share one embedding.
	distinct := Dedupe(texts)
	vecs := make([][]float32, len(distinct))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FanOut)
	for i, t := range distinct {
		g.Go(func() error {
			vec, err := o.embed(gctx, t)
			if err != nil {
				return err
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byText := make(map[string][]float32, len(distinct))
	for i, t := range distinct {
		byText[t] = vecs[i]
	}
	out := make(map[string][]float32, len(frameworks))
	for i, fw := range frameworks {
		out[fw] = byText[texts[i]]
	}
	return out, nil
}

func (o *Orchestrator) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := retry.Do(ctx, o.cfg.Retry, "embed", func(ctx context.Context) ([]float32, error) {
		v, err := o.deps.Embedder.EmbedText(ctx, text)
		if errors.Is(err, embedding.ErrDimensionMismatch) || errors.Is(err, embedding.ErrEmptyText) {
			return nil, retry.Permanent(err)
		}
		return v, err
	})
	if err != nil {
		return nil, upstream("embedding", err)
	}
	return vec, nil
}

func permanentIfMalformed(err error) error {
	if errors.Is(err, nlp.ErrMalformedResponse) || errors.Is(err, nlp.ErrEmptyResponse) {
		return retry.Permanent(err)
	}
	return err
}

func isInvalidQuery(err error) bool {
	return errors.Is(err, taxonomy.ErrUnknownField) ||
		errors.Is(err, storage.ErrDimensionMismatch) ||
		errors.Is(err, storage.ErrInvalidLimit) ||
		errors.Is(err, storage.ErrInvalidFilmID)
}
