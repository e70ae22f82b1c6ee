// Package chat answers follow-up questions about one film, grounded in that
// film's stored details.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/bull/filmsearch/internal/nlp"
	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/storage"
	"github.com/bull/filmsearch/internal/taxonomy"
)

// Mode selects how much of a film's record grounds an answer.
type Mode string

const (
	// ModeFull forwards every raw detail.
	ModeFull Mode = "full"
	// ModeNarrowed keeps the fields of the categories the question is about.
	ModeNarrowed Mode = "narrowed"
	// ModeRanked keeps the fields whose names embed closest to the question.
	ModeRanked Mode = "ranked"
)

// DefaultTopFields is how many fields ModeRanked keeps.
const DefaultTopFields = 3

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrUnknownMode   = errors.New("unknown grounding mode")
	ErrNoFilm        = errors.New("no film selected")
)

// Embedder turns text into a vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// GrounderConfig configures a Grounder. Classifier is needed for
// ModeNarrowed and Embedder for ModeRanked.
type GrounderConfig struct {
	Mode       Mode
	Classifier nlp.CategoryClassifier
	Embedder   Embedder
	Taxonomy   *taxonomy.Registry
	TopFields  int
	Retry      retry.Policy
	Logger     *slog.Logger
}

// Grounder picks the subset of a film's raw details relevant to a question.
type Grounder struct {
	cfg    GrounderConfig
	logger *slog.Logger

	mu         sync.RWMutex
	nameVector map[string][]float32
}

// NewGrounder validates the mode against the configured collaborators.
func NewGrounder(cfg GrounderConfig) (*Grounder, error) {
	switch cfg.Mode {
	case ModeFull:
	case ModeNarrowed:
		if cfg.Classifier == nil {
			return nil, fmt.Errorf("%s grounding needs a classifier", cfg.Mode)
		}
	case ModeRanked:
		if cfg.Embedder == nil {
			return nil, fmt.Errorf("%s grounding needs an embedder", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = taxonomy.Default()
	}
	if cfg.TopFields <= 0 {
		cfg.TopFields = DefaultTopFields
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Retry.Logger = cfg.Logger
	return &Grounder{
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "chat"),
		nameVector: make(map[string][]float32),
	}, nil
}

// Mode reports the grounding mode.
func (g *Grounder) Mode() Mode { return g.cfg.Mode }

// Ground returns the raw details to answer question from. When narrowing
// leaves nothing, every detail is returned.
func (g *Grounder) Ground(ctx context.Context, question string, film *storage.FilmRecord) (map[string]string, error) {
	if film == nil {
		return nil, ErrNoFilm
	}
	all := nonEmpty(film.RawDetails)

	var (
		narrowed map[string]string
		err      error
	)
	switch g.cfg.Mode {
	case ModeFull:
		return all, nil
	case ModeNarrowed:
		narrowed, err = g.byCategory(ctx, question, all)
	case ModeRanked:
		narrowed, err = g.byNameSimilarity(ctx, question, all)
	}
	if err != nil {
		return nil, err
	}

	if len(narrowed) == 0 {
		g.logger.Info("Grounding kept no fields, using full record",
			"film_id", film.ID, "mode", g.cfg.Mode, "fields", len(all))
		return all, nil
	}
	g.logger.Debug("Grounded question", "film_id", film.ID, "mode", g.cfg.Mode,
		"kept", len(narrowed), "fields", len(all))
	return narrowed, nil
}

func (g *Grounder) byCategory(ctx context.Context, question string, details map[string]string) (map[string]string, error) {
	categories, err := retry.Do(ctx, g.cfg.Retry, "chat_classify", func(ctx context.Context) ([]string, error) {
		v, err := g.cfg.Classifier.Classify(ctx, question, g.cfg.Taxonomy.Categories())
		if errors.Is(err, nlp.ErrMalformedResponse) || errors.Is(err, nlp.ErrEmptyResponse) {
			return nil, retry.Permanent(err)
		}
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("classify question: %w", err)
	}

	chosen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		name, err := g.cfg.Taxonomy.ParseCategory(c)
		if err != nil {
			return nil, fmt.Errorf("classify question: %w", errors.Join(nlp.ErrMalformedResponse, err))
		}
		chosen[name] = struct{}{}
	}

	out := make(map[string]string)
	for k, v := range details {
		f, ok := g.cfg.Taxonomy.Lookup(k)
		if !ok {
			continue
		}
		if _, ok := chosen[f.Category]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (g *Grounder) byNameSimilarity(ctx context.Context, question string, details map[string]string) (map[string]string, error) {
	if len(details) == 0 {
		return nil, nil
	}
	qvec, err := g.embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	type scored struct {
		field string
		score float64
	}
	scores := make([]scored, 0, len(details))
	for field := range details {
		vec, err := g.fieldVector(ctx, field)
		if err != nil {
			return nil, fmt.Errorf("embed field %s: %w", field, err)
		}
		scores = append(scores, scored{field: field, score: cosine(qvec, vec)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].field < scores[j].field
	})

	out := make(map[string]string, g.cfg.TopFields)
	for _, s := range scores[:min(g.cfg.TopFields, len(scores))] {
		out[s.field] = details[s.field]
	}
	return out, nil
}

// fieldVector embeds a field's name once per process.
func (g *Grounder) fieldVector(ctx context.Context, field string) ([]float32, error) {
	g.mu.RLock()
	vec, ok := g.nameVector[field]
	g.mu.RUnlock()
	if ok {
		return vec, nil
	}

	vec, err := g.embed(ctx, strings.ReplaceAll(field, "_", " "))
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.nameVector[field] = vec
	g.mu.Unlock()
	return vec, nil
}

func (g *Grounder) embed(ctx context.Context, text string) ([]float32, error) {
	return retry.Do(ctx, g.cfg.Retry, "chat_embed", func(ctx context.Context) ([]float32, error) {
		return g.cfg.Embedder.EmbedText(ctx, text)
	})
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func nonEmpty(details map[string]string) map[string]string {
	out := make(map[string]string, len(details))
	for k, v := range details {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}
