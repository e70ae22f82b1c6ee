package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/storage"
)

var errFlaky = errors.New("connection reset")

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

type fakeEntities struct {
	calls atomic.Int32
	out   []string
	err   error
}

func (f *fakeEntities) ExtractEntities(_ context.Context, _ string) ([]string, error) {
	f.calls.Add(1)
	return f.out, f.err
}

type fakeIntent struct {
	calls atomic.Int32
	out   string
	err   error
}

func (f *fakeIntent) ExtractIntent(_ context.Context, _ string) (string, bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", false, f.err
	}
	return f.out, f.out != "", nil
}

type fakeClassifier struct {
	calls   atomic.Int32
	out     []string
	err     error
	offered []string
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, categories []string) ([]string, error) {
	f.calls.Add(1)
	f.offered = categories
	return f.out, f.err
}

type fakeStructurer struct {
	mu    sync.Mutex
	calls map[string]int
	out   map[string]string // framework -> restatement
}

func (f *fakeStructurer) Structure(_ context.Context, _ string, framework string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[framework]++
	return f.out[framework], nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) embedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeKeyword struct {
	mu    sync.Mutex
	terms []string
	index map[string][]string
	fails int // fail this many calls before answering
	err   error
}

func (f *fakeKeyword) KeywordSearch(_ context.Context, term string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terms = append(f.terms, term)
	if f.err != nil {
		return nil, f.err
	}
	if f.fails > 0 {
		f.fails--
		return nil, errFlaky
	}
	return f.index[term], nil
}

func (f *fakeKeyword) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.terms)
}

// fakeSimilarity answers per field from byField, honouring RestrictTo.
type fakeSimilarity struct {
	mu      sync.Mutex
	queries []storage.SimilarityQuery
	byField map[string][]string
	err     error
}

func (f *fakeSimilarity) SimilaritySearch(_ context.Context, q storage.SimilarityQuery) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, id := range f.byField[q.Field] {
		if q.RestrictTo != nil && !contains(q.RestrictTo, id) {
			continue
		}
		out = append(out, id)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSimilarity) calls() []storage.SimilarityQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.SimilarityQuery(nil), f.queries...)
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

type harness struct {
	entities   *fakeEntities
	intent     *fakeIntent
	classifier *fakeClassifier
	structurer *fakeStructurer
	embedder   *fakeEmbedder
	keyword    *fakeKeyword
	similarity *fakeSimilarity
}

func newHarness() *harness {
	return &harness{
		entities:   &fakeEntities{},
		intent:     &fakeIntent{},
		classifier: &fakeClassifier{},
		structurer: &fakeStructurer{},
		embedder:   &fakeEmbedder{},
		keyword:    &fakeKeyword{index: map[string][]string{}},
		similarity: &fakeSimilarity{byField: map[string][]string{}},
	}
}

func (h *harness) orchestrator(cfg Config) *Orchestrator {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry()
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	return New(Deps{
		Entities:   h.entities,
		Intent:     h.intent,
		Classifier: h.classifier,
		Structurer: h.structurer,
		Embedder:   h.embedder,
		Keyword:    h.keyword,
		Similarity: h.similarity,
	}, cfg)
}
