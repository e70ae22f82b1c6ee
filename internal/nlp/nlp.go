// Package nlp adapts hosted language models to the narrow contracts the search
// and chat pipelines consume: entity extraction, intent extraction, category
// classification, framework restatement and answer generation.
//
// Model output is untrusted text. Everything returned from this package has
// passed a strict parse; output that cannot be recovered deterministically is
// reported as ErrMalformedResponse instead of being guessed at.
package nlp

import "context"

// EntityExtractor finds concrete named entities (people, studios, titles).
// An empty slice means the query named nothing concrete.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]string, error)
}

// IntentExtractor returns the thematic part of a query. ok is false when the
// query carries no semantic content.
type IntentExtractor interface {
	ExtractIntent(ctx context.Context, text string) (intent string, ok bool, err error)
}

// CategoryClassifier picks between one and three of the offered categories.
type CategoryClassifier interface {
	Classify(ctx context.Context, text string, categories []string) ([]string, error)
}

// Structurer restates a query through a framework's slots. An empty result
// means no slot applied.
type Structurer interface {
	Structure(ctx context.Context, text, framework string, slots []string) (string, error)
}

// AnswerRequest is everything the answer generator sees for one chat turn.
type AnswerRequest struct {
	Question     string
	Title        string
	BasicDetails map[string]string
	Details      map[string]string
	Context      string // flattened "sender: text" lines
}

// AnswerGenerator writes a conversational answer grounded in a film record.
type AnswerGenerator interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}
