package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/filmsearch/internal/nlp"
	"github.com/bull/filmsearch/internal/retry"
	"github.com/bull/filmsearch/internal/storage"
)

// Request is one follow-up question about a film.
type Request struct {
	Question string
	Film     *storage.FilmRecord
	Context  string // flattened recent turns, see Flatten
}

// Service grounds questions and hands them to the answer model.
type Service struct {
	grounder *Grounder
	answerer nlp.AnswerGenerator
	retry    retry.Policy
	logger   *slog.Logger
}

// NewService wires a grounder to an answer generator.
func NewService(grounder *Grounder, answerer nlp.AnswerGenerator, policy retry.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	policy.Logger = logger
	return &Service{
		grounder: grounder,
		answerer: answerer,
		retry:    policy,
		logger:   logger.With("component", "chat"),
	}
}

// Answer returns the model's reply to req.Question.
func (s *Service) Answer(ctx context.Context, req Request) (string, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if req.Film == nil {
		return "", ErrNoFilm
	}

	details, err := s.grounder.Ground(ctx, question, req.Film)
	if err != nil {
		return "", err
	}

	answer, err := retry.Do(ctx, s.retry, "answer", func(ctx context.Context) (string, error) {
		v, err := s.answerer.Answer(ctx, nlp.AnswerRequest{
			Question:     question,
			Title:        req.Film.Title,
			BasicDetails: req.Film.BasicDetails.Map(),
			Details:      details,
			Context:      req.Context,
		})
		if errors.Is(err, nlp.ErrEmptyResponse) {
			return "", retry.Permanent(err)
		}
		return v, err
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	s.logger.Info("Answered film question", "film_id", req.Film.ID, "fields", len(details))
	return answer, nil
}
