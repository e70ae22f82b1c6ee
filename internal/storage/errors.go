package storage

import "errors"

var (
	ErrQdrantUnreachable   = errors.New("qdrant server unreachable")
	ErrPostgresUnreachable = errors.New("postgres unreachable")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrFilmNotFound        = errors.New("film not found")
	ErrEmptyKeyword        = errors.New("empty keyword")
	ErrInvalidLimit        = errors.New("similarity limit must be positive")
	ErrInvalidFilmID       = errors.New("invalid film id")
)
