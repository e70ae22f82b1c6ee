// Package session keeps the ranked candidate ids of a user's latest search so
// that later page requests don't re-run the search. Each key holds exactly one
// search; a new search replaces the entry wholesale.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a search stays pageable.
const DefaultTTL = 24 * time.Hour

var (
	ErrNotFound   = errors.New("session entry not found")
	ErrInvalidKey = errors.New("invalid session key")
)

// Entry is one search's ranked candidates.
type Entry struct {
	Query     string    `json:"query"`
	IDs       []string  `json:"ids"`
	PageSize  int       `json:"page_size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds one Entry per key.
type Store interface {
	// Put replaces whatever is stored under key.
	Put(ctx context.Context, key string, e Entry) error
	// Get returns ErrNotFound for unknown or expired keys.
	Get(ctx context.Context, key string) (*Entry, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh opaque key.
func NewKey() string {
	return uuid.NewString()
}

// ValidateKey rejects keys no store accepts.
func ValidateKey(key string) error {
	if key == "" || len(key) > 128 {
		return ErrInvalidKey
	}
	return nil
}
