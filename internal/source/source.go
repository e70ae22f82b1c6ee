// Package source lists and fetches film article pages for ingestion.
package source

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("page not found")

// Document is one fetched film page.
type Document struct {
	Path    string // relative to the source root
	Content []byte
	SHA     string // content revision, when the source tracks one
	URL     string
}

// Source enumerates markdown film pages.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, path string) (*Document, error)
}

// Revisioner is implemented by sources that can name the revision they serve.
type Revisioner interface {
	Revision(ctx context.Context) (string, error)
}
