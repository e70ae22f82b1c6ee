// Package pagination splits ranked film ids into fixed-size pages and resolves
// a page's ids into film records.
package pagination

import (
	"errors"
	"fmt"
)

// DefaultPageSize is the number of films shown per result page.
const DefaultPageSize = 18

var (
	ErrInvalidPageSize = errors.New("page size must be positive")
	ErrPageOutOfRange  = errors.New("page out of range")
)

// Pages is an immutable partition of ranked ids into pages. Every page but
// the last holds exactly the page size; the last holds the remainder.
type Pages struct {
	ids  []string
	size int
}

// Paginate partitions ids into pages of pageSize. Zero ids give a single
// empty page.
func Paginate(ids []string, pageSize int) (*Pages, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return &Pages{ids: cp, size: pageSize}, nil
}

// Count is the number of pages, never less than one.
func (p *Pages) Count() int {
	n := len(p.ids)
	if n <= p.size {
		return 1
	}
	count := n / p.size
	if n%p.size != 0 {
		count++
	}
	return count
}

// Total is the number of ids across all pages.
func (p *Pages) Total() int { return len(p.ids) }

// Size is the page size.
func (p *Pages) Size() int { return p.size }

// Page returns the ids on 1-based page n.
func (p *Pages) Page(n int) ([]string, error) {
	if n < 1 || n > p.Count() {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, n, p.Count())
	}
	start := (n - 1) * p.size
	end := min(start+p.size, len(p.ids))
	out := make([]string, end-start)
	copy(out, p.ids[start:end])
	return out, nil
}
