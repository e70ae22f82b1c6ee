package pagination

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("film-%03d", i)
	}
	return ids
}

func TestPaginate_PartitionProperties(t *testing.T) {
	for n := 0; n <= 100; n++ {
		ids := makeIDs(n)
		p, err := Paginate(ids, DefaultPageSize)
		require.NoError(t, err)

		var joined []string
		for i := 1; i <= p.Count(); i++ {
			page, err := p.Page(i)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(page), DefaultPageSize)
			if i < p.Count() {
				assert.Len(t, page, DefaultPageSize, "n=%d page=%d", n, i)
			}
			joined = append(joined, page...)
		}
		assert.Len(t, joined, n)
		if n > 0 {
			assert.Equal(t, ids, joined, "pages partition without overlap or gap")
		}
		assert.Equal(t, n, p.Total())
	}
}

func TestPaginate_Count(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 1},
		{1, 1},
		{18, 1},
		{19, 2},
		{36, 2},
		{37, 3},
		{100, 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			p, err := Paginate(makeIDs(tt.n), 18)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Count())
		})
	}
}

func TestPaginate_ZeroMatches(t *testing.T) {
	p, err := Paginate(nil, DefaultPageSize)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count())

	page, err := p.Page(1)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPaginate_LastPageRemainder(t *testing.T) {
	p, err := Paginate(makeIDs(40), 18)
	require.NoError(t, err)

	last, err := p.Page(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"film-036", "film-037", "film-038", "film-039"}, last)
}

func TestPaginate_OutOfRange(t *testing.T) {
	p, err := Paginate(makeIDs(20), 18)
	require.NoError(t, err)

	for _, n := range []int{0, -1, 3} {
		_, err := p.Page(n)
		require.ErrorIs(t, err, ErrPageOutOfRange, "page %d", n)
	}
}

func TestPaginate_InvalidSize(t *testing.T) {
	_, err := Paginate(makeIDs(3), 0)
	require.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestPaginate_CopiesInput(t *testing.T) {
	ids := makeIDs(2)
	p, err := Paginate(ids, 18)
	require.NoError(t, err)
	ids[0] = "changed"

	page, _ := p.Page(1)
	assert.Equal(t, "film-000", page[0])
}
