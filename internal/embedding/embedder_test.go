package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddings serves /embeddings, returning vectors of dim whose first
// component is the input index. Responses are emitted in reverse order.
func fakeEmbeddings(t *testing.T, dim int, calls *atomic.Int32, lastBody *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions *int     `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if lastBody != nil {
			lastBody.Store(req.Dimensions)
		}

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[0] = float64(i)
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "")
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGenerateEmbeddings_BatchesAndOrders(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, 4, &calls, nil)

	client, err := NewClient("test", srv.URL+"/v1")
	require.NoError(t, err)
	e := NewEmbedder(client, Config{Dimension: 4, BatchSize: 2})

	vecs, err := e.GenerateEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Equal(t, int32(2), calls.Load())
	// Index restarts per batch: [0,1] then [0].
	assert.Equal(t, float32(0), vecs[0][0])
	assert.Equal(t, float32(1), vecs[1][0])
	assert.Equal(t, float32(0), vecs[2][0])
	assert.Len(t, vecs[0], 4)
}

func TestEmbedText_SendsDimensionsOnlyWhenCustom(t *testing.T) {
	var calls atomic.Int32
	var dims atomic.Value
	srv := fakeEmbeddings(t, 384, &calls, &dims)

	client, err := NewClient("test", srv.URL+"/v1")
	require.NoError(t, err)
	e := NewEmbedder(client, Config{Dimension: 384})

	vec, err := e.EmbedText(context.Background(), "politics storyline")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
	assert.Equal(t, 384, e.Dimension())

	sent, _ := dims.Load().(*int)
	require.NotNil(t, sent)
	assert.Equal(t, 384, *sent)
}

func TestEmbedText_DimensionMismatchIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, 8, &calls, nil)

	client, err := NewClient("test", srv.URL+"/v1")
	require.NoError(t, err)
	e := NewEmbedder(client, Config{Dimension: 4})

	_, err = e.EmbedText(context.Background(), "x")
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedText_Empty(t *testing.T) {
	e := NewEmbedder(&Client{}, Config{})
	_, err := e.EmbedText(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{1.5, -2}, toFloat32([]float64{1.5, -2}))
}
