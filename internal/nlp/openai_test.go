package nlp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"unicode/utf8"
	"sync"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer fakes the chat completions endpoint, replying with content and
// recording the last request body.
type chatServer struct {
	*httptest.Server
	mu      sync.Mutex
	content string
	status  int
	last    map[string]any
}

func newChatServer(t *testing.T, content string) *chatServer {
	t.Helper()
	cs := &chatServer{content: content, status: http.StatusOK}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		defer cs.mu.Unlock()
		_ = json.Unmarshal(body, &cs.last)

		w.Header().Set("Content-Type", "application/json")
		if cs.status != http.StatusOK {
			w.WriteHeader(cs.status)
			_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": cs.content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *chatServer) client() *openai.Client {
	c := openai.NewClient(
		option.WithBaseURL(cs.URL+"/v1/"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
	return &c
}

func (cs *chatServer) setStatus(status int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.status = status
}

func (cs *chatServer) field(key string) any {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.last[key]
}

func (cs *chatServer) lastUserMessage(t *testing.T) string {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	msgs, ok := cs.last["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	return user["content"].(string)
}

func TestOpenAI_ExtractEntities(t *testing.T) {
	srv := newChatServer(t, `{"entities": ["Tamil Nadu"]}`)
	o := NewOpenAI(srv.client(), "", nil)

	got, err := o.ExtractEntities(context.Background(), "films starring a politician turned actor in Tamil Nadu politics")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tamil Nadu"}, got)

	assert.Contains(t, srv.lastUserMessage(t), "Tamil Nadu politics")
	assert.Equal(t, DefaultChatModel, srv.field("model"))
	format := srv.field("response_format").(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAI_ExtractIntent_NoInfo(t *testing.T) {
	srv := newChatServer(t, `{"intent": "Noinfo"}`)
	o := NewOpenAI(srv.client(), "gpt-4o", nil)

	_, ok, err := o.ExtractIntent(context.Background(), "Kamal Haasan")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "gpt-4o", srv.field("model"))
}

func TestOpenAI_Classify_OffersCategoryList(t *testing.T) {
	srv := newChatServer(t, `{"categories": ["story"]}`)
	o := NewOpenAI(srv.client(), "", nil)

	got, err := o.Classify(context.Background(), "politics storyline", []string{"story", "cast"})
	require.NoError(t, err)
	assert.Equal(t, []string{"story"}, got)
	assert.Contains(t, srv.lastUserMessage(t), "story, cast")
}

func TestOpenAI_Classify_Malformed(t *testing.T) {
	srv := newChatServer(t, `{"categories": ["genre"]}`)
	o := NewOpenAI(srv.client(), "", nil)

	_, err := o.Classify(context.Background(), "noir", []string{"story"})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestOpenAI_Structure(t *testing.T) {
	srv := newChatServer(t, `{"central_theme": "power and celebrity"}`)
	o := NewOpenAI(srv.client(), "", nil)

	got, err := o.Structure(context.Background(), "politics storyline", "Themes", []string{"central_theme", "motifs"})
	require.NoError(t, err)
	assert.Equal(t, "central_theme: power and celebrity", got)
	assert.Contains(t, srv.lastUserMessage(t), `"motifs":""`)
}

func TestOpenAI_Answer(t *testing.T) {
	srv := newChatServer(t, "  It was scored by Ilaiyaraaja.  ")
	o := NewOpenAI(srv.client(), "", nil)

	got, err := o.Answer(context.Background(), AnswerRequest{
		Question:     "Who did the music?",
		Title:        "Nayakan",
		BasicDetails: map[string]string{"directed_by": "Mani Ratnam"},
		Details:      map[string]string{"soundtrack": "Ilaiyaraaja composed the score.", "plot": ""},
		Context:      "user: hi\nassistant: hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "It was scored by Ilaiyaraaja.", got)

	msg := srv.lastUserMessage(t)
	assert.Contains(t, msg, "user: hi\nassistant: hello")
	assert.Contains(t, msg, "- soundtrack: Ilaiyaraaja composed the score.")
	assert.NotContains(t, msg, "- plot:")
	assert.Nil(t, srv.field("response_format"))
}

func TestOpenAI_UpstreamError(t *testing.T) {
	srv := newChatServer(t, "")
	srv.setStatus(http.StatusInternalServerError)
	o := NewOpenAI(srv.client(), "", nil)

	_, err := o.ExtractEntities(context.Background(), "anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedResponse)

	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestTruncateContent(t *testing.T) {
	o := NewOpenAI(nil, "", nil)
	o.maxTokens = 10

	long := strings.Repeat("x", 100)
	assert.Len(t, o.truncateContent(long), 40)
	assert.Equal(t, "short", o.truncateContent("short"))
}

func TestTruncateContent_KeepsCharactersWhole(t *testing.T) {
	o := NewOpenAI(nil, "", nil)
	o.maxTokens = 1

	got := o.truncateContent("abc" + strings.Repeat("é", 5))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "abc", got)

	assert.Equal(t, "ab", truncateUTF8("abé", 3))
	assert.Equal(t, "abé", truncateUTF8("abé", 4))
}
