package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrMissingAPIKey = errors.New("openai api key not set")

// Client wraps the OpenAI client shared by the embedder and the nlp adapters.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client. baseURL may be empty to use the public
// endpoint, or point at any OpenAI-compatible server.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// NewClientFromOpenAI wraps an already configured client.
func NewClientFromOpenAI(c *openai.Client) *Client {
	return &Client{client: c}
}

// Client returns the underlying OpenAI client for use in other packages (e.g., nlp).
func (c *Client) Client() *openai.Client {
	return c.client
}
