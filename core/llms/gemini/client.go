package gemini

import (
	"context"

	"github.com/counselkit/counsel-core/core/llms"
)

// Client binds an API key and default model so the package-level prompt
// functions can be injected where a streaming LLM is expected.
type Client struct {
	apiKey  string
	model   string
	baseURL string
}

type ClientOption func(*Client)

// WithBaseURL points the client at a different API endpoint, e.g. a proxy.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithDefaultModel overrides the model used when a prompt does not select
// one itself.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{apiKey: apiKey, model: DefaultModel, baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PromptWithStream(ctx context.Context, prompt *string, opts ...llms.StreamingPromptOption) llms.Stream {
	stream := PromptWithStream(ctx, c.apiKey, c.model, prompt, "", opts...)
	stream.baseURL = c.baseURL
	return stream
}
