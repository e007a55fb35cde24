// Package openai implements llm.Client on any OpenAI-compatible chat
// completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/errand/pkg/llm"
	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// Option configures a Client.
type Option func(*options)

type options struct {
	apiKey  string
	baseURL string
	extra   []openaiopt.RequestOption
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithRequestOptions passes raw SDK options through.
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}

// Client talks to the chat completions API.
type Client struct {
	client openai.Client
	model  string
}

// New returns a Client for the named model. SDK-level retries are disabled;
// wrap the client in llm.Resilient for retry and rate-limit handling.
func New(model string, opts ...Option) *Client {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if model == "" {
		model = DefaultModel
	}

	clientOpts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(0)}
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.extra...)

	return &Client{client: openai.NewClient(clientOpts...), model: model}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends one chat completion and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &llm.Error{
			Category: llm.CategoryValidation,
			Err:      fmt.Errorf("%s: empty choices", req.Name),
		}
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.FromStatus(apiErr.StatusCode, err)
	}
	return llm.Classify(err)
}
