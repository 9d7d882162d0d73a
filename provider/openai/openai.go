// Package openai provides a provider.Provider implementation backed by the
// OpenAI Chat Completions API (streaming and non-streaming). It adapts the
// engine's normalized Request into the SDK's message format and classifies
// API failures as transient or permanent for the retry policy.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/ethanlchristensen/flowmesh/provider"
)

const providerName = "openai"

// Options configure the OpenAI provider adapter. Request-level parameters
// (model, temperature, max tokens) come from node configuration; Options only
// carry connection defaults.
type Options struct {
	// DefaultModel is used when a request does not name a model.
	DefaultModel string
}

// Provider wraps the OpenAI Chat Completions API behind the generic
// provider.Provider interface.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI provider using the default client (API key from
// the environment).
func New(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{DefaultModel: openai.ChatModelGPT4oMini}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Invoke implements provider.Provider.
func (p *Provider) Invoke(ctx context.Context, req provider.Request) (<-chan provider.Chunk, <-chan error) {
	out := make(chan provider.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		if req.Stream {
			p.handleStreaming(ctx, params, out, errCh)
			return
		}
		p.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

func (p *Provider) buildParams(req provider.Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.opts.DefaultModel
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       model,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.ResponseFormat == "json" {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (p *Provider) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- provider.Chunk,
	errCh chan<- error,
) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	var textBuilder strings.Builder
	finishReason := "stop"
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- provider.Chunk{Partial: true, Text: ch.Delta.Content}:
				}
			}
			if ch.FinishReason != "" {
				finishReason = ch.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- classify(err)
		return
	}
	out <- provider.Chunk{Text: textBuilder.String(), FinishReason: finishReason}
}

func (p *Provider) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- provider.Chunk,
	errCh chan<- error,
) {
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- classify(err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- provider.NewPermanentError(providerName, "empty_response", "no choices returned", nil)
		return
	}
	ch0 := resp.Choices[0]
	out <- provider.Chunk{Text: ch0.Message.Content, FinishReason: ch0.FinishReason}
}

// classify maps SDK failures onto the engine's transient/permanent taxonomy.
// Rate limits and server errors are retryable; everything else fails fast.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
			return provider.NewTransientError(providerName, "rate_limited", apiErr.Error(), err)
		}
		return provider.NewPermanentError(providerName, "api_error", apiErr.Error(), err)
	}
	// Transport-level failures without an API response are worth retrying.
	return provider.NewTransientError(providerName, "network_error", err.Error(), err)
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{Name: providerName, SupportsStreaming: true}
}
