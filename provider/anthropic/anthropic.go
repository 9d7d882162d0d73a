// Package anthropic provides a provider.Provider implementation backed by
// the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ethanlchristensen/flowmesh/provider"
)

const providerName = "anthropic"

// Options configure the Anthropic provider adapter.
type Options struct {
	// DefaultModel is used when a request does not name a model.
	DefaultModel anthropic.Model
	// DefaultMaxTokens applies when a request does not set a token limit;
	// the Messages API requires one.
	DefaultMaxTokens int64
	// APIKey overrides the environment supplied key.
	APIKey string
}

// Provider wraps the Anthropic Messages API behind the generic
// provider.Provider interface.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		DefaultModel:     anthropic.ModelClaude3_5Sonnet20241022,
		DefaultMaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		DefaultModel:     anthropic.ModelClaude3_5Sonnet20241022,
		DefaultMaxTokens: 4096,
	}
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

func (p *Provider) buildParams(req provider.Request) anthropic.MessageNewParams {
	model := anthropic.Model(req.Model)
	if req.Model == "" {
		model = p.opts.DefaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = p.opts.DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if req.TopK != nil {
		params.TopK = anthropic.Int(int64(*req.TopK))
	}
	return params
}

func (p *Provider) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- provider.Chunk,
	errCh chan<- error,
) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	var textBuilder strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if ev.Delta.Text != "" {
				textBuilder.WriteString(ev.Delta.Text)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- provider.Chunk{Partial: true, Text: ev.Delta.Text}:
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- classify(err)
		return
	}
	out <- provider.Chunk{Text: textBuilder.String(), FinishReason: "stop"}
}

func (p *Provider) handleNonStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- provider.Chunk,
	errCh chan<- error,
) {
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		errCh <- classify(err)
		return
	}
	var textBuilder strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			textBuilder.WriteString(block.AsText().Text)
		}
	}
	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}
	out <- provider.Chunk{Text: textBuilder.String(), FinishReason: finishReason}
}

// classify maps SDK failures onto the engine's transient/permanent taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusConflict ||
			apiErr.StatusCode >= http.StatusInternalServerError {
			return provider.NewTransientError(providerName, "overloaded", apiErr.Error(), err)
		}
		return provider.NewPermanentError(providerName, "api_error", apiErr.Error(), err)
	}
	return provider.NewTransientError(providerName, "network_error", err.Error(), err)
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{Name: providerName, SupportsStreaming: true}
}
