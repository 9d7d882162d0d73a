// Package ollama provides a provider.Provider implementation for locally
// hosted models served by ollama, backed by the langchaingo client.
package ollama

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/ethanlchristensen/flowmesh/provider"
)

const providerName = "ollama"

// Options configure the ollama provider adapter.
type Options struct {
	// ServerURL points at the ollama server; defaults to the client's
	// standard localhost address when empty.
	ServerURL string
	// DefaultModel is used when a request does not name a model.
	DefaultModel string
}

// Provider wraps an ollama server behind the generic provider.Provider
// interface. A new client is created per requested model because the
// underlying client binds the model at construction time.
type Provider struct {
	opts Options
}

// New creates a new ollama provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{DefaultModel: "llama3"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{opts: opts}
}

// Invoke implements provider.Provider.
func (p *Provider) Invoke(ctx context.Context, req provider.Request) (<-chan provider.Chunk, <-chan error) {
	out := make(chan provider.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		model := req.Model
		if model == "" {
			model = p.opts.DefaultModel
		}
		clientOpts := []ollama.Option{ollama.WithModel(model)}
		if p.opts.ServerURL != "" {
			clientOpts = append(clientOpts, ollama.WithServerURL(p.opts.ServerURL))
		}
		if req.ResponseFormat == "json" {
			clientOpts = append(clientOpts, ollama.WithFormat("json"))
		}

		llm, err := ollama.New(clientOpts...)
		if err != nil {
			errCh <- provider.NewPermanentError(providerName, "client_error", err.Error(), err)
			return
		}

		var messages []llms.MessageContent
		if req.SystemPrompt != "" {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
		}
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

		callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
		if req.MaxTokens > 0 {
			callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
		}
		if req.TopP != nil {
			callOpts = append(callOpts, llms.WithTopP(*req.TopP))
		}
		if req.TopK != nil {
			callOpts = append(callOpts, llms.WithTopK(*req.TopK))
		}
		if req.Stream {
			callOpts = append(callOpts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- provider.Chunk{Partial: true, Text: string(chunk)}:
					return nil
				}
			}))
		}

		resp, err := llm.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			errCh <- classify(err)
			return
		}
		if len(resp.Choices) == 0 {
			errCh <- provider.NewPermanentError(providerName, "empty_response", "no choices returned", nil)
			return
		}
		out <- provider.Chunk{Text: resp.Choices[0].Content, FinishReason: "stop"}
	}()

	return out, errCh
}

// classify maps client failures onto the engine's transient/permanent
// taxonomy. The ollama client does not expose structured error codes, so an
// unknown model is detected from the message; everything else is assumed to
// be the local server hiccuping and is retryable.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if strings.Contains(err.Error(), "not found") {
		return provider.NewPermanentError(providerName, "model_not_found", err.Error(), err)
	}
	return provider.NewTransientError(providerName, "server_error", err.Error(), err)
}

// Info implements provider.Provider.
func (p *Provider) Info() provider.Info {
	return provider.Info{Name: providerName, SupportsStreaming: true}
}
