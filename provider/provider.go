package provider

import "context"

// Request captures the normalized model invocation parameters produced by
// the llm evaluator after template binding.
type Request struct {
	Model          string   `json:"model"`
	SystemPrompt   string   `json:"systemPrompt,omitempty"`
	Prompt         string   `json:"prompt"`
	Temperature    float64  `json:"temperature"`
	MaxTokens      int      `json:"maxTokens,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	TopK           *int     `json:"topK,omitempty"`
	Stream         bool     `json:"stream,omitempty"`
	ResponseFormat string   `json:"responseFormat,omitempty"` // "text" or "json"
}

// Chunk is a (partial or final) piece of model output. Partial chunks carry
// incremental text; the final chunk carries the full aggregated text and a
// finish reason.
type Chunk struct {
	Partial      bool   `json:"partial"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"` // "stop", "length", etc.
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name              string `json:"name"` // "openai", "anthropic", "ollama", etc.
	SupportsStreaming bool   `json:"supports_streaming"`
}

// Provider is the minimal interface the engine requires to drive generation.
//
// Invoke returns a chunk channel and an error channel. The chunk channel is
// closed after the final chunk (or on error); the error channel carries at
// most one terminal error then closes. Cancelling ctx aborts the invocation:
// the adapter stops emitting, surfaces ctx.Err() on the error channel if the
// call cannot finish, and closes both channels.
type Provider interface {
	Invoke(ctx context.Context, req Request) (<-chan Chunk, <-chan error)

	// Info returns information about the provider implementation.
	Info() Info
}
