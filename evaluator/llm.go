package evaluator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethanlchristensen/flowmesh/binder"
	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/logging"
	"github.com/ethanlchristensen/flowmesh/provider"
)

// LLMEvaluator invokes an external model provider with the node's resolved
// prompt. Transient provider errors are retried up to the node's configured
// budget with a fixed delay between attempts; permanent errors fail on the
// first attempt without consuming budget. Streaming chunks are forwarded to
// the request's OnChunk callback between cancellation checks.
type LLMEvaluator struct {
	providers *provider.Registry
	logger    logging.Logger
}

// LLMOptions configure an LLMEvaluator.
type LLMOptions struct {
	Logger logging.Logger
}

// NewLLMEvaluator constructs an LLMEvaluator over the given provider registry.
func NewLLMEvaluator(providers *provider.Registry, optFns ...func(o *LLMOptions)) *LLMEvaluator {
	opts := LLMOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LLMEvaluator{providers: providers, logger: opts.Logger}
}

// Evaluate implements Evaluator.
func (e *LLMEvaluator) Evaluate(ctx context.Context, req *Request) (*Result, error) {
	cfg, ok := req.Node.Config.(graph.LLMConfig)
	if !ok {
		return nil, newError("invalid_config", "node %s is not an llm node", req.Node.ID)
	}

	prov, err := e.providers.Get(cfg.Provider)
	if err != nil {
		return nil, &Error{Code: "unknown_provider", Message: err.Error(), Err: err}
	}

	prompt, warnings := binder.Resolve(cfg.UserPromptTemplate, req.BindContext())
	if strings.TrimSpace(prompt) == "" {
		return nil, newError("empty_prompt", "prompt is empty; provide input or configure the prompt template")
	}
	systemPrompt, sysWarnings := binder.Resolve(cfg.SystemPrompt, req.BindContext())
	warnings = append(warnings, sysWarnings...)

	provReq := provider.Request{
		Model:          cfg.Model,
		SystemPrompt:   systemPrompt,
		Prompt:         prompt,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		TopP:           cfg.TopP,
		TopK:           cfg.TopK,
		Stream:         cfg.Stream,
		ResponseFormat: cfg.ResponseFormat,
	}

	text, err := e.invokeWithRetry(ctx, prov, provReq, cfg, req.OnChunk)
	if err != nil {
		return nil, err
	}

	var output any = text
	if cfg.ResponseFormat == "json" {
		var structured any
		if jsonErr := json.Unmarshal([]byte(text), &structured); jsonErr != nil {
			return nil, &Error{
				Code:    "invalid_json_response",
				Message: "model response is not valid JSON",
				Err:     jsonErr,
			}
		}
		output = structured
	}

	return &Result{Input: prompt, Output: output, Warnings: warnings}, nil
}

// invokeWithRetry performs up to maxRetries+1 attempts, waiting retryDelay
// milliseconds before every attempt after the first. Only transient provider
// errors consume the retry budget; the cancellation flag is honored between
// attempts and between streamed chunks.
func (e *LLMEvaluator) invokeWithRetry(
	ctx context.Context,
	prov provider.Provider,
	provReq provider.Request,
	cfg graph.LLMConfig,
	onChunk func(string),
) (string, error) {
	attempts := cfg.MaxRetries + 1
	delay := time.Duration(cfg.RetryDelay) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, delay); err != nil {
				return "", &Error{Code: "cancelled", Message: "model call aborted", Err: err}
			}
		}

		start := time.Now()
		text, err := e.invokeOnce(ctx, prov, provReq, onChunk)
		if err == nil {
			e.logger.Debug("model call succeeded", "provider", cfg.Provider, "model", cfg.Model, "attempt", attempt, "duration", time.Since(start))
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", &Error{Code: "cancelled", Message: "model call aborted", Err: ctx.Err()}
		}
		if !provider.IsTransient(err) {
			return "", &Error{Code: "provider_error", Message: err.Error(), Err: err}
		}
		e.logger.Warn("transient model error", "provider", cfg.Provider, "model", cfg.Model, "attempt", attempt, "error", err.Error())
	}

	return "", &Error{
		Code:    "retries_exhausted",
		Message: lastErr.Error(),
		Details: map[string]any{"attempts": attempts},
		Err:     lastErr,
	}
}

// invokeOnce drives a single provider invocation, forwarding partial chunks
// and aggregating the final text. The final non-partial chunk wins; if the
// provider only ever emits partials, their concatenation is used.
func (e *LLMEvaluator) invokeOnce(
	ctx context.Context,
	prov provider.Provider,
	provReq provider.Request,
	onChunk func(string),
) (string, error) {
	chunks, errCh := prov.Invoke(ctx, provReq)

	var aggregated strings.Builder
	var final string
	sawFinal := false

	for chunk := range chunks {
		if ctx.Err() != nil {
			// Abort requested mid-stream: drain and report cancellation.
			for range chunks {
			}
			return "", ctx.Err()
		}
		if chunk.Partial {
			aggregated.WriteString(chunk.Text)
			if onChunk != nil {
				onChunk(chunk.Text)
			}
			continue
		}
		final = chunk.Text
		sawFinal = true
	}

	if err := <-errCh; err != nil {
		return "", err
	}
	if !sawFinal {
		final = aggregated.String()
	}
	return final, nil
}

// sleepCtx waits for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
