// Package provider defines the provider-agnostic capability the engine uses
// to call language models.
//
// Core goals:
//   - Unify streaming + non-streaming invocation behind a single interface
//   - Classify failures as transient or permanent so the engine's retry
//     policy can spend its budget only where a retry can help
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockProvider)
//
// Concrete adapters (openai, anthropic, ollama) implement Provider in their
// own subpackages so the engine stays decoupled from vendor SDKs. Aborting an
// in-flight invocation is expressed through context cancellation: adapters
// must stop generating and release resources when the context is done.
package provider
