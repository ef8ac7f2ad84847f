// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, any vendor
// reachable through any-llm-go, or a local OpenAI-compatible server) and
// exposes one streaming operation. The voice pipeline consumes the stream
// token by token; cancelling the context is how a generation is interrupted.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is the
	// user request that drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction placed before the history.
	SystemPrompt string

	// Temperature controls output randomness. Zero requests greedy decoding.
	Temperature float64

	// TopP is the nucleus sampling mass in (0, 1]. Zero leaves the provider
	// default in place.
	TopP float64

	// PresencePenalty and FrequencyPenalty discourage repetition. Zero
	// disables them.
	PresencePenalty  float64
	FrequencyPenalty float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// Stop lists phrases that end generation. Providers forward as many as
	// the backend accepts; callers still filter the text themselves.
	Stop []string
}

// Chunk is a single token or fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", ...).
	FinishReason string

	// Err is set on the last chunk when the stream failed after it started.
	// No further chunks follow a chunk with Err set.
	Err error
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel that emits
	// chunks as they arrive. The error return is non-nil only for failures
	// that prevent the stream from starting; later failures arrive as a chunk
	// with Err set. The returned channel is never nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
