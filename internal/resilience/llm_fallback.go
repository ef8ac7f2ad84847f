package resilience

import (
	"context"

	"github.com/MrWong99/voxpipe/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across LLM backends when
// a completion stream cannot be opened.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Healthy reports whether any backend can be tried.
func (f *LLMFallback) Healthy(ctx context.Context) error { return f.group.Healthy(ctx) }

// StreamCompletion opens the stream on the first healthy provider. Errors
// after the stream started arrive as chunks and do not fail over.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Execute(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}
