// Package tts defines the Provider interface for Text-to-Speech backends and
// the [Stream] adapter the pipeline synthesizes through.
//
// A provider consumes a channel of text fragments and emits raw little-endian
// 16-bit mono PCM as it becomes available, so LLM output can be voiced while
// the completion is still streaming.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// SynthesizeStream consumes text fragments from text and returns a channel
	// of PCM byte slices. The audio channel is closed once text is closed and
	// all audio has been delivered, when ctx is cancelled, or early on a
	// synthesis error.
	//
	// A non-nil error is returned only when the stream cannot be started.
	// Quota and rate-limit rejections wrap provider.ErrActivationLimit.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// SampleRate is the rate of the emitted PCM in Hz.
	SampleRate() int
}
