package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/voxpipe/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over across TTS backends when a
// synthesis stream cannot be opened. All backends must emit the same sample
// rate, since the speaker is opened once.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS provider. It fails if the
// provider's sample rate differs from the primary's.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) error {
	if got, want := provider.SampleRate(), f.SampleRate(); got != want {
		return fmt.Errorf("resilience: tts fallback %q: sample rate %d Hz, primary uses %d Hz", name, got, want)
	}
	f.group.AddFallback(name, provider)
	return nil
}

// Healthy reports whether any backend can be tried.
func (f *TTSFallback) Healthy(ctx context.Context) error { return f.group.Healthy(ctx) }

// SampleRate returns the primary's sample rate.
func (f *TTSFallback) SampleRate() int {
	return f.group.Primary().SampleRate()
}

// SynthesizeStream opens the stream on the first healthy provider. The text
// channel is handed to that provider only; a provider that fails to start
// must not have consumed from it.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	return Execute(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}
