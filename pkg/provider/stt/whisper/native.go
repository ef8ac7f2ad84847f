// The NativeProvider needs the whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider with the whisper.cpp Go bindings.
// The model is loaded once and shared; every inference gets a fresh context
// because contexts are not safe for concurrent use.
type NativeProvider struct {
	model     whisperlib.Model
	language  string
	silence   time.Duration
	maxBuffer time.Duration

	// mu serialises inference so that concurrent sessions (wake word and
	// transcriber) do not oversubscribe the CPU.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSilence sets the default trailing silence that ends an utterance.
func WithNativeSilence(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.silence = d }
}

// WithNativeMaxBuffer caps how much speech is buffered before a forced
// transcription.
func WithNativeMaxBuffer(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.maxBuffer = d }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:     model,
		language:  defaultLanguage,
		silence:   defaultSilence,
		maxBuffer: defaultMaxBuffer,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new transcription session on the shared model.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	sc, err := resolveSegmentConfig(cfg, defaultSampleRate, p.silence, p.maxBuffer)
	if err != nil {
		return nil, err
	}
	if sc.sampleRate != whisperlib.SampleRate {
		return nil, fmt.Errorf("whisper: native inference needs %d Hz audio, got %d", whisperlib.SampleRate, sc.sampleRate)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	infer := func(_ context.Context, samples []int16, _ int) (string, error) {
		return p.infer(samples, lang)
	}
	return startSession(ctx, sc, infer), nil
}

func (p *NativeProvider) infer(samples []int16, lang string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if err := wctx.Process(audio.ToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
