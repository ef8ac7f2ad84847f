package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
)

const (
	defaultFrameLength = 512
	defaultWindow      = 1500 * time.Millisecond
	defaultHop         = 500 * time.Millisecond
)

// RecognizerOption configures a [Recognizer].
type RecognizerOption func(*Recognizer)

// WithRecognizerSampleRate sets the PCM sample rate. Default: 16000.
func WithRecognizerSampleRate(rate int) RecognizerOption {
	return func(r *Recognizer) {
		r.sampleRate = rate
	}
}

// WithFrameLength sets the samples per Process call. Default: 512.
func WithFrameLength(n int) RecognizerOption {
	return func(r *Recognizer) {
		r.frameLength = n
	}
}

// WithWindow sets the audio span scored at once and how often it is
// re-scored. Defaults: 1.5 s window, 0.5 s hop.
func WithWindow(window, hop time.Duration) RecognizerOption {
	return func(r *Recognizer) {
		r.window = window
		r.hop = hop
	}
}

// Recognizer implements speakerid.Recognizer. It keeps a sliding window of
// recent audio and re-embeds it every hop; between hops the last score is
// returned.
type Recognizer struct {
	embedder    Embedder
	profile     []float32
	sampleRate  int
	frameLength int
	window      time.Duration
	hop         time.Duration

	buf        []int16
	sinceScore int
	score      float64
}

var _ speakerid.Recognizer = (*Recognizer)(nil)

// NewRecognizer loads a profile exported by [Profiler.Export].
func NewRecognizer(e Embedder, profile []byte, opts ...RecognizerOption) (*Recognizer, error) {
	if e == nil {
		return nil, errors.New("embedding: embedder must not be nil")
	}
	vec, err := decodeProfile(profile)
	if err != nil {
		return nil, err
	}
	r := &Recognizer{
		embedder:    e,
		profile:     normalize(vec),
		sampleRate:  defaultSampleRate,
		frameLength: defaultFrameLength,
		window:      defaultWindow,
		hop:         defaultHop,
	}
	for _, o := range opts {
		o(r)
	}
	if r.frameLength <= 0 || r.window <= 0 || r.hop <= 0 {
		return nil, fmt.Errorf("embedding: frame length, window and hop must be positive")
	}
	return r, nil
}

// FrameLength implements speakerid.Recognizer.
func (r *Recognizer) FrameLength() int { return r.frameLength }

// SampleRate implements speakerid.Recognizer.
func (r *Recognizer) SampleRate() int { return r.sampleRate }

// Process implements speakerid.Recognizer.
func (r *Recognizer) Process(ctx context.Context, pcm []int16) (float64, error) {
	if len(pcm) != r.frameLength {
		return 0, fmt.Errorf("embedding: frame has %d samples, want %d", len(pcm), r.frameLength)
	}
	windowSamples := r.samples(r.window)
	r.buf = append(r.buf, pcm...)
	if over := len(r.buf) - windowSamples; over > 0 {
		r.buf = append(r.buf[:0], r.buf[over:]...)
	}
	r.sinceScore += len(pcm)

	if len(r.buf) < windowSamples || r.sinceScore < r.samples(r.hop) {
		return r.score, nil
	}
	r.sinceScore = 0

	emb, err := r.embedder.Embed(ctx, r.buf, r.sampleRate)
	if err != nil {
		return r.score, fmt.Errorf("embedding: score: %w", err)
	}
	r.score = max(0, cosine(r.profile, emb))
	return r.score, nil
}

// Reset implements speakerid.Recognizer.
func (r *Recognizer) Reset() {
	r.buf = r.buf[:0]
	r.sinceScore = 0
	r.score = 0
}

func (r *Recognizer) samples(d time.Duration) int {
	return int(d.Seconds() * float64(r.sampleRate))
}
