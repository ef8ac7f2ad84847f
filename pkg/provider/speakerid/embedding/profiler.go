package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
)

const (
	defaultSampleRate = 16000
	defaultMinClip    = 1 * time.Second
	defaultTarget     = 12 * time.Second

	// defaultNoiseFloor is the RMS below which a clip counts as silence.
	defaultNoiseFloor = 300.0
	// defaultMaxClipped is the share of clipped samples tolerated in a clip.
	defaultMaxClipped = 0.02
	clipLevel         = 32000
	// defaultSameSpeaker is the cosine similarity a new clip needs against the
	// profile built so far.
	defaultSameSpeaker = 0.55
)

// ProfilerOption configures a [Profiler].
type ProfilerOption func(*Profiler)

// WithSampleRate sets the PCM sample rate. Default: 16000.
func WithSampleRate(rate int) ProfilerOption {
	return func(p *Profiler) {
		p.sampleRate = rate
	}
}

// WithMinClip sets the shortest clip Enroll accepts. Default: 1 s.
func WithMinClip(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.minClip = d
	}
}

// WithTarget sets the amount of accepted speech that completes enrollment.
// Default: 12 s.
func WithTarget(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.target = d
	}
}

// WithNoiseFloor sets the RMS below which a clip is rejected as silent.
func WithNoiseFloor(rms float64) ProfilerOption {
	return func(p *Profiler) {
		p.noiseFloor = rms
	}
}

// WithSameSpeakerThreshold sets the minimum cosine similarity between a new
// clip and the profile so far.
func WithSameSpeakerThreshold(t float64) ProfilerOption {
	return func(p *Profiler) {
		p.sameSpeaker = t
	}
}

// Profiler implements speakerid.Profiler by averaging the embeddings of the
// accepted clips, weighted by their duration.
type Profiler struct {
	embedder    Embedder
	sampleRate  int
	minClip     time.Duration
	target      time.Duration
	noiseFloor  float64
	maxClipped  float64
	sameSpeaker float64

	sum      []float64
	accepted time.Duration
}

var _ speakerid.Profiler = (*Profiler)(nil)

// NewProfiler returns a Profiler that embeds clips with e.
func NewProfiler(e Embedder, opts ...ProfilerOption) (*Profiler, error) {
	if e == nil {
		return nil, errors.New("embedding: embedder must not be nil")
	}
	p := &Profiler{
		embedder:    e,
		sampleRate:  defaultSampleRate,
		minClip:     defaultMinClip,
		target:      defaultTarget,
		noiseFloor:  defaultNoiseFloor,
		maxClipped:  defaultMaxClipped,
		sameSpeaker: defaultSameSpeaker,
	}
	for _, o := range opts {
		o(p)
	}

	var errs []error
	if p.sampleRate <= 0 {
		errs = append(errs, fmt.Errorf("embedding: sample rate must be positive, got %d", p.sampleRate))
	}
	if p.minClip <= 0 || p.target < p.minClip {
		errs = append(errs, fmt.Errorf("embedding: need 0 < min clip (%s) <= target (%s)", p.minClip, p.target))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return p, nil
}

// SampleRate implements speakerid.Profiler.
func (p *Profiler) SampleRate() int { return p.sampleRate }

// MinEnrollSamples implements speakerid.Profiler.
func (p *Profiler) MinEnrollSamples() int {
	return int(math.Round(p.minClip.Seconds() * float64(p.sampleRate)))
}

// Enroll implements speakerid.Profiler.
func (p *Profiler) Enroll(ctx context.Context, pcm []int16) (float64, speakerid.Feedback, error) {
	switch {
	case len(pcm) < p.MinEnrollSamples():
		return p.percent(), speakerid.AudioTooShort, nil
	case audio.RMS(pcm) < p.noiseFloor:
		return p.percent(), speakerid.NoVoiceFound, nil
	case audio.ClippedRatio(pcm, clipLevel) > p.maxClipped:
		return p.percent(), speakerid.QualityIssue, nil
	}

	emb, err := p.embedder.Embed(ctx, pcm, p.sampleRate)
	if err != nil {
		return p.percent(), speakerid.AudioOK, fmt.Errorf("embedding: enroll: %w", err)
	}
	if p.sum != nil {
		if len(emb) != len(p.sum) {
			return p.percent(), speakerid.AudioOK, fmt.Errorf("embedding: enroll: dimension changed from %d to %d", len(p.sum), len(emb))
		}
		if cosine(p.mean(), emb) < p.sameSpeaker {
			return p.percent(), speakerid.UnknownSpeaker, nil
		}
	} else {
		p.sum = make([]float64, len(emb))
	}

	dur := audio.SamplesDuration(len(pcm), p.sampleRate)
	w := dur.Seconds()
	for i, x := range normalize(emb) {
		p.sum[i] += float64(x) * w
	}
	p.accepted += dur
	return p.percent(), speakerid.AudioOK, nil
}

// Export implements speakerid.Profiler.
func (p *Profiler) Export() ([]byte, error) {
	if p.percent() < 100 {
		return nil, fmt.Errorf("embedding: enrollment incomplete (%.0f%%)", p.percent())
	}
	return encodeProfile(p.mean())
}

// Reset implements speakerid.Profiler.
func (p *Profiler) Reset() {
	p.sum = nil
	p.accepted = 0
}

func (p *Profiler) percent() float64 {
	return min(100, 100*p.accepted.Seconds()/p.target.Seconds())
}

func (p *Profiler) mean() []float32 {
	out := make([]float32, len(p.sum))
	for i, x := range p.sum {
		out[i] = float32(x)
	}
	return normalize(out)
}
