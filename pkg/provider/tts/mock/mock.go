// Package mock provides a test double for the tts.Provider interface.
//
// The mock "synthesizes" each text fragment into a fixed number of samples
// per character, so tests can predict exactly how much PCM a fragment yields:
//
//	p := &mock.Provider{Rate: 16000, SamplesPerChar: 10}
//	s := tts.NewStream(ctx, p, tts.VoiceProfile{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// SamplesPerChar is the number of samples emitted per input byte.
	// Defaults to 1.
	SamplesPerChar int

	// Sample is the value of every emitted sample.
	Sample int16

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream.
	SynthesizeErr error

	// FailAfter, when > 0, closes the audio channel early after that many
	// fragments, imitating a mid-stream synthesis failure.
	FailAfter int

	// Hold, if non-nil, delays all audio of a stream until it is closed.
	Hold chan struct{}

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// Fragments records every text fragment received across all streams.
	Fragments []string

	// Finished counts streams whose input was closed and fully synthesized.
	Finished int
}

var _ tts.Provider = (*Provider)(nil)

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Rate == 0 {
		return 16000
	}
	return p.Rate
}

// SynthesizeStream records the call and, unless SynthesizeErr is set, emits
// SamplesPerChar samples for every byte of every fragment read from text.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Voice: voice})
	err := p.SynthesizeErr
	per := max(p.SamplesPerChar, 1)
	sample := p.Sample
	failAfter := p.FailAfter
	hold := p.Hold
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				return
			}
		}
		n := 0
		for {
			select {
			case frag, ok := <-text:
				if !ok {
					p.mu.Lock()
					p.Finished++
					p.mu.Unlock()
					return
				}
				p.mu.Lock()
				p.Fragments = append(p.Fragments, frag)
				p.mu.Unlock()

				n++
				if failAfter > 0 && n > failAfter {
					return
				}
				samples := make([]int16, len(frag)*per)
				for i := range samples {
					samples[i] = sample
				}
				select {
				case out <- audio.Int16ToBytes(samples):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Calls returns the number of streams opened so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// Received returns a copy of every fragment received so far.
func (p *Provider) Received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Fragments...)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.Fragments = nil
	p.Finished = 0
}
