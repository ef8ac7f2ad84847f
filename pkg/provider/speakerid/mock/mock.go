// Package mock provides test doubles for the speakerid interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
)

// EnrollResult is one scripted outcome of Profiler.Enroll.
type EnrollResult struct {
	Percent  float64
	Feedback speakerid.Feedback
	Err      error
}

// Profiler is a mock implementation of speakerid.Profiler. Each Enroll call
// consumes the next entry of Results; once they are exhausted the last one
// repeats.
type Profiler struct {
	mu sync.Mutex

	Results    []EnrollResult
	ExportData []byte
	ExportErr  error
	MinSamples int
	Rate       int

	// Clips holds a copy of every clip passed to Enroll.
	Clips      [][]int16
	ResetCalls int
}

var _ speakerid.Profiler = (*Profiler)(nil)

// Enroll implements speakerid.Profiler.
func (p *Profiler) Enroll(_ context.Context, pcm []int16) (float64, speakerid.Feedback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Clips = append(p.Clips, append([]int16(nil), pcm...))
	if len(p.Results) == 0 {
		return 100, speakerid.AudioOK, nil
	}
	i := min(len(p.Clips)-1, len(p.Results)-1)
	r := p.Results[i]
	return r.Percent, r.Feedback, r.Err
}

// Export implements speakerid.Profiler.
func (p *Profiler) Export() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ExportData, p.ExportErr
}

// Reset implements speakerid.Profiler.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ResetCalls++
}

// MinEnrollSamples implements speakerid.Profiler.
func (p *Profiler) MinEnrollSamples() int { return p.MinSamples }

// SampleRate implements speakerid.Profiler.
func (p *Profiler) SampleRate() int {
	if p.Rate == 0 {
		return 16000
	}
	return p.Rate
}

// EnrollCalls returns the number of Enroll calls. Thread-safe.
func (p *Profiler) EnrollCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Clips)
}

// Recognizer is a mock implementation of speakerid.Recognizer. Each Process
// call returns the next entry of Scores; once they are exhausted the last one
// repeats.
type Recognizer struct {
	mu sync.Mutex

	Scores     []float64
	ProcessErr error
	Length     int
	Rate       int

	calls      int
	resetCalls int
}

var _ speakerid.Recognizer = (*Recognizer)(nil)

// Process implements speakerid.Recognizer.
func (r *Recognizer) Process(_ context.Context, _ []int16) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.ProcessErr != nil {
		return 0, r.ProcessErr
	}
	if len(r.Scores) == 0 {
		return 0, nil
	}
	return r.Scores[min(r.calls-1, len(r.Scores)-1)], nil
}

// Reset implements speakerid.Recognizer.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetCalls++
}

// FrameLength implements speakerid.Recognizer.
func (r *Recognizer) FrameLength() int {
	if r.Length == 0 {
		return 512
	}
	return r.Length
}

// SampleRate implements speakerid.Recognizer.
func (r *Recognizer) SampleRate() int {
	if r.Rate == 0 {
		return 16000
	}
	return r.Rate
}

// Calls returns the number of Process calls. Thread-safe.
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
