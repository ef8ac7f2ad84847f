package pipeline

import "time"

// Stage names used in [Report].
const (
	StageWakeWord    = "wake word"
	StageTranscriber = "transcriber"
	StageLLM         = "llm"
	StageSynthesizer = "synthesizer"
)

// Report is a profiling sample published through [Observer.Profile].
type Report struct {
	Stage string

	// RTF is the real-time factor: compute time divided by audio time.
	RTF float64

	// TPS is the LLM token rate in tokens per second.
	TPS float64

	// Delay is the time from the utterance endpoint to the first synthesized
	// sample in seconds, or -1 if no audio was produced.
	Delay float64
}

// RTFProfiler measures the real-time factor of an audio engine. Bracket every
// engine call with Tick and Tock.
type RTFProfiler struct {
	now     func() time.Time
	rate    int
	start   time.Time
	compute time.Duration
	audio   float64
}

// NewRTFProfiler returns a profiler for audio at sampleRate. now defaults to
// time.Now.
func NewRTFProfiler(sampleRate int, now func() time.Time) *RTFProfiler {
	if now == nil {
		now = time.Now
	}
	return &RTFProfiler{now: now, rate: sampleRate}
}

// Tick marks the start of an engine call.
func (p *RTFProfiler) Tick() { p.start = p.now() }

// Tock marks the end of the call that handled samples audio samples.
func (p *RTFProfiler) Tock(samples int) {
	if p.start.IsZero() {
		return
	}
	p.compute += p.now().Sub(p.start)
	p.start = time.Time{}
	if p.rate > 0 {
		p.audio += float64(samples) / float64(p.rate)
	}
}

// RTF returns the accumulated real-time factor and resets the profiler.
func (p *RTFProfiler) RTF() float64 {
	var rtf float64
	if p.audio > 0 {
		rtf = p.compute.Seconds() / p.audio
	}
	p.Reset()
	return rtf
}

// Reset discards the accumulated measurements.
func (p *RTFProfiler) Reset() {
	p.start = time.Time{}
	p.compute = 0
	p.audio = 0
}

// TPSProfiler measures the token rate of a completion stream. The first Tock
// starts the clock; every later Tock counts one token.
type TPSProfiler struct {
	now    func() time.Time
	start  time.Time
	tokens int
}

// NewTPSProfiler returns a profiler using now, which defaults to time.Now.
func NewTPSProfiler(now func() time.Time) *TPSProfiler {
	if now == nil {
		now = time.Now
	}
	return &TPSProfiler{now: now}
}

// Tock records one received token.
func (p *TPSProfiler) Tock() {
	if p.start.IsZero() {
		p.start = p.now()
		return
	}
	p.tokens++
}

// TPS returns tokens per second since the first Tock and resets the profiler.
func (p *TPSProfiler) TPS() float64 {
	var tps float64
	if !p.start.IsZero() {
		if elapsed := p.now().Sub(p.start).Seconds(); elapsed > 0 {
			tps = float64(p.tokens) / elapsed
		}
	}
	p.Reset()
	return tps
}

// Reset discards the accumulated measurements.
func (p *TPSProfiler) Reset() {
	p.start = time.Time{}
	p.tokens = 0
}
