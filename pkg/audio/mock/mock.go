// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for unit tests.
//
// Both mocks are safe for concurrent use. They record every call so tests can
// assert on call counts, and expose fields that control their behaviour.
//
// Typical usage:
//
//	src := &mock.Source{Frames: [][]int16{silence, speech}}
//	sink := &mock.Sink{Capacity: 1024}
//	_ = sink.Start()
//	n, _ := sink.Write(samples)
package mock

import (
	"io"
	"sync"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] that replays a fixed list of frames.
// Read returns [io.EOF] once the frames are exhausted.
type Source struct {
	mu sync.Mutex

	// Frames are returned in order by Read.
	Frames [][]int16

	// Rate is reported by SampleRate. Defaults to 16000.
	Rate int

	// Length is reported by FrameLength. Defaults to 512.
	Length int

	// StartError is returned by Start.
	StartError error

	// ReadError, when set, is returned by Read instead of the next frame.
	ReadError error

	CallCountStart int
	CallCountStop  int
	CallCountClose int
	CallCountRead  int

	running bool
	pos     int
	read    int64
}

var _ audio.Source = (*Source)(nil)

// Start implements [audio.Source].
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.running = true
	return nil
}

// Read implements [audio.Source].
func (s *Source) Read() (audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRead++
	if s.ReadError != nil {
		return audio.Frame{}, s.ReadError
	}
	if s.pos >= len(s.Frames) {
		return audio.Frame{}, io.EOF
	}
	samples := s.Frames[s.pos]
	s.pos++
	f := audio.Frame{
		Samples:    samples,
		SampleRate: s.rate(),
		Timestamp:  audio.SamplesDuration(int(s.read), s.rate()),
	}
	s.read += int64(len(samples))
	return f, nil
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.running = false
	return nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.running = false
	return nil
}

// FrameLength implements [audio.Source].
func (s *Source) FrameLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Length == 0 {
		return 512
	}
	return s.Length
}

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate()
}

// Running reports whether Start has been called without a later Stop.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Remaining reports how many frames have not been read yet.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames) - s.pos
}

func (s *Source) rate() int {
	if s.Rate == 0 {
		return 16000
	}
	return s.Rate
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink]. Accepted samples are appended to Written.
// Playback is instantaneous: Flush and Stop both empty the pending buffer.
type Sink struct {
	mu sync.Mutex

	// Capacity limits how many samples may be pending before Write returns a
	// short count. Zero means unlimited.
	Capacity int

	// Rate is reported by SampleRate. Defaults to 22050.
	Rate int

	// WriteError is returned by Write when set.
	WriteError error

	// Written holds every accepted sample in order.
	Written []int16

	CallCountStart int
	CallCountWrite int
	CallCountFlush int
	CallCountStop  int
	CallCountClose int

	pending int
	running bool
}

var _ audio.Sink = (*Sink)(nil)

// Start implements [audio.Sink].
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	s.running = true
	return nil
}

// Write implements [audio.Sink].
func (s *Sink) Write(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountWrite++
	if s.WriteError != nil {
		return 0, s.WriteError
	}
	n := len(samples)
	if s.Capacity > 0 {
		n = min(n, s.Capacity-s.pending)
	}
	if n <= 0 {
		return 0, nil
	}
	s.Written = append(s.Written, samples[:n]...)
	s.pending += n
	return n, nil
}

// Flush implements [audio.Sink].
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountFlush++
	s.pending = 0
	return nil
}

// Stop implements [audio.Sink].
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.running = false
	s.pending = 0
	return nil
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.running = false
	return nil
}

// SampleRate implements [audio.Sink].
func (s *Sink) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Rate == 0 {
		return 22050
	}
	return s.Rate
}

// Drain simulates the device consuming every pending sample.
func (s *Sink) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = 0
}

// Running reports whether the sink is started.
func (s *Sink) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// WrittenLen returns the number of accepted samples.
func (s *Sink) WrittenLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Written)
}

// Counts returns a snapshot of the Start, Flush and Stop call counts.
func (s *Sink) Counts() (start, flush, stop int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStart, s.CallCountFlush, s.CallCountStop
}
