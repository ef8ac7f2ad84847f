package pipeline

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

type speakerState int

const (
	speakerIdle speakerState = iota
	speakerWarmingUp
	speakerPlaying
	speakerDraining
)

func (s speakerState) String() string {
	switch s {
	case speakerIdle:
		return "idle"
	case speakerWarmingUp:
		return "warming up"
	case speakerPlaying:
		return "playing"
	case speakerDraining:
		return "draining"
	default:
		return fmt.Sprintf("speakerState(%d)", int(s))
	}
}

// Speaker buffers synthesized PCM and paces it into the output device. It
// holds audio back until the warm-up amount is buffered so that playback does
// not stall on a slow synthesizer.
//
// All methods are called from the driver goroutine. The only blocking device
// calls, Flush and Stop at the end of a response, run on a helper goroutine.
type Speaker struct {
	sink      audio.Sink
	obs       Observer
	threshold int

	state    speakerState
	fifo     []int16
	deviceOn bool

	// helper is closed once the end-of-response flush finished. Nil when no
	// flush ever ran.
	helper chan struct{}
}

// NewSpeaker returns a Speaker writing to sink that starts playback once
// more than warmup worth of audio is buffered.
func NewSpeaker(sink audio.Sink, warmup time.Duration, obs Observer) *Speaker {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Speaker{
		sink:      sink,
		obs:       obs,
		threshold: int(math.Round(float64(sink.SampleRate()) * warmup.Seconds())),
	}
}

// SampleRate is the playback rate in Hz.
func (s *Speaker) SampleRate() int { return s.sink.SampleRate() }

// Start begins buffering a new response. Audio of an unfinished response is
// dropped.
func (s *Speaker) Start() {
	if s.state != speakerIdle {
		slog.Debug("speaker: start while busy", "state", s.state)
		s.Interrupt()
	}
	s.state = speakerWarmingUp
}

// Process appends pcm to the playback buffer. Audio arriving while idle is
// dropped.
func (s *Speaker) Process(pcm []int16) {
	if s.state == speakerIdle {
		return
	}
	s.fifo = append(s.fifo, pcm...)
}

// Flush marks the end of the response audio.
func (s *Speaker) Flush() error {
	switch s.state {
	case speakerPlaying:
		s.state = speakerDraining
	case speakerWarmingUp:
		if len(s.fifo) == 0 {
			s.state = speakerIdle
			s.obs.Idle()
			return nil
		}
		s.state = speakerDraining
		if _, err := s.startDevice(); err != nil {
			return err
		}
	}
	return nil
}

// Tick moves buffered audio into the device.
func (s *Speaker) Tick() error {
	switch s.state {
	case speakerIdle:
		return nil
	case speakerWarmingUp:
		if len(s.fifo) <= s.threshold {
			return nil
		}
		ok, err := s.startDevice()
		if err != nil || !ok {
			return err
		}
		s.state = speakerPlaying
	}

	if len(s.fifo) == 0 {
		if s.state == speakerDraining {
			s.finish()
		}
		return nil
	}
	ok, err := s.startDevice()
	if err != nil || !ok {
		return err
	}
	n, err := s.sink.Write(s.fifo)
	s.fifo = s.fifo[n:]
	if err != nil {
		return fmt.Errorf("speaker: write: %w", err)
	}
	return nil
}

// Interrupt drops all buffered audio and silences the device.
func (s *Speaker) Interrupt() {
	if s.state == speakerIdle && len(s.fifo) == 0 && !s.flushing() {
		return
	}
	s.fifo = nil
	if s.deviceOn || s.flushing() {
		if err := s.sink.Stop(); err != nil {
			slog.Warn("speaker: stop device", "err", err)
		}
	}
	s.deviceOn = false
	s.state = speakerIdle
}

// Close silences the device, waits for a pending flush and releases the
// device.
func (s *Speaker) Close() error {
	s.Interrupt()
	if s.helper != nil {
		<-s.helper
	}
	if err := s.sink.Close(); err != nil {
		return fmt.Errorf("speaker: close: %w", err)
	}
	return nil
}

// startDevice starts playback unless it is already running. It reports false
// while the previous response is still being flushed.
func (s *Speaker) startDevice() (bool, error) {
	if s.deviceOn {
		return true, nil
	}
	if s.flushing() {
		return false, nil
	}
	if err := s.sink.Start(); err != nil {
		return false, fmt.Errorf("speaker: start: %w", err)
	}
	s.deviceOn = true
	return true, nil
}

// finish plays out the device buffer in the background and returns to idle.
func (s *Speaker) finish() {
	done := make(chan struct{})
	s.helper = done
	sink := s.sink
	go func() {
		defer close(done)
		if err := sink.Flush(); err != nil {
			slog.Debug("speaker: flush device", "err", err)
		}
		if err := sink.Stop(); err != nil {
			slog.Warn("speaker: stop device", "err", err)
		}
	}()
	s.deviceOn = false
	s.state = speakerIdle
	s.obs.Idle()
}

func (s *Speaker) flushing() bool {
	if s.helper == nil {
		return false
	}
	select {
	case <-s.helper:
		return false
	default:
		return true
	}
}
