package malgo

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

const (
	// DefaultFrameLength matches the 32 ms frames the wake-word and
	// transcription stages consume at 16 kHz.
	DefaultFrameLength = 512

	// DefaultCaptureRate is the capture sample rate used when none is set.
	DefaultCaptureRate = 16000

	sourceQueueFrames = 64
)

// SourceConfig configures a capture [Source].
type SourceConfig struct {
	// DeviceIndex selects a capture device by its position in
	// [Context.CaptureDevices]. Negative values select the system default.
	DeviceIndex int

	// SampleRate defaults to [DefaultCaptureRate].
	SampleRate int

	// FrameLength defaults to [DefaultFrameLength].
	FrameLength int
}

// Source is a miniaudio capture device that slices the callback stream into
// fixed-length frames.
type Source struct {
	cfg    SourceConfig
	device *malgo.Device

	mu       sync.Mutex
	running  bool
	closed   bool
	pending  []int16
	captured int64
	frames   chan audio.Frame
	stopped  chan struct{}
}

var _ audio.Source = (*Source)(nil)

// NewSource opens the capture device described by cfg. The device is not
// started until [Source.Start].
func NewSource(c *Context, cfg SourceConfig) (*Source, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultCaptureRate
	}
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = DefaultFrameLength
	}
	devCfg, err := c.deviceConfig(malgo.Capture, cfg.DeviceIndex, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	s := &Source{
		cfg:     cfg,
		frames:  make(chan audio.Frame, sourceQueueFrames),
		stopped: make(chan struct{}),
	}
	close(s.stopped)

	c.mu.Lock()
	device, err := malgo.InitDevice(c.ctx.Context, devCfg, malgo.DeviceCallbacks{Data: s.onData})
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device: %w", err)
	}
	s.device = device
	return s, nil
}

// onData runs on the miniaudio callback thread.
func (s *Source) onData(_, in []byte, _ uint32) {
	samples := audio.BytesToInt16(in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.pending = append(s.pending, samples...)
	for len(s.pending) >= s.cfg.FrameLength {
		frame := audio.Frame{
			Samples:    append([]int16(nil), s.pending[:s.cfg.FrameLength]...),
			SampleRate: s.cfg.SampleRate,
			Timestamp:  audio.SamplesDuration(int(s.captured), s.cfg.SampleRate),
		}
		s.pending = s.pending[s.cfg.FrameLength:]
		s.captured += int64(s.cfg.FrameLength)
		select {
		case s.frames <- frame:
		default:
			// Reader fell behind: drop the oldest frame to keep latency bounded.
			select {
			case <-s.frames:
			default:
			}
			s.frames <- frame
		}
	}
}

// Start implements [audio.Source].
func (s *Source) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.ErrClosed
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	if err := s.device.Start(); err != nil {
		s.markStopped()
		return fmt.Errorf("malgo: start capture: %w", err)
	}
	return nil
}

// Read implements [audio.Source].
func (s *Source) Read() (audio.Frame, error) {
	s.mu.Lock()
	closed, running, stopped := s.closed, s.running, s.stopped
	s.mu.Unlock()
	if closed {
		return audio.Frame{}, audio.ErrClosed
	}
	if !running {
		return audio.Frame{}, fmt.Errorf("malgo: read from stopped source")
	}

	timeout := time.NewTimer(4 * audio.SamplesDuration(s.cfg.FrameLength, s.cfg.SampleRate))
	defer timeout.Stop()
	select {
	case f := <-s.frames:
		return f, nil
	case <-stopped:
		return audio.Frame{}, fmt.Errorf("malgo: source stopped during read")
	case <-timeout.C:
		return audio.Frame{}, fmt.Errorf("malgo: capture: %w", audio.ErrTimeout)
	}
}

// Stop implements [audio.Source]. The device is stopped outside the lock
// because miniaudio waits for an in-flight callback, which takes the lock.
func (s *Source) Stop() error {
	if !s.markStopped() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("malgo: stop capture: %w", err)
	}
	return nil
}

// markStopped flips the source out of the running state and reports whether
// it was running.
func (s *Source) markStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.running = false
	close(s.stopped)
	s.pending = s.pending[:0]
	audio.DrainPending(s.frames)
	return true
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Stop()
	s.device.Uninit()
	return err
}

// FrameLength implements [audio.Source].
func (s *Source) FrameLength() int { return s.cfg.FrameLength }

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int { return s.cfg.SampleRate }
