package malgo

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

// DefaultSinkBuffer is the playback buffer length used when none is set.
const DefaultSinkBuffer = time.Second

// SinkConfig configures a playback [Sink].
type SinkConfig struct {
	// DeviceIndex selects a playback device; negative selects the default.
	DeviceIndex int

	// SampleRate must match the synthesizer's output rate.
	SampleRate int

	// Buffer is the amount of audio the device accepts ahead of playback.
	Buffer time.Duration
}

// Sink is a miniaudio playback device fed from a bounded sample buffer.
type Sink struct {
	rate   int
	device *malgo.Device

	mu       sync.Mutex
	buf      []int16
	capacity int
	running  bool
	closed   bool
	drained  *sync.Cond
}

var _ audio.Sink = (*Sink)(nil)

// NewSink opens the playback device described by cfg.
func NewSink(c *Context, cfg SinkConfig) (*Sink, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("malgo: sink sample rate must be positive")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultSinkBuffer
	}
	devCfg, err := c.deviceConfig(malgo.Playback, cfg.DeviceIndex, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		rate:     cfg.SampleRate,
		capacity: int(cfg.Buffer.Seconds() * float64(cfg.SampleRate)),
	}
	s.drained = sync.NewCond(&s.mu)

	c.mu.Lock()
	device, err := malgo.InitDevice(c.ctx.Context, devCfg, malgo.DeviceCallbacks{Data: s.onData})
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("malgo: init playback device: %w", err)
	}
	s.device = device
	return s, nil
}

// onData runs on the miniaudio callback thread and fills out with buffered
// samples, padding with silence.
func (s *Sink) onData(out, _ []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(len(out)/2, len(s.buf))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s.buf[i]))
	}
	clear(out[n*2:])
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.drained.Broadcast()
	}
}

// Start implements [audio.Sink].
func (s *Sink) Start() error {
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
	s.mu.Unlock()

	if err := s.device.Start(); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("malgo: start playback: %w", err)
	}
	return nil
}

// Write implements [audio.Sink].
func (s *Sink) Write(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, audio.ErrClosed
	}
	n := min(len(samples), s.capacity-len(s.buf))
	if n <= 0 {
		return 0, nil
	}
	s.buf = append(s.buf, samples[:n]...)
	return n, nil
}

// Flush implements [audio.Sink]. Flushing a stopped sink with pending samples
// returns an error instead of waiting forever.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) > 0 {
		if !s.running || s.closed {
			return fmt.Errorf("malgo: flush on stopped sink with %d samples pending", len(s.buf))
		}
		s.drained.Wait()
	}
	return nil
}

// Stop implements [audio.Sink].
func (s *Sink) Stop() error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.buf = s.buf[:0]
	s.drained.Broadcast()
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("malgo: stop playback: %w", err)
	}
	return nil
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
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

// SampleRate implements [audio.Sink].
func (s *Sink) SampleRate() int { return s.rate }
