package pipeline

import (
	"fmt"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

// Recorder owns the capture device and hands out one frame per driver tick.
type Recorder struct {
	src     audio.Source
	started bool
}

// NewRecorder returns a Recorder reading from src. The device is started on
// the first Read.
func NewRecorder(src audio.Source) *Recorder {
	return &Recorder{src: src}
}

// FrameLength is the number of samples per frame.
func (r *Recorder) FrameLength() int { return r.src.FrameLength() }

// SampleRate is the capture rate in Hz.
func (r *Recorder) SampleRate() int { return r.src.SampleRate() }

// Read returns the next captured frame.
func (r *Recorder) Read() (audio.Frame, error) {
	if !r.started {
		if err := r.src.Start(); err != nil {
			return audio.Frame{}, fmt.Errorf("recorder: start: %w", err)
		}
		r.started = true
	}
	return r.src.Read()
}

// Close stops recording and releases the device.
func (r *Recorder) Close() error {
	if r.started {
		r.started = false
		if err := r.src.Stop(); err != nil {
			_ = r.src.Close()
			return fmt.Errorf("recorder: stop: %w", err)
		}
	}
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("recorder: close: %w", err)
	}
	return nil
}
