// Package mock provides a test double for the wakeword.Detector interface.
package mock

import (
	"sync"

	"github.com/MrWong99/voxpipe/pkg/provider/wakeword"
)

// Detector is a mock implementation of wakeword.Detector. Detections are
// scripted either by call index (DetectOn) or by calling Trigger, which makes
// the next Process call report a detection.
type Detector struct {
	mu sync.Mutex

	// Length is returned by FrameLength. Defaults to 512.
	Length int

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// DetectOn lists zero-based Process call indices that report a detection.
	DetectOn map[int]bool

	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	calls      int
	triggered  bool
	closeCalls int
}

var _ wakeword.Detector = (*Detector)(nil)

// Process implements wakeword.Detector.
func (d *Detector) Process(_ []int16) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if d.ProcessErr != nil {
		return false, d.ProcessErr
	}
	if d.triggered {
		d.triggered = false
		return true, nil
	}
	return d.DetectOn[i], nil
}

// Trigger makes the next Process call report a detection. Thread-safe.
func (d *Detector) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggered = true
}

// FrameLength implements wakeword.Detector.
func (d *Detector) FrameLength() int {
	if d.Length == 0 {
		return 512
	}
	return d.Length
}

// SampleRate implements wakeword.Detector.
func (d *Detector) SampleRate() int {
	if d.Rate == 0 {
		return 16000
	}
	return d.Rate
}

// Close implements wakeword.Detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return d.CloseErr
}

// Calls returns the number of Process calls. Thread-safe.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Closed reports whether Close was called. Thread-safe.
func (d *Detector) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls > 0
}
