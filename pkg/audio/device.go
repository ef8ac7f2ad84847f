// Package audio defines the PCM frame type and the device contracts used by
// the voice pipeline: a [Source] that yields fixed-size capture frames and a
// [Sink] that accepts playback samples without blocking.
//
// Devices are owned by exactly one pipeline stage (the Recorder owns the
// Source, the Speaker owns the Sink) and are never shared between goroutines
// of the pipeline. Implementations must still tolerate their own internal
// callback threads.
package audio

import "errors"

// ErrClosed is returned by device methods called after Close.
var ErrClosed = errors.New("audio: device closed")

// ErrTimeout is returned by [Source.Read] when no frame arrived within the
// read deadline. The source keeps running and the next Read may succeed.
var ErrTimeout = errors.New("audio: read timed out")

// Source is a capture device delivering fixed-length mono frames.
type Source interface {
	// Start begins capture. Calling Start on a running source is a no-op.
	Start() error

	// Read blocks until the next frame is available. It blocks for at most
	// roughly one frame duration while the source is running. Reading from a
	// stopped source returns an error.
	Read() (Frame, error)

	// Stop pauses capture. Buffered frames are discarded.
	Stop() error

	// Close stops capture and releases the device. Close is idempotent.
	Close() error

	// FrameLength is the number of samples in every frame returned by Read.
	FrameLength() int

	// SampleRate is the capture sample rate in Hz.
	SampleRate() int
}

// Sink is a playback device with a bounded internal buffer.
type Sink interface {
	// Start begins playback of buffered samples.
	Start() error

	// Write enqueues as many samples as fit into the device buffer and returns
	// how many were accepted. Write never blocks; a full device returns 0.
	Write(samples []int16) (int, error)

	// Flush blocks until every accepted sample has been played.
	Flush() error

	// Stop halts playback and discards whatever is still buffered.
	Stop() error

	// Close stops playback and releases the device. Close is idempotent.
	Close() error

	// SampleRate is the playback sample rate in Hz.
	SampleRate() int
}

// DeviceInfo describes one capture or playback device.
type DeviceInfo struct {
	// Index is the position used by the audio_device_index setting.
	Index int

	// Name is the human-readable device name reported by the backend.
	Name string

	// IsDefault marks the system default device.
	IsDefault bool
}
