// Package wakeword defines the Detector interface for wake-word spotters.
//
// A detector consumes fixed-size frames of 16-bit mono PCM and reports when
// the wake phrase was heard. The pipeline feeds it every captured frame while
// the assistant is asleep.
package wakeword

// Detector spots a wake phrase in a stream of audio frames.
//
// A Detector is owned by a single goroutine and need not be safe for
// concurrent use.
type Detector interface {
	// Process consumes one frame of exactly FrameLength samples and reports
	// whether the wake phrase was detected. Errors wrapping
	// provider.ErrActivationLimit are fatal; other errors only affect the
	// current frame.
	Process(frame []int16) (bool, error)

	// FrameLength is the number of samples Process expects.
	FrameLength() int

	// SampleRate is the sample rate of the frames in Hz.
	SampleRate() int

	// Close releases the detector's resources.
	Close() error
}
