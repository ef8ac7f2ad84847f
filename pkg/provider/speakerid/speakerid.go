// Package speakerid defines the contracts for speaker enrollment and speaker
// verification.
//
// A [Profiler] builds a voice profile from enrollment clips and exports it as
// an opaque blob. A [Recognizer] loads such a blob and scores live audio
// against it.
package speakerid

import "context"

// Feedback describes the quality of an enrollment clip.
type Feedback int

const (
	AudioOK Feedback = iota
	AudioTooShort
	UnknownSpeaker
	NoVoiceFound
	QualityIssue
)

// String returns the user-facing message for f.
func (f Feedback) String() string {
	switch f {
	case AudioOK:
		return "Good audio"
	case AudioTooShort:
		return "Insufficient audio length"
	case UnknownSpeaker:
		return "Different speaker in audio"
	case NoVoiceFound:
		return "No voice found in audio"
	case QualityIssue:
		return "Low audio quality due to bad microphone or environment"
	default:
		return "Unknown feedback"
	}
}

// Profiler accumulates enrollment audio into a speaker profile.
//
// A Profiler is owned by a single goroutine.
type Profiler interface {
	// Enroll adds one clip of 16-bit mono PCM and returns the enrollment
	// progress in percent together with feedback about the clip. Rejected
	// clips leave the progress unchanged.
	Enroll(ctx context.Context, pcm []int16) (percent float64, feedback Feedback, err error)

	// Export returns the finished profile. It fails before 100 %.
	Export() ([]byte, error)

	// Reset discards all enrolled audio.
	Reset()

	// MinEnrollSamples is the shortest clip Enroll accepts.
	MinEnrollSamples() int

	// SampleRate is the expected PCM sample rate in Hz.
	SampleRate() int
}

// Recognizer scores live audio against one speaker profile.
//
// A Recognizer is owned by a single goroutine.
type Recognizer interface {
	// Process consumes one frame of FrameLength samples and returns the
	// current probability in [0,1] that the profiled speaker is talking.
	Process(ctx context.Context, pcm []int16) (float64, error)

	// Reset clears the audio history.
	Reset()

	// FrameLength is the number of samples Process expects.
	FrameLength() int

	// SampleRate is the expected PCM sample rate in Hz.
	SampleRate() int
}
