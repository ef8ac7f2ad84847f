package audio

import "time"

// Frame is a single block of mono 16-bit PCM audio flowing through the
// pipeline. Frames are produced by a [Source] at a fixed length and are never
// mutated after they are handed downstream.
type Frame struct {
	// Samples holds signed 16-bit PCM samples, mono.
	Samples []int16

	// SampleRate in Hz (16000 for the wake-word and transcription engines).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to the start of
	// recording.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame. A frame without a sample
// rate reports zero.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// SamplesDuration converts a sample count at sampleRate into a duration.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
