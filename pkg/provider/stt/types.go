package stt

import "time"

// Transcript is a speech-to-text result. Partial and final results share it.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is an authoritative result.
	IsFinal bool

	// EndOfUtterance marks the final result that closes the current utterance.
	// Only meaningful when IsFinal is true.
	EndOfUtterance bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost is a vocabulary hint for recognition.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "picovoice").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
