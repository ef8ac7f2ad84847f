// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (Deepgram, Google
// Speech-to-Text, or a local Whisper model) behind a uniform streaming
// interface. Once opened, a [SessionHandle] accepts raw PCM and emits two
// streams of [Transcript] values: low-latency partials and authoritative
// finals. A final with EndOfUtterance set marks the speaker's endpoint.
//
// The voice pipeline does not consume sessions directly; it drives a
// [Transcriber], which turns a session into the frame-in / text-out contract
// of a streaming transcriber.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The pipeline captures 16000.
	SampleRate int

	// Channels is the number of audio channels. Always 1 in this module.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Keywords are vocabulary hints, e.g. the wake phrase itself.
	Keywords []KeywordBoost

	// EndpointDuration is the trailing silence after which the backend should
	// consider the utterance finished. Zero selects the backend default.
	EndpointDuration time.Duration
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of little-endian 16-bit PCM. Calling SendAudio
	// after Close returns [ErrSessionClosed].
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. The channel is closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. The channel is closed when the
	// session ends, which for some backends happens after every utterance.
	Finals() <-chan Transcript

	// Close terminates the session and releases its resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session. The caller owns
	// the returned SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
