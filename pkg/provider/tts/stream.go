package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

// ErrStreamEnded is returned by [Stream.Synthesize] when the provider closed
// its audio channel before the input was flushed, which providers do on a
// synthesis error.
var ErrStreamEnded = errors.New("tts: stream ended before flush")

// textBuffer bounds the number of fragments queued towards the provider.
const textBuffer = 64

// Stream adapts a [Provider] to incremental, utterance-scoped synthesis: text
// goes in chunk by chunk, and each call hands back whatever PCM the provider
// has produced so far. A provider stream is opened on the first Synthesize of
// an utterance and finished by Flush.
//
// A Stream is owned by a single goroutine and is not safe for concurrent use.
type Stream struct {
	ctx      context.Context
	provider Provider
	voice    VoiceProfile

	cur *utterance
}

type utterance struct {
	cancel context.CancelFunc
	text   chan string
	audio  <-chan []byte
	dec    audio.PCMDecoder
}

// NewStream returns a Stream that synthesizes with voice on p. ctx bounds
// every provider stream it opens.
func NewStream(ctx context.Context, p Provider, voice VoiceProfile) *Stream {
	return &Stream{ctx: ctx, provider: p, voice: voice}
}

// SampleRate is the rate of the returned PCM.
func (s *Stream) SampleRate() int { return s.provider.SampleRate() }

// Synthesize queues text and returns the PCM that is available without
// waiting. Empty text only polls.
func (s *Stream) Synthesize(text string) ([]int16, error) {
	if s.cur == nil {
		if text == "" {
			return nil, nil
		}
		if err := s.open(); err != nil {
			return nil, err
		}
	}
	u := s.cur

	if text != "" {
		select {
		case u.text <- text:
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}

	pcm, ended := u.poll()
	if ended {
		s.abort()
		return pcm, ErrStreamEnded
	}
	return pcm, nil
}

// Flush ends the current utterance and blocks until the provider delivered
// its remaining audio, which is returned.
func (s *Stream) Flush() ([]int16, error) {
	u := s.cur
	if u == nil {
		return nil, nil
	}
	s.cur = nil
	defer u.cancel()

	close(u.text)
	var pcm []int16
	for {
		select {
		case chunk, ok := <-u.audio:
			if !ok {
				return pcm, nil
			}
			pcm = append(pcm, u.dec.Decode(chunk)...)
		case <-s.ctx.Done():
			return pcm, s.ctx.Err()
		}
	}
}

// Reset abandons the current utterance and discards its audio.
func (s *Stream) Reset() {
	s.abort()
}

// Close abandons the current utterance. The Stream must not be used again.
func (s *Stream) Close() error {
	s.abort()
	return nil
}

func (s *Stream) open() error {
	ctx, cancel := context.WithCancel(s.ctx)
	text := make(chan string, textBuffer)
	ch, err := s.provider.SynthesizeStream(ctx, text, s.voice)
	if err != nil {
		cancel()
		return fmt.Errorf("tts: open stream: %w", err)
	}
	s.cur = &utterance{cancel: cancel, text: text, audio: ch}
	return nil
}

func (s *Stream) abort() {
	u := s.cur
	if u == nil {
		return
	}
	s.cur = nil
	u.cancel()
	close(u.text)
	go audio.Drain(u.audio)
}

// poll collects every chunk that is ready. ended reports that the audio
// channel is closed.
func (u *utterance) poll() (pcm []int16, ended bool) {
	for {
		select {
		case chunk, ok := <-u.audio:
			if !ok {
				return pcm, true
			}
			pcm = append(pcm, u.dec.Decode(chunk)...)
		default:
			return pcm, false
		}
	}
}
