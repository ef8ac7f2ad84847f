package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
)

// defaultRMSThreshold is the energy level (in 16-bit PCM units) below which a
// chunk counts as silence. Full scale is 32 767; 300 is near-silence.
const defaultRMSThreshold = 300.0

// inferFunc turns one buffered utterance into text.
type inferFunc func(ctx context.Context, samples []int16, sampleRate int) (string, error)

// segmentConfig controls how a session cuts the audio stream into utterances.
type segmentConfig struct {
	sampleRate   int
	silence      time.Duration
	maxBuffer    time.Duration
	rmsThreshold float64
}

// session simulates streaming on top of a batch engine. An energy-based
// silence detector groups incoming PCM into utterances; each completed
// utterance is transcribed by infer. All buffering state lives in the
// processLoop goroutine.
type session struct {
	cfg   segmentConfig
	infer inferFunc

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

func startSession(ctx context.Context, cfg segmentConfig, infer inferFunc) *session {
	if cfg.rmsThreshold <= 0 {
		cfg.rmsThreshold = defaultRMSThreshold
	}
	s := &session{
		cfg:      cfg,
		infer:    infer,
		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s
}

// SendAudio queues 16-bit little-endian PCM for segmentation.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Partials emits the same text as Finals; batch inference has no interim view.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals emits one transcript per detected utterance.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close transcribes whatever speech is still buffered, then closes both
// output channels. Calling Close more than once is safe.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []int16
		hadSpeech bool
		silence   time.Duration
		elapsed   time.Duration
		started   time.Duration
		decoder   audio.PCMDecoder
	)

	maxSamples := int(s.cfg.maxBuffer.Seconds() * float64(s.cfg.sampleRate))

	flush := func(flushCtx context.Context, endOfUtterance bool) {
		pcm, speech, at := buffer, hadSpeech, started
		buffer, hadSpeech, silence = nil, false, 0
		if len(pcm) == 0 || !speech {
			return
		}

		text, err := s.infer(flushCtx, pcm, s.cfg.sampleRate)
		if err != nil {
			slog.Warn("whisper: inference failed", "err", err)
			return
		}
		if text == "" {
			return
		}

		tr := stt.Transcript{
			Text:           text,
			IsFinal:        true,
			EndOfUtterance: endOfUtterance,
			Timestamp:      at,
			Duration:       audio.SamplesDuration(len(pcm), s.cfg.sampleRate),
		}
		partial := tr
		partial.IsFinal, partial.EndOfUtterance = false, false
		select {
		case s.partials <- partial:
		default:
		}
		select {
		case s.finals <- tr:
		default:
			slog.Warn("whisper: finals channel full, dropping transcript", "text", text)
		}
	}

	// Shutdown flushes use their own deadline because ctx may already be done.
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc, true)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			samples := decoder.Decode(chunk)
			d := audio.SamplesDuration(len(samples), s.cfg.sampleRate)

			if audio.RMS(samples) < s.cfg.rmsThreshold {
				// Leading silence before any speech is discarded.
				if hadSpeech {
					silence += d
					buffer = append(buffer, samples...)
					if silence >= s.cfg.silence {
						flush(ctx, true)
					}
				}
			} else {
				if !hadSpeech {
					started = elapsed
				}
				hadSpeech = true
				silence = 0
				buffer = append(buffer, samples...)
				if maxSamples > 0 && len(buffer) >= maxSamples {
					// Forced cut: the speaker is still talking.
					flush(ctx, false)
				}
			}
			elapsed += d
		}
	}
}

// resolveSegmentConfig merges a stream config with provider defaults.
func resolveSegmentConfig(cfg stt.StreamConfig, defaultRate int, defaultSilence, maxBuffer time.Duration) (segmentConfig, error) {
	if cfg.Channels > 1 {
		return segmentConfig{}, fmt.Errorf("whisper: only mono audio is supported, got %d channels", cfg.Channels)
	}
	sc := segmentConfig{
		sampleRate: cfg.SampleRate,
		silence:    cfg.EndpointDuration,
		maxBuffer:  maxBuffer,
	}
	if sc.sampleRate <= 0 {
		sc.sampleRate = defaultRate
	}
	if sc.silence <= 0 {
		sc.silence = defaultSilence
	}
	return sc, nil
}
