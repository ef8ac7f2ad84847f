package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxpipe/pkg/provider"
)

// pollInterval is how often an idle-queued synthesizer collects audio that
// the TTS backend produced asynchronously.
const pollInterval = 10 * time.Millisecond

// SpeechStream is incremental text-to-speech. [tts.Stream] implements it.
type SpeechStream interface {
	// Synthesize queues text and returns the PCM available so far. Empty
	// text only collects audio.
	Synthesize(text string) ([]int16, error)

	// Flush finishes the utterance and returns its remaining PCM.
	Flush() ([]int16, error)

	// Reset abandons the current utterance.
	Reset()

	// Close releases the stream.
	Close() error

	// SampleRate is the rate of the returned PCM.
	SampleRate() int
}

type synthState int

const (
	synthIdle synthState = iota
	synthSynthesizing
	synthFlushing
)

// Synthesizer is the driver-side handle of the synthesis stage. Its worker,
// started with [Synthesizer.Run], turns text chunks into PCM for the
// [Speaker].
//
// Every method except Run must be called from the driver goroutine.
type Synthesizer struct {
	speaker *Speaker
	opts    options
	turn    uuid.UUID

	inbox  chan Message
	outbox chan Message
	worker synthWorker
}

type synthWorker struct {
	stream SpeechStream
	now    func() time.Time
	rtf    *RTFProfiler

	state    synthState
	queue    []string
	turn     uuid.UUID
	endpoint time.Time
	delay    float64
}

// NewSynthesizer returns the synthesis stage writing to speaker.
func NewSynthesizer(stream SpeechStream, speaker *Speaker, opts ...Option) *Synthesizer {
	o := newOptions(opts)
	return &Synthesizer{
		speaker: speaker,
		opts:    o,
		inbox:   make(chan Message, inboxSize),
		outbox:  make(chan Message, outboxSize),
		worker: synthWorker{
			stream: stream,
			now:    o.now,
			rtf:    NewRTFProfiler(stream.SampleRate(), o.now),
			delay:  -1,
		},
	}
}

// ---- driver side ----

// Start opens a response turn whose utterance ended at end.
func (s *Synthesizer) Start(end time.Time, turn uuid.UUID) {
	s.speaker.Start()
	s.turn = turn
	post(s.inbox, "synthesizer", Start{Endpoint: end, Turn: turn})
}

// Process queues a chunk of response text.
func (s *Synthesizer) Process(text string) {
	post(s.inbox, "synthesizer", Process{Text: text})
}

// Flush marks the end of the response text.
func (s *Synthesizer) Flush() {
	post(s.inbox, "synthesizer", Flush{Turn: s.turn})
}

// Interrupt abandons the current turn and silences the speaker.
func (s *Synthesizer) Interrupt() {
	post(s.inbox, "synthesizer", Interrupt{})
	s.speaker.Interrupt()
	s.turn = uuid.Nil
}

// Close asks the worker to stop.
func (s *Synthesizer) Close() {
	post(s.inbox, "synthesizer", Close{})
}

// Tick forwards the worker's output of the current turn to the speaker.
func (s *Synthesizer) Tick() error {
	for {
		var msg Message
		select {
		case msg = <-s.outbox:
		default:
			return nil
		}
		switch m := msg.(type) {
		case Speak:
			if s.current(m.Turn) {
				s.speaker.Process(m.PCM)
			}
		case Flush:
			if !s.current(m.Turn) {
				continue
			}
			if s.opts.profile && m.Report != nil {
				s.opts.obs.Profile(*m.Report)
			}
			if err := s.speaker.Flush(); err != nil {
				return err
			}
		default:
			slog.Warn("synthesizer: unexpected message from worker", "type", typeName(msg))
		}
	}
}

func (s *Synthesizer) current(turn uuid.UUID) bool {
	return s.turn != uuid.Nil && turn == s.turn
}

// ---- worker ----

// Run runs the worker until it receives Close or ctx is cancelled. It
// returns an error wrapping [provider.ErrActivationLimit] when the TTS
// backend refuses further work.
func (s *Synthesizer) Run(ctx context.Context) error {
	w := &s.worker
	defer func() {
		if err := w.stream.Close(); err != nil {
			slog.Warn("synthesizer: close stream", "err", err)
		}
	}()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		var msg Message
		if w.busy() {
			select {
			case msg = <-s.inbox:
			case <-ctx.Done():
				return nil
			default:
				if err := w.step(ctx, s.outbox); err != nil {
					return err
				}
				continue
			}
		} else {
			select {
			case msg = <-s.inbox:
			case <-poll.C:
				if w.state == synthSynthesizing {
					pcm, err := w.stream.Synthesize("")
					if err := w.check(err); err != nil {
						return err
					}
					_ = w.emit(ctx, s.outbox, pcm)
				}
				continue
			case <-ctx.Done():
				return nil
			}
		}

		switch m := msg.(type) {
		case Start:
			if w.state != synthIdle {
				w.reset()
			}
			w.state = synthSynthesizing
			w.turn = m.Turn
			w.endpoint = m.Endpoint
		case Process:
			if w.state == synthIdle {
				slog.Debug("synthesizer: dropping text outside a turn")
				continue
			}
			w.queue = append(w.queue, m.Text)
		case Flush:
			if w.state == synthSynthesizing {
				w.state = synthFlushing
			}
		case Interrupt:
			w.reset()
		case Close:
			w.queue = nil
			return nil
		default:
			slog.Warn("synthesizer: unexpected message", "type", typeName(msg))
		}
	}
}

func (w *synthWorker) busy() bool {
	switch w.state {
	case synthSynthesizing:
		return len(w.queue) > 0
	case synthFlushing:
		return true
	default:
		return false
	}
}

// step synthesizes one queued chunk, or finishes the turn once the queue of
// a flushing turn is empty.
func (w *synthWorker) step(ctx context.Context, out chan<- Message) error {
	if len(w.queue) > 0 {
		text := w.queue[0]
		w.queue = w.queue[1:]
		w.rtf.Tick()
		pcm, err := w.stream.Synthesize(text)
		w.rtf.Tock(len(pcm))
		if err := w.check(err); err != nil {
			return err
		}
		// A failed send means ctx is done; the loop notices.
		_ = w.emit(ctx, out, pcm)
		return nil
	}

	w.rtf.Tick()
	pcm, err := w.stream.Flush()
	w.rtf.Tock(len(pcm))
	if err := w.check(err); err != nil {
		return err
	}
	if err := w.emit(ctx, out, pcm); err != nil {
		return nil
	}
	report := &Report{Stage: StageSynthesizer, RTF: w.rtf.RTF(), Delay: w.delay}
	if err := send(ctx, out, Flush{Report: report, Turn: w.turn}); err != nil {
		return nil
	}
	w.state = synthIdle
	w.turn = uuid.Nil
	w.endpoint = time.Time{}
	w.delay = -1
	return nil
}

// check filters synthesis errors: quota errors are returned, everything else
// is logged and the chunk is lost.
func (w *synthWorker) check(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, provider.ErrActivationLimit) {
		return fmt.Errorf("synthesizer: %w", err)
	}
	slog.Warn("synthesizer: synthesis failed", "err", err)
	return nil
}

func (w *synthWorker) emit(ctx context.Context, out chan<- Message, pcm []int16) error {
	if len(pcm) == 0 {
		return nil
	}
	if w.delay < 0 && !w.endpoint.IsZero() {
		w.delay = w.now().Sub(w.endpoint).Seconds()
	}
	return send(ctx, out, Speak{PCM: pcm, Turn: w.turn})
}

func (w *synthWorker) reset() {
	w.queue = nil
	w.stream.Reset()
	w.rtf.Reset()
	w.state = synthIdle
	w.turn = uuid.Nil
	w.endpoint = time.Time{}
	w.delay = -1
}

// send delivers msg to the driver, giving up only when ctx is cancelled.
func send(ctx context.Context, out chan<- Message, msg Message) error {
	select {
	case out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
