package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider"
	"github.com/MrWong99/voxpipe/pkg/provider/wakeword"
)

// settleTicks is the number of frames ignored after the wake word so that
// its tail is not transcribed as part of the request.
const settleTicks = 4

// Transcriber is a frame-by-frame streaming speech recognizer.
// [stt.Transcriber] implements it.
type Transcriber interface {
	// Process consumes one frame and returns new text and whether the
	// speaker finished the utterance.
	Process(frame []int16) (text string, endpoint bool, err error)

	// Flush returns the text still pending for the current utterance.
	Flush() (string, error)

	// Prepare readies recognition of the next utterance.
	Prepare()

	// Close releases the recognizer.
	Close() error
}

// Responder receives the listener's requests. [Generator] implements it.
type Responder interface {
	Generate(text string, end time.Time, turn uuid.UUID)
	Interrupt()
}

type listenerState int

const (
	listenerSleeping listenerState = iota
	listenerListening
)

// Listener waits for the wake word and then transcribes one request.
type Listener struct {
	detector wakeword.Detector
	stt      Transcriber
	resp     Responder
	opts     options

	state     listenerState
	settle    int
	utterance strings.Builder

	wakeRTF *RTFProfiler
	sttRTF  *RTFProfiler
}

// NewListener returns a Listener in the sleeping state. sampleRate is the
// capture rate used for profiling.
func NewListener(detector wakeword.Detector, stt Transcriber, resp Responder, sampleRate int, opts ...Option) *Listener {
	o := newOptions(opts)
	return &Listener{
		detector: detector,
		stt:      stt,
		resp:     resp,
		opts:     o,
		wakeRTF:  NewRTFProfiler(sampleRate, o.now),
		sttRTF:   NewRTFProfiler(sampleRate, o.now),
	}
}

// Listening reports whether a request is being transcribed.
func (l *Listener) Listening() bool { return l.state == listenerListening }

// Process handles one captured frame. Only errors wrapping
// [provider.ErrActivationLimit] are returned; other engine errors are logged
// and the frame is skipped.
func (l *Listener) Process(frame audio.Frame) error {
	if l.state == listenerSleeping {
		return l.sleep(frame.Samples)
	}
	if l.settle > 0 {
		l.settle--
		if l.settle == 0 {
			l.opts.obs.Listening()
		}
		return nil
	}
	return l.listen(frame.Samples)
}

func (l *Listener) sleep(samples []int16) error {
	l.wakeRTF.Tick()
	detected, err := l.detector.Process(samples)
	l.wakeRTF.Tock(len(samples))
	if err != nil {
		return l.engineError("wake word", err)
	}
	if !detected {
		return nil
	}

	l.opts.obs.WakeWordDetected()
	l.state = listenerListening
	l.utterance.Reset()
	l.settle = settleTicks
	l.resp.Interrupt()
	if l.opts.profile {
		l.opts.obs.Profile(Report{Stage: StageWakeWord, RTF: l.wakeRTF.RTF()})
	}
	l.wakeRTF.Reset()
	l.sttRTF.Reset()
	l.stt.Prepare()
	return nil
}

func (l *Listener) listen(samples []int16) error {
	l.sttRTF.Tick()
	text, endpoint, err := l.stt.Process(samples)
	l.sttRTF.Tock(len(samples))
	if err != nil {
		return l.engineError("transcriber", err)
	}
	l.add(text)
	if !endpoint {
		return nil
	}

	end := l.opts.now()
	rest, err := l.stt.Flush()
	if err != nil {
		if err := l.engineError("transcriber", err); err != nil {
			return err
		}
	}
	l.add(rest)

	request := l.utterance.String()
	l.opts.obs.UtteranceComplete(request)
	l.resp.Generate(request, end, uuid.New())
	l.state = listenerSleeping
	if l.opts.profile {
		l.opts.obs.Profile(Report{Stage: StageTranscriber, RTF: l.sttRTF.RTF()})
	}
	return nil
}

func (l *Listener) add(text string) {
	if text == "" {
		return
	}
	l.utterance.WriteString(text)
	l.opts.obs.Transcript(text)
}

func (l *Listener) engineError(engine string, err error) error {
	if errors.Is(err, provider.ErrActivationLimit) {
		return fmt.Errorf("listener: %s: %w", engine, err)
	}
	slog.Warn("listener: engine error, skipping frame", "engine", engine, "err", err)
	return nil
}

// Close releases the wake-word detector and the transcriber.
func (l *Listener) Close() error {
	return errors.Join(l.detector.Close(), l.stt.Close())
}
