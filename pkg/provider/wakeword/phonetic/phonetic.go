// Package phonetic implements a wake-word detector on top of a streaming
// speech-to-text provider. Short transcripts of the incoming audio are
// compared against the wake phrases with Double Metaphone codes and
// Jaro-Winkler similarity, so that "pico voice" or "peak a voice" still wake
// the assistant for "picovoice".
package phonetic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
	"github.com/MrWong99/voxpipe/pkg/provider/wakeword"
)

// DefaultPhrase is the wake phrase used when none is configured.
const DefaultPhrase = "picovoice"

const (
	defaultFrameLength = 512
	defaultSampleRate  = 16000
	defaultSensitivity = 0.5

	// Wake phrases are short; a quick endpoint keeps detection latency low.
	defaultEndpoint = 300 * time.Millisecond

	maxThreshold = 0.97
	minThreshold = 0.75
	fuzzyPenalty = 0.15

	keywordBoost = 2.0
)

// Option configures a [Detector].
type Option func(*Detector)

// WithPhrases sets the wake phrases. Defaults to [DefaultPhrase].
func WithPhrases(phrases ...string) Option {
	return func(d *Detector) {
		d.rawPhrases = phrases
	}
}

// WithSensitivity sets the detection sensitivity in [0,1]. Higher values
// accept looser matches. Default: 0.5.
func WithSensitivity(s float64) Option {
	return func(d *Detector) {
		d.sensitivity = s
	}
}

// WithFrameLength sets the number of samples per frame. Default: 512.
func WithFrameLength(n int) Option {
	return func(d *Detector) {
		d.frameLength = n
	}
}

// WithSampleRate sets the frame sample rate. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(d *Detector) {
		d.sampleRate = rate
	}
}

// WithEndpoint sets the silence after which the backend finalises a
// transcript. Default: 300 ms.
func WithEndpoint(d time.Duration) Option {
	return func(det *Detector) {
		det.endpoint = d
	}
}

// Detector implements wakeword.Detector by transcribing the incoming audio
// and matching the transcripts against the wake phrases.
type Detector struct {
	ctx      context.Context
	provider stt.Provider

	rawPhrases  []string
	phrases     []phrase
	sensitivity float64
	threshold   float64
	frameLength int
	sampleRate  int
	endpoint    time.Duration

	sess stt.SessionHandle
	next chan openResult

	// pending holds the frames that arrived while the session was opening.
	pending    [][]int16
	maxPending int
}

type openResult struct {
	sess stt.SessionHandle
	err  error
}

// pendingAudio bounds the audio kept while a session is being opened.
const pendingAudio = 2 * time.Second

var _ wakeword.Detector = (*Detector)(nil)

// New returns a Detector that listens through p. ctx bounds every STT session
// the detector opens.
func New(ctx context.Context, p stt.Provider, opts ...Option) (*Detector, error) {
	if p == nil {
		return nil, errors.New("phonetic: stt provider must not be nil")
	}
	d := &Detector{
		ctx:         ctx,
		provider:    p,
		rawPhrases:  []string{DefaultPhrase},
		sensitivity: defaultSensitivity,
		frameLength: defaultFrameLength,
		sampleRate:  defaultSampleRate,
		endpoint:    defaultEndpoint,
	}
	for _, o := range opts {
		o(d)
	}

	var errs []error
	if d.sensitivity < 0 || d.sensitivity > 1 {
		errs = append(errs, fmt.Errorf("phonetic: sensitivity %v outside [0,1]", d.sensitivity))
	}
	if d.frameLength <= 0 {
		errs = append(errs, fmt.Errorf("phonetic: frame length must be positive, got %d", d.frameLength))
	}
	for _, raw := range d.rawPhrases {
		ph := newPhrase(raw)
		if len(ph.tokens) == 0 {
			errs = append(errs, fmt.Errorf("phonetic: wake phrase %q has no words", raw))
			continue
		}
		d.phrases = append(d.phrases, ph)
	}
	if len(d.phrases) == 0 && len(errs) == 0 {
		errs = append(errs, errors.New("phonetic: at least one wake phrase is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	d.threshold = thresholdFor(d.sensitivity)
	d.maxPending = max(1, int(pendingAudio.Seconds()*float64(d.sampleRate))/d.frameLength)
	d.prepare()
	return d, nil
}

// FrameLength implements wakeword.Detector.
func (d *Detector) FrameLength() int { return d.frameLength }

// SampleRate implements wakeword.Detector.
func (d *Detector) SampleRate() int { return d.sampleRate }

// Process implements wakeword.Detector. It never waits for the backend:
// while a session is being opened the frame is queued and Process reports no
// detection.
func (d *Detector) Process(frame []int16) (bool, error) {
	if len(frame) != d.frameLength {
		return false, fmt.Errorf("phonetic: frame has %d samples, want %d", len(frame), d.frameLength)
	}
	if d.sess == nil {
		d.queue(frame)
		d.prepare()
		select {
		case res := <-d.next:
			d.next = nil
			if err := d.adopt(res); err != nil {
				return false, err
			}
		default:
			return false, nil
		}
	} else if err := d.send(frame); err != nil {
		return false, err
	}

	hit, ended := d.poll()
	if hit || ended {
		// The next detection must not see audio from before this point.
		d.retire()
	}
	return hit, nil
}

// Ready blocks until the detector has a session open, or ctx is done.
// Process works without it; Ready lets callers start with a warm session.
func (d *Detector) Ready(ctx context.Context) error {
	if d.sess != nil {
		return nil
	}
	d.prepare()
	select {
	case res := <-d.next:
		d.next = nil
		return d.adopt(res)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements wakeword.Detector.
func (d *Detector) Close() error {
	d.pending = nil
	if d.next != nil {
		opening := d.next
		d.next = nil
		go func() {
			if res := <-opening; res.sess != nil {
				_ = res.sess.Close()
			}
		}()
	}
	if d.sess == nil {
		return nil
	}
	sess := d.sess
	d.sess = nil
	return sess.Close()
}

// prepare starts opening a session in the background unless one is open or
// on its way.
func (d *Detector) prepare() {
	if d.sess != nil || d.next != nil {
		return
	}
	ch := make(chan openResult, 1)
	d.next = ch
	cfg := d.streamConfig()
	go func() {
		sess, err := d.provider.StartStream(d.ctx, cfg)
		ch <- openResult{sess: sess, err: err}
	}()
}

// adopt installs a freshly opened session and replays the queued frames.
func (d *Detector) adopt(res openResult) error {
	if res.err != nil {
		d.pending = nil
		return fmt.Errorf("phonetic: start stream: %w", res.err)
	}
	d.sess = res.sess
	queued := d.pending
	d.pending = nil
	for _, f := range queued {
		if err := d.send(f); err != nil {
			return err
		}
	}
	return nil
}

func (d *Detector) send(frame []int16) error {
	if err := d.sess.SendAudio(audio.Int16ToBytes(frame)); err != nil {
		d.retire()
		return fmt.Errorf("phonetic: send audio: %w", err)
	}
	return nil
}

// queue keeps a copy of frame, dropping the oldest one when full.
func (d *Detector) queue(frame []int16) {
	if len(d.pending) == d.maxPending {
		d.pending = d.pending[1:]
	}
	d.pending = append(d.pending, append([]int16(nil), frame...))
}

// Matches reports whether text contains one of the wake phrases, and the
// best score seen.
func (d *Detector) Matches(text string) (bool, float64) {
	tokens := tokenize(text)
	best := 0.0
	for _, p := range d.phrases {
		if s := p.bestScore(tokens); s > best {
			best = s
		}
	}
	return best >= d.threshold, best
}

// poll checks every transcript that is ready without blocking.
func (d *Detector) poll() (hit, ended bool) {
	check := func(tr stt.Transcript) {
		if hit || tr.Text == "" {
			return
		}
		if ok, score := d.Matches(tr.Text); ok {
			slog.Debug("wake phrase detected", "text", tr.Text, "score", score)
			hit = true
		}
	}
	for {
		select {
		case tr, ok := <-d.sess.Partials():
			if ok {
				check(tr)
				continue
			}
		default:
		}
		select {
		case tr, ok := <-d.sess.Finals():
			if !ok {
				return hit, true
			}
			check(tr)
			continue
		default:
		}
		return hit, false
	}
}

// retire closes the current session in the background and starts opening its
// replacement. Closing may block while the backend finishes its last
// inference.
func (d *Detector) retire() {
	sess := d.sess
	d.sess = nil
	d.prepare()
	go func() {
		if err := sess.Close(); err != nil {
			slog.Debug("wake word session close failed", "err", err)
		}
	}()
}

func (d *Detector) streamConfig() stt.StreamConfig {
	keywords := make([]stt.KeywordBoost, 0, len(d.phrases))
	for _, p := range d.phrases {
		keywords = append(keywords, stt.KeywordBoost{Keyword: p.text, Boost: keywordBoost})
	}
	return stt.StreamConfig{
		SampleRate:       d.sampleRate,
		Channels:         1,
		Keywords:         keywords,
		EndpointDuration: d.endpoint,
	}
}

// LoadPhrases reads wake phrases from a text file, one per line. Blank lines
// and lines starting with '#' are ignored.
func LoadPhrases(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phonetic: open phrase file: %w", err)
	}
	defer f.Close()

	var phrases []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phrases = append(phrases, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phonetic: read phrase file: %w", err)
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("phonetic: phrase file %q contains no phrases", path)
	}
	return phrases, nil
}
