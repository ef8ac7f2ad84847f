package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

// Transcriber adapts a streaming [Provider] to the frame-by-frame contract of
// the voice pipeline: every captured frame goes in, and whatever new final
// text is available comes out together with an endpoint flag.
//
// Each utterance gets its own session. [Transcriber.Flush] retires the
// current session; [Transcriber.Prepare] opens the next one in the background
// so that the connection is usually ready once the first frame arrives.
// Sessions that end on their own (backends with single-utterance streams) are
// replaced lazily.
//
// A Transcriber is owned by a single goroutine and is not safe for concurrent
// use.
type Transcriber struct {
	ctx      context.Context
	provider Provider
	cfg      StreamConfig

	sess SessionHandle
	next chan openResult

	// spoke is set once the current utterance produced text, so that later
	// pieces are separated by a space.
	spoke bool
}

type openResult struct {
	sess SessionHandle
	err  error
}

// NewTranscriber returns a Transcriber that opens sessions on p with cfg.
// ctx bounds every session it opens. No session is opened until the first
// call to Process.
func NewTranscriber(ctx context.Context, p Provider, cfg StreamConfig) *Transcriber {
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Transcriber{ctx: ctx, provider: p, cfg: cfg}
}

// SampleRate is the sample rate frames passed to Process must have.
func (t *Transcriber) SampleRate() int { return t.cfg.SampleRate }

// Process sends frame to the current session and returns the final text that
// became available since the previous call. endpoint reports that the backend
// detected the end of the utterance.
func (t *Transcriber) Process(frame []int16) (text string, endpoint bool, err error) {
	sess, err := t.session()
	if err != nil {
		return "", false, err
	}
	if err := sess.SendAudio(audio.Int16ToBytes(frame)); err != nil {
		t.discard()
		return "", false, fmt.Errorf("stt: send audio: %w", err)
	}
	pieces, endpoint, ended := collect(sess)
	if ended {
		t.discard()
	}
	return t.join(pieces), endpoint, nil
}

// Flush returns any final text still pending for the current utterance and
// retires its session.
func (t *Transcriber) Flush() (string, error) {
	if t.sess == nil {
		t.spoke = false
		return "", nil
	}
	pieces, _, _ := collect(t.sess)
	text := t.join(pieces)
	t.spoke = false
	t.discard()
	return text, nil
}

// Close releases the current session and any session still being opened.
func (t *Transcriber) Close() error {
	var err error
	if t.sess != nil {
		err = t.sess.Close()
		t.sess = nil
	}
	if t.next != nil {
		pending := t.next
		t.next = nil
		go func() {
			if res := <-pending; res.sess != nil {
				_ = res.sess.Close()
			}
		}()
	}
	if err != nil {
		return fmt.Errorf("stt: close session: %w", err)
	}
	return nil
}

func (t *Transcriber) session() (SessionHandle, error) {
	if t.sess != nil {
		return t.sess, nil
	}
	t.Prepare()
	res := <-t.next
	t.next = nil
	if res.err != nil {
		return nil, fmt.Errorf("stt: open session: %w", res.err)
	}
	t.sess = res.sess
	return t.sess, nil
}

// Prepare starts opening a session in the background unless one is already
// open or on its way.
func (t *Transcriber) Prepare() {
	if t.sess != nil || t.next != nil {
		return
	}
	ch := make(chan openResult, 1)
	t.next = ch
	go func() {
		sess, err := t.provider.StartStream(t.ctx, t.cfg)
		ch <- openResult{sess: sess, err: err}
	}()
}

func (t *Transcriber) discard() {
	if t.sess == nil {
		return
	}
	_ = t.sess.Close()
	t.sess = nil
}

func (t *Transcriber) join(pieces []string) string {
	var sb strings.Builder
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if t.spoke {
			sb.WriteByte(' ')
		}
		sb.WriteString(p)
		t.spoke = true
	}
	return sb.String()
}

// collect drains everything the session has produced so far without
// blocking. Partials are discarded; only committed text is returned. ended
// reports that the session closed its finals channel.
func collect(sess SessionHandle) (pieces []string, endpoint, ended bool) {
	audio.DrainPending(sess.Partials())

	finals := sess.Finals()
	for {
		select {
		case tr, ok := <-finals:
			if !ok {
				return pieces, endpoint, true
			}
			pieces = append(pieces, tr.Text)
			if tr.EndOfUtterance {
				endpoint = true
			}
		default:
			return pieces, endpoint, false
		}
	}
}
