package stt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxpipe/pkg/provider/stt"
	"github.com/MrWong99/voxpipe/pkg/provider/stt/mock"
)

func frame() []int16 { return make([]int16, 512) }

func TestTranscriber_OpensSessionLazily(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	tr := stt.NewTranscriber(context.Background(), p, stt.StreamConfig{SampleRate: 16000})
	if got := p.StartStreamCallCount(); got != 0 {
		t.Fatalf("StartStream called %d times before first frame", got)
	}

	if _, _, err := tr.Process(frame()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := p.StartStreamCallCount(); got != 1 {
		t.Fatalf("StartStream called %d times, want 1", got)
	}
	if cfg := p.StartStreamCalls[0].Cfg; cfg.Channels != 1 || cfg.SampleRate != 16000 {
		t.Errorf("unexpected stream config %+v", cfg)
	}
	if got := p.Opened[0].SendAudioCallCount(); got != 1 {
		t.Errorf("SendAudio called %d times, want 1", got)
	}
	if got := len(p.Opened[0].Chunks[0]); got != 1024 {
		t.Errorf("chunk length = %d bytes, want 1024", got)
	}
}

func TestTranscriber_ReturnsFinalsAndEndpoint(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	p := &mock.Provider{Session: sess}
	tr := stt.NewTranscriber(context.Background(), p, stt.StreamConfig{SampleRate: 16000})

	sess.PartialsCh <- stt.Transcript{Text: "what is"}
	sess.FinalsCh <- stt.Transcript{Text: "What is", IsFinal: true}
	text, endpoint, err := tr.Process(frame())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != "What is" || endpoint {
		t.Fatalf("got (%q, %v), want (\"What is\", false)", text, endpoint)
	}

	sess.FinalsCh <- stt.Transcript{Text: "the time?", IsFinal: true, EndOfUtterance: true}
	text, endpoint, err = tr.Process(frame())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != " the time?" || !endpoint {
		t.Fatalf("got (%q, %v), want (\" the time?\", true)", text, endpoint)
	}

	rest, err := tr.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if rest != "" {
		t.Errorf("Flush = %q, want empty", rest)
	}
	if !sess.Closed() {
		t.Error("session was not closed by Flush")
	}
}

func TestTranscriber_FlushReturnsPendingText(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	tr := stt.NewTranscriber(context.Background(), &mock.Provider{Session: sess}, stt.StreamConfig{SampleRate: 16000})
	if _, _, err := tr.Process(frame()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sess.FinalsCh <- stt.Transcript{Text: "trailing words", IsFinal: true}
	rest, err := tr.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if rest != "trailing words" {
		t.Errorf("Flush = %q, want %q", rest, "trailing words")
	}
}

func TestTranscriber_FlushWithoutSession(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	tr := stt.NewTranscriber(context.Background(), p, stt.StreamConfig{})
	rest, err := tr.Flush()
	if err != nil || rest != "" {
		t.Fatalf("Flush = (%q, %v), want empty, nil", rest, err)
	}
	if p.StartStreamCallCount() != 0 {
		t.Error("Flush must not open a session")
	}
}

func TestTranscriber_ReopensEndedSession(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	tr := stt.NewTranscriber(context.Background(), p, stt.StreamConfig{SampleRate: 16000})
	if _, _, err := tr.Process(frame()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	first := p.Opened[0]
	first.FinalsCh <- stt.Transcript{Text: "bye", IsFinal: true, EndOfUtterance: true}
	close(first.FinalsCh)

	text, endpoint, err := tr.Process(frame())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != "bye" || !endpoint {
		t.Fatalf("got (%q, %v), want (\"bye\", true)", text, endpoint)
	}
	if !first.Closed() {
		t.Error("ended session was not closed")
	}

	if _, _, err := tr.Process(frame()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := p.StartStreamCallCount(); got != 2 {
		t.Errorf("StartStream called %d times, want 2", got)
	}
}

func TestTranscriber_PrepareOpensAhead(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	tr := stt.NewTranscriber(context.Background(), p, stt.StreamConfig{SampleRate: 16000})
	tr.Prepare()
	tr.Prepare()
	if _, _, err := tr.Process(frame()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := p.StartStreamCallCount(); got != 1 {
		t.Errorf("StartStream called %d times, want 1", got)
	}
}

func TestTranscriber_SendErrorDropsSession(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("socket gone")
	sess := mock.NewSession()
	sess.SendAudioErr = sendErr
	tr := stt.NewTranscriber(context.Background(), &mock.Provider{Session: sess}, stt.StreamConfig{})

	_, _, err := tr.Process(frame())
	if !errors.Is(err, sendErr) {
		t.Fatalf("err = %v, want wrapping %v", err, sendErr)
	}
	if !sess.Closed() {
		t.Error("failing session was not closed")
	}
}

func TestTranscriber_OpenError(t *testing.T) {
	t.Parallel()

	openErr := errors.New("unauthorized")
	tr := stt.NewTranscriber(context.Background(), &mock.Provider{StartStreamErr: openErr}, stt.StreamConfig{})
	if _, _, err := tr.Process(frame()); !errors.Is(err, openErr) {
		t.Fatalf("err = %v, want wrapping %v", err, openErr)
	}
}
