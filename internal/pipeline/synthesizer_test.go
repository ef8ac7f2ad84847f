package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxpipe/internal/pipeline"
	audiomock "github.com/MrWong99/voxpipe/pkg/audio/mock"
	"github.com/MrWong99/voxpipe/pkg/provider"
	"github.com/MrWong99/voxpipe/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxpipe/pkg/provider/tts/mock"
)

// runWorker starts run on its own goroutine and returns its result channel.
func runWorker(t *testing.T, run func(context.Context) error) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	return done
}

func waitWorker(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not return")
		return nil
	}
}

type synthFixture struct {
	tts     *ttsmock.Provider
	sink    *audiomock.Sink
	obs     *recordingObserver
	speaker *pipeline.Speaker
	synth   *pipeline.Synthesizer
	done    <-chan error
}

func newSynthFixture(t *testing.T, p *ttsmock.Provider, opts ...pipeline.Option) *synthFixture {
	t.Helper()
	f := &synthFixture{
		tts:  p,
		sink: &audiomock.Sink{Rate: 16000},
		obs:  &recordingObserver{},
	}
	f.speaker = pipeline.NewSpeaker(f.sink, 0, f.obs)
	stream := tts.NewStream(context.Background(), p, tts.VoiceProfile{})
	opts = append([]pipeline.Option{pipeline.WithObserver(f.obs)}, opts...)
	f.synth = pipeline.NewSynthesizer(stream, f.speaker, opts...)
	f.done = runWorker(t, f.synth.Run)
	return f
}

// tickUntil ticks the synthesizer and speaker, letting the mock device play
// instantly, until cond holds.
func (f *synthFixture) tickUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	eventually(t, what, func() bool {
		if err := f.synth.Tick(); err != nil {
			t.Fatalf("synth Tick: %v", err)
		}
		if err := f.speaker.Tick(); err != nil {
			t.Fatalf("speaker Tick: %v", err)
		}
		f.sink.Drain()
		return cond()
	})
}

func (f *synthFixture) close(t *testing.T) {
	t.Helper()
	f.synth.Close()
	if err := waitWorker(t, f.done); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestSynthesizer_Turn(t *testing.T) {
	t.Parallel()

	f := newSynthFixture(t, &ttsmock.Provider{SamplesPerChar: 2}, pipeline.WithProfiling(true))

	turn := uuid.New()
	f.synth.Start(time.Now(), turn)
	f.synth.Process("Hello ")
	f.synth.Process("world.")
	f.synth.Flush()

	f.tickUntil(t, "speaker idle", func() bool { return f.obs.Count("idle") == 1 })
	f.close(t)

	if got := f.sink.WrittenLen(); got != 24 {
		t.Errorf("written = %d samples, want 24", got)
	}
	if got, want := fmt.Sprint(f.tts.Received()), "[Hello  world.]"; got != want {
		t.Errorf("fragments = %s, want %s", got, want)
	}
	reports := f.obs.Reports()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	if r := reports[0]; r.Stage != pipeline.StageSynthesizer || r.Delay < 0 {
		t.Errorf("report = %+v, want synthesizer stage with a delay", r)
	}
}

func TestSynthesizer_EmptyTurnReportsNoDelay(t *testing.T) {
	t.Parallel()

	f := newSynthFixture(t, &ttsmock.Provider{}, pipeline.WithProfiling(true))

	f.synth.Start(time.Now(), uuid.New())
	f.synth.Flush()
	f.tickUntil(t, "speaker idle", func() bool { return f.obs.Count("idle") == 1 })
	f.close(t)

	reports := f.obs.Reports()
	if len(reports) != 1 || reports[0].Delay != -1 {
		t.Errorf("reports = %+v, want one with delay -1", reports)
	}
	if f.tts.Calls() != 0 {
		t.Errorf("tts streams opened = %d, want 0", f.tts.Calls())
	}
}

func TestSynthesizer_InterruptDropsAudio(t *testing.T) {
	t.Parallel()

	hold := make(chan struct{})
	f := newSynthFixture(t, &ttsmock.Provider{Hold: hold})

	f.synth.Start(time.Now(), uuid.New())
	f.synth.Process("aaaa")
	f.synth.Process("bbbb")
	eventually(t, "tts stream opened", func() bool { return f.tts.Calls() == 1 })

	f.synth.Interrupt()
	close(hold)

	f.synth.Start(time.Now(), uuid.New())
	f.synth.Process("cc")
	f.synth.Flush()
	f.tickUntil(t, "speaker idle", func() bool { return f.obs.Count("idle") == 1 })
	f.close(t)

	if got := f.sink.WrittenLen(); got != 2 {
		t.Errorf("written = %d samples, want 2 (interrupted audio leaked)", got)
	}
}

func TestSynthesizer_InterruptIdleIsNoop(t *testing.T) {
	t.Parallel()

	f := newSynthFixture(t, &ttsmock.Provider{})
	f.synth.Interrupt()
	f.synth.Process("outside a turn")
	f.synth.Flush()
	if err := f.synth.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	f.close(t)

	if f.tts.Calls() != 0 {
		t.Errorf("tts streams opened = %d, want 0", f.tts.Calls())
	}
	if start, flush, stop := f.sink.Counts(); start+flush+stop != 0 {
		t.Errorf("device touched: start=%d flush=%d stop=%d", start, flush, stop)
	}
	if got := f.obs.Events(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestSynthesizer_ActivationLimitIsFatal(t *testing.T) {
	t.Parallel()

	f := newSynthFixture(t, &ttsmock.Provider{
		SynthesizeErr: fmt.Errorf("quota: %w", provider.ErrActivationLimit),
	})
	f.synth.Start(time.Now(), uuid.New())
	f.synth.Process("hello")

	err := waitWorker(t, f.done)
	if !errors.Is(err, provider.ErrActivationLimit) {
		t.Errorf("Run error = %v, want ErrActivationLimit", err)
	}
}

func TestSynthesizer_ProviderErrorDropsChunk(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeErr: errors.New("backend down")}
	f := newSynthFixture(t, p)
	f.synth.Start(time.Now(), uuid.New())
	f.synth.Process("lost")
	f.synth.Flush()
	f.tickUntil(t, "speaker idle", func() bool { return f.obs.Count("idle") == 1 })
	f.close(t)

	if got := f.sink.WrittenLen(); got != 0 {
		t.Errorf("written = %d, want 0", got)
	}
}
