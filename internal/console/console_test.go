package console_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxpipe/internal/console"
	"github.com/MrWong99/voxpipe/internal/pipeline"
)

func TestPrinter_Conversation(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	p := console.NewPrinter(&b, console.CustomWakePrompt)

	p.Ready()
	p.WakeWordDetected()
	p.Listening()
	p.Transcript("what time")
	p.Transcript(" is it")
	p.UtteranceComplete("what time is it")
	p.ResponseStarted()
	p.ResponseText("It is ")
	p.ResponseText("noon.")
	p.ResponseComplete()
	p.Idle()

	want := "$ Say the wake word ...\n" +
		"\n$ Wake word detected, utter your request or question ...\n" +
		"User > what time is it\n" +
		"LLM (say the wake word to interrupt) > It is noon.\n" +
		"$ Say the wake word ...\n"
	if got := b.String(); got != want {
		t.Errorf("output mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestPrinter_Profile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report pipeline.Report
		want   string
	}{
		{"llm", pipeline.Report{Stage: pipeline.StageLLM, TPS: 42.456}, "[LLM TPS: 42.46]\n"},
		{"wake word", pipeline.Report{Stage: pipeline.StageWakeWord, RTF: 0.0123}, "[Wake word RTF: 0.01]\n"},
		{"transcriber", pipeline.Report{Stage: pipeline.StageTranscriber, RTF: 0.5}, "[Transcriber RTF: 0.5]\n"},
		{"synthesizer", pipeline.Report{Stage: pipeline.StageSynthesizer, RTF: 0.25, Delay: 0.3}, "[Synthesizer RTF: 0.25]\n[Delay: 0.3 sec]\n"},
		{"no audio", pipeline.Report{Stage: pipeline.StageSynthesizer, RTF: 0, Delay: -1}, "[Synthesizer RTF: 0]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var b strings.Builder
			console.NewPrinter(&b, console.DefaultWakePrompt).Profile(tt.report)
			if got := b.String(); got != tt.want {
				t.Errorf("Profile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrinter_Progress(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	p := console.NewPrinter(&b, console.DefaultWakePrompt)
	p.Progress(7.9, "Good audio")
	if got, want := b.String(), "\033[2K\033[1G\r[  7%] Good audio"; got != want {
		t.Errorf("Progress() = %q, want %q", got, want)
	}
}

func TestPrinter_Devices(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	console.NewPrinter(&b, console.DefaultWakePrompt).Devices([]string{"mic", "usb"})
	if got, want := b.String(), "Device #0: mic\nDevice #1: usb\n"; got != want {
		t.Errorf("Devices() = %q, want %q", got, want)
	}
}

// lockedBuilder guards a strings.Builder written by the animation goroutine.
type lockedBuilder struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuilder) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuilder) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestAnimation_StopLeavesFinalLine(t *testing.T) {
	t.Parallel()

	var out lockedBuilder
	a := console.NewPrinter(&out, console.DefaultWakePrompt).Animate(time.Millisecond)
	a.Set(42, "- Good audio")
	a.Stop()
	a.Stop()

	got := out.String()
	if want := "\033[2K\033[1G\r[ 42%] - Good audio"; !strings.HasSuffix(got, want) {
		t.Errorf("output %q does not end with %q", got, want)
	}

	// No redraws after Stop.
	time.Sleep(5 * time.Millisecond)
	if out.String() != got {
		t.Error("animation kept drawing after Stop")
	}
}
