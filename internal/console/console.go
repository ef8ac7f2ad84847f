// Package console renders the text user interface of the voxpipe tools on a
// terminal. Logs go to stderr through slog; everything here is meant for the
// person talking to the assistant.
package console

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/MrWong99/voxpipe/internal/pipeline"
)

// DefaultWakePrompt is shown when the built-in wake phrase is in use.
const DefaultWakePrompt = "`Picovoice`"

// CustomWakePrompt is shown when the wake phrases come from a file.
const CustomWakePrompt = "the wake word"

// Printer is a [pipeline.Observer] that prints the conversation. It is safe
// for concurrent use.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	prompt string
}

var _ pipeline.Observer = (*Printer)(nil)

// NewPrinter returns a Printer writing to w. prompt names the wake word in
// the instructions shown to the user.
func NewPrinter(w io.Writer, prompt string) *Printer {
	return &Printer{w: w, prompt: prompt}
}

// Ready prints the initial instruction.
func (p *Printer) Ready() {
	p.printf("$ Say %s ...\n", p.prompt)
}

// Banner prints one line describing an engine, e.g. its name and model.
func (p *Printer) Banner(engine, detail string) {
	p.printf("→ %s %s\n", engine, detail)
}

func (p *Printer) WakeWordDetected() {
	p.printf("\n$ Wake word detected, utter your request or question ...\n")
}

func (p *Printer) Listening() {
	p.printf("User > ")
}

func (p *Printer) Transcript(text string) {
	p.printf("%s", text)
}

func (p *Printer) UtteranceComplete(string) {
	p.printf("\n")
}

func (p *Printer) ResponseStarted() {
	p.printf("LLM (say %s to interrupt) > ", p.prompt)
}

func (p *Printer) ResponseText(text string) {
	p.printf("%s", text)
}

func (p *Printer) ResponseComplete() {
	p.printf("\n")
}

func (p *Printer) Idle() {
	p.Ready()
}

// Profile prints one profiling sample. The synthesizer sample also reports
// the delay until the first audio, unless no audio was produced.
func (p *Printer) Profile(r pipeline.Report) {
	switch r.Stage {
	case pipeline.StageLLM:
		p.printf("[LLM TPS: %s]\n", round2(r.TPS))
	case pipeline.StageSynthesizer:
		p.printf("[Synthesizer RTF: %s]\n", round2(r.RTF))
		if r.Delay >= 0 {
			p.printf("[Delay: %s sec]\n", round2(r.Delay))
		}
	case pipeline.StageWakeWord:
		p.printf("[Wake word RTF: %s]\n", round2(r.RTF))
	case pipeline.StageTranscriber:
		p.printf("[Transcriber RTF: %s]\n", round2(r.RTF))
	default:
		p.printf("[%s RTF: %s]\n", r.Stage, round2(r.RTF))
	}
}

// Devices prints the indexed list of capture devices.
func (p *Printer) Devices(names []string) {
	for i, name := range names {
		p.printf("Device #%d: %s\n", i, name)
	}
}

// Println prints a free-form line.
func (p *Printer) Println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, a...)
}

// Progress redraws the enrollment progress line in place.
func (p *Printer) Progress(percent float64, feedback string) {
	p.printf("\033[2K\033[1G\r[%3d%%] %s", int(percent), feedback)
}

func (p *Printer) printf(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, a...)
}

// round2 formats f rounded to two decimals without trailing zeros.
func round2(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}
