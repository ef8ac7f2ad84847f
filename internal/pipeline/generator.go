package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider"
	"github.com/MrWong99/voxpipe/pkg/provider/llm"
)

// shortAnswersPrefix is prepended to every request when short answers are
// enabled.
const shortAnswersPrefix = "You are a voice assistant and your answers are very short but informative. "

// GenerationConfig holds the sampling parameters of every completion.
type GenerationConfig struct {
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
	MaxTokens        int

	// ShortAnswers asks the model to keep its answers brief.
	ShortAnswers bool
}

// Generator is the driver-side handle of the LLM stage. Its worker, started
// with [Generator.Run], streams each request into the model and passes the
// speakable text on to the [Synthesizer].
//
// Every method except Run must be called from the driver goroutine.
type Generator struct {
	synth *Synthesizer
	opts  options
	turn  uuid.UUID

	inbox  chan Message
	outbox chan Message
	worker genWorker
}

type genWorker struct {
	llm    llm.Provider
	dialog *llm.Dialog
	cfg    GenerationConfig
	buf    *CompletionBuffer
	tps    *TPSProfiler
}

// generation is one in-flight completion.
type generation struct {
	turn   uuid.UUID
	cancel context.CancelFunc
	done   chan error
}

// NewGenerator returns the LLM stage. dialog keeps the conversation across
// turns and is owned by the worker from now on.
func NewGenerator(p llm.Provider, dialog *llm.Dialog, cfg GenerationConfig, synth *Synthesizer, opts ...Option) *Generator {
	o := newOptions(opts)
	return &Generator{
		synth:  synth,
		opts:   o,
		inbox:  make(chan Message, inboxSize),
		outbox: make(chan Message, outboxSize),
		worker: genWorker{
			llm:    p,
			dialog: dialog,
			cfg:    cfg,
			buf:    NewCompletionBuffer(StopPhrases),
			tps:    NewTPSProfiler(o.now),
		},
	}
}

// ---- driver side ----

// Generate starts a response to text, an utterance that ended at end.
func (g *Generator) Generate(text string, end time.Time, turn uuid.UUID) {
	g.opts.obs.ResponseStarted()
	g.synth.Start(end, turn)
	g.turn = turn
	post(g.inbox, "generator", Generate{Text: text, Endpoint: end, Turn: turn})
}

// Interrupt abandons the current response in this and every later stage.
func (g *Generator) Interrupt() {
	post(g.inbox, "generator", Interrupt{})
	g.synth.Interrupt()
	g.turn = uuid.Nil
}

// Close asks the worker to stop.
func (g *Generator) Close() {
	post(g.inbox, "generator", Close{})
}

// Tick forwards the worker's output of the current turn to the synthesizer.
func (g *Generator) Tick() error {
	for {
		var msg Message
		select {
		case msg = <-g.outbox:
		default:
			return nil
		}
		switch m := msg.(type) {
		case Synthesize:
			if !g.current(m.Turn) {
				continue
			}
			g.opts.obs.ResponseText(m.Text)
			g.synth.Process(m.Text)
		case Flush:
			if !g.current(m.Turn) {
				continue
			}
			if g.opts.profile && m.Report != nil {
				g.opts.obs.Profile(*m.Report)
			}
			g.opts.obs.ResponseComplete()
			g.synth.Flush()
		default:
			slog.Warn("generator: unexpected message from worker", "type", typeName(msg))
		}
	}
}

func (g *Generator) current(turn uuid.UUID) bool {
	return g.turn != uuid.Nil && turn == g.turn
}

// ---- worker ----

// Run runs the worker until it receives Close or ctx is cancelled. It
// returns an error wrapping [provider.ErrActivationLimit] when the LLM
// backend refuses further work.
func (g *Generator) Run(ctx context.Context) error {
	w := &g.worker
	var active *generation
	defer func() {
		if active != nil {
			active.cancel()
			<-active.done
		}
	}()

	for {
		var finished <-chan error
		if active != nil {
			finished = active.done
		}

		select {
		case <-ctx.Done():
			return nil

		case genErr := <-finished:
			gen := active
			active = nil
			gen.cancel()
			if err := w.complete(ctx, gen.turn, genErr, g.outbox); err != nil {
				return err
			}

		case msg := <-g.inbox:
			switch m := msg.(type) {
			case Generate:
				if active != nil {
					if err := w.abandon(active); err != nil {
						return err
					}
				}
				active = w.start(ctx, m, g.outbox)
			case Interrupt:
				if active == nil {
					continue
				}
				gen := active
				active = nil
				if err := w.abandon(gen); err != nil {
					return err
				}
			case Close:
				return nil
			default:
				slog.Warn("generator: unexpected message", "type", typeName(msg))
			}
		}
	}
}

func (w *genWorker) start(ctx context.Context, m Generate, out chan<- Message) *generation {
	w.buf.Reset()
	w.tps.Reset()
	text := m.Text
	if w.cfg.ShortAnswers {
		text = shortAnswersPrefix + text
	}
	w.dialog.AddUser(text)

	req := llm.CompletionRequest{
		Messages:         w.dialog.Messages(),
		SystemPrompt:     w.dialog.SystemPrompt(),
		Temperature:      w.cfg.Temperature,
		TopP:             w.cfg.TopP,
		PresencePenalty:  w.cfg.PresencePenalty,
		FrequencyPenalty: w.cfg.FrequencyPenalty,
		MaxTokens:        w.cfg.MaxTokens,
		Stop:             StopPhrases,
	}

	genCtx, cancel := context.WithCancel(ctx)
	gen := &generation{turn: m.Turn, cancel: cancel, done: make(chan error, 1)}
	go func() {
		gen.done <- w.stream(genCtx, req, m.Turn, out)
	}()
	return gen
}

// stream runs one completion. Only the worker goroutine touches the buffer
// and profiler once the generation is done.
func (w *genWorker) stream(ctx context.Context, req llm.CompletionRequest, turn uuid.UUID, out chan<- Message) error {
	chunks, err := w.llm.StreamCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("generator: start completion: %w", err)
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			go audio.Drain(chunks)
			return fmt.Errorf("generator: completion: %w", chunk.Err)
		}
		w.tps.Tock()
		text := w.buf.Append(chunk.Text)
		if text == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			go audio.Drain(chunks)
			return err
		}
		if err := send(ctx, out, Synthesize{Text: text, Turn: turn}); err != nil {
			go audio.Drain(chunks)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if tail := w.buf.Finish(); tail != "" {
		return send(ctx, out, Synthesize{Text: tail, Turn: turn})
	}
	return nil
}

// complete handles a generation that ended on its own.
func (w *genWorker) complete(ctx context.Context, turn uuid.UUID, err error, out chan<- Message) error {
	if err != nil {
		if errors.Is(err, provider.ErrActivationLimit) {
			return err
		}
		slog.Warn("generator: completion failed", "err", err)
		w.dialog.Rollback()
		return nil
	}
	w.dialog.AddResponse(w.buf.Text())
	report := &Report{Stage: StageLLM, TPS: w.tps.TPS()}
	_ = send(ctx, out, Flush{Report: report, Turn: turn})
	return nil
}

// abandon cancels gen and waits for it. What was already spoken stays in the
// dialog; a request that got no answer at all is dropped.
func (w *genWorker) abandon(gen *generation) error {
	gen.cancel()
	err := <-gen.done
	if err != nil && errors.Is(err, provider.ErrActivationLimit) {
		return err
	}
	if text := w.buf.Text(); text != "" {
		w.dialog.AddResponse(text)
	} else {
		w.dialog.Rollback()
	}
	w.buf.Reset()
	w.tps.Reset()
	return nil
}
