// Package pipeline implements the voice assistant loop: wake word, request
// transcription, LLM generation, incremental speech synthesis and playback,
// with barge-in at any time.
//
// # Architecture
//
// A single driver goroutine ticks the stages in a fixed order, one captured
// frame per tick:
//
//	Recorder → Listener → Generator → Synthesizer → Speaker
//
// The LLM and TTS stages run their engines on worker goroutines. The driver
// talks to them only through buffered [Message] channels, via proxies that
// tag every response with a turn ID and drop output of turns that were
// interrupted. The wake word interrupts every later stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

// DefaultJoinTimeout bounds each of the two waits for workers on shutdown.
const DefaultJoinTimeout = time.Second

var (
	// ErrWorkerWedged is returned by [Driver.Run] when workers ignored both
	// the Close message and the cancellation of their context.
	ErrWorkerWedged = errors.New("pipeline: workers did not stop")

	// ErrWorkerExited is returned by [Driver.Run] when a worker returned
	// without an error while the pipeline was running.
	ErrWorkerExited = errors.New("pipeline: worker exited unexpectedly")

	errEndOfInput = errors.New("pipeline: end of input")
)

// Driver runs the pipeline loop.
type Driver struct {
	recorder    *Recorder
	listener    *Listener
	generator   *Generator
	synthesizer *Synthesizer
	speaker     *Speaker

	joinTimeout time.Duration
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithJoinTimeout sets how long shutdown waits for workers before it
// cancels them, and again before it gives up. Default is 1s.
func WithJoinTimeout(d time.Duration) DriverOption {
	return func(dr *Driver) {
		if d > 0 {
			dr.joinTimeout = d
		}
	}
}

// NewDriver assembles a Driver from its stages. The stages must be wired to
// each other: listener to generator, generator to synthesizer and
// synthesizer to speaker.
func NewDriver(rec *Recorder, lis *Listener, gen *Generator, syn *Synthesizer, spk *Speaker, opts ...DriverOption) *Driver {
	d := &Driver{
		recorder:    rec,
		listener:    lis,
		generator:   gen,
		synthesizer: syn,
		speaker:     spk,
		joinTimeout: DefaultJoinTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

type workerExit struct {
	name string
	err  error
}

// Run starts the workers and ticks the stages until ctx is cancelled, a
// worker exits, a stage fails or the recorder reaches the end of its input.
// It then shuts every stage down.
//
// Run returns nil after cancellation or end of input, and the cause
// otherwise.
func (d *Driver) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	g, gctx := errgroup.WithContext(workerCtx)
	exited := make(chan workerExit, 2)
	for name, run := range map[string]func(context.Context) error{
		"generator":   d.generator.Run,
		"synthesizer": d.synthesizer.Run,
	} {
		g.Go(func() error {
			err := run(gctx)
			exited <- workerExit{name: name, err: err}
			return err
		})
	}

	runErr := d.loop(ctx, exited)
	switch {
	case errors.Is(runErr, errEndOfInput):
		slog.Info("pipeline: end of input")
		runErr = nil
	case runErr != nil:
		slog.Error("pipeline: stopping", "err", runErr)
	default:
		slog.Info("pipeline: shutting down")
	}

	d.closeStages()
	stopped, waitErr := d.join(g, cancelWorkers)
	if !stopped {
		return errors.Join(runErr, ErrWorkerWedged)
	}
	if runErr != nil {
		return runErr
	}
	if waitErr != nil {
		slog.Warn("pipeline: worker failed during shutdown", "err", waitErr)
	}
	return nil
}

func (d *Driver) loop(ctx context.Context, exited <-chan workerExit) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ex := <-exited:
			if ex.err != nil {
				return fmt.Errorf("pipeline: %s: %w", ex.name, ex.err)
			}
			return fmt.Errorf("%w: %s", ErrWorkerExited, ex.name)
		default:
		}
		if err := d.tick(); err != nil {
			return err
		}
	}
}

func (d *Driver) tick() error {
	frame, err := d.recorder.Read()
	switch {
	case err == nil:
		if err := d.listener.Process(frame); err != nil {
			return err
		}
	case errors.Is(err, io.EOF):
		return errEndOfInput
	case errors.Is(err, audio.ErrTimeout):
		slog.Warn("pipeline: no audio frame", "err", err)
	default:
		return fmt.Errorf("pipeline: read frame: %w", err)
	}

	if err := d.generator.Tick(); err != nil {
		return err
	}
	if err := d.synthesizer.Tick(); err != nil {
		return err
	}
	return d.speaker.Tick()
}

// closeStages closes the stages in pipeline order. Workers are only sent a
// Close message; join waits for them.
func (d *Driver) closeStages() {
	if err := d.recorder.Close(); err != nil {
		slog.Warn("pipeline: close recorder", "err", err)
	}
	if err := d.listener.Close(); err != nil {
		slog.Warn("pipeline: close listener", "err", err)
	}
	d.generator.Close()
	d.synthesizer.Close()
	if err := d.speaker.Close(); err != nil {
		slog.Warn("pipeline: close speaker", "err", err)
	}
}

// join waits for the workers, cancelling them after the first timeout.
// stopped is false if they are still running after the second.
func (d *Driver) join(g *errgroup.Group, cancel context.CancelFunc) (stopped bool, err error) {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return true, err
	case <-time.After(d.joinTimeout):
	}

	slog.Warn("pipeline: workers did not stop in time, cancelling", "timeout", d.joinTimeout)
	cancel()
	select {
	case err := <-done:
		return true, err
	case <-time.After(d.joinTimeout):
		slog.Error("pipeline: workers still running after cancellation")
		return false, nil
	}
}
