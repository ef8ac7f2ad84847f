// Package app wires the voice assistant together: audio devices, the wake
// word detector, the provider engines, the pipeline stages and the ops
// endpoints.
//
// New creates and connects every subsystem, Run drives the pipeline until
// the context is cancelled or the pipeline stops, and Shutdown releases what
// the pipeline does not own.
//
// For testing, inject devices and the detector via functional options
// (WithSource, WithSink, WithDetector). When an option is not provided, New
// opens the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voxpipe/internal/config"
	"github.com/MrWong99/voxpipe/internal/console"
	"github.com/MrWong99/voxpipe/internal/health"
	"github.com/MrWong99/voxpipe/internal/observe"
	"github.com/MrWong99/voxpipe/internal/pipeline"
	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/audio/malgo"
	"github.com/MrWong99/voxpipe/pkg/provider/llm"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
	"github.com/MrWong99/voxpipe/pkg/provider/tts"
	"github.com/MrWong99/voxpipe/pkg/provider/wakeword"
)

// App owns the lifetime of every subsystem of the assistant.
type App struct {
	cfg       *config.Config
	providers *Providers

	out      io.Writer
	source   audio.Source
	sink     audio.Sink
	detector wakeword.Detector
	metrics  *observe.Metrics
	checkers []health.Checker
	clock    func() time.Time

	printer *console.Printer
	turns   *observe.TurnObserver
	ready   *health.Flag
	driver  *pipeline.Driver

	opsListener net.Listener
	opsServer   *http.Server

	// closers release what the pipeline does not close itself. They run in
	// order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects the capture device instead of opening one via malgo.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects the playback device instead of opening one via malgo.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithDetector injects the wake word detector instead of building the
// phonetic detector on top of the STT provider.
func WithDetector(d wakeword.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithOutput redirects the console conversation. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCheckers adds readiness checks to /readyz, typically the ones returned
// by [BuildProviders].
func WithCheckers(checkers ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, checkers...) }
}

// WithClock replaces time.Now in the pipeline stages and turn spans.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.clock = now }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders] in production.
//
// Audio devices and the ops listener are opened before New returns; their
// errors are reported here, not from Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: LLM, STT and TTS providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		out:       os.Stdout,
		clock:     time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initAudio(); err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("app: init audio: %w", err)
	}
	if err := a.initDetector(ctx); err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("app: init wake word: %w", err)
	}
	if err := a.initOps(); err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("app: init ops server: %w", err)
	}
	a.initPipeline(ctx)
	return a, nil
}

// initAudio opens the capture and playback devices that were not injected.
func (a *App) initAudio() error {
	if a.source != nil && a.sink != nil {
		return nil
	}
	mctx, err := malgo.NewContext()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return mctx.Close() })

	if a.source == nil {
		src, err := malgo.NewSource(mctx, malgo.SourceConfig{DeviceIndex: a.cfg.AudioDeviceIndex})
		if err != nil {
			return fmt.Errorf("open capture device %d: %w", a.cfg.AudioDeviceIndex, err)
		}
		a.source = src
	}
	if a.sink == nil {
		sink, err := malgo.NewSink(mctx, malgo.SinkConfig{
			DeviceIndex: -1,
			SampleRate:  a.providers.TTS.SampleRate(),
		})
		if err != nil {
			return fmt.Errorf("open playback device: %w", err)
		}
		a.sink = sink
	}
	return nil
}

// initDetector builds the phonetic wake word detector on the STT provider
// unless one was injected.
func (a *App) initDetector(ctx context.Context) error {
	if a.detector != nil {
		return nil
	}
	d, err := newPhonetic(ctx, a.cfg, a.providers.STT, a.source.FrameLength(), a.source.SampleRate())
	if err != nil {
		return err
	}
	a.detector = d
	return nil
}

// initOps binds the metrics and health endpoints when metrics_addr is set.
func (a *App) initOps() error {
	a.ready = health.NewFlag("pipeline")
	if a.cfg.MetricsAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return err
	}
	checkers := append([]health.Checker{a.ready.Checker()}, a.checkers...)
	a.opsListener = ln
	a.opsServer = &http.Server{
		Handler:           OpsHandler(a.metrics, checkers...),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a.closers = append(a.closers, a.opsServer.Shutdown)
	return nil
}

// initPipeline assembles the stages in pipeline order. The driver closes the
// devices, the detector and the engine streams when it stops.
func (a *App) initPipeline(ctx context.Context) {
	cfg := a.cfg

	prompt := console.DefaultWakePrompt
	if cfg.KeywordModelPath != "" {
		prompt = console.CustomWakePrompt
	}
	a.printer = console.NewPrinter(a.out, prompt)
	a.turns = observe.NewTurnObserver(ctx, a.metrics, observe.WithTurnClock(a.clock))

	var screen pipeline.Observer = a.printer
	if !cfg.Profile {
		screen = profileFilter{a.printer}
	}
	obs := pipeline.MultiObserver{screen, a.turns}

	// Reports always feed the metrics. The console prints them only with
	// --profile.
	stageOpts := []pipeline.Option{
		pipeline.WithObserver(obs),
		pipeline.WithProfiling(true),
		pipeline.WithClock(a.clock),
	}

	speaker := pipeline.NewSpeaker(a.sink, seconds(cfg.WarmupSec), obs)

	voice := tts.VoiceProfile{ID: cfg.Voice, SpeedFactor: cfg.SpeechRate}
	stream := tts.NewStream(ctx, a.providers.TTS, voice)
	synth := pipeline.NewSynthesizer(stream, speaker, stageOpts...)

	dialog := llm.NewDialog(cfg.SystemPrompt, llm.WithMaxTurns(cfg.MaxTurns))
	gen := pipeline.NewGenerator(a.providers.LLM, dialog, pipeline.GenerationConfig{
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		PresencePenalty:  cfg.PresencePenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
		MaxTokens:        cfg.CompletionTokenLimit,
		ShortAnswers:     cfg.ShortAnswers,
	}, synth, stageOpts...)

	transcriber := stt.NewTranscriber(ctx, a.providers.STT, stt.StreamConfig{
		SampleRate:       a.source.SampleRate(),
		Channels:         1,
		EndpointDuration: seconds(cfg.EndpointDurationSec),
	})
	listener := pipeline.NewListener(a.detector, transcriber, gen, a.source.SampleRate(), stageOpts...)

	a.driver = pipeline.NewDriver(pipeline.NewRecorder(a.source), listener, gen, synth, speaker)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the ops endpoints and drives the pipeline until ctx is
// cancelled or the pipeline stops on its own. It returns nil after
// cancellation or end of input.
func (a *App) Run(ctx context.Context) error {
	if a.opsServer != nil {
		go func() {
			slog.Info("ops server listening", "addr", a.opsListener.Addr().String())
			if err := a.opsServer.Serve(a.opsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server stopped", "err", err)
			}
		}()
	}

	a.printer.Ready()
	a.ready.Set(true)
	defer a.ready.Set(false)

	return a.driver.Run(ctx)
}

// OpsAddr returns the bound address of the ops server, or "" when it is
// disabled.
func (a *App) OpsAddr() string {
	if a.opsListener == nil {
		return ""
	}
	return a.opsListener.Addr().String()
}

// Printer returns the console the assistant talks to.
func (a *App) Printer() *console.Printer {
	return a.printer
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends the open turn span and runs the closers in order, giving up
// when ctx expires. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.turns != nil {
			a.turns.Close()
		}
		shutdownErr = a.runClosers(ctx)
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers(ctx context.Context) error {
	for i, closer := range a.closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(ctx); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}

// release undoes a partial New. Devices opened before the failure are
// closed here because no driver will own them.
func (a *App) release(ctx context.Context) {
	if a.detector != nil {
		_ = a.detector.Close()
	}
	if a.source != nil {
		_ = a.source.Close()
	}
	if a.sink != nil {
		_ = a.sink.Close()
	}
	_ = a.runClosers(ctx)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// profileFilter hides profiling reports from the console when --profile is
// off.
type profileFilter struct {
	pipeline.Observer
}

func (profileFilter) Profile(pipeline.Report) {}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
