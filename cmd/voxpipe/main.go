// Command voxpipe is a hands-free LLM voice assistant: say the wake word,
// ask a question and listen to the streamed answer. Saying the wake word
// again interrupts the answer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voxpipe/internal/app"
	"github.com/MrWong99/voxpipe/internal/config"
	"github.com/MrWong99/voxpipe/internal/observe"
	"github.com/MrWong99/voxpipe/pkg/provider"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	set := flag.NewFlagSet("voxpipe", flag.ContinueOnError)
	flags := config.BindFlags(set)
	flags.BindAssistant()
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitUsage
	}

	if flags.ShowDevices {
		if err := app.ShowDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "voxpipe: %v\n", err)
			return app.ExitFailure
		}
		return app.ExitOK
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := flags.Resolve("access_key", "llm_model")
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxpipe: %v\n", err)
		return app.ExitUsage
	}

	slog.SetDefault(app.NewLogger(cfg.LogLevel))
	slog.Info("voxpipe starting", "version", version, "log_level", cfg.LogLevel, "metrics_addr", cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return app.ExitFailure
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltins(ctx, reg)

	providers, checkers, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return app.ExitFailure
	}

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics), app.WithCheckers(checkers...))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return app.ExitFailure
	}

	printer := application.Printer()
	p := cfg.Providers
	printer.Banner("LLM", p.LLM.Name+" "+p.LLM.Model)
	printer.Banner("STT", p.STT.Name)
	printer.Banner("TTS", p.TTS.Name)

	code := app.ExitOK
	if err := application.Run(ctx); err != nil {
		if errors.Is(err, provider.ErrActivationLimit) {
			printer.Println("\n" + app.ActivationLimitMessage)
		}
		slog.Error("pipeline stopped", "err", err)
		code = app.ExitFailure
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return app.ExitFailure
	}
	slog.Info("goodbye")
	return code
}
