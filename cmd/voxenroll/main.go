// Command voxenroll records a speaker profile for the personal wake word.
// The speaker repeats the wake word until enrollment reaches 100 %; the
// profile is then written to --speaker_profile_path.
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

	"github.com/MrWong99/voxpipe/internal/app"
	"github.com/MrWong99/voxpipe/internal/config"
	"github.com/MrWong99/voxpipe/internal/console"
	"github.com/MrWong99/voxpipe/internal/enrollment"
	"github.com/MrWong99/voxpipe/pkg/provider"
	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
)

func main() {
	os.Exit(run())
}

func run() int {
	set := flag.NewFlagSet("voxenroll", flag.ContinueOnError)
	flags := config.BindFlags(set)
	flags.String("wake_word_path", "file with the wake phrases, one per line", func(c *config.Config) *string { return &c.KeywordModelPath })
	flags.Float("wake_word_sensitivity", "wake word sensitivity in [0, 1]", func(c *config.Config) *float64 { return &c.Sensitivity })
	profilePath := set.String("speaker_profile_path", "", "file the speaker profile is written to")
	xrayFolder := set.String("xray_folder", "", "folder receiving every enrollment clip as WAV (recreated on start)")
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitUsage
	}

	if flags.ShowDevices {
		if err := app.ShowDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "voxenroll: %v\n", err)
			return app.ExitFailure
		}
		return app.ExitOK
	}

	cfg, err := flags.Resolve("access_key")
	if err == nil && *profilePath == "" {
		err = fmt.Errorf("%w: --speaker_profile_path", config.ErrMissingRequired)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxenroll: %v\n", err)
		return app.ExitUsage
	}
	slog.SetDefault(app.NewLogger(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	app.RegisterBuiltins(ctx, reg)

	speaker := app.SpeakerEntry(cfg)
	profiler, err := reg.CreateProfiler(speaker)
	if err != nil {
		slog.Error("failed to create speaker profiler", "provider", speaker.Name, "err", err)
		return app.ExitFailure
	}

	capture, err := app.OpenCapture(cfg, 0, profiler.SampleRate())
	if err != nil {
		slog.Error("failed to open capture device", "err", err)
		return app.ExitFailure
	}
	defer capture.Close()

	detector, err := app.NewWakeWord(ctx, cfg, reg, capture.FrameLength(), capture.SampleRate())
	if err != nil {
		slog.Error("failed to create wake word detector", "err", err)
		return app.ExitFailure
	}
	defer detector.Close()

	printer := console.NewPrinter(os.Stdout, "")
	printer.Println("Please keep speaking until the enrollment percentage reaches 100%")
	anim := printer.Animate(console.DefaultAnimationInterval)

	enroller, err := enrollment.NewEnroller(capture, detector, profiler,
		enrollment.WithXRayFolder(*xrayFolder),
		enrollment.WithProgress(func(percent float64, fb speakerid.Feedback) {
			anim.Set(percent, "- "+fb.String())
		}),
	)
	if err != nil {
		anim.Stop()
		slog.Error("failed to start enrollment", "err", err)
		return app.ExitFailure
	}

	profile, err := enroller.Run(ctx)
	anim.Stop()
	switch {
	case errors.Is(err, context.Canceled):
		printer.Println("\nStopping enrollment. No speaker profile is saved.")
		return app.ExitOK
	case errors.Is(err, provider.ErrActivationLimit):
		printer.Println("\n" + app.ActivationLimitMessage)
		return app.ExitFailure
	case err != nil:
		printer.Println(fmt.Sprintf("\nFailed to enroll speaker: %v", err))
		return app.ExitFailure
	}

	if err := os.WriteFile(*profilePath, profile, 0o644); err != nil {
		slog.Error("failed to save speaker profile", "path", *profilePath, "err", err)
		return app.ExitFailure
	}
	printer.Println("\nSpeaker profile is saved to " + *profilePath)
	return app.ExitOK
}
