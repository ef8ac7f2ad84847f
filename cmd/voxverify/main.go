// Command voxverify scores the person saying the wake word against a
// speaker profile made by voxenroll and prints the score of every
// detection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/MrWong99/voxpipe/internal/app"
	"github.com/MrWong99/voxpipe/internal/config"
	"github.com/MrWong99/voxpipe/internal/console"
	"github.com/MrWong99/voxpipe/internal/enrollment"
	"github.com/MrWong99/voxpipe/pkg/provider"
)

func main() {
	os.Exit(run())
}

func run() int {
	set := flag.NewFlagSet("voxverify", flag.ContinueOnError)
	flags := config.BindFlags(set)
	flags.String("wake_word_path", "file with the wake phrases, one per line", func(c *config.Config) *string { return &c.KeywordModelPath })
	flags.Float("wake_word_sensitivity", "wake word sensitivity in [0, 1]", func(c *config.Config) *float64 { return &c.Sensitivity })
	profilePath := set.String("speaker_profile_path", "", "speaker profile written by voxenroll")
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitUsage
	}

	if flags.ShowDevices {
		if err := app.ShowDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "voxverify: %v\n", err)
			return app.ExitFailure
		}
		return app.ExitOK
	}

	cfg, err := flags.Resolve("access_key")
	if err == nil && *profilePath == "" {
		err = fmt.Errorf("%w: --speaker_profile_path", config.ErrMissingRequired)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxverify: %v\n", err)
		return app.ExitUsage
	}
	slog.SetDefault(app.NewLogger(cfg.LogLevel))

	profile, err := os.ReadFile(*profilePath)
	if err != nil {
		slog.Error("failed to read speaker profile", "err", err)
		return app.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	app.RegisterBuiltins(ctx, reg)

	speaker := app.SpeakerEntry(cfg)
	recognizer, err := reg.CreateRecognizer(speaker, profile)
	if err != nil {
		slog.Error("failed to create speaker recognizer", "provider", speaker.Name, "err", err)
		return app.ExitFailure
	}

	capture, err := app.OpenCapture(cfg, recognizer.FrameLength(), recognizer.SampleRate())
	if err != nil {
		slog.Error("failed to open capture device", "err", err)
		return app.ExitFailure
	}
	defer capture.Close()

	detector, err := app.NewWakeWord(ctx, cfg, reg, recognizer.FrameLength(), recognizer.SampleRate())
	if err != nil {
		slog.Error("failed to create wake word detector", "err", err)
		return app.ExitFailure
	}
	defer detector.Close()

	printer := console.NewPrinter(os.Stdout, "")
	verifier, err := enrollment.NewVerifier(capture, detector, recognizer, func(score float64) {
		printer.Println(strconv.FormatFloat(score, 'f', -1, 64))
	})
	if err != nil {
		slog.Error("failed to start verification", "err", err)
		return app.ExitFailure
	}

	printer.Println("Listening for audio... (press Ctrl+C to stop)")
	if err := verifier.Run(ctx); err != nil {
		if errors.Is(err, provider.ErrActivationLimit) {
			printer.Println("\n" + app.ActivationLimitMessage)
		} else {
			slog.Error("verification stopped", "err", err)
		}
		return app.ExitFailure
	}
	printer.Println("\nStopping...")
	return app.ExitOK
}
