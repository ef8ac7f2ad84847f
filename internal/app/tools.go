package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/voxpipe/internal/config"
	"github.com/MrWong99/voxpipe/internal/console"
	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/audio/malgo"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
	"github.com/MrWong99/voxpipe/pkg/provider/wakeword"
	"github.com/MrWong99/voxpipe/pkg/provider/wakeword/phonetic"
)

// Process exit codes shared by the voxpipe commands.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ActivationLimitMessage is printed when a backend rejects the credential
// because its quota is used up.
const ActivationLimitMessage = "AccessKey has reached its processing limit"

// NewLogger returns the stderr text logger used by every command.
func NewLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Slog()}))
}

// ShowDevices prints the capture devices for --show_audio_devices.
func ShowDevices(w io.Writer) error {
	mctx, err := malgo.NewContext()
	if err != nil {
		return err
	}
	defer mctx.Close()

	devices, err := mctx.CaptureDevices()
	if err != nil {
		return err
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	console.NewPrinter(w, "").Devices(names)
	return nil
}

// Capture is a capture device opened for one of the speaker tools together
// with the miniaudio context that owns it.
type Capture struct {
	audio.Source
	ctx *malgo.Context
}

// OpenCapture opens the configured capture device with frames of
// frameLength samples.
func OpenCapture(cfg *config.Config, frameLength, sampleRate int) (*Capture, error) {
	mctx, err := malgo.NewContext()
	if err != nil {
		return nil, err
	}
	src, err := malgo.NewSource(mctx, malgo.SourceConfig{
		DeviceIndex: cfg.AudioDeviceIndex,
		FrameLength: frameLength,
		SampleRate:  sampleRate,
	})
	if err != nil {
		_ = mctx.Close()
		return nil, fmt.Errorf("open capture device %d: %w", cfg.AudioDeviceIndex, err)
	}
	return &Capture{Source: src, ctx: mctx}, nil
}

// Close releases the device and its context.
func (c *Capture) Close() error {
	err := c.Source.Close()
	if cerr := c.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewWakeWord builds the phonetic wake word detector of the speaker tools on
// the configured STT backend.
func NewWakeWord(ctx context.Context, cfg *config.Config, reg *config.Registry, frameLength, sampleRate int) (wakeword.Detector, error) {
	entry := withCredential(cfg, cfg.Providers.STT)
	sttP, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create STT provider %q: %w", entry.Name, err)
	}

	return newPhonetic(ctx, cfg, sttP, frameLength, sampleRate)
}

// newPhonetic builds the phonetic detector over sttP. keyword_model_path,
// when set, names a file of wake phrases.
func newPhonetic(ctx context.Context, cfg *config.Config, sttP stt.Provider, frameLength, sampleRate int) (wakeword.Detector, error) {
	phrases := []string{phonetic.DefaultPhrase}
	if cfg.KeywordModelPath != "" {
		var err error
		if phrases, err = phonetic.LoadPhrases(cfg.KeywordModelPath); err != nil {
			return nil, err
		}
	}
	return phonetic.New(ctx, sttP,
		phonetic.WithPhrases(phrases...),
		phonetic.WithSensitivity(cfg.Sensitivity),
		phonetic.WithFrameLength(frameLength),
		phonetic.WithSampleRate(sampleRate),
	)
}
