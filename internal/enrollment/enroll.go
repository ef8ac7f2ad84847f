// Package enrollment implements the personal wake word recipes: enrolling a
// speaker profile from wake word utterances, and verifying live utterances
// against that profile.
//
// Both run on a single goroutine that owns the capture device, the wake word
// detector and the speaker engine.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/audio/wav"
	"github.com/MrWong99/voxpipe/pkg/provider"
	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
	"github.com/MrWong99/voxpipe/pkg/provider/wakeword"
)

// TrailingFrames is the number of frames recorded after the wake word so
// that its tail is part of the enrollment clip.
const TrailingFrames = 8

// ErrFrameLength is returned when the capture device and an engine disagree
// on the frame length.
var ErrFrameLength = errors.New("enrollment: frame length mismatch")

// ProgressFunc receives the enrollment progress after every clip.
type ProgressFunc func(percent float64, feedback speakerid.Feedback)

// Enroller records wake word utterances and feeds them to a profiler until
// the profile is complete.
type Enroller struct {
	src      audio.Source
	detector wakeword.Detector
	profiler speakerid.Profiler

	progress ProgressFunc
	xray     string
}

// EnrollerOption configures an Enroller.
type EnrollerOption func(*Enroller)

// WithProgress sets the callback invoked after every enrollment clip.
func WithProgress(fn ProgressFunc) EnrollerOption {
	return func(e *Enroller) { e.progress = fn }
}

// WithXRayFolder dumps every enrollment clip into dir as enroll-<n>.wav. The
// folder is deleted and recreated when Run starts.
func WithXRayFolder(dir string) EnrollerOption {
	return func(e *Enroller) { e.xray = dir }
}

// NewEnroller returns an Enroller. src must deliver frames of the detector's
// frame length.
func NewEnroller(src audio.Source, detector wakeword.Detector, profiler speakerid.Profiler, opts ...EnrollerOption) (*Enroller, error) {
	if src.FrameLength() != detector.FrameLength() {
		return nil, fmt.Errorf("%w: source %d, wake word %d", ErrFrameLength, src.FrameLength(), detector.FrameLength())
	}
	e := &Enroller{
		src:      src,
		detector: detector,
		profiler: profiler,
		progress: func(float64, speakerid.Feedback) {},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Run enrolls clips until the profiler reports 100 % and returns the
// exported profile. It returns ctx.Err() when ctx is cancelled first; no
// profile is exported in that case.
func (e *Enroller) Run(ctx context.Context) ([]byte, error) {
	if e.xray != "" {
		if err := recreateDir(e.xray); err != nil {
			return nil, err
		}
	}

	percent := 0.0
	for n := 0; percent < 100; n++ {
		clip, err := e.record(ctx)
		if err != nil {
			return nil, err
		}
		if e.xray != "" {
			path := filepath.Join(e.xray, fmt.Sprintf("enroll-%d.wav", n))
			if err := wav.WriteFile(path, clip, e.src.SampleRate()); err != nil {
				return nil, fmt.Errorf("enrollment: write %s: %w", path, err)
			}
		}

		var feedback speakerid.Feedback
		percent, feedback, err = e.profiler.Enroll(ctx, clip)
		if err != nil {
			return nil, fmt.Errorf("enrollment: enroll clip %d: %w", n, err)
		}
		slog.Debug("enrollment clip", "index", n, "samples", len(clip), "percent", percent, "feedback", feedback.String())
		e.progress(percent, feedback)
	}

	profile, err := e.profiler.Export()
	if err != nil {
		return nil, fmt.Errorf("enrollment: export profile: %w", err)
	}
	return profile, nil
}

// record captures one clip: every frame up to and including the wake word,
// followed by TrailingFrames more. The device only runs while recording so
// that enrollment time is not spent capturing.
func (e *Enroller) record(ctx context.Context) (clip []int16, err error) {
	if err := e.src.Start(); err != nil {
		return nil, fmt.Errorf("enrollment: start recording: %w", err)
	}
	defer func() {
		if stopErr := e.src.Stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("enrollment: stop recording: %w", stopErr)
		}
	}()

	for detected := false; !detected; {
		frame, err := readFrame(ctx, e.src)
		if err != nil {
			return nil, err
		}
		clip = append(clip, frame...)
		if detected, err = detect(e.detector, frame); err != nil {
			return nil, err
		}
	}
	for range TrailingFrames {
		frame, err := readFrame(ctx, e.src)
		if err != nil {
			return nil, err
		}
		clip = append(clip, frame...)
	}
	return clip, nil
}

// readFrame returns the next frame, skipping read timeouts. It fails with
// ctx.Err() once ctx is done and with io.ErrUnexpectedEOF when a finite
// source runs dry.
func readFrame(ctx context.Context, src audio.Source) ([]int16, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := src.Read()
		switch {
		case err == nil:
			return frame.Samples, nil
		case errors.Is(err, audio.ErrTimeout):
			slog.Warn("enrollment: no audio frame", "err", err)
		case errors.Is(err, io.EOF):
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, fmt.Errorf("enrollment: read frame: %w", err)
		}
	}
}

// detect runs the wake word detector on frame. Only activation-limit errors
// are returned; others lose the frame.
func detect(d wakeword.Detector, frame []int16) (bool, error) {
	hit, err := d.Process(frame)
	if err == nil {
		return hit, nil
	}
	if errors.Is(err, provider.ErrActivationLimit) {
		return false, fmt.Errorf("enrollment: wake word: %w", err)
	}
	slog.Warn("enrollment: wake word frame failed", "err", err)
	return false, nil
}

func recreateDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("enrollment: clear xray folder: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("enrollment: create xray folder: %w", err)
	}
	return nil
}
