package enrollment

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
	"github.com/MrWong99/voxpipe/pkg/provider/wakeword"
)

// Verifier scores every captured frame against a speaker profile and
// reports the score whenever the wake word is heard.
type Verifier struct {
	src        audio.Source
	detector   wakeword.Detector
	recognizer speakerid.Recognizer
	onScore    func(score float64)
}

// NewVerifier returns a Verifier calling onScore with the speaker score of
// every frame that carried the wake word. The source, detector and
// recognizer must agree on the frame length.
func NewVerifier(src audio.Source, detector wakeword.Detector, recognizer speakerid.Recognizer, onScore func(float64)) (*Verifier, error) {
	n := src.FrameLength()
	if detector.FrameLength() != n || recognizer.FrameLength() != n {
		return nil, fmt.Errorf("%w: source %d, wake word %d, recognizer %d",
			ErrFrameLength, n, detector.FrameLength(), recognizer.FrameLength())
	}
	return &Verifier{src: src, detector: detector, recognizer: recognizer, onScore: onScore}, nil
}

// Run processes frames until ctx is cancelled or the source ends, which both
// return nil. Recognizer errors and activation-limit errors of the detector
// stop the run.
func (v *Verifier) Run(ctx context.Context) (err error) {
	if err := v.src.Start(); err != nil {
		return fmt.Errorf("verification: start recording: %w", err)
	}
	defer func() {
		if stopErr := v.src.Stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("verification: stop recording: %w", stopErr)
		}
	}()

	for {
		frame, err := readFrame(ctx, v.src)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}

		hit, err := detect(v.detector, frame)
		if err != nil {
			return err
		}
		score, err := v.recognizer.Process(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("verification: recognize: %w", err)
		}
		if hit {
			v.onScore(score)
		}
	}
}
