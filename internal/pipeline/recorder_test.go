package pipeline_test

import (
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/voxpipe/internal/pipeline"
	audiomock "github.com/MrWong99/voxpipe/pkg/audio/mock"
)

func TestRecorder_StartsOnFirstRead(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Frames: [][]int16{{1, 2}, {3, 4}}}
	rec := pipeline.NewRecorder(src)
	if src.CallCountStart != 0 {
		t.Fatal("device started before the first read")
	}

	for i := range 2 {
		f, err := rec.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if len(f.Samples) != 2 {
			t.Errorf("frame %d has %d samples", i, len(f.Samples))
		}
	}
	if _, err := rec.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read after last frame = %v, want io.EOF", err)
	}
	if src.CallCountStart != 1 {
		t.Errorf("Start calls = %d, want 1", src.CallCountStart)
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if src.CallCountStop != 1 || src.CallCountClose != 1 {
		t.Errorf("stop=%d close=%d, want 1 and 1", src.CallCountStop, src.CallCountClose)
	}
}

func TestRecorder_CloseWithoutRecording(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	if err := pipeline.NewRecorder(src).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if src.CallCountStop != 0 || src.CallCountClose != 1 {
		t.Errorf("stop=%d close=%d, want 0 and 1", src.CallCountStop, src.CallCountClose)
	}
}

func TestRecorder_StartError(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{StartError: errors.New("no device")}
	if _, err := pipeline.NewRecorder(src).Read(); err == nil {
		t.Fatal("Read succeeded without a device")
	}
}
