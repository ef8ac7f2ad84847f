package wav_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voxpipe/pkg/audio/wav"
)

func TestEncode_Header(t *testing.T) {
	t.Parallel()

	data := wav.Encode([]int16{1, -1, 300}, 16000)
	if len(data) != 44+6 {
		t.Fatalf("len = %d, want 50", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Errorf("unexpected chunk ids: %q %q %q", data[0:4], data[8:12], data[36:40])
	}
}

func TestDecode_ReadsEncodedSamples(t *testing.T) {
	t.Parallel()

	in := []int16{0, 32767, -32768, 12}
	samples, rate, err := wav.Decode(wav.Encode(in, 22050))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 22050 {
		t.Errorf("rate = %d, want 22050", rate)
	}
	if len(samples) != len(in) {
		t.Fatalf("got %d samples, want %d", len(samples), len(in))
	}
	for i := range in {
		if samples[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, samples[i], in[i])
		}
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, _, err := wav.Decode([]byte("definitely not a wav file at all, no sir....")); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "enroll-0.wav")
	if err := wav.WriteFile(path, []int16{5, 6, 7}, 16000); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 44+6 {
		t.Errorf("file size = %d, want 50", info.Size())
	}
}

func TestDecode_SkipsListChunk(t *testing.T) {
	t.Parallel()

	plain := wav.Encode([]int16{7, 8}, 24000)
	// Splice a 4-byte LIST chunk between fmt and data.
	var data []byte
	data = append(data, plain[:36]...)
	data = append(data, 'L', 'I', 'S', 'T', 4, 0, 0, 0, 'I', 'N', 'F', 'O')
	data = append(data, plain[36:]...)

	samples, rate, err := wav.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 24000 || len(samples) != 2 || samples[1] != 8 {
		t.Errorf("got rate=%d samples=%v", rate, samples)
	}
}
