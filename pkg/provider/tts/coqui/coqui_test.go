package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxpipe/pkg/audio"
	"github.com/MrWong99/voxpipe/pkg/audio/wav"
	"github.com/MrWong99/voxpipe/pkg/provider/tts"
)

// ---- test helpers ----

func drainAudio(ch <-chan []byte) []int16 {
	var out []byte
	for chunk := range ch {
		out = append(out, chunk...)
	}
	return audio.BytesToInt16(out)
}

func sendFragments(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): %v", serverURL, err)
	}
	return p
}

// samplesFor returns a clip whose length encodes the sentence, so that the
// emitted order can be checked.
func samplesFor(sentence string) []int16 {
	s := make([]int16, 10)
	for i := range s {
		s[i] = int16(len(sentence))
	}
	return s
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty server URL")
	}
	if _, err := New("http://localhost:5002", WithAPIMode("grpc")); err == nil {
		t.Error("expected error for unknown API mode")
	}
	if _, err := New("http://localhost:5002", WithSampleRate(0)); err == nil {
		t.Error("expected error for zero sample rate")
	}
	p := mustNew(t, "http://localhost:5002/")
	if p.serverURL != "http://localhost:5002" || p.SampleRate() != defaultSampleRate || p.apiMode != APIModeStandard {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

// ---- SynthesizeStream ----

func TestSynthesizeStream_StandardOrdered(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != standardEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		text := r.URL.Query().Get("text")
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
		// Answer the first sentence last.
		if strings.HasPrefix(text, "Hello") {
			time.Sleep(30 * time.Millisecond)
		}
		_, _ = w.Write(wav.Encode(samplesFor(text), defaultSampleRate))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ch, err := p.SynthesizeStream(context.Background(), sendFragments("Hello ", "world. ", "Bye", "!"), tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	pcm := drainAudio(ch)

	if len(pcm) != 20 {
		t.Fatalf("got %d samples, want 20", len(pcm))
	}
	if pcm[0] != int16(len("Hello world.")) || pcm[10] != int16(len("Bye!")) {
		t.Errorf("audio out of order: first=%d second=%d", pcm[0], pcm[10])
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("server saw %q, want two sentences", seen)
	}
}

func TestSynthesizeStream_XTTSRequest(t *testing.T) {
	t.Parallel()

	reqs := make(chan xttsRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != xttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req xttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		reqs <- req
		_, _ = w.Write(wav.Encode(make([]int16, 4), defaultSampleRate))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("de"))
	ch, err := p.SynthesizeStream(context.Background(), sendFragments("Hallo Welt."), tts.VoiceProfile{ID: "anna"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	drainAudio(ch)

	req := <-reqs
	if req.Text != "Hallo Welt." || req.SpeakerWav != "anna" || req.Language != "de" {
		t.Errorf("request = %+v", req)
	}
}

func TestSynthesizeStream_XTTSNeedsVoice(t *testing.T) {
	t.Parallel()

	p := mustNew(t, "http://localhost:1", WithAPIMode(APIModeXTTS))
	if _, err := p.SynthesizeStream(context.Background(), sendFragments(), tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice ID in XTTS mode")
	}
}

func TestSynthesizeStream_Resamples(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(wav.Encode(make([]int16, 100), 24000))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithSampleRate(16000))
	ch, err := p.SynthesizeStream(context.Background(), sendFragments("One."), tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if got := len(drainAudio(ch)); got != 66 {
		t.Errorf("got %d samples, want 66 after 24k → 16k", got)
	}
}

func TestSynthesizeStream_ServerErrorEndsStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ch, err := p.SynthesizeStream(context.Background(), sendFragments("A sentence."), tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if pcm := drainAudio(ch); len(pcm) != 0 {
		t.Errorf("expected no audio on server error, got %d samples", len(pcm))
	}
}

func TestSynthesizeStream_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write(wav.Encode(make([]int16, 4), defaultSampleRate))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := p.SynthesizeStream(ctx, make(chan string), tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	done := make(chan struct{})
	go func() {
		drainAudio(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("audio channel did not close after cancellation")
	}
}

// ---- Sentence splitting ----

func TestFindSentenceBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  int
	}{
		{"Hello.", 5},
		{"Hello. World", 5},
		{"Hello!", 5},
		{"How? Great!", 3},
		{"Hello", -1},
		{"Dr. Smith", 2},
		{"3.14 is pi", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := findSentenceBoundary(tt.input); got != tt.want {
			t.Errorf("findSentenceBoundary(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
