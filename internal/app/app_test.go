package app_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxpipe/internal/app"
	"github.com/MrWong99/voxpipe/internal/config"
	audiomock "github.com/MrWong99/voxpipe/pkg/audio/mock"
	"github.com/MrWong99/voxpipe/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxpipe/pkg/provider/llm/mock"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxpipe/pkg/provider/stt/mock"
	"github.com/MrWong99/voxpipe/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxpipe/pkg/provider/tts/mock"
	wakemock "github.com/MrWong99/voxpipe/pkg/provider/wakeword/mock"
)

// syncBuffer is a bytes.Buffer safe for the console and the test goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.AccessKey = "test-key"
	return &cfg
}

func testProviders(sttP stt.Provider) *app.Providers {
	if sttP == nil {
		sttP = &sttmock.Provider{}
	}
	return &app.Providers{
		LLM: &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Noon."}}},
		STT: sttP,
		TTS: &ttsmock.Provider{},
	}
}

func silence(frames int) [][]int16 {
	out := make([][]int16, frames)
	for i := range out {
		out[i] = make([]int16, 512)
	}
	return out
}

func runApp(t *testing.T, a *app.App) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{LLM: &llmmock.Provider{}})
	if err == nil {
		t.Fatal("New with missing providers succeeded")
	}
}

func TestRun_EndOfInput(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	src := &audiomock.Source{Frames: silence(3)}
	sink := &audiomock.Sink{Rate: 16000}
	det := &wakemock.Detector{}

	a, err := app.New(context.Background(), testConfig(), testProviders(nil),
		app.WithSource(src), app.WithSink(sink), app.WithDetector(det), app.WithOutput(out))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := runApp(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if got := out.String(); got != "$ Say `Picovoice` ...\n" {
		t.Errorf("console = %q", got)
	}
	if det.Calls() != 3 {
		t.Errorf("detector calls = %d, want 3", det.Calls())
	}
	if !det.Closed() || src.CallCountClose != 1 || sink.CallCountClose != 1 {
		t.Errorf("detector closed=%v source closes=%d sink closes=%d",
			det.Closed(), src.CallCountClose, sink.CallCountClose)
	}
	if a.OpsAddr() != "" {
		t.Errorf("OpsAddr = %q without metrics_addr", a.OpsAddr())
	}
}

func TestRun_CustomWakePrompt(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.KeywordModelPath = "jarvis.txt"
	out := &syncBuffer{}

	a, err := app.New(context.Background(), cfg, testProviders(nil),
		app.WithSource(&audiomock.Source{}), app.WithSink(&audiomock.Sink{Rate: 16000}),
		app.WithDetector(&wakemock.Detector{}), app.WithOutput(out))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := runApp(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); !strings.Contains(got, "Say the wake word ...") {
		t.Errorf("console = %q", got)
	}
}

func TestRun_PrintsRequest(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	chunks := 0
	sess.OnSendAudio = func(s *sttmock.Session, _ []byte) {
		chunks++
		if chunks == 3 {
			s.FinalsCh <- stt.Transcript{Text: "what time is it", IsFinal: true, EndOfUtterance: true}
		}
	}

	out := &syncBuffer{}
	a, err := app.New(context.Background(), testConfig(), testProviders(&sttmock.Provider{Session: sess}),
		app.WithSource(&audiomock.Source{Frames: silence(20)}),
		app.WithSink(&audiomock.Sink{Rate: 16000}),
		app.WithDetector(&wakemock.Detector{DetectOn: map[int]bool{0: true}}),
		app.WithOutput(out))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := runApp(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"$ Wake word detected, utter your request or question ...\n",
		"User > what time is it\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("console missing %q in %q", want, got)
		}
	}
}

func TestRun_OpsEndpoints(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"

	a, err := app.New(context.Background(), cfg, testProviders(nil),
		app.WithSource(&audiomock.Source{Frames: silence(1)}),
		app.WithSink(&audiomock.Sink{Rate: 16000}),
		app.WithDetector(&wakemock.Detector{}),
		app.WithOutput(&syncBuffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Shutdown(context.Background()) }()

	if err := runApp(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}

	base := "http://" + a.OpsAddr()
	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/metrics", http.StatusOK},
		// The pipeline has stopped, so the readiness flag is down.
		{"/readyz", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		resp, err := http.Get(base + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), testProviders(nil),
		app.WithSource(&audiomock.Source{}), app.WithSink(&audiomock.Sink{Rate: 16000}),
		app.WithDetector(&wakemock.Detector{}), app.WithOutput(&syncBuffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 2 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}
}

// ─── BuildProviders ──────────────────────────────────────────────────────────

func TestBuildProviders_ResolvesCredentials(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		keys = map[string]string{}
	)
	record := func(name, key string) {
		mu.Lock()
		defer mu.Unlock()
		keys[name] = key
	}

	reg := config.NewRegistry()
	reg.RegisterLLM("primary", func(e config.ProviderEntry) (llm.Provider, error) {
		record("primary", e.APIKey)
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("backup", func(e config.ProviderEntry) (llm.Provider, error) {
		record("backup", e.APIKey)
		return &llmmock.Provider{}, nil
	})
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Provider, error) {
		record("stt", e.APIKey)
		return &sttmock.Provider{}, nil
	})
	reg.RegisterTTS("fake", func(e config.ProviderEntry) (tts.Provider, error) {
		record("tts", e.APIKey)
		return &ttsmock.Provider{Rate: 24000}, nil
	})

	cfg := testConfig()
	cfg.Providers.LLM.Name = "primary"
	cfg.Providers.LLM.Fallbacks = []config.ProviderEntry{{Name: "backup", APIKey: "own-key"}}
	cfg.Providers.STT = config.ProviderEntry{Name: "fake"}
	cfg.Providers.TTS = config.ProviderEntry{Name: "fake"}

	providers, checkers, err := app.BuildProviders(cfg, reg, nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}

	want := map[string]string{"primary": "test-key", "backup": "own-key", "stt": "test-key", "tts": "test-key"}
	for name, key := range want {
		if keys[name] != key {
			t.Errorf("%s key = %q, want %q", name, keys[name], key)
		}
	}
	if got := providers.TTS.SampleRate(); got != 24000 {
		t.Errorf("TTS SampleRate = %d, want 24000", got)
	}
	if len(checkers) != 3 {
		t.Fatalf("checkers = %d, want 3", len(checkers))
	}
	for _, c := range checkers {
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("checker %s: %v", c.Name, err)
		}
	}
}

func TestBuildProviders_UnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers.LLM.Name = "nope"

	_, _, err := app.BuildProviders(cfg, config.NewRegistry(), nil)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestBuildProviders_FallbackError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := config.NewRegistry()
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})

	cfg := testConfig()
	cfg.Providers.LLM.Name = "primary"
	cfg.Providers.LLM.Fallbacks = []config.ProviderEntry{{Name: "broken"}}

	_, _, err := app.BuildProviders(cfg, reg, nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	app.RegisterBuiltins(context.Background(), reg)

	p, err := reg.CreateTTS(config.ProviderEntry{
		Name:    "coqui",
		BaseURL: "http://localhost:5002",
		Options: map[string]any{"sample_rate": 24000, "api_mode": "xtts"},
	})
	if err != nil {
		t.Fatalf("CreateTTS(coqui): %v", err)
	}
	if got := p.SampleRate(); got != 24000 {
		t.Errorf("coqui SampleRate = %d, want 24000", got)
	}

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"}); err == nil {
		t.Error("coqui without server URL succeeded")
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "unknown"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT(unknown) err = %v", err)
	}
}
