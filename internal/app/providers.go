package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"google.golang.org/api/option"

	"github.com/MrWong99/voxpipe/internal/config"
	"github.com/MrWong99/voxpipe/internal/health"
	"github.com/MrWong99/voxpipe/internal/observe"
	"github.com/MrWong99/voxpipe/internal/resilience"
	"github.com/MrWong99/voxpipe/pkg/provider/llm"
	"github.com/MrWong99/voxpipe/pkg/provider/llm/anyllm"
	"github.com/MrWong99/voxpipe/pkg/provider/llm/openai"
	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
	"github.com/MrWong99/voxpipe/pkg/provider/speakerid/embedding"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
	"github.com/MrWong99/voxpipe/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxpipe/pkg/provider/stt/google"
	"github.com/MrWong99/voxpipe/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxpipe/pkg/provider/tts"
	"github.com/MrWong99/voxpipe/pkg/provider/tts/coqui"
	"github.com/MrWong99/voxpipe/pkg/provider/tts/elevenlabs"
)

// Providers holds the engines of the voice pipeline. Populated by
// [BuildProviders] or injected directly by tests.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// RegisterBuiltins registers every provider implementation shipped with
// voxpipe. ctx is kept by providers that dial long-lived clients.
func RegisterBuiltins(ctx context.Context, reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends share one shape: optional key and base URL.
	for _, name := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama is a local server and takes no key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []google.Option
		if entry.Model != "" {
			opts = append(opts, google.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, google.WithLanguage(lang))
		}
		var clientOpts []option.ClientOption
		if entry.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(entry.APIKey))
		}
		if file := optString(entry.Options, "credentials_file"); file != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(file))
		}
		if entry.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithEndpoint(entry.BaseURL))
		}
		if len(clientOpts) > 0 {
			opts = append(opts, google.WithClientOptions(clientOpts...))
		}
		return google.New(ctx, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "silence"); d > 0 {
			opts = append(opts, whisper.WithSilence(d))
		}
		if d := optDuration(entry.Options, "max_buffer"); d > 0 {
			opts = append(opts, whisper.WithMaxBuffer(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if d := optDuration(entry.Options, "silence"); d > 0 {
			opts = append(opts, whisper.WithNativeSilence(d))
		}
		if d := optDuration(entry.Options, "max_buffer"); d > 0 {
			opts = append(opts, whisper.WithNativeMaxBuffer(d))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if rate, ok := optInt(entry.Options, "sample_rate"); ok {
			opts = append(opts, elevenlabs.WithSampleRate(rate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate, ok := optInt(entry.Options, "sample_rate"); ok {
			opts = append(opts, coqui.WithSampleRate(rate))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Speaker ───────────────────────────────────────────────────────────────

	reg.RegisterProfiler("embedding", func(entry config.ProviderEntry) (speakerid.Profiler, error) {
		var opts []embedding.ProfilerOption
		if d := optDuration(entry.Options, "min_clip"); d > 0 {
			opts = append(opts, embedding.WithMinClip(d))
		}
		if d := optDuration(entry.Options, "target"); d > 0 {
			opts = append(opts, embedding.WithTarget(d))
		}
		if rms, ok := optFloat(entry.Options, "noise_floor"); ok {
			opts = append(opts, embedding.WithNoiseFloor(rms))
		}
		if t, ok := optFloat(entry.Options, "same_speaker_threshold"); ok {
			opts = append(opts, embedding.WithSameSpeakerThreshold(t))
		}
		return embedding.NewProfiler(embeddingClient(entry), opts...)
	})

	reg.RegisterRecognizer("embedding", func(entry config.ProviderEntry, profile []byte) (speakerid.Recognizer, error) {
		var opts []embedding.RecognizerOption
		window, hop := optDuration(entry.Options, "window"), optDuration(entry.Options, "hop")
		if window > 0 && hop > 0 {
			opts = append(opts, embedding.WithWindow(window, hop))
		}
		return embedding.NewRecognizer(embeddingClient(entry), profile, opts...)
	})

	for kind, names := range map[string][]string{
		"llm":     {"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"},
		"stt":     {"deepgram", "google", "whisper", "whisper-native"},
		"tts":     {"elevenlabs", "coqui"},
		"speaker": {"embedding"},
	} {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

func embeddingClient(entry config.ProviderEntry) *embedding.Client {
	var opts []embedding.ClientOption
	if entry.APIKey != "" {
		opts = append(opts, embedding.WithAPIKey(entry.APIKey))
	}
	if d := optDuration(entry.Options, "timeout"); d > 0 {
		opts = append(opts, embedding.WithTimeout(d))
	}
	return embedding.NewClient(entry.BaseURL, opts...)
}

// BuildProviders instantiates the configured LLM, STT and TTS providers and
// wraps each in a circuit-breaking fallback group. The returned checkers
// report the health of those groups for /readyz.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, []health.Checker, error) {
	p := cfg.Providers

	llmEntry := withCredential(cfg, p.LLM.ProviderEntry)
	primaryLLM, err := reg.CreateLLM(llmEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create LLM provider %q: %w", llmEntry.Name, err)
	}
	llmGroup := resilience.NewLLMFallback(primaryLLM, llmEntry.Name, resilience.FallbackConfig{Kind: "llm", Metrics: m})
	for _, fb := range p.LLM.Fallbacks {
		fb = withCredential(cfg, fb)
		alt, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, nil, fmt.Errorf("create LLM fallback %q: %w", fb.Name, err)
		}
		llmGroup.AddFallback(fb.Name, alt)
	}

	sttEntry := withCredential(cfg, p.STT)
	primarySTT, err := reg.CreateSTT(sttEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create STT provider %q: %w", sttEntry.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(primarySTT, sttEntry.Name, resilience.FallbackConfig{Kind: "stt", Metrics: m})

	ttsEntry := withCredential(cfg, p.TTS)
	primaryTTS, err := reg.CreateTTS(ttsEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create TTS provider %q: %w", ttsEntry.Name, err)
	}
	ttsGroup := resilience.NewTTSFallback(primaryTTS, ttsEntry.Name, resilience.FallbackConfig{Kind: "tts", Metrics: m})

	slog.Info("providers ready", "llm", llmEntry.Name, "llm_model", llmEntry.Model,
		"llm_fallbacks", len(p.LLM.Fallbacks), "stt", sttEntry.Name, "tts", ttsEntry.Name)

	providers := &Providers{LLM: llmGroup, STT: sttGroup, TTS: ttsGroup}
	checkers := []health.Checker{
		{Name: "llm", Check: llmGroup.Healthy},
		{Name: "stt", Check: sttGroup.Healthy},
		{Name: "tts", Check: ttsGroup.Healthy},
	}
	return providers, checkers, nil
}

// withCredential fills in the shared access key for entries without one.
func withCredential(cfg *config.Config, entry config.ProviderEntry) config.ProviderEntry {
	entry.APIKey = cfg.Credential(entry)
	return entry
}

// SpeakerEntry returns the speaker provider entry with its credential
// resolved.
func SpeakerEntry(cfg *config.Config) config.ProviderEntry {
	return withCredential(cfg, cfg.Providers.Speaker)
}

// ─── Option helpers ──────────────────────────────────────────────────────────

// optString returns opts[key] as a string, or "" when absent or not a string.
func optString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// optFloat returns opts[key] as a float64. YAML and JSON decode numbers as
// int or float64 depending on the literal.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// optDuration parses opts[key] as a Go duration string such as "250ms".
// Invalid values are logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
