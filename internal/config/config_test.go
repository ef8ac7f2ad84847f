package config_test

import (
	"errors"
	"flag"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxpipe/internal/config"
)

const sampleYAML = `
access_key: key-from-file
log_level: debug
temperature: 0.7
top_p: 0.9
short_answers: true
providers:
  llm:
    name: openai
    model: gpt-4o-mini
    fallbacks:
      - name: ollama
        base_url: http://localhost:11434/v1
        model: llama3
  stt:
    name: deepgram
    api_key: dg-test
  tts:
    name: elevenlabs
  speaker:
    name: embedding
    base_url: http://localhost:9000
`

func TestDefaults_AreValid(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate(Defaults()) = %v", err)
	}
	if cfg.CompletionTokenLimit != 256 || cfg.TopP != 1 || cfg.Sensitivity != 0.5 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.AudioDeviceIndex != -1 {
		t.Errorf("AudioDeviceIndex = %d, want -1", cfg.AudioDeviceIndex)
	}
}

func TestDecode_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	if err := config.Decode(strings.NewReader(sampleYAML), &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.AccessKey != "key-from-file" {
		t.Errorf("AccessKey = %q", cfg.AccessKey)
	}
	if cfg.Temperature != 0.7 || cfg.TopP != 0.9 || !cfg.ShortAnswers {
		t.Errorf("tunables not decoded: %+v", cfg)
	}
	if cfg.CompletionTokenLimit != 256 {
		t.Errorf("CompletionTokenLimit = %d, want default 256", cfg.CompletionTokenLimit)
	}
	if got := cfg.Providers.LLM.Model; got != "gpt-4o-mini" {
		t.Errorf("LLM model = %q", got)
	}
	if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Name != "ollama" {
		t.Errorf("fallbacks = %+v", cfg.Providers.LLM.Fallbacks)
	}
}

func TestDecode_JSON(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	doc := `{"access_key": "abc", "speech_rate": 1.2, "providers": {"llm": {"model": "m"}}}`
	if err := config.Decode(strings.NewReader(doc), &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.AccessKey != "abc" || cfg.SpeechRate != 1.2 || cfg.Providers.LLM.Model != "m" {
		t.Errorf("decoded %+v", cfg)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("LLM name = %q, want default openai", cfg.Providers.LLM.Name)
	}
}

func TestDecode_EmptyKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	if err := config.Decode(strings.NewReader(""), &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.TopP != 1 {
		t.Errorf("TopP = %v, want 1", cfg.TopP)
	}
}

func TestDecode_UnknownField(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	err := config.Decode(strings.NewReader("picollm_model_path: x\n"), &cfg)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Ranges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*config.Config)
		want   string
	}{
		{"top_p zero", func(c *config.Config) { c.TopP = 0 }, "top_p"},
		{"top_p above one", func(c *config.Config) { c.TopP = 1.5 }, "top_p"},
		{"negative temperature", func(c *config.Config) { c.Temperature = -0.1 }, "temperature"},
		{"sensitivity", func(c *config.Config) { c.Sensitivity = 1.1 }, "sensitivity"},
		{"speech rate low", func(c *config.Config) { c.SpeechRate = 0.5 }, "speech_rate"},
		{"speech rate high", func(c *config.Config) { c.SpeechRate = 1.4 }, "speech_rate"},
		{"negative warmup", func(c *config.Config) { c.WarmupSec = -1 }, "warmup_sec"},
		{"zero endpoint", func(c *config.Config) { c.EndpointDurationSec = 0 }, "endpoint_duration_sec"},
		{"nan penalty", func(c *config.Config) { c.PresencePenalty = math.NaN() }, "presence_penalty"},
		{"inf penalty", func(c *config.Config) { c.FrequencyPenalty = math.Inf(1) }, "frequency_penalty"},
		{"token limit", func(c *config.Config) { c.CompletionTokenLimit = -1 }, "completion_token_limit"},
		{"log level", func(c *config.Config) { c.LogLevel = "verbose" }, "log_level"},
		{"missing provider", func(c *config.Config) { c.Providers.TTS.Name = "" }, "providers.tts.name"},
		{"fallback name", func(c *config.Config) {
			c.Providers.LLM.Fallbacks = []config.ProviderEntry{{Model: "x"}}
		}, "fallbacks[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.modify(&cfg)
			err := config.Validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.TopP = 2
	cfg.SpeechRate = 3
	err := config.Validate(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"top_p", "speech_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestRequire_ListsEveryMissingFlag(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	err := config.Require(&cfg, "access_key", "llm_model")
	if !errors.Is(err, config.ErrMissingRequired) {
		t.Fatalf("err = %v, want ErrMissingRequired", err)
	}
	if !strings.Contains(err.Error(), "--access_key, --llm_model") {
		t.Errorf("error %q does not list both flags", err)
	}

	cfg.AccessKey = "k"
	cfg.Providers.LLM.Model = "m"
	if err := config.Require(&cfg, "access_key", "llm_model"); err != nil {
		t.Errorf("Require = %v, want nil", err)
	}
}

func TestCredential_FallsBackToAccessKey(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.AccessKey = "global"
	if got := cfg.Credential(config.ProviderEntry{}); got != "global" {
		t.Errorf("Credential = %q, want global", got)
	}
	if got := cfg.Credential(config.ProviderEntry{APIKey: "own"}); got != "own" {
		t.Errorf("Credential = %q, want own", got)
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()

	if config.LogDebug.Slog().String() != "DEBUG" {
		t.Errorf("debug maps to %v", config.LogDebug.Slog())
	}
	if config.LogLevel("bogus").Slog().String() != "INFO" {
		t.Errorf("unknown level maps to %v", config.LogLevel("bogus").Slog())
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_MissingFile(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	err := config.LoadFile(filepath.Join(t.TempDir(), "absent.json"), &cfg)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestResolve_Precedence(t *testing.T) {
	// t.Setenv forbids t.Parallel.
	t.Setenv(config.EnvAccessKey, "key-from-env")

	path := writeConfig(t, sampleYAML)
	fs := flag.NewFlagSet("voxpipe", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	flags.BindAssistant()
	args := []string{"--config", path, "--temperature", "0.2", "--llm_model", "gpt-4o"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := flags.Resolve("access_key", "llm_model")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.AccessKey != "key-from-env" {
		t.Errorf("AccessKey = %q, env must override the file", cfg.AccessKey)
	}
	if cfg.Temperature != 0.2 {
		t.Errorf("Temperature = %v, flag must override the file", cfg.Temperature)
	}
	if cfg.TopP != 0.9 {
		t.Errorf("TopP = %v, unset flag must keep the file value", cfg.TopP)
	}
	if cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("LLM model = %q", cfg.Providers.LLM.Model)
	}
	if cfg.CompletionTokenLimit != 256 {
		t.Errorf("CompletionTokenLimit = %d, want default", cfg.CompletionTokenLimit)
	}
	if cfg.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestResolve_ExplicitMissingConfig(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("voxpipe", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	missing := filepath.Join(t.TempDir(), "nope.json")
	if err := fs.Parse([]string{"--config", missing, "--access_key", "k"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := flags.Resolve("access_key"); err == nil {
		t.Fatal("expected error for an explicit config path that does not exist")
	}
}

func TestResolve_MissingRequired(t *testing.T) {
	t.Setenv(config.EnvAccessKey, "")

	fs := flag.NewFlagSet("voxpipe", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	flags.BindAssistant()
	if err := fs.Parse([]string{"--config", writeConfig(t, "{}")}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err := flags.Resolve("access_key", "llm_model")
	if !errors.Is(err, config.ErrMissingRequired) {
		t.Fatalf("err = %v, want ErrMissingRequired", err)
	}
	if !strings.Contains(err.Error(), "--access_key, --llm_model") {
		t.Errorf("error %q does not list both flags", err)
	}
}

func TestResolve_InvalidFlagValue(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("voxpipe", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	flags.BindAssistant()
	args := []string{"--config", writeConfig(t, "{}"), "--access_key", "k", "--llm_model", "m", "--top_p", "0"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err := flags.Resolve("access_key", "llm_model")
	if err == nil || !strings.Contains(err.Error(), "top_p") {
		t.Fatalf("err = %v, want top_p range error", err)
	}
}

func TestFlags_CustomBinding(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("voxenroll", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	flags.Float("wake_word_sensitivity", "", func(c *config.Config) *float64 { return &c.Sensitivity })
	if err := fs.Parse([]string{"--wake_word_sensitivity", "0.8", "--show_audio_devices"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg := config.Defaults()
	flags.Apply(&cfg)
	if cfg.Sensitivity != 0.8 {
		t.Errorf("Sensitivity = %v, want 0.8", cfg.Sensitivity)
	}
	if !flags.ShowDevices {
		t.Error("ShowDevices not set")
	}
	if cfg.AudioDeviceIndex != -1 {
		t.Errorf("AudioDeviceIndex = %d, unset flag must not override", cfg.AudioDeviceIndex)
	}
}
