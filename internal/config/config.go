// Package config provides the configuration schema, the layered loader
// (defaults, file, environment, flags) and the provider registry of the
// voxpipe assistants.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog returns the matching slog level. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration of the voice assistant. Keys match the
// command-line flag names; a JSON config file is decoded as a YAML document.
type Config struct {
	// AccessKey is the default credential, used by every provider entry that
	// has no api_key of its own.
	AccessKey string `yaml:"access_key"`

	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the listen address of the /metrics, /healthz and
	// /readyz endpoints. Empty disables the server.
	MetricsAddr string `yaml:"metrics_addr"`

	// AudioDeviceIndex selects the capture device. -1 is the system default.
	AudioDeviceIndex int `yaml:"audio_device_index"`

	// KeywordModelPath is a file of wake phrases, one per line. Empty uses
	// the default phrase.
	KeywordModelPath string  `yaml:"keyword_model_path"`
	Sensitivity      float64 `yaml:"sensitivity"`

	// EndpointDurationSec is the pause after which the request is
	// considered finished.
	EndpointDurationSec float64 `yaml:"endpoint_duration_sec"`

	CompletionTokenLimit int     `yaml:"completion_token_limit"`
	PresencePenalty      float64 `yaml:"presence_penalty"`
	FrequencyPenalty     float64 `yaml:"frequency_penalty"`
	Temperature          float64 `yaml:"temperature"`
	TopP                 float64 `yaml:"top_p"`
	SystemPrompt         string  `yaml:"system_prompt"`

	// MaxTurns bounds the dialog history in request/response pairs. Zero
	// keeps everything.
	MaxTurns int `yaml:"max_turns"`

	// WarmupSec is how much synthesized audio is buffered before playback
	// starts.
	WarmupSec  float64 `yaml:"warmup_sec"`
	SpeechRate float64 `yaml:"speech_rate"`
	Voice      string  `yaml:"voice"`

	ShortAnswers bool `yaml:"short_answers"`
	Profile      bool `yaml:"profile"`

	Providers ProvidersConfig `yaml:"providers"`
}

// ProvidersConfig selects the backend of every engine. Each entry names a
// provider registered in the [Registry].
type ProvidersConfig struct {
	LLM LLMEntry      `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// Speaker is the speaker-embedding service of the enrollment and
	// verification tools.
	Speaker ProviderEntry `yaml:"speaker"`
}

// LLMEntry is the LLM provider plus optional fallbacks that are tried in
// order when the primary cannot open a stream.
type LLMEntry struct {
	ProviderEntry `yaml:",inline"`

	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. Empty falls back to
	// [Config.AccessKey].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Defaults returns the configuration used for every key that is set neither
// in the config file, the environment nor on the command line.
func Defaults() Config {
	return Config{
		LogLevel:             LogInfo,
		AudioDeviceIndex:     -1,
		Sensitivity:          0.5,
		EndpointDurationSec:  1,
		CompletionTokenLimit: 256,
		TopP:                 1,
		SpeechRate:           1,
		Providers: ProvidersConfig{
			LLM:     LLMEntry{ProviderEntry: ProviderEntry{Name: "openai"}},
			STT:     ProviderEntry{Name: "deepgram"},
			TTS:     ProviderEntry{Name: "elevenlabs"},
			Speaker: ProviderEntry{Name: "embedding"},
		},
	}
}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":     {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":     {"deepgram", "google", "whisper", "whisper-native"},
	"tts":     {"elevenlabs", "coqui"},
	"speaker": {"embedding"},
}

// ErrMissingRequired is wrapped by [Require] when required settings are
// absent.
var ErrMissingRequired = errors.New("config: missing required settings")

// requiredFields maps the required setting names to their emptiness check.
var requiredFields = map[string]func(*Config) bool{
	"access_key": func(c *Config) bool { return c.AccessKey == "" },
	"llm_model":  func(c *Config) bool { return c.Providers.LLM.Model == "" },
}

// Require reports every name whose setting is empty, listed as flags in one
// error. Names without a known check are ignored.
func Require(cfg *Config, names ...string) error {
	var missing []string
	for _, name := range names {
		if empty, ok := requiredFields[name]; ok && empty(cfg) {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Sensitivity < 0 || cfg.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("sensitivity %.2f is out of range [0, 1]", cfg.Sensitivity))
	}
	if !(cfg.EndpointDurationSec > 0) {
		errs = append(errs, fmt.Errorf("endpoint_duration_sec %.2f must be positive", cfg.EndpointDurationSec))
	}
	if cfg.CompletionTokenLimit < 0 {
		errs = append(errs, fmt.Errorf("completion_token_limit %d must not be negative", cfg.CompletionTokenLimit))
	}
	if !finite(cfg.PresencePenalty) {
		errs = append(errs, fmt.Errorf("presence_penalty must be a finite number"))
	}
	if !finite(cfg.FrequencyPenalty) {
		errs = append(errs, fmt.Errorf("frequency_penalty must be a finite number"))
	}
	if !(cfg.Temperature >= 0) || math.IsInf(cfg.Temperature, 1) {
		errs = append(errs, fmt.Errorf("temperature %.2f must be a non-negative number", cfg.Temperature))
	}
	if !(cfg.TopP > 0 && cfg.TopP <= 1) {
		errs = append(errs, fmt.Errorf("top_p %.2f is out of range (0, 1]", cfg.TopP))
	}
	if cfg.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("max_turns %d must not be negative", cfg.MaxTurns))
	}
	if !(cfg.WarmupSec >= 0) || math.IsInf(cfg.WarmupSec, 1) {
		errs = append(errs, fmt.Errorf("warmup_sec %.2f must be a non-negative number", cfg.WarmupSec))
	}
	if cfg.SpeechRate < 0.7 || cfg.SpeechRate > 1.3 {
		errs = append(errs, fmt.Errorf("speech_rate %.2f is out of range [0.7, 1.3]", cfg.SpeechRate))
	}

	for kind, entry := range map[string]ProviderEntry{
		"llm":     cfg.Providers.LLM.ProviderEntry,
		"stt":     cfg.Providers.STT,
		"tts":     cfg.Providers.TTS,
		"speaker": cfg.Providers.Speaker,
	} {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
			continue
		}
		validateProviderName(kind, entry.Name)
	}
	for i, fb := range cfg.Providers.LLM.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	return errors.Join(errs...)
}

// Credential returns the API key of entry, or the global access key when the
// entry has none.
func (c *Config) Credential(entry ProviderEntry) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	return c.AccessKey
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
