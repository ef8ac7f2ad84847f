package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
)

// Flags binds command-line flags to [Config] fields. Only flags that were
// set explicitly override values from the config file and the environment.
type Flags struct {
	fs     *flag.FlagSet
	shadow Config
	apply  map[string]func(*Config)

	// ConfigPath is the value of --config. Empty means [DefaultPath].
	ConfigPath string

	// ShowDevices is the value of --show_audio_devices.
	ShowDevices bool
}

// BindFlags registers the flags shared by all voxpipe tools on set. Call
// [Flags.Resolve] after set has been parsed.
func BindFlags(set *flag.FlagSet) *Flags {
	f := &Flags{
		fs:     set,
		shadow: Defaults(),
		apply:  make(map[string]func(*Config)),
	}
	set.StringVar(&f.ConfigPath, "config", "", "path to a JSON or YAML config file (default: "+DefaultFileName+" next to the executable)")
	set.BoolVar(&f.ShowDevices, "show_audio_devices", false, "list the available capture devices and exit")

	f.String("access_key", "default credential for all backends", func(c *Config) *string { return &c.AccessKey })
	f.String("log_level", "log verbosity: debug, info, warn or error", func(c *Config) *string { return (*string)(&c.LogLevel) })
	f.Int("audio_device_index", "index of the capture device, -1 for the system default", func(c *Config) *int { return &c.AudioDeviceIndex })
	f.String("stt_provider", "speech-to-text backend", func(c *Config) *string { return &c.Providers.STT.Name })
	f.String("speaker_provider", "speaker embedding backend", func(c *Config) *string { return &c.Providers.Speaker.Name })
	f.String("speaker_url", "base URL of the speaker embedding service", func(c *Config) *string { return &c.Providers.Speaker.BaseURL })
	return f
}

// BindAssistant registers the flags of the voice assistant.
func (f *Flags) BindAssistant() {
	f.String("metrics_addr", "listen address of the metrics and health endpoints, empty to disable", func(c *Config) *string { return &c.MetricsAddr })
	f.String("keyword_model_path", "file with the wake phrases, one per line", func(c *Config) *string { return &c.KeywordModelPath })
	f.Float("sensitivity", "wake word sensitivity in [0, 1]", func(c *Config) *float64 { return &c.Sensitivity })
	f.Float("endpoint_duration_sec", "pause in seconds that ends a request", func(c *Config) *float64 { return &c.EndpointDurationSec })
	f.String("llm_provider", "LLM backend", func(c *Config) *string { return &c.Providers.LLM.Name })
	f.String("llm_model", "LLM model name", func(c *Config) *string { return &c.Providers.LLM.Model })
	f.String("llm_url", "base URL of the LLM API", func(c *Config) *string { return &c.Providers.LLM.BaseURL })
	f.Int("completion_token_limit", "maximum number of tokens per response, 0 for no limit", func(c *Config) *int { return &c.CompletionTokenLimit })
	f.Float("presence_penalty", "presence penalty of the completion", func(c *Config) *float64 { return &c.PresencePenalty })
	f.Float("frequency_penalty", "frequency penalty of the completion", func(c *Config) *float64 { return &c.FrequencyPenalty })
	f.Float("temperature", "sampling temperature", func(c *Config) *float64 { return &c.Temperature })
	f.Float("top_p", "nucleus sampling mass in (0, 1]", func(c *Config) *float64 { return &c.TopP })
	f.String("system_prompt", "system prompt of the dialog", func(c *Config) *string { return &c.SystemPrompt })
	f.Int("max_turns", "number of exchanges kept in the dialog, 0 keeps all", func(c *Config) *int { return &c.MaxTurns })
	f.String("tts_provider", "text-to-speech backend", func(c *Config) *string { return &c.Providers.TTS.Name })
	f.String("voice", "voice of the text-to-speech backend", func(c *Config) *string { return &c.Voice })
	f.Float("speech_rate", "speaking rate in [0.7, 1.3]", func(c *Config) *float64 { return &c.SpeechRate })
	f.Float("warmup_sec", "seconds of audio buffered before playback starts", func(c *Config) *float64 { return &c.WarmupSec })
	f.Bool("short_answers", "ask the LLM for short answers", func(c *Config) *bool { return &c.ShortAnswers })
	f.Bool("profile", "print real-time factors and token rates", func(c *Config) *bool { return &c.Profile })
}

// String binds a string flag to the field returned by field.
func (f *Flags) String(name, usage string, field func(*Config) *string) {
	bind(f, name, usage, field, f.fs.StringVar)
}

// Float binds a float64 flag to the field returned by field.
func (f *Flags) Float(name, usage string, field func(*Config) *float64) {
	bind(f, name, usage, field, f.fs.Float64Var)
}

// Int binds an int flag to the field returned by field.
func (f *Flags) Int(name, usage string, field func(*Config) *int) {
	bind(f, name, usage, field, f.fs.IntVar)
}

// Bool binds a bool flag to the field returned by field.
func (f *Flags) Bool(name, usage string, field func(*Config) *bool) {
	bind(f, name, usage, field, f.fs.BoolVar)
}

// bind defines the flag on a shadow config so that the usage text shows the
// default, and remembers how to copy the parsed value into a real config.
func bind[T any](f *Flags, name, usage string, field func(*Config) *T, define func(p *T, name string, value T, usage string)) {
	p := field(&f.shadow)
	define(p, name, *p, usage)
	f.apply[name] = func(c *Config) { *field(c) = *p }
}

// Apply copies every explicitly set flag into cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		if set, ok := f.apply[fl.Name]; ok {
			set(cfg)
		}
	})
}

// Resolve builds the effective configuration: defaults, then the config file,
// then the environment, then explicit flags. The config file is optional
// unless --config was given. The result is validated and every name in
// required must be set.
func (f *Flags) Resolve(required ...string) (*Config, error) {
	cfg := Defaults()

	path, explicit := f.ConfigPath, f.ConfigPath != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := LoadFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := LoadEnv(&cfg); err != nil {
		return nil, err
	}
	f.Apply(&cfg)

	if err := errors.Join(Require(&cfg, required...), Validate(&cfg)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
