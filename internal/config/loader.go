package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the name of the config file looked up next to the
// executable when no path is given.
const DefaultFileName = "config.json"

// EnvAccessKey overrides [Config.AccessKey] when set.
const EnvAccessKey = "VOXPIPE_ACCESS_KEY"

// LoadFile decodes the config file at path over cfg. Keys absent from the
// file keep their current value.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, cfg); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

// Decode decodes a YAML (or JSON) document from r over cfg. Unknown keys are
// rejected. An empty document leaves cfg untouched.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// DefaultPath returns the path of the config file located next to the
// running executable.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(filepath.Dir(exe), DefaultFileName)
}

// LoadEnv loads a .env file from the working directory, if any, and applies
// the environment overrides to cfg.
func LoadEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	if key := os.Getenv(EnvAccessKey); key != "" {
		cfg.AccessKey = key
	}
	return nil
}
