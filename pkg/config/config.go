// Package config loads the engine's configuration surface: debounce
// timing, retry policy, fingerprint canonicalisation policy, disabled
// plugins, and log level. Format is dispatched by file extension across
// a TOML/YAML/JSON parse trio.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the engine's configuration keys.
type Config struct {
	DebounceMinMS          int      `json:"debounce-min-ms" yaml:"debounce-min-ms" toml:"debounce-min-ms"`
	DebounceMaxMS          int      `json:"debounce-max-ms" yaml:"debounce-max-ms" toml:"debounce-max-ms"`
	RedefineRetryCount     int      `json:"redefine-retry-count" yaml:"redefine-retry-count" toml:"redefine-retry-count"`
	RedefineRetryBackoffMS int      `json:"redefine-retry-backoff-ms" yaml:"redefine-retry-backoff-ms" toml:"redefine-retry-backoff-ms"`
	FingerprintPolicy      string   `json:"fingerprint-policy" yaml:"fingerprint-policy" toml:"fingerprint-policy"`
	DisabledPlugins        []string `json:"disabled-plugins" yaml:"disabled-plugins" toml:"disabled-plugins"`
	LogLevel               string   `json:"log-level" yaml:"log-level" toml:"log-level"`
}

// Default returns the engine's baseline configuration.
func Default() Config {
	return Config{
		DebounceMinMS:          300,
		DebounceMaxMS:          1500,
		RedefineRetryCount:     3,
		RedefineRetryBackoffMS: 100,
		FingerprintPolicy:      "structural",
		LogLevel:               "info",
	}
}

// DebounceMin and DebounceMax convert the millisecond fields to Durations
// for pkg/scheduler.Config.
func (c Config) DebounceMin() time.Duration { return time.Duration(c.DebounceMinMS) * time.Millisecond }
func (c Config) DebounceMax() time.Duration { return time.Duration(c.DebounceMaxMS) * time.Millisecond }
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.RedefineRetryBackoffMS) * time.Millisecond
}

// Load reads and parses path, dispatching on its extension: .toml, .yaml/
// .yml, or .json. Unset fields in the file keep Default()'s values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data as ext ("toml", ".toml", "yaml", ".yaml"/".yml", or
// "json"/".json"), merging onto Default().
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	switch normalizeExt(ext) {
	case "toml":
		_, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, err
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("config: unrecognised format %q", ext)
	}
	return cfg, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "yml":
		return "yaml"
	default:
		return ext
	}
}

// PluginDisabled reports whether name appears in DisabledPlugins.
func (c Config) PluginDisabled(name string) bool {
	for _, d := range c.DisabledPlugins {
		if d == name {
			return true
		}
	}
	return false
}
