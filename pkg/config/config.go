// Package config loads runtime configuration in three layers: struct
// defaults, an optional YAML file, then POCKETUMAMI_ environment variables.
// Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "POCKETUMAMI_"

// Config is the runtime configuration surface. Core behaviors (verify TTL,
// retry policy, cache TTLs) are fixed constants in their packages, not knobs.
type Config struct {
	// DataDir holds the badger database. Defaults under the user config dir.
	DataDir string `koanf:"data_dir"`
	// ListenAddr is the local dashboard bind address.
	ListenAddr string `koanf:"listen_addr"`
	// Timezone for chart bucket alignment, IANA name. Empty means local.
	Timezone string `koanf:"timezone"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// SecretKeyFile points at the 32-byte key protecting stored credentials.
	// Created on first run when absent.
	SecretKeyFile string `koanf:"secret_key_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	base := dataDir()
	return Config{
		DataDir:       base,
		ListenAddr:    "127.0.0.1:8089",
		Timezone:      "",
		LogLevel:      "info",
		SecretKeyFile: filepath.Join(base, "secret.key"),
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty and present), and the environment.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	// POCKETUMAMI_LISTEN_ADDR -> listen_addr
	provider := env.Provider(envPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, envPrefix))
	})
	if err := k.Load(provider, nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}

func dataDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "pocketumami")
	}
	return ".pocketumami"
}
