// Package config loads the savestate CLI's configuration from a YAML
// file and the environment. It is deliberately separate from
// pkg/options: the library itself is always configured explicitly by
// its caller, while the cmd/savestate binary additionally accepts a
// config file for the values it can't reasonably take as flags.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds the cmd/savestate binary's file-driven settings.
type Config struct {
	DataDir        string `yaml:"DATA_DIR"`
	BatchSize      uint32 `yaml:"BATCH_SIZE"`
	SyncIntervalMS uint32 `yaml:"SYNC_INTERVAL_MS"`
	VerifyChecksum bool   `yaml:"VERIFY_CHECKSUM"`
	LogLevel       string `yaml:"LOG_LEVEL"`
}

// Default returns the configuration cmd/savestate runs with when no
// config file is present.
func Default() Config {
	return Config{
		DataDir:        ".",
		BatchSize:      64 * 1024,
		SyncIntervalMS: 5000,
		VerifyChecksum: false,
		LogLevel:       "info",
	}
}

// SyncInterval converts SyncIntervalMS to a time.Duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMS) * time.Millisecond
}

// Load reads path (if it exists) over Default, expanding
// ${VAR}-style references against the process environment and any
// .env file found in the working directory. A missing config file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}

	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
