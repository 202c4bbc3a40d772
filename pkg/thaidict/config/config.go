// Package config holds the client configuration loaded from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thailang/thaidict/pkg/thaidict/internalerr"
)

// Config controls the fetcher and formatter.
type Config struct {
	// BaseURL is the dictionary site root.
	BaseURL string `yaml:"base_url"`

	// CacheDir is where the versioned cache file lives.
	CacheDir string `yaml:"cache_dir"`

	// PronunciationScheme selects the romanization used for note word
	// fields and super-entry pronunciation joins.
	PronunciationScheme string `yaml:"pronunciation_scheme"`

	// TimeoutSeconds bounds each HTTP request. Zero means no timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Settings overrides individual site display preferences sent in
	// the one-time session handshake.
	Settings map[string]string `yaml:"settings"`
}

// Default returns the zero-config defaults.
func Default() Config {
	return Config{
		BaseURL:             "http://www.thai-language.com",
		CacheDir:            "thaidict-cache",
		PronunciationScheme: "Paiboon",
		TimeoutSeconds:      30,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields a fetcher cannot run without.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: bad base_url %q", internalerr.ErrInvalidConfig, c.BaseURL)
	}
	if c.PronunciationScheme == "" {
		return fmt.Errorf("%w: pronunciation_scheme is required", internalerr.ErrInvalidConfig)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: negative timeout", internalerr.ErrInvalidConfig)
	}
	return nil
}
