package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/thailang/thaidict/pkg/thaidict/internalerr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
cache_dir: /tmp/dict
pronunciation_scheme: IPA
settings:
  audio_enc: wav
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheDir != "/tmp/dict" {
		t.Errorf("cache_dir = %q", cfg.CacheDir)
	}
	if cfg.PronunciationScheme != "IPA" {
		t.Errorf("pronunciation_scheme = %q", cfg.PronunciationScheme)
	}
	if cfg.BaseURL != Default().BaseURL {
		t.Errorf("base_url should keep the default, got %q", cfg.BaseURL)
	}
	if cfg.TimeoutSeconds != Default().TimeoutSeconds {
		t.Errorf("timeout_seconds should keep the default, got %d", cfg.TimeoutSeconds)
	}
	if cfg.Settings["audio_enc"] != "wav" {
		t.Errorf("settings = %v", cfg.Settings)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "base_url: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "thai-language.com" }},
		{"empty scheme", func(c *Config) { c.PronunciationScheme = "" }},
		{"negative timeout", func(c *Config) { c.TimeoutSeconds = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
