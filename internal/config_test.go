package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "2e3440", cfg.BackgroundColor)
	assert.True(t, cfg.ShowIndicator)
	assert.True(t, cfg.ShowClock)
	assert.False(t, cfg.ShowFailedAttempts)
	assert.False(t, cfg.DebugExit)
	assert.Equal(t, 3, cfg.LockoutThreshold)
	assert.Equal(t, 30, cfg.LockoutBaseSeconds)

	require.NoError(t, validateConfig(&cfg))
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	saved := DefaultConfig()
	saved.BackgroundColor = "#3b4252"
	saved.ShowFailedAttempts = true
	saved.DPI = 144
	require.NoError(t, SaveConfig(path, saved))

	loaded := DefaultConfig()
	require.NoError(t, LoadConfig(path, &loaded))

	assert.Equal(t, saved, loaded)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"), &cfg)
	require.Error(t, err)
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	cfg := DefaultConfig()
	err := LoadConfig(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"bad color", func(c *Configuration) { c.BackgroundColor = "red" }},
		{"missing image", func(c *Configuration) { c.BackgroundImage = "/does/not/exist.png" }},
		{"negative dpi", func(c *Configuration) { c.DPI = -1 }},
		{"zero threshold", func(c *Configuration) { c.LockoutThreshold = 0 }},
		{"zero cooldown", func(c *Configuration) { c.LockoutBaseSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, validateConfig(&cfg))
		})
	}
}

func TestParseHexColor(t *testing.T) {
	got, err := ParseHexColor("2e3440")
	require.NoError(t, err)
	assert.Equal(t, nord0, got)

	got, err = ParseHexColor("#bf616a")
	require.NoError(t, err)
	assert.Equal(t, nord11, got)

	for _, bad := range []string{"", "fff", "gggggg", "#12345", "not a color"} {
		_, err := ParseHexColor(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
