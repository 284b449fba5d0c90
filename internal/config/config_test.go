package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		LogLevel:      DefaultLogLevel,
		RecentChanges: DefaultRecentChanges,
		Format:        DefaultFormat,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"yaml output", func(c *Config) { c.Format = FormatYAML }, false},
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }, true},
		{"no recent changes", func(c *Config) { c.RecentChanges = 0 }, true},
		{"bad format", func(c *Config) { c.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("")
	assert.Error(t, err)
}
