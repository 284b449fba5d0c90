package config

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	DefaultLogLevel      = "info"
	DefaultRecentChanges = 200
	DefaultFormat        = FormatTable
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

type Config struct {
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	MyID          string `mapstructure:"my_id"`
	RecentChanges int    `mapstructure:"recent_changes"`
	BlockSize     uint64 `mapstructure:"block_size"`
	Format        string `mapstructure:"format"`
}

func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RecentChanges < 1 {
		return fmt.Errorf("`recent_changes` must be at least 1, got %d", c.RecentChanges)
	}
	switch c.Format {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("`format` must be one of %s, %s, %s; got %q", FormatTable, FormatJSON, FormatYAML, c.Format)
	}
	return nil
}

// ParseLevel parses a log level name such as "debug" or "WARN".
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return level, fmt.Errorf("invalid `log_level` %q: %w", name, err)
	}
	return level, nil
}
