package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrEmptyPath = errors.New("path cannot be empty")

// ResolvePath expands a leading `~` and returns a clean absolute path.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
