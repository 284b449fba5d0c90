package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Options struct {
	Level slog.Level
	// Console receives colored output. Defaults to os.Stderr.
	Console io.Writer
	// FilePath, when set, also writes plain text logs to that file.
	FilePath string
}

// New returns a logger configured from opts and a function releasing the log
// file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: consoleTimeFormat,
			NoColor:    !isTerminal(console),
		}),
	}

	closer := func() error { return nil }
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		stamped := NewStampWriter(file)
		handlers = append(handlers, slog.NewTextHandler(stamped, &slog.HandlerOptions{
			Level:       opts.Level,
			ReplaceAttr: dropTime,
		}))
		closer = func() error {
			flushErr := stamped.Close()
			if err := file.Close(); err != nil {
				return err
			}
			return flushErr
		}
	}

	return slog.New(NewFanout(handlers...)), closer, nil
}

// the stamp writer already prefixes a time
func dropTime(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.Attr{}
	}
	return a
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
