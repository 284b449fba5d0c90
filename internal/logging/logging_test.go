package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout_RespectsEachLevel(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debugH := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	warnH := slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	log := slog.New(NewFanout(debugH, warnH))
	log.Debug("quiet", "dir", "docs")
	log.Warn("loud", "dir", "docs")

	assert.Contains(t, debugBuf.String(), "msg=quiet")
	assert.Contains(t, debugBuf.String(), "msg=loud")
	assert.NotContains(t, warnBuf.String(), "quiet")
	assert.Contains(t, warnBuf.String(), "msg=loud")
}

func TestFanout_EnabledAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewFanout(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))

	slog.New(h).With("component", "registry").WithGroup("dir").Info("upsert", "id", "docs")
	assert.Contains(t, buf.String(), "component=registry")
	assert.Contains(t, buf.String(), "dir.id=docs")
}

func TestStampWriter_PrefixesCompleteLines(t *testing.T) {
	var out bytes.Buffer
	w := NewStampWriter(&out)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	n, err := w.Write([]byte("first\r\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "line=1 time=2026-01-02T03:04:05Z first\n", out.String())

	_, err = w.Write([]byte("ond\ntail"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "line=2 time=2026-01-02T03:04:05Z second", lines[1])
	assert.Equal(t, "line=3 time=2026-01-02T03:04:05Z tail", lines[2])

	// nothing left to flush
	require.NoError(t, w.Close())
	assert.Len(t, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"), 3)
}

func TestNew_WritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "synctray.log")

	log, closeLog, err := New(Options{Level: slog.LevelInfo, Console: &console, FilePath: path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("registry", "dir", "docs", "status", "IDLE")
	require.NoError(t, closeLog())

	assert.Contains(t, console.String(), "registry")
	assert.NotContains(t, console.String(), "hidden")
	assert.NotContains(t, console.String(), "\x1b[", "non-terminal output must not be colored")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "line=1 time="))
	assert.Contains(t, content, "msg=registry dir=docs status=IDLE")
	assert.NotContains(t, content, "hidden")
}

func TestNew_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	log, closeLog, err := New(Options{Level: slog.LevelDebug, Console: &console})
	require.NoError(t, err)
	log.Debug("pipeline", "line", 3)
	assert.NoError(t, closeLog())
	assert.Contains(t, console.String(), "pipeline")
}
