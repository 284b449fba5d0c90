package logging

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// StampWriter prefixes every complete line written to it with a sequence
// number and a timestamp. Partial lines are held until their newline arrives
// or Close is called.
type StampWriter struct {
	mu      sync.Mutex
	target  io.Writer
	pending []byte
	seq     uint64
	now     func() time.Time
}

func NewStampWriter(target io.Writer) *StampWriter {
	return &StampWriter{target: target, now: time.Now}
}

// Write reports len(p) on success so callers treat buffered partial lines as
// written.
func (w *StampWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(w.pending[:idx], []byte{'\r'})
		if err := w.writeLine(line); err != nil {
			return 0, err
		}
		w.pending = w.pending[idx+1:]
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (w *StampWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	err := w.writeLine(w.pending)
	w.pending = nil
	return err
}

func (w *StampWriter) writeLine(line []byte) error {
	w.seq++
	var buf bytes.Buffer
	buf.WriteString(slog.Uint64("line", w.seq).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", w.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := w.target.Write(buf.Bytes())
	return err
}
