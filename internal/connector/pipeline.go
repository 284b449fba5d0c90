package connector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/synctray/internal/queue"
	"golang.org/x/sync/errgroup"
)

const maxEventSize = 4 << 20

// Pipeline reads newline-delimited events and applies them through a
// Connector. Events buffered while the applier is busy are applied in
// timestamp order.
type Pipeline struct {
	conn     *Connector
	buf      *queue.UpdateQueue[*Event]
	log      *slog.Logger
	onChange func(*Event)
}

func NewPipeline(conn *Connector, onChange func(*Event)) *Pipeline {
	return &Pipeline{
		conn:     conn,
		buf:      queue.NewUpdateQueue[*Event](),
		log:      conn.log,
		onChange: onChange,
	}
}

// Run consumes r until EOF or ctx is cancelled. Malformed lines are logged
// and skipped.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)
	ready := make(chan struct{}, 1)
	readerDone := make(chan struct{})

	g.Go(func() error {
		defer close(readerDone)
		return p.read(ctx, r, ready)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ready:
				p.drain()
			case <-readerDone:
				p.drain()
				return nil
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// read decodes lines handed over by scan. It returns as soon as ctx is done,
// even while scan is blocked in r.Read; scan then exits after that Read returns.
func (p *Pipeline) read(ctx context.Context, r io.Reader, ready chan<- struct{}) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanErr <- scan(ctx, r, lines)
	}()

	line := 0
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			data = l
		}
		line++

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			p.conn.malformed.Add(1)
			p.log.Warn("pipeline", "line", line, "error", err)
			continue
		}

		p.buf.Enqueue(ev, ev.Time)
		select {
		case ready <- struct{}{}:
		default:
		}
	}
}

func scan(ctx context.Context, r io.Reader, lines chan<- []byte) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)

	for scanner.Scan() {
		// the scanner reuses its buffer and decoders may alias it
		line := bytes.Clone(scanner.Bytes())
		select {
		case lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	return nil
}

func (p *Pipeline) drain() {
	for _, ev := range p.buf.DequeueAll() {
		changed, err := p.conn.HandleEvent(ev)
		if err != nil {
			p.log.Warn("pipeline", "event", ev.Type, "id", ev.ID, "error", err)
			continue
		}
		if changed && p.onChange != nil {
			p.onChange(ev)
		}
	}
}
