package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/agentflow/internal/domain"
)

const defaultChunkSize = 4096

// ErrStreamEnded is returned when the body ends before a result frame.
var ErrStreamEnded = fmt.Errorf("%w: stream ended before result", domain.ErrTransport)

// Session is the producer of a stream run: it reads a Source and folds its
// frames into a Reducer.
type Session struct {
	*Reducer
	source    Source
	marker    string
	chunkSize int
	logger    *slog.Logger
}

// NewSession binds a reducer to a source.
func NewSession(r *Reducer, src Source, marker string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{Reducer: r, source: src, marker: marker, chunkSize: defaultChunkSize, logger: logger}
}

// Run consumes the stream until a result arrives, the stream fails or ctx
// ends. A cancelled ctx cancels the reducer and returns ctx.Err(); applied
// state is kept. Transport errors fail the run and are returned.
func (s *Session) Run(ctx context.Context) error {
	if !s.Start() {
		return nil
	}

	body, err := s.source.Open(ctx)
	if err != nil {
		return s.finish(ctx, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	gctx, stop := context.WithCancel(gctx)
	defer stop()
	release := context.AfterFunc(gctx, func() { body.Close() })
	defer func() {
		if release() {
			body.Close()
		}
	}()

	chunks := make(chan []byte)
	// set before chunks is closed
	var readErr error

	g.Go(func() error {
		defer close(chunks)
		buf := make([]byte, s.chunkSize)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-gctx.Done():
					return nil
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				readErr = fmt.Errorf("%w: read stream: %v", domain.ErrTransport, err)
				return readErr
			}
		}
	})

	g.Go(func() error {
		dec := NewDecoder(s.marker)
		for chunk := range chunks {
			if s.applyAll(dec.Feed(chunk)) {
				stop()
				return s.Err()
			}
		}
		if gctx.Err() != nil || readErr != nil {
			return nil
		}
		if s.applyAll(dec.Flush()) {
			return s.Err()
		}
		return ErrStreamEnded
	})

	return s.finish(ctx, g.Wait())
}

// applyAll folds frames and reports whether the run became terminal.
func (s *Session) applyAll(frames []Frame) bool {
	for _, f := range frames {
		out := s.Apply(f)
		s.logger.Debug("stream frame", "step", f.Event.Step, "outcome", out.String())
		if out == OutcomeTerminal || out == OutcomeFailed || out == OutcomeIgnored {
			return true
		}
	}
	return false
}

func (s *Session) finish(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.Cancel()
		return ctx.Err()
	}
	if err == nil {
		return nil
	}
	s.Fail(userMessage(err))
	return err
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrStreamEnded):
		return "Backend closed the stream before returning a result"
	case errors.Is(err, domain.ErrProtocolViolation):
		return "Backend sent an invalid update sequence"
	}
	return "Backend connection failed: " + err.Error()
}
