package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrQuit is returned by [Serve] after a QUIT command was answered.
var ErrQuit = errors.New("protocol: quit requested")

// ErrLineTooLong is returned by [LineConn.ReadLine] for a line that exceeded
// the transport's limit. The rest of the line has been discarded and the
// connection stays usable.
var ErrLineTooLong = errors.New("protocol: line too long")

// LineConn is a bidirectional, line-oriented control channel.
type LineConn interface {
	// ReadLine blocks until a line is available. It returns [io.EOF] at end
	// of input, [ErrLineTooLong] for an oversized line, and ctx.Err() once ctx
	// is cancelled.
	ReadLine(ctx context.Context) (string, error)

	// WriteLine sends line as one response and flushes it.
	WriteLine(ctx context.Context, line string) error
}

// Serve reads commands from conn and answers each with exactly one line,
// in order, until QUIT, end of input or cancellation of ctx. An oversized
// line is answered with INVALID_ARGS and serving continues. The session is
// cleaned up on every exit path.
//
// Serve returns nil at end of input, [ErrQuit] after QUIT, and the context or
// transport error otherwise.
func Serve(ctx context.Context, conn LineConn, d *Dispatcher) error {
	defer d.Close()

	for {
		line, err := conn.ReadLine(ctx)
		if errors.Is(err, ErrLineTooLong) {
			slog.Warn("protocol: discarding oversized line")
			if err := conn.WriteLine(ctx, fail("INVALID_ARGS", "line too long")); err != nil {
				return fmt.Errorf("protocol: write response: %w", err)
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("protocol: end of input")
				return nil
			}
			return err
		}

		cmd, ok := Parse(line)
		if !ok {
			continue
		}

		resp := d.Dispatch(ctx, cmd)
		if err := conn.WriteLine(ctx, resp.Line); err != nil {
			return fmt.Errorf("protocol: write response: %w", err)
		}
		if resp.Quit {
			return ErrQuit
		}
	}
}
