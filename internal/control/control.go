// Package control carries the line protocol over a transport: standard I/O
// or a single-client WebSocket endpoint.
package control

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/soundstage/internal/protocol"
)

// maxLineBytes bounds a single command line, or a single WebSocket message.
// Longer input is discarded and answered with INVALID_ARGS.
const maxLineBytes = 64 * 1024

// Compile-time interface assertions.
var (
	_ protocol.LineConn = (*Stdio)(nil)
	_ protocol.LineConn = (*wsConn)(nil)
)

type readResult struct {
	line string
	err  error
}

// Stdio is a [protocol.LineConn] over a reader and a writer, typically
// os.Stdin and os.Stdout. Reads happen on a background goroutine so that
// ReadLine honours context cancellation.
type Stdio struct {
	lines chan readResult
	done  chan struct{}
	once  sync.Once

	mu sync.Mutex
	w  *bufio.Writer
}

// NewStdio starts reading lines from r. Responses are written to w and
// flushed after every line.
func NewStdio(r io.Reader, w io.Writer) *Stdio {
	s := &Stdio{
		lines: make(chan readResult),
		done:  make(chan struct{}),
		w:     bufio.NewWriter(w),
	}
	go s.read(r)
	return s
}

func (s *Stdio) read(r io.Reader) {
	br := bufio.NewReaderSize(r, 4096)
	for {
		line, err := readLine(br, maxLineBytes)
		if err != nil && !errors.Is(err, protocol.ErrLineTooLong) {
			select {
			case s.lines <- readResult{err: err}:
			case <-s.done:
			}
			return
		}
		select {
		case s.lines <- readResult{line: line, err: err}:
		case <-s.done:
			return
		}
	}
}

// readLine returns the next line of br without its line ending. A line longer
// than limit bytes is consumed up to its newline and reported as
// [protocol.ErrLineTooLong]. A final line without a newline is returned before
// [io.EOF].
func readLine(br *bufio.Reader, limit int) (string, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		frag, err := br.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, frag...)
			if len(bytes.TrimRight(buf, "\r\n")) > limit {
				tooLong, buf = true, nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !(errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong)) {
			return "", err
		}
		break
	}
	if tooLong {
		return "", protocol.ErrLineTooLong
	}
	line := strings.TrimSuffix(string(buf), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// ReadLine implements [protocol.LineConn].
func (s *Stdio) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", io.EOF
	case res := <-s.lines:
		return res.line, res.err
	}
}

// WriteLine implements [protocol.LineConn].
func (s *Stdio) WriteLine(_ context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close stops the reader goroutine once its pending read returns.
func (s *Stdio) Close() {
	s.once.Do(func() { close(s.done) })
}

// ServeStdio runs the protocol over r and w until QUIT, end of input, or
// cancellation of ctx. End of input is not an error.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, d *protocol.Dispatcher) error {
	conn := NewStdio(r, w)
	defer conn.Close()
	err := protocol.Serve(ctx, conn, d)
	if errors.Is(err, protocol.ErrQuit) {
		return nil
	}
	return err
}

// splitLines breaks a message into protocol lines, dropping carriage returns.
func splitLines(msg string) []string {
	parts := strings.Split(msg, "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}
