package client

import (
	"bytes"
	"io"
	"sync/atomic"
	"time"
)

const readChunkSize = 32 * 1024

// inputItem is one unit handed from the reader goroutine to the handler
// goroutine: either a raw line (CRLF included) read from the transport, or
// a terminal abort signal.
type inputItem struct {
	line  []byte
	abort error
}

// reader is the goroutine that owns all transport reads. It never parses
// anything: it reads raw bytes, splits them on LF (keeping the LF), and
// feeds whole lines to the input queue. Splitting on LF rather than using
// a buffered line scanner matters once literals are in play: a literal's
// payload can itself contain bare LF bytes, and the handler -- which
// tracks how many literal bytes it is still owed -- is the only place
// that can tell a payload LF from a real line terminator.
type reader struct {
	transport io.Reader
	in        *blockingQueue[inputItem]
	buf       []byte
	deadliner interface{ SetReadDeadline(time.Time) error }
	isLogout  func() bool

	pausing atomic.Bool
	stopped chan struct{}
}

func newReader(transport io.Reader, in *blockingQueue[inputItem], isLogout func() bool) *reader {
	r := &reader{transport: transport, in: in, isLogout: isLogout, stopped: make(chan struct{})}
	if d, ok := transport.(interface{ SetReadDeadline(time.Time) error }); ok {
		r.deadliner = d
	}
	return r
}

// pause asks run to stop after its current Read returns, without
// delivering an abort to the handler: the caller (STARTTLS) is replacing
// the transport out from under this reader and will start a fresh one.
// It forces the blocked Read to return immediately via a past deadline,
// then waits for run to observe the pause and exit.
func (r *reader) pause() {
	r.pausing.Store(true)
	if r.deadliner != nil {
		_ = r.deadliner.SetReadDeadline(time.Now().Add(-time.Second))
	}
	<-r.stopped
}

// run reads until the transport errors or returns a zero-byte read, which
// is treated as EOF rather than retried: a half-closed peer that keeps
// returning zero bytes would otherwise spin forever.
func (r *reader) run() {
	defer close(r.stopped)
	chunk := make([]byte, readChunkSize)
	for {
		if r.deadliner != nil && !r.pausing.Load() {
			if r.isLogout() {
				_ = r.deadliner.SetReadDeadline(time.Now().Add(5 * time.Second))
			} else {
				_ = r.deadliner.SetReadDeadline(time.Time{})
			}
		}

		n, err := r.transport.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			r.emitLines()
		}
		if err != nil {
			if r.pausing.Load() {
				return
			}
			r.in.push(inputItem{abort: err})
			return
		}
		if n == 0 {
			r.in.push(inputItem{abort: io.EOF})
			return
		}
	}
}

func (r *reader) emitLines() {
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			return
		}
		line := make([]byte, idx+1)
		copy(line, r.buf[:idx+1])
		r.buf = r.buf[idx+1:]
		r.in.push(inputItem{line: line})
	}
}
