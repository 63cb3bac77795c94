package client

import "io"

// writer is the goroutine that owns all transport writes. It blocks on the
// output queue and writes each Request's pre-encoded bytes as a single
// unit, so two pipelined commands never interleave mid-line on the wire.
type writer struct {
	transport io.Writer
	out       *blockingQueue[*Request]
	onFailure func(err error)
	stopped   chan struct{}
}

func newWriter(transport io.Writer, out *blockingQueue[*Request], onFailure func(error)) *writer {
	return &writer{transport: transport, out: out, onFailure: onFailure, stopped: make(chan struct{})}
}

// stop pushes the nil flush-and-exit sentinel and waits for run to return.
// Used by STARTTLS to retire this writer before a fresh one takes over the
// upgraded transport; safe only when the caller knows no other command is
// outstanding (the queue is otherwise empty).
func (w *writer) stop() {
	w.out.push(nil)
	<-w.stopped
}

// run exits when the queue is closed (nil sentinel encountered, or pop
// reports the queue drained and closed) or a write fails.
func (w *writer) run() {
	defer close(w.stopped)
	for {
		req, ok := w.out.pop()
		if !ok {
			return
		}
		if req == nil {
			// Flush-and-exit sentinel: nothing left to flush since every
			// write is synchronous, so this is just the signal to stop.
			return
		}
		if _, err := w.transport.Write(req.Data); err != nil {
			w.onFailure(err)
			return
		}
	}
}
