// Package imaptest provides a scripted fake IMAP server for exercising the
// client engine without a real network listener or a full server
// implementation: each test describes the exchange it expects (a command
// line in, a canned response out) and the harness drives it over an
// in-process net.Pipe.
package imaptest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/quietloop/imapc/client"
	"github.com/quietloop/imapc/transport"
)

// Harness pairs a scripted fake server with a client.Client connected to
// it over net.Pipe.
type Harness struct {
	t          *testing.T
	serverConn net.Conn
	clientConn net.Conn
	reader     *bufio.Reader
}

// NewHarness creates the pipe and writes the initial greeting. The caller
// drives the rest of the exchange with Expect/Respond, then calls Dial to
// hand the client side to client.New.
func NewHarness(t *testing.T, greeting string) *Harness {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	h := &Harness{
		t:          t,
		serverConn: serverConn,
		clientConn: clientConn,
		reader:     bufio.NewReader(serverConn),
	}

	t.Cleanup(func() {
		_ = h.serverConn.Close()
		_ = h.clientConn.Close()
	})

	if greeting == "" {
		greeting = "* OK ready\r\n"
	}
	fmt.Fprint(h.serverConn, greeting)

	return h
}

// Dial runs client.New against the harness's client-side pipe conn. Call
// this after the greeting has been written (NewHarness already does
// that) so the client's startup read succeeds.
func (h *Harness) Dial(opts ...client.Option) (*client.Client, error) {
	h.t.Helper()
	return client.New(context.Background(), transport.WrapConn(h.clientConn), opts...)
}

// Expect reads the next command line from the client and fails the test
// if it does not contain substr. It returns the full line (with its tag)
// so callers can echo the tag back in a response.
func (h *Harness) Expect(substr string) string {
	h.t.Helper()
	line, err := h.reader.ReadString('\n')
	if err != nil {
		h.t.Fatalf("imaptest: reading command: %v", err)
	}
	if !strings.Contains(line, substr) {
		h.t.Fatalf("imaptest: command %q does not contain %q", line, substr)
	}
	return line
}

// ExpectLine reads and returns the next raw line without asserting on
// its content, for scripts that want to branch on it themselves (e.g.
// extracting a literal-bearing command's tag).
func (h *Harness) ExpectLine() string {
	h.t.Helper()
	line, err := h.reader.ReadString('\n')
	if err != nil {
		h.t.Fatalf("imaptest: reading command: %v", err)
	}
	return line
}

// ReadLiteral reads exactly n bytes following a synchronizing literal
// (the message body of an APPEND, for instance), then consumes the
// trailing CRLF.
func (h *Harness) ReadLiteral(n int) []byte {
	h.t.Helper()
	buf := make([]byte, n)
	if _, err := readFull(h.reader, buf); err != nil {
		h.t.Fatalf("imaptest: reading literal: %v", err)
	}
	if _, err := h.reader.ReadString('\n'); err != nil {
		h.t.Fatalf("imaptest: reading literal trailer: %v", err)
	}
	return buf
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Respond writes one or more raw response lines (each must include its
// own CRLF) to the client.
func (h *Harness) Respond(lines ...string) {
	h.t.Helper()
	for _, l := range lines {
		if _, err := fmt.Fprint(h.serverConn, l); err != nil {
			h.t.Fatalf("imaptest: writing response: %v", err)
		}
	}
}

// Tag extracts the leading tag token from a command line, e.g. "A1" from
// "A1 SELECT INBOX\r\n".
func Tag(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Close shuts down both ends of the pipe immediately, simulating an
// ungraceful disconnect.
func (h *Harness) Close() {
	_ = h.serverConn.Close()
	_ = h.clientConn.Close()
}

// CloseServer closes only the server side, as if the remote end hung up
// first while the client is still running.
func (h *Harness) CloseServer() {
	_ = h.serverConn.Close()
}
