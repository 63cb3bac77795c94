// Package client implements the IMAP4rev1 client engine: a three-goroutine
// request/response pipeline (writer, reader, handler) sitting underneath a
// small facade of command methods.
//
// The client supports pipelining (sending multiple commands before waiting
// for responses from earlier ones), automatic capability negotiation, and
// a callback hook for unsolicited ("unilateral") server data.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/transport"
	"github.com/quietloop/imapc/wire"
)

// Client is a connected, running IMAP client. Every exported command
// method is safe to call from multiple goroutines concurrently; ordering
// on the wire is governed by the pipelining rules in the command table,
// not by call order.
type Client struct {
	transport transport.Transport
	options   *Options
	logger    *slog.Logger
	connID    string

	tags        *tagGenerator
	outstanding *outstanding
	table       *imap.CommandTable

	outputQ *blockingQueue[*Request]
	inputQ  *blockingQueue[inputItem]
	wtr     *writer
	rdr     *reader
	hdl     *handler

	// stateChangePending serializes dispatch of non-pipelineable commands:
	// such a command holds this lock from the moment it is accepted until
	// its state-mutating effects (including the tagged completion) are
	// fully applied. Pipelineable commands take and release it only for
	// the instant it takes to enqueue, so they never block each other.
	stateChangePending sync.Mutex

	// stateChangeFree is signaled whenever the outstanding-commands map
	// becomes empty, which is what a waiting non-pipelineable dispatch
	// needs: proof that every previously pipelined command has completed.
	freeMu   sync.Mutex
	freeCond *sync.Cond
	freeGen  uint64

	mu          sync.Mutex
	state       imap.ConnState
	caps        *imap.CapSet
	mailbox     mailboxState
	armed       *Request // request currently owning the continuation slot

	closeOnce sync.Once
	doneCh    chan struct{}
	doneErr   error
}

type mailboxState struct {
	name        string
	numMessages uint32
	numRecent   uint32
	uidValidity uint32
	uidNext     uint32
	unseen      uint32
	readOnly    bool
	permFlags   []imap.Flag
}

// New wraps an already-connected Transport as a Client, reading the
// server's greeting before returning. The caller must not use the
// Transport for anything else afterward.
func New(ctx context.Context, t transport.Transport, opts ...Option) (*Client, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	c := &Client{
		transport:   t,
		options:     options,
		logger:      options.Logger,
		connID:      id.String(),
		tags:        newTagGenerator(tagPrefixFromUUID(id)),
		outstanding: newOutstanding(),
		table:       imap.NewCommandTable(),
		outputQ:     newBlockingQueue[*Request](),
		inputQ:      newBlockingQueue[inputItem](),
		caps:        imap.NewCapSet(),
		doneCh:      make(chan struct{}),
	}
	c.freeCond = sync.NewCond(&c.freeMu)

	greeting, err := c.readGreeting()
	if err != nil {
		return nil, err
	}
	c.logger.Debug("greeting", "conn_id", c.connID, "line", greeting)

	c.hdl = newHandler(c)
	c.rdr = newReader(t, c.inputQ, c.isLogout)
	c.wtr = newWriter(t, c.outputQ, c.onWriteFailure)

	go c.rdr.run()
	go c.wtr.run()
	go c.hdl.run()

	return c, nil
}

// Dial opens a plain TCP connection to addr and returns a Client after
// reading the greeting.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	t, err := transport.DialPlain(ctx, addr)
	if err != nil {
		return nil, err
	}
	c, err := New(ctx, t, opts...)
	if err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}

// DialTLS opens a TLS connection to addr and returns a Client after
// reading the greeting.
func DialTLS(ctx context.Context, addr string, tlsConfig *tls.Config, opts ...Option) (*Client, error) {
	t, err := transport.DialTLS(ctx, addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	c, err := New(ctx, t, opts...)
	if err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) readGreeting() (string, error) {
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		n, err := c.transport.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if i := indexCRLF(buf); i >= 0 {
				line := string(buf[:i])
				return c.parseGreeting(line)
			}
		}
		if err != nil {
			return "", imap.NewAbortError("reading greeting", err)
		}
		if n == 0 {
			return "", imap.NewAbortError("reading greeting", fmt.Errorf("connection closed"))
		}
	}
}

// tagPrefixFromUUID derives a two-letter command tag prefix from the
// range A-P, seeded from id's bytes so that tags from concurrently open
// connections are unlikely to collide in shared logs.
func tagPrefixFromUUID(id uuid.UUID) string {
	return string([]byte{
		'A' + id[0]%16,
		'A' + id[1]%16,
	})
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (c *Client) parseGreeting(line string) (string, error) {
	l, err := wire.Classify(line)
	if err != nil {
		return line, imap.NewProtocolError("malformed greeting", line)
	}
	if l.Kind != wire.KindUntagged {
		return line, imap.NewProtocolError("unexpected greeting", line)
	}
	switch l.Type {
	case "OK":
		c.state = imap.ConnStateNotAuthenticated
	case "PREAUTH":
		c.state = imap.ConnStateAuthenticated
	case "BYE":
		return line, imap.NewAbortError("server rejected connection", fmt.Errorf("%s", l.Rest))
	default:
		return line, imap.NewProtocolError("unexpected greeting", line)
	}
	if code, arg, ok := splitBracketCode(l.Rest); ok && code == "CAPABILITY" {
		c.applyCapabilities(arg)
	}
	return line, nil
}

// State returns the current connection state.
func (c *Client) State() imap.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s imap.ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) isLogout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == imap.ConnStateLogout
}

// Caps returns a snapshot of the server's advertised capabilities.
func (c *Client) Caps() []imap.Cap {
	return c.caps.All()
}

// HasCap returns true if the server advertises cap.
func (c *Client) HasCap(cap imap.Cap) bool {
	return c.caps.Has(cap)
}

func (c *Client) applyCapabilities(line string) {
	fields := splitFields(line)
	c.caps = imap.NewCapSet()
	for _, f := range fields {
		c.caps.Add(imap.Cap(f))
	}
}

// Done returns a channel closed once the connection has been torn down,
// whether by Close or by a transport/protocol failure.
func (c *Client) Done() <-chan struct{} {
	return c.doneCh
}

// Err returns the reason the connection went down, valid after Done closes.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneErr
}

// Close sends LOGOUT if the connection is still usable, then tears down
// the pipeline and closes the transport.
func (c *Client) Close() error {
	if c.State() != imap.ConnStateLogout {
		c.setState(imap.ConnStateLogout)
		_, _, _ = c.dispatchSync(imap.CommandLogout, c.buildSimple(imap.CommandLogout), nil)
	}
	c.terminate(imap.NewAbortError("closed", nil))
	return c.transport.Close()
}

// writeContinuation sends data (a continuation reply, or a bare "DONE") as
// its own write, still funneled through the writer goroutine so that it
// never interleaves with another command's bytes. It is not tracked as an
// outstanding command: nothing waits on its completion directly.
func (c *Client) writeContinuation(data []byte) {
	req := &Request{Data: data}
	req.readyCh = make(chan struct{})
	c.outputQ.push(req)
}

func (c *Client) onWriteFailure(err error) {
	c.terminate(imap.NewAbortError("write failed", err))
}

// terminate tears the pipeline down exactly once: aborts every outstanding
// and queued Request, closes the queues, and records the reason.
func (c *Client) terminate(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.doneErr = err
		c.mu.Unlock()

		c.outstanding.drainAbort(err)
		for _, req := range c.outputQ.drain() {
			if req != nil {
				req.deliverAbort(err)
			}
		}
		c.outputQ.close()
		c.inputQ.close()
		c.releaseStateChangeFree()
		close(c.doneCh)
	})
}

func (c *Client) releaseStateChangeFree() {
	c.freeMu.Lock()
	c.freeGen++
	c.freeCond.Broadcast()
	c.freeMu.Unlock()
}

// waitStateChangeFree blocks until the outstanding-commands map is empty,
// observed via the generation counter rather than by polling the map
// directly: every completion that empties the map bumps the generation
// and broadcasts.
func (c *Client) waitStateChangeFree(empty func() bool) {
	c.freeMu.Lock()
	defer c.freeMu.Unlock()
	for !empty() {
		c.freeCond.Wait()
	}
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

// splitBracketCode extracts a leading "[CODE arg] " prefix from text, as
// found in status response lines, returning the code, its argument text
// (possibly empty), and whether a bracket was present at all.
func splitBracketCode(text string) (code, arg string, ok bool) {
	if len(text) == 0 || text[0] != '[' {
		return "", "", false
	}
	end := -1
	for i := 1; i < len(text); i++ {
		if text[i] == ']' {
			end = i
			break
		}
	}
	if end < 0 {
		return "", "", false
	}
	inner := text[1:end]
	name, rest := inner, ""
	for i := 0; i < len(inner); i++ {
		if inner[i] == ' ' {
			name, rest = inner[:i], inner[i+1:]
			break
		}
	}
	return name, rest, true
}

// writeDeadline returns ctx's deadline, or now plus options.WriteTimeout
// when ctx has none and the timeout is positive. Nothing in the client
// calls it.
func (c *Client) writeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	if c.options.WriteTimeout > 0 {
		return time.Now().Add(c.options.WriteTimeout)
	}
	return time.Time{}
}
