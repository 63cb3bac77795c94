package client

import (
	"bytes"
	"fmt"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/wire"
)

// buildSimple encodes "<tag to be filled in> NAME\r\n"-shaped commands with
// no arguments. The tag is substituted by dispatch, so the placeholder
// bytes built here start right after it.
func (c *Client) buildSimple(name string) []byte {
	return c.buildArgs(name)
}

// buildArgs encodes "NAME arg1 arg2 ...\r\n" using the fluent wire.Encoder,
// the same encoding helpers the wire package offers for building requests
// on the server side. The tag is prepended by dispatch.
func (c *Client) buildArgs(name string, args ...string) []byte {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	enc.Atom(name)
	for _, a := range args {
		enc.SP()
		enc.RawString(a)
	}
	enc.CRLF()
	enc.Flush()
	return buf.Bytes()
}

// buildUIDArgs encodes "UID VERB arg1 arg2 ...\r\n". UID-prefixed commands
// share their allowed-states and pipelineability with the base verb (UID
// FETCH behaves like FETCH, UID STORE like STORE), so callers look the
// base verb up in the command table and pass it separately to dispatchSync.
func (c *Client) buildUIDArgs(verb string, args ...string) []byte {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	enc.Atom(imap.CommandUID)
	enc.SP()
	enc.Atom(verb)
	for _, a := range args {
		enc.SP()
		enc.RawString(a)
	}
	enc.CRLF()
	enc.Flush()
	return buf.Bytes()
}

// checkState validates that name is legal in the connection's current
// state, per the command table (including any server-taught xatom
// extensions).
func (c *Client) checkState(name string) error {
	state := c.State()
	for _, s := range c.table.AllowedStates(name) {
		if s == state {
			return nil
		}
	}
	return imap.NewProtocolError(fmt.Sprintf("%s not allowed in %s state", name, state), "")
}

// checkWritable rejects name locally, without touching the wire, if it
// mutates mailbox state and the currently selected mailbox is read-only.
func (c *Client) checkWritable(name string) error {
	if !c.table.RequiresWrite(name) {
		return nil
	}
	c.mu.Lock()
	readOnly := c.mailbox.readOnly
	c.mu.Unlock()
	if readOnly {
		return &imap.ReadOnlyError{Command: name}
	}
	return nil
}

// dispatchSync sends one command and blocks until its tagged completion
// (or an abort) arrives. It is the single entry point every ordinary
// command method in mailbox.go/message.go/etc. funnels through.
//
// Dispatch protocol:
//  1. Validate the command against the current state, and against the
//     mailbox's read-only flag if it mutates mailbox state.
//  2. Look up pipelineable from the command table.
//  3. If non-pipelineable, wait on stateChangeFree until no command is
//     outstanding, then acquire stateChangePending and hold it until this
//     call returns.
//  4. If pipelineable, acquire stateChangePending only long enough to
//     enqueue (so it cannot race a non-pipelineable command that is
//     midway through being accepted), then release it immediately.
//  5. Build and enqueue the Request, arming producer (if any) as the sole
//     continuation owner.
//  6. Wait for the Request's outcome and translate it to an error.
func (c *Client) dispatchSync(name string, argBytes []byte, producer Producer) (*imap.StatusResponse, []string, error) {
	if err := c.checkState(name); err != nil {
		return nil, nil, err
	}
	if err := c.checkWritable(name); err != nil {
		return nil, nil, err
	}

	pipelineable := c.table.Pipelineable(name)

	c.stateChangePending.Lock()
	if !pipelineable {
		c.stateChangePending.Unlock()
		c.waitStateChangeFree(c.outstandingEmpty)
		c.stateChangePending.Lock()
	}

	tag := c.tags.Next()
	req := NewRequest(tag, name, append([]byte(tag+" "), argBytes...), pipelineable)
	req.Producer = producer

	c.outstanding.add(req)
	if producer != nil {
		c.mu.Lock()
		c.armed = req
		c.mu.Unlock()
	}

	c.logger.Debug("send", "conn_id", c.connID, "tag", tag, "cmd", name)
	c.outputQ.push(req)

	if pipelineable {
		c.stateChangePending.Unlock()
	}

	resp, untagged, err := req.Wait()

	if !pipelineable {
		c.stateChangePending.Unlock()
	}

	if err != nil {
		return nil, nil, err
	}
	return resp, untagged, translateStatus(resp)
}

// translateStatus maps a tagged completion's status to the three-tier
// error model: BAD becomes a ProtocolError, NO an IMAPError, OK/PREAUTH
// nil.
func translateStatus(resp *imap.StatusResponse) error {
	switch resp.Type {
	case imap.StatusResponseTypeBAD:
		return &imap.ProtocolError{Msg: resp.Error()}
	case imap.StatusResponseTypeNO:
		return &imap.IMAPError{StatusResponse: resp}
	default:
		return nil
	}
}

func (c *Client) outstandingEmpty() bool {
	c.outstanding.mu.Lock()
	defer c.outstanding.mu.Unlock()
	return len(c.outstanding.reqs) == 0
}
