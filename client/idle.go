package client

import (
	"fmt"
	"sync"
	"time"

	imap "github.com/quietloop/imapc"
)

// IdleCommand represents an in-progress IDLE. Caller code should wait on
// unilateral data (via the UnilateralDataHandler configured on the
// Client) while idling, and call Stop when it wants to issue another
// command or shut down.
type IdleCommand struct {
	c        *Client
	req      *Request
	timer    *time.Timer
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Idle starts IDLE (RFC 2177). Unlike every other command, Idle returns as
// soon as the server's first continuation arrives, not when the command
// completes: the command only completes once Stop sends DONE. A timer
// armed for the client's configured IdleTimeout sends DONE automatically
// if Stop is never called, since RFC 2177 recommends re-issuing IDLE
// before a server's own inactivity timeout (conventionally 30 minutes)
// fires and drops the connection.
func (c *Client) Idle() (*IdleCommand, error) {
	if err := c.checkState(imap.CommandIdle); err != nil {
		return nil, err
	}

	ic := &IdleCommand{c: c, done: make(chan struct{})}

	armed := make(chan struct{})
	producer := func(contText string) ([]byte, bool, error) {
		close(armed)
		ic.timer = time.AfterFunc(c.options.IdleTimeout, func() {
			_ = ic.Stop()
		})
		return nil, true, nil
	}

	c.stateChangePending.Lock()
	c.waitStateChangeFreeLocked()

	tag := c.tags.Next()
	data := append([]byte(tag+" "), c.buildSimple(imap.CommandIdle)...)
	req := NewRequest(tag, imap.CommandIdle, data, false)
	req.Producer = producer
	ic.req = req

	c.outstanding.add(req)
	c.mu.Lock()
	c.armed = req
	c.mu.Unlock()

	c.outputQ.push(req)
	// stateChangePending stays held until Stop, mirroring every other
	// non-pipelineable command; IDLE simply defers releasing it past the
	// point where the tagged completion would normally have arrived.

	select {
	case <-armed:
	case <-req.Ready():
		c.stateChangePending.Unlock()
		_, _, err := req.Wait()
		if err == nil {
			err = fmt.Errorf("imapc: server completed IDLE before continuation")
		}
		return nil, err
	}

	return ic, nil
}

// waitStateChangeFreeLocked waits for the outstanding-commands map to empty
// while already holding stateChangePending -- the lock itself does not
// guard the map, only dispatch ordering, so it is safe to wait here.
func (c *Client) waitStateChangeFreeLocked() {
	c.stateChangePending.Unlock()
	c.waitStateChangeFree(c.outstandingEmpty)
	c.stateChangePending.Lock()
}

// Stop sends DONE, stops the idle timer, and waits for the tagged
// completion of the original IDLE command. It releases stateChangePending,
// which Idle left held for the duration of the IDLE per the
// non-pipelineable contract. Safe to call more than once (including
// racing against the IdleTimeout firing): only the first call has effect.
func (ic *IdleCommand) Stop() error {
	ic.stopOnce.Do(func() {
		if ic.timer != nil {
			ic.timer.Stop()
		}
		ic.c.writeContinuation([]byte("DONE\r\n"))
		resp, _, err := ic.req.Wait()
		ic.c.stateChangePending.Unlock()
		if err != nil {
			ic.stopErr = err
			return
		}
		ic.stopErr = translateStatus(resp)
	})
	return ic.stopErr
}
