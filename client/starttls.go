package client

import (
	"crypto/tls"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/transport"
)

// StartTLS upgrades the connection to TLS (RFC 3501 section 6.2.1). Per
// the RFC, the client discards any cached capability list and must
// re-issue CAPABILITY once the upgrade completes, since a pre-TLS
// CAPABILITY response is not trustworthy.
//
// STARTTLS is issued like any other non-pipelineable command, so by the
// time it returns, stateChangePending guarantees nothing else is
// outstanding or queued to write. That is what makes it safe to retire
// the old reader/writer goroutines and start fresh ones on the upgraded
// transport without racing a concurrent command.
func (c *Client) StartTLS(config *tls.Config) error {
	if config == nil {
		config = c.options.TLSConfig
	}
	if config == nil {
		config = &tls.Config{}
	}

	data := c.buildSimple(imap.CommandStartTLS)
	_, _, err := c.dispatchSync(imap.CommandStartTLS, data, nil)
	if err != nil {
		return err
	}

	c.rdr.pause()
	c.wtr.stop()

	upgraded, err := transport.StartTLS(c.transport, config.ServerName, config)
	if err != nil {
		return imap.NewAbortError("starttls handshake", err)
	}

	c.mu.Lock()
	c.transport = upgraded
	c.caps = imap.NewCapSet()
	c.mu.Unlock()

	c.rdr = newReader(upgraded, c.inputQ, c.isLogout)
	c.wtr = newWriter(upgraded, c.outputQ, c.onWriteFailure)
	go c.rdr.run()
	go c.wtr.run()

	_, err = c.Capability()
	return err
}
