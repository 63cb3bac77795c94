package client

import (
	"fmt"
	"strconv"
	"strings"

	imap "github.com/quietloop/imapc"
)

// Append appends message to mailbox, sent as a synchronizing literal: the
// server's continuation is awaited before the message bytes are written.
// The caller's single outstanding continuation is driven by a Producer
// that fires exactly once, handing back the whole literal plus its
// trailing CRLF. Bare CR and bare LF line endings in message are converted
// to CRLF before the literal size is computed.
func (c *Client) Append(mailbox string, message []byte, opts *imap.AppendOptions) (*imap.AppendData, error) {
	message = []byte(strings.NewReplacer("\r\n", "\r\n", "\r", "\r\n", "\n", "\r\n").Replace(string(message)))
	var args []string
	args = append(args, imap.MailboxName(mailbox))
	if opts != nil && len(opts.Flags) > 0 {
		args = append(args, imap.JoinFlags(opts.Flags))
	}
	if opts != nil && !opts.InternalDate.IsZero() {
		args = append(args, imap.Time2Internaldate(opts.InternalDate))
	}
	args = append(args, fmt.Sprintf("{%d}", len(message)))

	data := c.buildArgs(imap.CommandAppend, args...)

	sent := false
	producer := func(contText string) ([]byte, bool, error) {
		if sent {
			return nil, true, nil
		}
		sent = true
		return append(append([]byte{}, message...), '\r', '\n'), true, nil
	}

	resp, _, err := c.dispatchSync(imap.CommandAppend, data, producer)
	if err != nil {
		return nil, err
	}

	result := &imap.AppendData{}
	if resp != nil && resp.Code == imap.ResponseCodeAppendUID {
		parts := strings.Fields(resp.CodeArg)
		if len(parts) >= 2 {
			if v, err := strconv.ParseUint(parts[0], 10, 32); err == nil {
				result.UIDValidity = uint32(v)
			}
			if v, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
				result.UID = imap.UID(v)
			}
		}
	}
	return result, nil
}
