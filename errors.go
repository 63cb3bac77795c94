package imap

import "fmt"

// ProtocolError indicates a malformed or unexpected response that the
// current command can recover from: the command fails, but the connection
// and any other commands in flight are unaffected.
type ProtocolError struct {
	// Msg describes what was expected and what was seen.
	Msg string
	// Line is the raw response line that triggered the error, if any.
	Line string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return "imap: protocol error: " + e.Msg
	}
	return fmt.Sprintf("imap: protocol error: %s (line: %q)", e.Msg, e.Line)
}

// NewProtocolError builds a ProtocolError from a message and the offending line.
func NewProtocolError(msg, line string) *ProtocolError {
	return &ProtocolError{Msg: msg, Line: line}
}

// AbortError indicates the connection is no longer usable. Every pending
// and future command must fail with this error; the caller must close the
// transport and discard the Client.
type AbortError struct {
	// Reason is a short machine-oriented description.
	Reason string
	// Err is the underlying cause, if any (a transport I/O error, a
	// protocol violation severe enough to abandon the connection, or a
	// server BYE response).
	Err error
}

func (e *AbortError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("imap: connection aborted: %s: %v", e.Reason, e.Err)
	}
	return "imap: connection aborted: " + e.Reason
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// NewAbortError wraps err (which may be nil) as an AbortError with reason.
func NewAbortError(reason string, err error) *AbortError {
	return &AbortError{Reason: reason, Err: err}
}

// ReadOnlyError indicates a command that modifies mailbox state (for
// example STORE or EXPUNGE) was rejected because the mailbox was opened
// read-only, or that a SELECT was silently downgraded to read-only by the
// server. It is not fatal: the connection and mailbox remain usable, the
// caller simply cannot perform the requested mutation (or, for SELECT,
// may retry after deciding whether read-only access is acceptable).
//
// ReadOnlyError unwraps to an AbortError so that errors.As(err,
// new(*AbortError)) matches it, per the client's error hierarchy; this is
// a classification relationship only and does not mean the connection
// itself is torn down.
type ReadOnlyError struct {
	// Mailbox is set when a SELECT discovered the mailbox is read-only.
	Mailbox string
	// Command is set when a mutating command was rejected against an
	// already-selected read-only mailbox.
	Command string
}

func (e *ReadOnlyError) Error() string {
	if e.Mailbox != "" {
		return fmt.Sprintf("imap: %s is not writable", e.Mailbox)
	}
	return fmt.Sprintf("imap: %s: mailbox is read-only", e.Command)
}

func (e *ReadOnlyError) Unwrap() error {
	return &AbortError{Reason: "mailbox is read-only"}
}
