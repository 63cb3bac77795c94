// Package transport abstracts the byte stream an IMAP client speaks over:
// a plain TCP socket, a TLS socket, or a subprocess's stdin/stdout (for
// servers reached through a local command such as an SSH tunnel). The
// engine only ever depends on this interface, never on net.Conn directly,
// so tests can substitute net.Pipe or an in-memory fake.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os/exec"
	"time"
)

// Transport is a bidirectional byte stream with an optional read deadline.
// SetReadDeadline must be safe to call even when the underlying stream has
// no real deadline support (a subprocess pipe, say); such implementations
// simply return nil and ignore the call.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
}

// connTransport adapts a net.Conn, the common case (plain TCP and TLS both
// satisfy net.Conn already).
type connTransport struct {
	net.Conn
}

// DialPlain opens a plain TCP connection to addr ("host:port").
func DialPlain(ctx context.Context, addr string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return connTransport{conn}, nil
}

// DialTLS opens a TLS connection to addr. cfg may be nil to use defaults.
func DialTLS(ctx context.Context, addr string, cfg *tls.Config) (Transport, error) {
	var d tls.Dialer
	if cfg != nil {
		d.Config = cfg
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tls %s: %w", addr, err)
	}
	return connTransport{conn}, nil
}

// StartTLS wraps an already-open Transport in TLS, for use after a
// STARTTLS command has been acknowledged by the server. The supplied
// Transport must be backed by a net.Conn (true for DialPlain and for any
// caller-supplied net.Conn passed through WrapConn); pipeTransport values
// cannot be upgraded.
func StartTLS(t Transport, serverName string, cfg *tls.Config) (Transport, error) {
	ct, ok := t.(connTransport)
	if !ok {
		return nil, fmt.Errorf("transport: %T does not support STARTTLS", t)
	}
	tlsCfg := cfg
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	}
	if tlsCfg.ServerName == "" && serverName != "" {
		clone := tlsCfg.Clone()
		clone.ServerName = serverName
		tlsCfg = clone
	}
	tlsConn := tls.Client(ct.Conn, tlsCfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return nil, fmt.Errorf("transport: tls handshake: %w", err)
	}
	return connTransport{tlsConn}, nil
}

// WrapConn adapts a caller-supplied net.Conn (already connected, greeting
// not yet read) as a Transport.
func WrapConn(conn net.Conn) Transport {
	return connTransport{conn}
}

// pipeTransport adapts a subprocess's stdin/stdout as a Transport, for
// servers reached by running a local command (e.g. an SSH tunnel) instead
// of dialing a socket directly. It has no real read deadline, so
// SetReadDeadline is a no-op: callers relying on prompt shutdown over a
// pipe transport must close it explicitly instead.
type pipeTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// DialStream starts cmd (already configured with Args/Env/Dir as needed)
// and speaks the IMAP protocol over its stdin/stdout.
func DialStream(cmd *exec.Cmd) (Transport, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start %s: %w", cmd.Path, err)
	}
	return &pipeTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (p *pipeTransport) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *pipeTransport) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *pipeTransport) Close() error {
	stdinErr := p.stdin.Close()
	_ = p.cmd.Wait()
	return stdinErr
}

func (p *pipeTransport) SetReadDeadline(time.Time) error { return nil }
