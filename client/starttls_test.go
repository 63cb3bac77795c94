package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/quietloop/imapc/transport"
)

// TestStartTLSRetiresOldPipelineBeforeUpgrade exercises the pause/stop
// handshake on the reader and writer without a real TLS handshake: it
// confirms the client blocks in StartTLS until the plaintext reader has
// been retired rather than racing a fresh reader against the old one.
// The handshake itself is expected to fail since the peer never speaks
// TLS, so this only verifies the transport swap sequencing, not a
// successful upgrade.
func TestStartTLSRetiresOldPipelineBeforeUpgrade(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")
		r := bufio.NewReader(serverConn)
		line, _ := r.ReadString('\n')
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "STARTTLS" {
			fmt.Fprintf(serverConn, "%s OK begin TLS\r\n", fields[0])
		}
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.StartTLS(&tls.Config{InsecureSkipVerify: true})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("StartTLS() error = nil, want non-nil (no real TLS peer)")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartTLS() timed out; reader/writer swap likely deadlocked")
	}
}
