package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/transport"
)

func TestIdleRejectedDoesNotHang(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")

		r := bufio.NewReader(serverConn)
		line, _ := r.ReadString('\n')
		if strings.Contains(line, " IDLE") {
			tag := strings.Fields(line)[0]
			fmt.Fprintf(serverConn, "%s BAD idle not allowed\r\n", tag)
		}
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.Idle()
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Idle() error = nil, want non-nil")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Idle() timed out waiting for tagged rejection")
	}
}

func TestAppendDisconnectWhileWaitingContinuation(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")

		r := bufio.NewReader(serverConn)
		_, _ = r.ReadString('\n') // APPEND command line with literal size
		_ = serverConn.Close()    // disconnect before continuation
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.Append("INBOX", []byte("hello"), nil)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Append() error = nil, want non-nil")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Append() timed out waiting for disconnect")
	}
}

func TestCloseUnblocksIdleWait(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	cmdSeen := make(chan struct{})
	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")
		r := bufio.NewReader(serverConn)
		line, _ := r.ReadString('\n')
		if strings.Contains(line, " IDLE") {
			close(cmdSeen)
		}
		_, _ = r.ReadString('\n')
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.Idle()
		done <- err
	}()

	select {
	case <-cmdSeen:
	case <-time.After(1 * time.Second):
		t.Fatal("server did not receive IDLE command")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Idle() error = nil after Close(), want non-nil")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Idle() timed out after Close()")
	}
}

func TestDoneClosedOnServerDisconnect(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")
		_ = serverConn.Close()
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	select {
	case <-c.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Done() was not closed after server disconnect")
	}

	if err := c.Err(); err == nil {
		t.Fatal("Err() = nil, want non-nil")
	}
}

func TestDoneClosedOnClientClose(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")
		r := bufio.NewReader(serverConn)
		_, _ = r.ReadString('\n')
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Done() was not closed after Close()")
	}

	if err := c.Err(); err == nil {
		t.Fatal("Err() = nil, want non-nil")
	}
}

func TestSelectPopulatesMailboxState(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")
		r := bufio.NewReader(serverConn)
		line, _ := r.ReadString('\n')
		if !strings.Contains(line, "SELECT") {
			return
		}
		tag := strings.Fields(line)[0]
		fmt.Fprint(serverConn, "* 5 EXISTS\r\n")
		fmt.Fprint(serverConn, "* 2 RECENT\r\n")
		fmt.Fprint(serverConn, "* OK [UIDVALIDITY 42] UIDs valid\r\n")
		fmt.Fprint(serverConn, "* OK [UIDNEXT 100] predicted\r\n")
		fmt.Fprintf(serverConn, "%s OK [READ-WRITE] SELECT completed\r\n", tag)
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	data, err := c.Select("INBOX", nil)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if data.NumMessages != 5 {
		t.Errorf("NumMessages = %d, want 5", data.NumMessages)
	}
	if data.NumRecent != 2 {
		t.Errorf("NumRecent = %d, want 2", data.NumRecent)
	}
	if data.UIDValidity != 42 {
		t.Errorf("UIDValidity = %d, want 42", data.UIDValidity)
	}
	if data.UIDNext != imap.UID(100) {
		t.Errorf("UIDNext = %d, want 100", data.UIDNext)
	}
	if c.State() != imap.ConnStateSelected {
		t.Errorf("State() = %v, want Selected", c.State())
	}
}

func TestPipelinedFetchesCompleteIndependently(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	go func() {
		fmt.Fprint(serverConn, "* OK ready\r\n")
		r := bufio.NewReader(serverConn)
		for i := 0; i < 2; i++ {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			tag := strings.Fields(line)[0]
			fmt.Fprint(serverConn, "* 1 FETCH (FLAGS (\\Seen))\r\n")
			fmt.Fprintf(serverConn, "%s OK FETCH completed\r\n", tag)
		}
	}()

	c, err := New(context.Background(), transport.WrapConn(clientConn))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	// force selected state so FETCH is legal without a real SELECT round-trip
	c.setState(imap.ConnStateSelected)

	results := make(chan error, 2)
	go func() {
		_, err := c.Fetch("1", "(FLAGS)")
		results <- err
	}()
	go func() {
		_, err := c.Fetch("2", "(FLAGS)")
		results <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Errorf("Fetch() error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pipelined fetch timed out")
		}
	}
}
