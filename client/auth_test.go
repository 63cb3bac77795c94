package client

import (
	"context"
	"encoding/base64"
	"testing"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/internal/imaptest"
)

func TestLoginTransitionsToAuthenticated(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("LOGIN")
		tag := imaptest.Tag(line)
		h.Respond(tag + " OK LOGIN completed\r\n")
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	if err := c.Login(context.Background(), "alice", "hunter2"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if c.State() != imap.ConnStateAuthenticated {
		t.Errorf("State() = %v, want Authenticated", c.State())
	}
}

func TestAuthenticatePlainDrivesContinuation(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("AUTHENTICATE")
		h.Respond("+ \r\n")
		resp := h.ExpectLine()
		decoded, err := base64.StdEncoding.DecodeString(
			resp[:len(resp)-2], // strip CRLF
		)
		if err != nil {
			t.Errorf("decoding initial response: %v", err)
		}
		if string(decoded) != "\x00alice\x00hunter2" {
			t.Errorf("initial response = %q, want SASL PLAIN blob", decoded)
		}
		// find original tag from the AUTHENTICATE line itself
		tag := imaptest.Tag(line)
		h.Respond(tag + " OK AUTHENTICATE completed\r\n")
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	if err := c.AuthenticatePlain(context.Background(), "", "alice", "hunter2"); err != nil {
		t.Fatalf("AuthenticatePlain() error: %v", err)
	}
	if c.State() != imap.ConnStateAuthenticated {
		t.Errorf("State() = %v, want Authenticated", c.State())
	}
}
