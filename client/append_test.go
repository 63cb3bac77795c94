package client

import (
	"testing"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/internal/imaptest"
)

func TestAppendSendsLiteralAndParsesAppendUID(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	message := []byte("Subject: hi\r\n\r\nbody")

	go func() {
		line := h.Expect("APPEND")
		h.Respond("+ Ready for literal data\r\n")
		body := h.ReadLiteral(len(message))
		if string(body) != string(message) {
			t.Errorf("literal body = %q, want %q", body, message)
		}
		tag := imaptest.Tag(line)
		h.Respond(tag + " OK [APPENDUID 42 101] APPEND completed\r\n")
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	data, err := c.Append("INBOX", message, nil)
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if data.UIDValidity != 42 {
		t.Errorf("UIDValidity = %d, want 42", data.UIDValidity)
	}
	if data.UID != imap.UID(101) {
		t.Errorf("UID = %d, want 101", data.UID)
	}
}
