package imaptest

import (
	"testing"
	"time"

	imap "github.com/quietloop/imapc"
)

func TestHarnessCapabilityRoundTrip(t *testing.T) {
	h := NewHarness(t, "")

	go func() {
		line := h.Expect("CAPABILITY")
		tag := Tag(line)
		h.Respond(
			"* CAPABILITY IMAP4rev1 IDLE\r\n",
			tag+" OK CAPABILITY completed\r\n",
		)
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	caps, err := c.Capability()
	if err != nil {
		t.Fatalf("Capability() error: %v", err)
	}
	found := false
	for _, cap := range caps {
		if cap == imap.CapIdle {
			found = true
		}
	}
	if !found {
		t.Errorf("Capability() = %v, want IDLE included", caps)
	}
}

func TestHarnessCloseServerUnblocksClient(t *testing.T) {
	h := NewHarness(t, "")

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	h.CloseServer()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() was not closed after server disconnect")
	}
}
