package client

import (
	"testing"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/internal/imaptest"
)

func TestSearchParsesSequenceNumbers(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("SEARCH")
		tag := imaptest.Tag(line)
		h.Respond(
			"* SEARCH 1 3 5\r\n",
			tag+" OK SEARCH completed\r\n",
		)
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()
	c.setState(imap.ConnStateSelected)

	results, err := c.Search("UNSEEN")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	want := []uint32{1, 3, 5}
	if len(results) != len(want) {
		t.Fatalf("Search() = %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("Search()[%d] = %d, want %d", i, results[i], want[i])
		}
	}
}

func TestUIDCopyParsesCopyUIDCode(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("UID COPY")
		tag := imaptest.Tag(line)
		h.Respond(tag + " OK [COPYUID 42 1:3 101:103] COPY completed\r\n")
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()
	c.setState(imap.ConnStateSelected)

	data, err := c.UIDCopy("1:3", "Archive")
	if err != nil {
		t.Fatalf("UIDCopy() error: %v", err)
	}
	if data.UIDValidity != 42 {
		t.Errorf("UIDValidity = %d, want 42", data.UIDValidity)
	}
}

func TestIDExchangesClientServerInfo(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("ID")
		tag := imaptest.Tag(line)
		h.Respond(
			"* ID (\"name\" \"server\")\r\n",
			tag+" OK ID completed\r\n",
		)
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	data, err := c.ID(map[string]string{"name": "imapc"})
	if err != nil {
		t.Fatalf("ID() error: %v", err)
	}
	if data["name"] == nil || *data["name"] != "server" {
		t.Errorf("ID()[\"name\"] = %v, want \"server\"", data["name"])
	}
}
