package client

import (
	"errors"
	"testing"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/internal/imaptest"
)

func TestListMailboxesParsesEntries(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("LIST")
		tag := imaptest.Tag(line)
		h.Respond(
			"* LIST (\\HasNoChildren) \"/\" INBOX\r\n",
			"* LIST (\\HasChildren \\Noselect) \"/\" Archive\r\n",
			tag+" OK LIST completed\r\n",
		)
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	boxes, err := c.ListMailboxes("", "*")
	if err != nil {
		t.Fatalf("ListMailboxes() error: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("len(boxes) = %d, want 2", len(boxes))
	}
	if boxes[0].Mailbox != "INBOX" {
		t.Errorf("boxes[0].Mailbox = %q, want INBOX", boxes[0].Mailbox)
	}
	if boxes[1].Mailbox != "Archive" {
		t.Errorf("boxes[1].Mailbox = %q, want Archive", boxes[1].Mailbox)
	}
}

func TestStatusParsesCounters(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("STATUS")
		tag := imaptest.Tag(line)
		h.Respond(
			"* STATUS INBOX (MESSAGES 12 UNSEEN 3)\r\n",
			tag+" OK STATUS completed\r\n",
		)
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	data, err := c.Status("INBOX", &imap.StatusOptions{NumMessages: true, NumUnseen: true})
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if data.NumMessages == nil || *data.NumMessages != 12 {
		t.Errorf("NumMessages = %v, want 12", data.NumMessages)
	}
	if data.NumUnseen == nil || *data.NumUnseen != 3 {
		t.Errorf("NumUnseen = %v, want 3", data.NumUnseen)
	}
}

func TestUnselectResetsMailboxState(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("SELECT")
		tag := imaptest.Tag(line)
		h.Respond(
			"* 1 EXISTS\r\n",
			tag+" OK [READ-WRITE] SELECT completed\r\n",
		)
		line = h.Expect("UNSELECT")
		tag = imaptest.Tag(line)
		h.Respond(tag + " OK UNSELECT completed\r\n")
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	if _, err := c.Select("INBOX", nil); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if err := c.Unselect(); err != nil {
		t.Fatalf("Unselect() error: %v", err)
	}
	if c.State() != imap.ConnStateAuthenticated {
		t.Errorf("State() = %v, want Authenticated", c.State())
	}
}

func TestSelectReturnsReadOnlyErrorWhenServerDowngrades(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("SELECT")
		tag := imaptest.Tag(line)
		h.Respond(
			"* 1 EXISTS\r\n",
			tag+" OK [READ-ONLY] SELECT completed\r\n",
		)
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	_, err = c.Select("INBOX", nil)
	if err == nil {
		t.Fatal("Select() error = nil, want ReadOnlyError")
	}
	var roErr *imap.ReadOnlyError
	if !errors.As(err, &roErr) {
		t.Fatalf("Select() error = %v, want *imap.ReadOnlyError", err)
	}
	if roErr.Mailbox != "INBOX" {
		t.Errorf("roErr.Mailbox = %q, want INBOX", roErr.Mailbox)
	}
	want := "imap: INBOX is not writable"
	if roErr.Error() != want {
		t.Errorf("roErr.Error() = %q, want %q", roErr.Error(), want)
	}
	var abortErr *imap.AbortError
	if !errors.As(err, &abortErr) {
		t.Error("errors.As(err, *AbortError) should match (ReadOnlyError wraps AbortError)")
	}
}

func TestExamineAcceptsReadOnlyWithoutError(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("EXAMINE")
		tag := imaptest.Tag(line)
		h.Respond(
			"* 1 EXISTS\r\n",
			tag+" OK [READ-ONLY] EXAMINE completed\r\n",
		)
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	sel, err := c.Examine("INBOX")
	if err != nil {
		t.Fatalf("Examine() error: %v", err)
	}
	if !sel.ReadOnly {
		t.Error("sel.ReadOnly = false, want true")
	}
}

func TestStoreRejectedLocallyOnReadOnlyMailbox(t *testing.T) {
	h := imaptest.NewHarness(t, "")

	go func() {
		line := h.Expect("EXAMINE")
		tag := imaptest.Tag(line)
		h.Respond(tag + " OK [READ-ONLY] EXAMINE completed\r\n")
	}()

	c, err := h.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()

	if _, err := c.Select("INBOX", &imap.SelectOptions{ReadOnly: true}); err != nil {
		t.Fatalf("Select() error: %v", err)
	}

	err = c.Store("1", imap.StoreFlagsAdd, []imap.Flag{imap.FlagSeen}, false)
	if err == nil {
		t.Fatal("Store() error = nil, want ReadOnlyError")
	}
	var roErr *imap.ReadOnlyError
	if !errors.As(err, &roErr) {
		t.Fatalf("Store() error = %v, want *imap.ReadOnlyError", err)
	}
	if roErr.Command != imap.CommandStore {
		t.Errorf("roErr.Command = %q, want %q", roErr.Command, imap.CommandStore)
	}
}
