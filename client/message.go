package client

import (
	"fmt"
	"strconv"
	"strings"

	imap "github.com/quietloop/imapc"
)

// Fetch retrieves message data for the given sequence set, returning the
// raw body of each untagged FETCH response exactly as the server sent it.
func (c *Client) Fetch(seqSet, items string) ([]string, error) {
	data := c.buildArgs(imap.CommandFetch, seqSet, items)
	_, untagged, err := c.dispatchSync(imap.CommandFetch, data, nil)
	if err != nil {
		return nil, err
	}
	return filterPrefix(untagged, "FETCH "), nil
}

// UIDFetch retrieves message data addressed by UID.
func (c *Client) UIDFetch(uidSet, items string) ([]string, error) {
	data := c.buildUIDArgs(imap.CommandFetch, uidSet, items)
	_, untagged, err := c.dispatchSync(imap.CommandFetch, data, nil)
	if err != nil {
		return nil, err
	}
	return filterPrefix(untagged, "FETCH "), nil
}

func storeItem(action imap.StoreAction, silent bool) string {
	item := action.String()
	if silent {
		item += ".SILENT"
	}
	return item
}

// Store modifies message flags by sequence number.
func (c *Client) Store(seqSet string, action imap.StoreAction, flags []imap.Flag, silent bool) error {
	data := c.buildArgs(imap.CommandStore, seqSet, storeItem(action, silent), imap.JoinFlags(flags))
	_, _, err := c.dispatchSync(imap.CommandStore, data, nil)
	return err
}

// UIDStore modifies message flags by UID.
func (c *Client) UIDStore(uidSet string, action imap.StoreAction, flags []imap.Flag, silent bool) error {
	data := c.buildUIDArgs(imap.CommandStore, uidSet, storeItem(action, silent), imap.JoinFlags(flags))
	_, _, err := c.dispatchSync(imap.CommandStore, data, nil)
	return err
}

// Copy copies messages by sequence number to another mailbox.
func (c *Client) Copy(seqSet, dest string) (*imap.CopyData, error) {
	data := c.buildArgs(imap.CommandCopy, seqSet, imap.MailboxName(dest))
	resp, _, err := c.dispatchSync(imap.CommandCopy, data, nil)
	if err != nil {
		return nil, err
	}
	return parseCopyUIDResp(resp), nil
}

// UIDCopy copies messages by UID to another mailbox.
func (c *Client) UIDCopy(uidSet, dest string) (*imap.CopyData, error) {
	data := c.buildUIDArgs(imap.CommandCopy, uidSet, imap.MailboxName(dest))
	resp, _, err := c.dispatchSync(imap.CommandCopy, data, nil)
	if err != nil {
		return nil, err
	}
	return parseCopyUIDResp(resp), nil
}

// Move moves messages by sequence number to another mailbox (MOVE extension, RFC 6851).
func (c *Client) Move(seqSet, dest string) (*imap.CopyData, error) {
	data := c.buildArgs(imap.CommandMove, seqSet, imap.MailboxName(dest))
	resp, _, err := c.dispatchSync(imap.CommandMove, data, nil)
	if err != nil {
		return nil, err
	}
	return parseCopyUIDResp(resp), nil
}

// UIDMove moves messages by UID to another mailbox.
func (c *Client) UIDMove(uidSet, dest string) (*imap.CopyData, error) {
	data := c.buildUIDArgs(imap.CommandMove, uidSet, imap.MailboxName(dest))
	resp, _, err := c.dispatchSync(imap.CommandMove, data, nil)
	if err != nil {
		return nil, err
	}
	return parseCopyUIDResp(resp), nil
}

// Expunge permanently removes messages marked \Deleted from the selected
// mailbox.
func (c *Client) Expunge() error {
	data := c.buildSimple(imap.CommandExpunge)
	_, _, err := c.dispatchSync(imap.CommandExpunge, data, nil)
	return err
}

// UIDExpunge permanently removes a specified subset of \Deleted messages
// by UID (UIDPLUS, RFC 4315).
func (c *Client) UIDExpunge(uidSet string) error {
	data := c.buildUIDArgs(imap.CommandExpunge, uidSet)
	_, _, err := c.dispatchSync(imap.CommandExpunge, data, nil)
	return err
}

// Search searches the selected mailbox for messages matching criteria,
// returning matching sequence numbers.
func (c *Client) Search(criteria string) ([]uint32, error) {
	data := c.buildArgs(imap.CommandSearch, criteria)
	_, untagged, err := c.dispatchSync(imap.CommandSearch, data, nil)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(untagged, "SEARCH "), nil
}

// UIDSearch searches the selected mailbox, returning matching UIDs.
func (c *Client) UIDSearch(criteria string) ([]uint32, error) {
	data := c.buildUIDArgs(imap.CommandSearch, criteria)
	_, untagged, err := c.dispatchSync(imap.CommandSearch, data, nil)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(untagged, "SEARCH "), nil
}

// Sort sorts the selected mailbox's messages by the given criteria (SORT
// extension, RFC 5256), returning sequence numbers in sorted order.
func (c *Client) Sort(criteria string) ([]uint32, error) {
	data := c.buildArgs(imap.CommandSort, criteria)
	_, untagged, err := c.dispatchSync(imap.CommandSort, data, nil)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(untagged, "SORT "), nil
}

// UIDSort sorts by UID.
func (c *Client) UIDSort(criteria string) ([]uint32, error) {
	data := c.buildUIDArgs(imap.CommandSort, criteria)
	_, untagged, err := c.dispatchSync(imap.CommandSort, data, nil)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(untagged, "SORT "), nil
}

// Thread retrieves threading information for the selected mailbox (THREAD
// extension, RFC 5256), returning the raw body of each untagged THREAD
// response.
func (c *Client) Thread(algorithm, criteria string) ([]string, error) {
	data := c.buildArgs(imap.CommandThread, algorithm, criteria)
	_, untagged, err := c.dispatchSync(imap.CommandThread, data, nil)
	if err != nil {
		return nil, err
	}
	return trimPrefix(filterPrefix(untagged, "THREAD "), "THREAD "), nil
}

// UIDThread threads by UID.
func (c *Client) UIDThread(algorithm, criteria string) ([]string, error) {
	data := c.buildUIDArgs(imap.CommandThread, algorithm, criteria)
	_, untagged, err := c.dispatchSync(imap.CommandThread, data, nil)
	if err != nil {
		return nil, err
	}
	return trimPrefix(filterPrefix(untagged, "THREAD "), "THREAD "), nil
}

// ID exchanges client/server identification (RFC 2971).
func (c *Client) ID(clientID map[string]string) (imap.IDData, error) {
	var arg string
	if clientID == nil {
		arg = "NIL"
	} else {
		var parts []string
		for k, v := range clientID {
			parts = append(parts, fmt.Sprintf("%s %s", imap.QuoteArg(k), imap.QuoteArg(v)))
		}
		arg = "(" + strings.Join(parts, " ") + ")"
	}

	data := c.buildArgs(imap.CommandID, arg)
	_, untagged, err := c.dispatchSync(imap.CommandID, data, nil)
	if err != nil {
		return nil, err
	}

	for _, line := range untagged {
		if strings.HasPrefix(line, "ID ") {
			return parseIDResponse(line[3:]), nil
		}
	}
	return nil, nil
}

func parseIDResponse(s string) imap.IDData {
	s = strings.TrimSpace(s)
	if s == "NIL" || s == "" {
		return nil
	}
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	out := make(imap.IDData)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			break
		}
		var k, v string
		k, s = readQuotedOrAtom(s)
		s = strings.TrimLeft(s, " ")
		v, s = readQuotedOrAtom(s)
		vv := v
		out[k] = &vv
	}
	return out
}

func parseCopyUIDResp(resp *imap.StatusResponse) *imap.CopyData {
	data := &imap.CopyData{}
	if resp == nil || resp.Code != imap.ResponseCodeCopyUID {
		return data
	}
	parts := strings.Fields(resp.CodeArg)
	if len(parts) < 3 {
		return data
	}
	if v, err := strconv.ParseUint(parts[0], 10, 32); err == nil {
		data.UIDValidity = uint32(v)
	}
	if set, err := imap.ParseUIDSet(parts[1]); err == nil {
		data.SourceUIDs = *set
	}
	if set, err := imap.ParseUIDSet(parts[2]); err == nil {
		data.DestUIDs = *set
	}
	return data
}

func parseSearchResults(lines []string, prefix string) []uint32 {
	var results []uint32
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			for _, f := range strings.Fields(line[len(prefix):]) {
				if n, err := strconv.ParseUint(f, 10, 32); err == nil {
					results = append(results, uint32(n))
				}
			}
		}
	}
	return results
}

// filterPrefix keeps the lines whose response keyword starts with prefix.
// A leading message number ("<n> FETCH ...") is skipped for the match, and
// the whole line is kept.
func filterPrefix(lines []string, prefix string) []string {
	var out []string
	for _, line := range lines {
		body := line
		if sp := strings.IndexByte(line, ' '); sp > 0 {
			if _, err := strconv.ParseUint(line[:sp], 10, 32); err == nil {
				body = line[sp+1:]
			}
		}
		if strings.HasPrefix(body, prefix) {
			out = append(out, line)
		}
	}
	return out
}

func trimPrefix(lines []string, prefix string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.TrimPrefix(line, prefix)
	}
	return out
}
