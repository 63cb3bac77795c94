package client

import (
	"fmt"
	"strconv"
	"strings"

	imap "github.com/quietloop/imapc"
)

// Select selects a mailbox, or opens it read-only (EXAMINE) if opts asks
// for it. The returned SelectData is a snapshot of the mailbox-state
// fields the handler accumulated while the command was outstanding
// (EXISTS, RECENT, the UIDVALIDITY/UIDNEXT/UNSEEN/PERMANENTFLAGS response
// codes).
func (c *Client) Select(mailbox string, opts *imap.SelectOptions) (*imap.SelectData, error) {
	name := imap.CommandSelect
	wantWrite := opts == nil || !opts.ReadOnly
	if !wantWrite {
		name = imap.CommandExamine
	}

	data := c.buildArgs(name, imap.MailboxName(mailbox))
	_, _, err := c.dispatchSync(name, data, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.state = imap.ConnStateSelected
	c.mailbox.name = mailbox
	readOnly := c.mailbox.readOnly
	sel := &imap.SelectData{
		PermanentFlags: c.mailbox.permFlags,
		NumMessages:    c.mailbox.numMessages,
		NumRecent:      c.mailbox.numRecent,
		UIDNext:        imap.UID(c.mailbox.uidNext),
		UIDValidity:    c.mailbox.uidValidity,
		FirstUnseen:    c.mailbox.unseen,
		ReadOnly:       readOnly,
	}
	c.mu.Unlock()

	if wantWrite && readOnly {
		return nil, &imap.ReadOnlyError{Mailbox: mailbox}
	}

	return sel, nil
}

// Examine opens a mailbox in read-only mode.
func (c *Client) Examine(mailbox string) (*imap.SelectData, error) {
	return c.Select(mailbox, &imap.SelectOptions{ReadOnly: true})
}

// Create creates a new mailbox.
func (c *Client) Create(mailbox string) error {
	data := c.buildArgs(imap.CommandCreate, imap.MailboxName(mailbox))
	_, _, err := c.dispatchSync(imap.CommandCreate, data, nil)
	return err
}

// CreateWithOptions creates a new mailbox with options. If options
// includes a SpecialUse attribute, the USE parameter is sent per RFC
// 6154: CREATE mailbox (USE (\Sent))
func (c *Client) CreateWithOptions(mailbox string, options *imap.CreateOptions) error {
	args := []string{imap.MailboxName(mailbox)}
	if options != nil && options.SpecialUse != "" {
		args = append(args, "(USE ("+string(options.SpecialUse)+"))")
	}
	data := c.buildArgs(imap.CommandCreate, args...)
	_, _, err := c.dispatchSync(imap.CommandCreate, data, nil)
	return err
}

// Delete deletes a mailbox.
func (c *Client) Delete(mailbox string) error {
	data := c.buildArgs(imap.CommandDelete, imap.MailboxName(mailbox))
	_, _, err := c.dispatchSync(imap.CommandDelete, data, nil)
	return err
}

// Rename renames a mailbox.
func (c *Client) Rename(oldName, newName string) error {
	data := c.buildArgs(imap.CommandRename, imap.MailboxName(oldName), imap.MailboxName(newName))
	_, _, err := c.dispatchSync(imap.CommandRename, data, nil)
	return err
}

// Subscribe subscribes to a mailbox.
func (c *Client) Subscribe(mailbox string) error {
	data := c.buildArgs(imap.CommandSubscribe, imap.MailboxName(mailbox))
	_, _, err := c.dispatchSync(imap.CommandSubscribe, data, nil)
	return err
}

// Unsubscribe unsubscribes from a mailbox.
func (c *Client) Unsubscribe(mailbox string) error {
	data := c.buildArgs(imap.CommandUnsubscribe, imap.MailboxName(mailbox))
	_, _, err := c.dispatchSync(imap.CommandUnsubscribe, data, nil)
	return err
}

// ListMailboxes lists mailboxes matching the given reference and pattern.
func (c *Client) ListMailboxes(ref, pattern string) ([]*imap.ListData, error) {
	data := c.buildArgs(imap.CommandList, imap.MailboxName(ref), imap.MailboxName(pattern))
	_, untagged, err := c.dispatchSync(imap.CommandList, data, nil)
	if err != nil {
		return nil, err
	}

	var mailboxes []*imap.ListData
	for _, line := range untagged {
		if strings.HasPrefix(line, "LIST ") {
			if ld := parseListResponse(line[5:]); ld != nil {
				mailboxes = append(mailboxes, ld)
			}
		}
	}
	return mailboxes, nil
}

// ListMailboxesExtended lists mailboxes with extended LIST options (RFC 5258).
func (c *Client) ListMailboxesExtended(ref string, patterns []string, options *imap.ListOptions) ([]*imap.ListData, error) {
	var args []string

	if options != nil && hasSelectionOpts(options) {
		var sel []string
		if options.SelectSubscribed {
			sel = append(sel, "SUBSCRIBED")
		}
		if options.SelectRemote {
			sel = append(sel, "REMOTE")
		}
		if options.SelectRecursiveMatch {
			sel = append(sel, "RECURSIVEMATCH")
		}
		if options.SelectSpecialUse {
			sel = append(sel, "SPECIAL-USE")
		}
		args = append(args, "("+strings.Join(sel, " ")+")")
	}

	args = append(args, imap.MailboxName(ref))

	if len(patterns) == 1 {
		args = append(args, imap.MailboxName(patterns[0]))
	} else {
		parts := make([]string, len(patterns))
		for i, p := range patterns {
			parts[i] = imap.MailboxName(p)
		}
		args = append(args, "("+strings.Join(parts, " ")+")")
	}

	if options != nil && hasReturnOpts(options) {
		var ret []string
		if options.ReturnSubscribed {
			ret = append(ret, "SUBSCRIBED")
		}
		if options.ReturnChildren {
			ret = append(ret, "CHILDREN")
		}
		if options.ReturnSpecialUse {
			ret = append(ret, "SPECIAL-USE")
		}
		if options.ReturnMyRights {
			ret = append(ret, "MYRIGHTS")
		}
		if options.ReturnStatus != nil {
			ret = append(ret, "STATUS ("+strings.Join(buildStatusItems(options.ReturnStatus), " ")+")")
		}
		if options.ReturnMetadata != nil {
			var meta []string
			for _, opt := range options.ReturnMetadata.Options {
				meta = append(meta, imap.QuoteArg(opt))
			}
			if options.ReturnMetadata.MaxSize > 0 {
				meta = append(meta, fmt.Sprintf("MAXSIZE %d", options.ReturnMetadata.MaxSize))
			}
			if options.ReturnMetadata.Depth != "" {
				meta = append(meta, "DEPTH "+options.ReturnMetadata.Depth)
			}
			ret = append(ret, "METADATA ("+strings.Join(meta, " ")+")")
		}
		args = append(args, "RETURN", "("+strings.Join(ret, " ")+")")
	}

	data := c.buildArgs(imap.CommandList, args...)
	_, untagged, err := c.dispatchSync(imap.CommandList, data, nil)
	if err != nil {
		return nil, err
	}

	var mailboxes []*imap.ListData
	byName := make(map[string]*imap.ListData)
	for _, line := range untagged {
		if strings.HasPrefix(line, "LIST ") {
			if ld := parseListResponse(line[5:]); ld != nil {
				mailboxes = append(mailboxes, ld)
				byName[ld.Mailbox] = ld
			}
		}
	}
	for _, line := range untagged {
		if strings.HasPrefix(line, "STATUS ") {
			if sd := parseStatusResponse(line[7:]); sd != nil {
				if ld, ok := byName[sd.Mailbox]; ok {
					ld.Status = sd
				}
			}
		}
	}
	return mailboxes, nil
}

func hasSelectionOpts(opts *imap.ListOptions) bool {
	return opts.SelectSubscribed || opts.SelectRemote || opts.SelectRecursiveMatch || opts.SelectSpecialUse
}

func hasReturnOpts(opts *imap.ListOptions) bool {
	return opts.ReturnSubscribed || opts.ReturnChildren || opts.ReturnSpecialUse ||
		opts.ReturnMyRights || opts.ReturnStatus != nil || opts.ReturnMetadata != nil
}

// Status returns the status of a mailbox.
func (c *Client) Status(mailbox string, opts *imap.StatusOptions) (*imap.StatusData, error) {
	items := buildStatusItems(opts)
	data := c.buildArgs(imap.CommandStatus, imap.MailboxName(mailbox), "("+strings.Join(items, " ")+")")
	_, untagged, err := c.dispatchSync(imap.CommandStatus, data, nil)
	if err != nil {
		return nil, err
	}
	for _, line := range untagged {
		if strings.HasPrefix(line, "STATUS ") {
			return parseStatusResponse(line[7:]), nil
		}
	}
	return &imap.StatusData{Mailbox: mailbox}, nil
}

// Unselect closes the current mailbox without expunging (RFC 3691).
func (c *Client) Unselect() error {
	data := c.buildSimple(imap.CommandUnselect)
	_, _, err := c.dispatchSync(imap.CommandUnselect, data, nil)
	if err == nil {
		c.mu.Lock()
		c.state = imap.ConnStateAuthenticated
		c.mailbox = mailboxState{}
		c.mu.Unlock()
	}
	return err
}

// CloseMailbox closes the current mailbox, expunging messages marked
// \Deleted.
func (c *Client) CloseMailbox() error {
	data := c.buildSimple(imap.CommandClose)
	_, _, err := c.dispatchSync(imap.CommandClose, data, nil)
	if err == nil {
		c.mu.Lock()
		c.state = imap.ConnStateAuthenticated
		c.mailbox = mailboxState{}
		c.mu.Unlock()
	}
	return err
}

func buildStatusItems(opts *imap.StatusOptions) []string {
	if opts == nil {
		return []string{"MESSAGES", "UIDNEXT", "UIDVALIDITY", "UNSEEN"}
	}
	var items []string
	if opts.NumMessages {
		items = append(items, "MESSAGES")
	}
	if opts.UIDNext {
		items = append(items, "UIDNEXT")
	}
	if opts.UIDValidity {
		items = append(items, "UIDVALIDITY")
	}
	if opts.NumUnseen {
		items = append(items, "UNSEEN")
	}
	if opts.NumRecent {
		items = append(items, "RECENT")
	}
	if opts.Size {
		items = append(items, "SIZE")
	}
	if opts.HighestModSeq {
		items = append(items, "HIGHESTMODSEQ")
	}
	if len(items) == 0 {
		items = []string{"MESSAGES", "UIDNEXT", "UIDVALIDITY", "UNSEEN"}
	}
	return items
}

// parseListResponse parses the body of an untagged LIST response:
// (attrs) "delim" mailbox [extended-data].
func parseListResponse(line string) *imap.ListData {
	data := &imap.ListData{}

	if strings.HasPrefix(line, "(") {
		end := strings.IndexByte(line, ')')
		if end < 0 {
			return nil
		}
		if attrs := line[1:end]; attrs != "" {
			for _, a := range strings.Fields(attrs) {
				data.Attrs = append(data.Attrs, imap.MailboxAttr(a))
			}
		}
		line = strings.TrimLeft(line[end+1:], " ")
	}

	if strings.HasPrefix(line, "NIL") {
		line = strings.TrimLeft(line[3:], " ")
	} else if strings.HasPrefix(line, `"`) && len(line) >= 3 {
		data.Delim = rune(line[1])
		line = strings.TrimLeft(line[3:], " ")
	}

	mailbox, rest := parseMailboxName(line)
	data.Mailbox = mailbox

	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, "(") {
		parseExtendedData(rest, data)
	}
	return data
}

func parseMailboxName(line string) (string, string) {
	if strings.HasPrefix(line, `"`) {
		end := 1
		for end < len(line) {
			if line[end] == '\\' && end+1 < len(line) {
				end += 2
				continue
			}
			if line[end] == '"' {
				return line[1:end], line[end+1:]
			}
			end++
		}
		return strings.Trim(line, `"`), ""
	}
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx:]
}

// parseExtendedData parses extended LIST data items, e.g.
// ("CHILDINFO" ("SUBSCRIBED") "OLDNAME" ("OldName")).
func parseExtendedData(s string, data *imap.ListData) {
	if len(s) < 2 || s[0] != '(' {
		return
	}
	depth, end := 0, -1
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return
	}
	inner := s[1:end]

	for len(inner) > 0 {
		inner = strings.TrimLeft(inner, " ")
		if inner == "" {
			break
		}
		key, rest := readQuotedOrAtom(inner)
		inner = strings.TrimLeft(rest, " ")
		switch strings.ToUpper(key) {
		case "CHILDINFO":
			if strings.HasPrefix(inner, "(") {
				listStr, rest2 := extractParenthesized(inner)
				inner = strings.TrimLeft(rest2, " ")
				for len(listStr) > 0 {
					listStr = strings.TrimLeft(listStr, " ")
					if listStr == "" {
						break
					}
					var val string
					val, listStr = readQuotedOrAtom(listStr)
					data.ChildInfo = append(data.ChildInfo, val)
				}
			}
		case "OLDNAME":
			if strings.HasPrefix(inner, "(") {
				listStr, rest2 := extractParenthesized(inner)
				inner = strings.TrimLeft(rest2, " ")
				name, _ := readQuotedOrAtom(strings.TrimSpace(listStr))
				data.OldName = name
			}
		case "MYRIGHTS":
			var val string
			val, inner = readQuotedOrAtom(inner)
			data.MyRights = val
			inner = strings.TrimLeft(inner, " ")
		case "METADATA":
			if strings.HasPrefix(inner, "(") {
				listStr, rest2 := extractParenthesized(inner)
				inner = strings.TrimLeft(rest2, " ")
				data.Metadata = make(map[string]string)
				for len(listStr) > 0 {
					listStr = strings.TrimLeft(listStr, " ")
					if listStr == "" {
						break
					}
					var k, v string
					k, listStr = readQuotedOrAtom(listStr)
					listStr = strings.TrimLeft(listStr, " ")
					v, listStr = readQuotedOrAtom(listStr)
					data.Metadata[k] = v
				}
			}
		}
	}
}

func readQuotedOrAtom(s string) (string, string) {
	if len(s) == 0 {
		return "", ""
	}
	if s[0] == '"' {
		end := 1
		for end < len(s) {
			if s[end] == '\\' && end+1 < len(s) {
				end += 2
				continue
			}
			if s[end] == '"' {
				return s[1:end], s[end+1:]
			}
			end++
		}
		return s[1:], ""
	}
	end := 0
	for end < len(s) && s[end] != ' ' && s[end] != '(' && s[end] != ')' {
		end++
	}
	return s[:end], s[end:]
}

func extractParenthesized(s string) (string, string) {
	if len(s) == 0 || s[0] != '(' {
		return "", s
	}
	depth := 0
	for i := range s {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:]
			}
		}
	}
	return s[1:], ""
}

func parseStatusResponse(line string) *imap.StatusData {
	data := &imap.StatusData{}

	spaceIdx := strings.IndexByte(line, ' ')
	if spaceIdx < 0 {
		return data
	}
	data.Mailbox = strings.Trim(line[:spaceIdx], `"`)
	rest := strings.TrimLeft(line[spaceIdx+1:], " ")
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")

	parts := strings.Fields(rest)
	for i := 0; i+1 < len(parts); i += 2 {
		name := strings.ToUpper(parts[i])
		val, err := strconv.ParseUint(parts[i+1], 10, 64)
		if err != nil {
			continue
		}
		v32 := uint32(val)
		switch name {
		case "MESSAGES":
			data.NumMessages = &v32
		case "UIDNEXT":
			data.UIDNext = &v32
		case "UIDVALIDITY":
			data.UIDValidity = &v32
		case "UNSEEN":
			data.NumUnseen = &v32
		case "RECENT":
			data.NumRecent = &v32
		case "SIZE":
			size := int64(val)
			data.Size = &size
		case "HIGHESTMODSEQ":
			data.HighestModSeq = &val
		}
	}
	return data
}

// Noop sends a NOOP command, a standard way to poll for new untagged data.
func (c *Client) Noop() error {
	data := c.buildSimple(imap.CommandNoop)
	_, _, err := c.dispatchSync(imap.CommandNoop, data, nil)
	return err
}

// Capability requests the server's capabilities and returns the refreshed
// set.
func (c *Client) Capability() ([]imap.Cap, error) {
	data := c.buildSimple(imap.CommandCapability)
	_, _, err := c.dispatchSync(imap.CommandCapability, data, nil)
	if err != nil {
		return nil, err
	}
	return c.Caps(), nil
}

// Enable enables extension capabilities (RFC 5161).
func (c *Client) Enable(caps ...string) error {
	if len(caps) == 0 {
		return nil
	}
	data := c.buildArgs(imap.CommandEnable, strings.Join(caps, " "))
	_, _, err := c.dispatchSync(imap.CommandEnable, data, nil)
	return err
}
