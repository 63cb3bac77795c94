package imap

import "sync"

// CommandInfo describes one entry in the command table: the connection
// states in which a command may be issued, and whether it may be
// pipelined with other commands already outstanding.
//
// A command is pipelineable when the server is guaranteed to process it
// without reference to the outcome of any other outstanding command on
// the same connection. Commands that change connection state (LOGIN,
// AUTHENTICATE, SELECT, STARTTLS, CLOSE, and their kin) are not
// pipelineable: the client must drain all outstanding commands before
// sending one of these, and hold off sending anything new until it
// completes.
type CommandInfo struct {
	States       []ConnState
	Pipelineable bool
	// RequiresWrite marks a command that mutates mailbox state (flags,
	// message existence). Issuing it against a mailbox opened read-only
	// is rejected locally with a ReadOnlyError rather than sent to the
	// server.
	RequiresWrite bool
}

// baseCommandTable is the immutable table of standard commands. It is
// never mutated after package initialization; xatom layers on top of it.
var baseCommandTable = map[string]CommandInfo{
	// Any state.
	CommandCapability: {States: anyState, Pipelineable: true},
	CommandNoop:       {States: anyState, Pipelineable: true},
	CommandLogout:     {States: anyState, Pipelineable: false},

	// Not authenticated state.
	CommandStartTLS:     {States: []ConnState{ConnStateNotAuthenticated}, Pipelineable: false},
	CommandAuthenticate: {States: []ConnState{ConnStateNotAuthenticated}, Pipelineable: false},
	CommandLogin:        {States: []ConnState{ConnStateNotAuthenticated}, Pipelineable: false},

	// Authenticated and selected state.
	CommandEnable:      {States: authOrSelected, Pipelineable: true},
	CommandSelect:      {States: authOrSelected, Pipelineable: false},
	CommandExamine:     {States: authOrSelected, Pipelineable: false},
	CommandCreate:      {States: authOrSelected, Pipelineable: true},
	CommandDelete:      {States: authOrSelected, Pipelineable: true},
	CommandRename:      {States: authOrSelected, Pipelineable: true},
	CommandSubscribe:   {States: authOrSelected, Pipelineable: true},
	CommandUnsubscribe: {States: authOrSelected, Pipelineable: true},
	CommandList:        {States: authOrSelected, Pipelineable: true},
	CommandLsub:        {States: authOrSelected, Pipelineable: true},
	CommandNamespace:   {States: authOrSelected, Pipelineable: true},
	CommandStatus:      {States: authOrSelected, Pipelineable: true},
	CommandAppend:      {States: authOrSelected, Pipelineable: false},
	CommandIdle:        {States: authOrSelected, Pipelineable: false},
	CommandID:          {States: anyState, Pipelineable: true},

	// Extension commands usable once authenticated.
	CommandGetQuota:     {States: authOrSelected, Pipelineable: true},
	CommandGetQuotaRoot: {States: authOrSelected, Pipelineable: true},
	CommandSetQuota:     {States: authOrSelected, Pipelineable: true},
	CommandSetACL:       {States: authOrSelected, Pipelineable: true},
	CommandDeleteACL:    {States: authOrSelected, Pipelineable: true},
	CommandGetACL:       {States: authOrSelected, Pipelineable: true},
	CommandListRights:   {States: authOrSelected, Pipelineable: true},
	CommandMyRights:     {States: authOrSelected, Pipelineable: true},
	CommandSetMetadata:  {States: authOrSelected, Pipelineable: true},
	CommandGetMetadata:  {States: authOrSelected, Pipelineable: true},
	CommandUnauthenticate: {States: []ConnState{ConnStateAuthenticated, ConnStateSelected}, Pipelineable: false},

	// Selected state only.
	CommandClose:    {States: selectedOnly, Pipelineable: false},
	CommandUnselect: {States: selectedOnly, Pipelineable: false},
	CommandExpunge:  {States: selectedOnly, Pipelineable: true, RequiresWrite: true},
	CommandSearch:   {States: selectedOnly, Pipelineable: true},
	CommandFetch:    {States: selectedOnly, Pipelineable: true},
	CommandStore:    {States: selectedOnly, Pipelineable: true, RequiresWrite: true},
	CommandCopy:     {States: selectedOnly, Pipelineable: true},
	CommandMove:     {States: selectedOnly, Pipelineable: true, RequiresWrite: true},
	CommandSort:     {States: selectedOnly, Pipelineable: true},
	CommandThread:   {States: selectedOnly, Pipelineable: true},
	CommandReplace:  {States: selectedOnly, Pipelineable: true},
	CommandUID:      {States: selectedOnly, Pipelineable: true},

	CommandCompress: {States: anyState, Pipelineable: false},
	CommandNotify:   {States: authOrSelected, Pipelineable: false},
}

var (
	anyState       = []ConnState{ConnStateNotAuthenticated, ConnStateAuthenticated, ConnStateSelected}
	authOrSelected = []ConnState{ConnStateAuthenticated, ConnStateSelected}
	selectedOnly   = []ConnState{ConnStateSelected}
)

// CommandTable resolves per-command dispatch rules. It starts from the
// built-in table above and allows a caller to register additional
// commands discovered through CAPABILITY (the "xatom" layer), without
// mutating the built-in table itself.
type CommandTable struct {
	mu    sync.RWMutex
	xatom map[string]CommandInfo
}

// NewCommandTable returns a CommandTable backed by the standard commands.
func NewCommandTable() *CommandTable {
	return &CommandTable{xatom: make(map[string]CommandInfo)}
}

// Lookup returns the CommandInfo for cmd, checking the xatom overlay
// before falling back to the built-in table. ok is false if cmd is
// unknown to either layer.
func (t *CommandTable) Lookup(cmd string) (CommandInfo, bool) {
	t.mu.RLock()
	info, ok := t.xatom[cmd]
	t.mu.RUnlock()
	if ok {
		return info, true
	}
	info, ok = baseCommandTable[cmd]
	return info, ok
}

// RegisterExtension adds or overrides a command definition in the xatom
// layer. It is used to teach the table about a server-advertised
// extension command the built-in table does not know, or to override a
// built-in entry's pipelining behavior for a quirky server.
func (t *CommandTable) RegisterExtension(cmd string, info CommandInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.xatom[cmd] = info
}

// AllowedStates reports the connection states cmd may be issued in. Unknown
// commands are permitted in every state, matching the leniency a client
// needs toward servers that advertise capabilities this table has no
// entry for.
func (t *CommandTable) AllowedStates(cmd string) []ConnState {
	if info, ok := t.Lookup(cmd); ok {
		return info.States
	}
	return anyState
}

// Pipelineable reports whether cmd may be pipelined with other
// outstanding commands. Unknown commands are conservatively treated as
// non-pipelineable.
func (t *CommandTable) Pipelineable(cmd string) bool {
	if info, ok := t.Lookup(cmd); ok {
		return info.Pipelineable
	}
	return false
}

// RequiresWrite reports whether cmd mutates mailbox state and so must be
// rejected locally against a mailbox opened read-only.
func (t *CommandTable) RequiresWrite(cmd string) bool {
	if info, ok := t.Lookup(cmd); ok {
		return info.RequiresWrite
	}
	return false
}
