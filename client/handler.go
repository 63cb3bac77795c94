package client

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	imap "github.com/quietloop/imapc"
	"github.com/quietloop/imapc/wire"
)

// ResponseHandler handles a custom untagged response the built-in handler
// does not interpret, keyed by the untagged response's keyword.
type ResponseHandler func(num uint32, rest string)

// ResponseCodeHandler handles a custom bracketed response code.
type ResponseCodeHandler func(arg string)

// ExtensionHandlers lets a caller teach the handler about
// server-extension untagged responses and response codes beyond the
// built-in set, without needing to fork the engine.
type ExtensionHandlers struct {
	Response     map[string]ResponseHandler
	ResponseCode map[string]ResponseCodeHandler
}

// NewExtensionHandlers creates an empty ExtensionHandlers.
func NewExtensionHandlers() *ExtensionHandlers {
	return &ExtensionHandlers{
		Response:     make(map[string]ResponseHandler),
		ResponseCode: make(map[string]ResponseCodeHandler),
	}
}

// handler is the goroutine that owns all response parsing and dispatch. It
// is the only goroutine that touches the outstanding-commands map, the
// untagged-response accumulator, and the continuation-producer slot while
// a response is being interpreted.
type handler struct {
	c  *Client
	in *blockingQueue[inputItem]

	// Literal-in-progress state.
	expectingData int64
	literalKind   wire.LineKind
	literalType   string
	literalNum    uint32
	literalHeader string
	accumulated   []byte

	untaggedMu sync.Mutex
	untagged   []string
}

func newHandler(c *Client) *handler {
	return &handler{c: c, in: c.inputQ}
}

func (h *handler) run() {
	for {
		item, ok := h.in.pop()
		if !ok {
			return
		}
		if item.abort != nil {
			h.onAbort(item.abort)
			return
		}
		h.handleChunk(item.line)
	}
}

func (h *handler) onAbort(err error) {
	h.c.terminate(imap.NewAbortError("read failed", err))
}

// handleChunk processes one reader-delivered chunk: either literal payload
// bytes (if a literal is in progress) or a complete response line.
func (h *handler) handleChunk(raw []byte) {
	if h.expectingData > 0 {
		take := int64(len(raw))
		if take > h.expectingData {
			take = h.expectingData
		}
		h.accumulated = append(h.accumulated, raw[:take]...)
		h.expectingData -= take
		if h.expectingData == 0 {
			remainder := raw[take:]
			h.finishLiteral()
			if len(remainder) > 0 {
				h.handleChunk(remainder)
			}
		}
		return
	}

	line := stripEOL(raw)
	if len(line) == 0 {
		return
	}

	cl, err := wire.Classify(string(line))
	if err != nil {
		h.c.logger.Debug("malformed response line", "conn_id", h.c.connID, "line", string(line))
		return
	}

	switch cl.Kind {
	case wire.KindContinuation:
		h.handleContinuation(cl.Rest)
	case wire.KindTagged:
		h.handleTagged(cl)
	case wire.KindUntagged, wire.KindUntaggedNumeric:
		h.handleUntaggedLine(cl)
	}
}

func stripEOL(raw []byte) []byte {
	n := len(raw)
	for n > 0 && (raw[n-1] == '\n' || raw[n-1] == '\r') {
		n--
	}
	return raw[:n]
}

func (h *handler) handleContinuation(rest string) {
	h.c.mu.Lock()
	req := h.c.armed
	h.c.mu.Unlock()

	if req == nil || req.Producer == nil {
		h.c.logger.Debug("unexpected continuation", "conn_id", h.c.connID, "rest", rest)
		return
	}

	data, done, err := req.Producer(rest)
	if err != nil {
		h.c.writeContinuation([]byte("*\r\n"))
		h.clearArmed(req)
		return
	}
	if len(data) > 0 {
		h.c.writeContinuation(data)
	}
	if done {
		h.clearArmed(req)
	}
}

func (h *handler) clearArmed(req *Request) {
	h.c.mu.Lock()
	if h.c.armed == req {
		h.c.armed = nil
	}
	h.c.mu.Unlock()
}

func (h *handler) handleTagged(cl wire.Line) {
	req, empty := h.c.outstanding.complete(cl.Tag)
	if req == nil {
		h.c.logger.Debug("response for unknown tag", "conn_id", h.c.connID, "tag", cl.Tag)
		return
	}

	code, arg, hasCode := splitBracketCode(cl.Rest)
	text := cl.Rest
	if hasCode {
		h.applyResponseCode(code, arg)
		if idx := strings.IndexByte(cl.Rest, ']'); idx >= 0 {
			text = strings.TrimSpace(cl.Rest[idx+1:])
		}
	}

	resp := &imap.StatusResponse{
		Type:    imap.StatusResponseType(cl.Type),
		Code:    imap.ResponseCode(code),
		CodeArg: arg,
		Text:    text,
	}

	untagged := h.drainUntagged()
	h.clearArmed(req)
	req.deliverResponse(resp, untagged)

	if empty {
		h.c.releaseStateChangeFree()
	}
}

func (h *handler) handleUntaggedLine(cl wire.Line) {
	if size, _, trimmed, ok := wire.TrailingLiteral(cl.Rest); ok {
		h.expectingData = size
		h.literalKind = cl.Kind
		h.literalType = cl.Type
		h.literalNum = cl.Num
		h.literalHeader = trimmed
		h.accumulated = h.accumulated[:0]
		return
	}
	h.completeUntagged(cl.Kind, cl.Type, cl.Num, cl.Rest)
}

func (h *handler) finishLiteral() {
	payload := string(h.accumulated)
	h.completeUntagged(h.literalKind, h.literalType, h.literalNum, h.literalHeader+payload)
	h.literalType = ""
	h.accumulated = nil
}

func (h *handler) completeUntagged(kind wire.LineKind, typ string, num uint32, rest string) {
	if ext := h.c.options.Extensions; ext != nil {
		if rh, ok := ext.Response[typ]; ok {
			rh(num, rest)
		}
	}

	switch typ {
	case "EXISTS":
		h.c.mu.Lock()
		h.c.mailbox.numMessages = num
		h.c.mu.Unlock()
		if hd := h.c.options.UnilateralDataHandler; hd != nil && hd.Exists != nil {
			hd.Exists(num)
		}
	case "RECENT":
		h.c.mu.Lock()
		h.c.mailbox.numRecent = num
		h.c.mu.Unlock()
		if hd := h.c.options.UnilateralDataHandler; hd != nil && hd.Recent != nil {
			hd.Recent(num)
		}
	case "EXPUNGE", "VANISHED":
		if hd := h.c.options.UnilateralDataHandler; hd != nil && hd.Expunge != nil {
			hd.Expunge(num)
		}
	case "FETCH":
		if hd := h.c.options.UnilateralDataHandler; hd != nil && hd.Fetch != nil {
			hd.Fetch(num, nil)
		}
	case "CAPABILITY":
		h.c.applyCapabilities(rest)
	case "BYE":
		h.c.setState(imap.ConnStateLogout)
		h.appendUntagged(fmt.Sprintf("%s %s", typ, rest))
		h.c.terminate(imap.NewAbortError("server sent BYE", fmt.Errorf("%s", rest)))
		return
	}

	if typ == "OK" || typ == "NO" || typ == "BAD" {
		if code, arg, ok := splitBracketCode(rest); ok {
			h.applyResponseCode(code, arg)
		}
	}

	if kind == wire.KindUntaggedNumeric {
		h.appendUntagged(fmt.Sprintf("%d %s %s", num, typ, rest))
	} else {
		h.appendUntagged(fmt.Sprintf("%s %s", typ, rest))
	}
}

func (h *handler) applyResponseCode(code, arg string) {
	if ext := h.c.options.Extensions; ext != nil {
		if rch, ok := ext.ResponseCode[code]; ok {
			rch(arg)
		}
	}

	switch code {
	case string(imap.ResponseCodeUIDValidity):
		if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
			h.c.mu.Lock()
			h.c.mailbox.uidValidity = uint32(n)
			h.c.mu.Unlock()
		}
	case string(imap.ResponseCodeUIDNext):
		if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
			h.c.mu.Lock()
			h.c.mailbox.uidNext = uint32(n)
			h.c.mu.Unlock()
		}
	case string(imap.ResponseCodeUnseen):
		if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
			h.c.mu.Lock()
			h.c.mailbox.unseen = uint32(n)
			h.c.mu.Unlock()
		}
	case string(imap.ResponseCodePermanentFlags):
		flags := parseFlagList(arg)
		h.c.mu.Lock()
		h.c.mailbox.permFlags = flags
		h.c.mu.Unlock()
	case string(imap.ResponseCodeCapability):
		h.c.applyCapabilities(arg)
	case string(imap.ResponseCodeReadOnly):
		h.c.mu.Lock()
		h.c.mailbox.readOnly = true
		h.c.mu.Unlock()
	case string(imap.ResponseCodeReadWrite):
		h.c.mu.Lock()
		h.c.mailbox.readOnly = false
		h.c.mu.Unlock()
	}
}

func parseFlagList(s string) []imap.Flag {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return nil
	}
	fields := strings.Fields(s)
	flags := make([]imap.Flag, len(fields))
	for i, f := range fields {
		flags[i] = imap.Flag(f)
	}
	return flags
}

func (h *handler) appendUntagged(line string) {
	h.untaggedMu.Lock()
	h.untagged = append(h.untagged, line)
	h.untaggedMu.Unlock()
}

// drainUntagged returns and clears everything accumulated since the last
// tagged completion. Untagged responses are not attributable to any one
// outstanding pipelined command by the protocol itself, so by convention
// they are handed to whichever command's tagged completion happens to
// drain them next.
func (h *handler) drainUntagged() []string {
	h.untaggedMu.Lock()
	defer h.untaggedMu.Unlock()
	data := h.untagged
	h.untagged = nil
	return data
}
