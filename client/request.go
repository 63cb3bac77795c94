package client

import (
	"fmt"
	"sync"
	"sync/atomic"

	imap "github.com/quietloop/imapc"
)

// Producer drives a multi-step exchange that rides on one command's
// continuation requests: SASL AUTHENTICATE, literal APPEND streaming, and
// IDLE all install one. It is called once per continuation the server
// sends for the command, with the raw continuation text after "+ "; no
// base64 decoding is done for it, so a producer that needs the decoded
// form decodes it itself. Returning done=true with a nil error
// tells the engine no more data follows; the command then waits for its
// tagged completion as usual. A non-nil error aborts the command.
type Producer func(contText string) (data []byte, done bool, err error)

// Request represents one outstanding IMAP command: the bytes to write,
// and the single slot its outcome is delivered into. Exactly one of
// response or abortErr is ever set, and the ready channel is closed
// exactly once, by whichever of deliverResponse/deliverAbort runs first.
type Request struct {
	Tag          string
	Name         string
	Data         []byte
	Pipelineable bool
	Producer     Producer

	// Callback, if set, is invoked exactly once with the final outcome
	// instead of (or in addition to, via Wait after the fact) a caller
	// blocking on Wait. It runs on the Handler goroutine, so it must not
	// block or issue new commands synchronously.
	Callback func(resp *imap.StatusResponse, untagged []string, err error)

	once     sync.Once
	readyCh  chan struct{}
	mu       sync.Mutex
	response *imap.StatusResponse
	untagged []string
	abortErr error
}

// NewRequest builds a Request for command name with pre-encoded data
// (including the trailing CRLF).
func NewRequest(tag, name string, data []byte, pipelineable bool) *Request {
	return &Request{
		Tag:          tag,
		Name:         name,
		Data:         data,
		Pipelineable: pipelineable,
		readyCh:      make(chan struct{}),
	}
}

// deliverResponse completes the request successfully with resp and any
// untagged data accumulated while it was outstanding. Only the first
// caller across deliverResponse/deliverAbort has any effect.
func (r *Request) deliverResponse(resp *imap.StatusResponse, untagged []string) {
	r.once.Do(func() {
		r.mu.Lock()
		r.response = resp
		r.untagged = untagged
		r.mu.Unlock()
		close(r.readyCh)
		if r.Callback != nil {
			r.Callback(resp, untagged, nil)
		}
	})
}

// deliverAbort completes the request with err, discarding any response.
// Used when the connection is torn down with the request still
// outstanding.
func (r *Request) deliverAbort(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.abortErr = err
		r.mu.Unlock()
		close(r.readyCh)
		if r.Callback != nil {
			r.Callback(nil, nil, err)
		}
	})
}

// Ready returns a channel closed once the request's outcome is known.
func (r *Request) Ready() <-chan struct{} {
	return r.readyCh
}

// Wait blocks until the request completes and returns its outcome. If
// abortErr is set it takes priority: the response, if any, is incomplete
// or irrelevant once the connection has gone down.
func (r *Request) Wait() (*imap.StatusResponse, []string, error) {
	<-r.readyCh
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abortErr != nil {
		return nil, nil, r.abortErr
	}
	return r.response, r.untagged, nil
}

// tagGenerator produces a monotonically increasing sequence of command
// tags, each unique for the lifetime of the Client.
type tagGenerator struct {
	counter atomic.Int64
	prefix  string
}

func newTagGenerator(prefix string) *tagGenerator {
	return &tagGenerator{prefix: prefix}
}

func (g *tagGenerator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s%d", g.prefix, n)
}

// outstanding tracks Requests awaiting a tagged completion, keyed by tag.
type outstanding struct {
	mu   sync.Mutex
	reqs map[string]*Request
}

func newOutstanding() *outstanding {
	return &outstanding{reqs: make(map[string]*Request)}
}

// add registers req and returns the number of requests now outstanding.
func (o *outstanding) add(req *Request) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reqs[req.Tag] = req
	return len(o.reqs)
}

// complete pops the request for tag, if any, and reports whether the map
// is now empty (the signal to release stateChangeFree).
func (o *outstanding) complete(tag string) (req *Request, empty bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	req, ok := o.reqs[tag]
	if ok {
		delete(o.reqs, tag)
	}
	return req, len(o.reqs) == 0
}

// drainAbort pops every outstanding request and aborts it with err.
func (o *outstanding) drainAbort(err error) {
	o.mu.Lock()
	reqs := o.reqs
	o.reqs = make(map[string]*Request)
	o.mu.Unlock()
	for _, req := range reqs {
		req.deliverAbort(err)
	}
}
