package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cachemir/gomemfast/pkg/address"
)

// State is the engine's connection lifecycle (spec §3, §4.6).
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Broken
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

// Kind identifies the reply shape a Pending request expects.
type Kind int

const (
	KindStoreSimple Kind = iota // STORED / NOT_STORED
	KindCas                     // STORED / EXISTS / NOT_FOUND
	KindDelete                  // DELETED / NOT_FOUND
	KindTouch                   // TOUCHED / NOT_FOUND
	KindArith                   // <number> / NOT_FOUND
	KindRetrieval                // VALUE*... END
	KindFlush                   // OK
	KindVersion                 // VERSION <s>
)

// Pending is one outstanding request awaiting its reply, the engine's FIFO
// unit (spec §3 PendingRequest, §4.6 pipelining discipline).
//
// Delivery happens at most once. A batch deadline can fire while the
// reply is still in flight on a healthy connection (spec §4.7's timeout
// isolation: a slow server's engine is not marked Broken), so the
// dispatcher may report a timeout for a Pending before its real reply
// ever arrives. When that reply does show up later, the FIFO still
// consumes it to stay aligned, but delivery is a no-op the second time.
type Pending struct {
	Kind    Kind
	Discard bool // nowait: reply is still parsed (to stay aligned) but not delivered
	deliver func(result any, err error)
	once    sync.Once
}

// NewPending creates a Pending that calls deliver exactly once with the
// eventual result. deliver may be nil for Discard (nowait) entries.
func NewPending(kind Kind, discard bool, deliver func(result any, err error)) *Pending {
	return &Pending{Kind: kind, Discard: discard, deliver: deliver}
}

// Deliver reports result/err to the caller, exactly once. Safe to call
// from more than one goroutine or more than once; only the first call
// has any effect.
func (p *Pending) Deliver(result any, err error) {
	if p.Discard || p.deliver == nil {
		return
	}
	p.once.Do(func() { p.deliver(result, err) })
}

// Engine is the per-server protocol engine (spec component C6): it owns
// one connection exclusively, frames outbound commands into an outbox,
// and parses inbound replies against a FIFO of Pending requests.
type Engine struct {
	Addr         address.Address
	dialer       *address.Dialer
	closeOnError bool

	mu      sync.Mutex
	state   State
	conn    net.Conn
	reader  *bufio.Reader
	outbox  []byte
	pending []*Pending
	nowait  int
	version string
}

// New creates an Engine for addr. The connection is not established until
// Connect is called, so a server is only dialed on first use (spec §3
// Lifecycle).
func New(addr address.Address, dialer *address.Dialer, closeOnError bool) *Engine {
	return &Engine{Addr: addr, dialer: dialer, closeOnError: closeOnError, state: Disconnected}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Connect establishes the connection if it is not already Open. Callers
// are expected to have already checked the failure manager's shun state
// before calling this (spec §4.3: the failure manager gates the
// connector, it does not live inside the engine).
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Open {
		return nil
	}

	e.state = Connecting
	conn, err := e.dialer.Dial(ctx, e.Addr)
	if err != nil {
		e.state = Disconnected
		return err
	}

	e.conn = conn
	e.reader = bufio.NewReader(conn)
	e.outbox = e.outbox[:0]
	e.pending = nil
	e.nowait = 0
	e.state = Open
	return nil
}

// Enqueue appends framed command bytes to the outbox and a matching
// Pending entry to the FIFO. If p.Discard is set this is a nowait
// (fire-and-forget) command: the reply will still be parsed to keep the
// FIFO aligned, but discarded rather than delivered (spec §4.6 nowait
// mode).
func (e *Engine) Enqueue(data []byte, p *Pending) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.outbox = append(e.outbox, data...)
	e.pending = append(e.pending, p)
	if p.Discard {
		e.nowait++
	}
}

// HasOutbound reports whether there are unwritten bytes in the outbox.
func (e *Engine) HasOutbound() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outbox) > 0
}

// HasPending reports whether there are unresolved Pending entries.
func (e *Engine) HasPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending) > 0
}

// NowaitCount returns the number of issued-but-not-yet-consumed nowait
// replies, the invariant tracked in spec §3/§8: nowait_count + len(live
// pending) == commands issued - replies consumed so far.
func (e *Engine) NowaitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nowait
}

// Version returns the server version learned from a prior Version command,
// or "" if none has been issued yet.
func (e *Engine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Conn exposes the underlying connection. Returns nil if the engine isn't
// Open.
func (e *Engine) Conn() net.Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Open {
		return nil
	}
	return e.conn
}

// FlushWrite writes as much of the outbox as possible before deadline.
func (e *Engine) FlushWrite(deadline time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.outbox) == 0 || e.conn == nil {
		return nil
	}
	if err := e.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	n, err := e.conn.Write(e.outbox)
	e.outbox = e.outbox[n:]
	return err
}

// ReadOne parses exactly one reply off the wire for pending[0]. A reply
// that was fully read off the wire — a success, a ServerError, or a
// ProtocolError — pops its Pending and delivers the outcome even when err
// is non-nil, because the bytes are consumed and the FIFO must advance; a
// raw transport-level IOError leaves the stream in an undefined state, so
// the entry is left in place for MarkBroken to fail along with the rest.
// The caller decides, from the returned error's kind, whether the
// connection must become Broken (spec §4.6, §7).
func (e *Engine) ReadOne(deadline time.Time) (bool, error) {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return true, nil
	}
	p := e.pending[0]
	conn := e.conn
	reader := e.reader
	e.mu.Unlock()

	if err := conn.SetReadDeadline(deadline); err != nil {
		return false, &IOError{Err: err}
	}

	result, err := e.resolve(reader, p)

	var se *ServerError
	var pe *ProtocolError
	consumed := err == nil || errors.As(err, &se) || errors.As(err, &pe)
	if !consumed {
		return false, err
	}

	e.mu.Lock()
	e.pending = e.pending[1:]
	if p.Discard {
		e.nowait--
	}
	done := len(e.pending) == 0
	e.mu.Unlock()

	p.Deliver(result, err)
	return done, err
}

// MarkBroken transitions the engine to Broken and fails every still-live
// pending entry with err (spec §3 invariant: "once state = Broken, no
// further bytes are sent or consumed... any pending replies that had not
// arrived are reported as errors for their owning requests").
func (e *Engine) MarkBroken(err error) {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.nowait = 0
	e.state = Broken
	conn := e.conn
	e.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	for _, p := range pending {
		p.Deliver(nil, err)
	}
}

// Close closes the underlying connection and transitions to Disconnected.
func (e *Engine) Close() error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.state = Disconnected
	e.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// resolve parses the wire reply for one Pending entry.
func (e *Engine) resolve(r *bufio.Reader, p *Pending) (any, error) {
	switch p.Kind {
	case KindRetrieval:
		values, err := ReadRetrieval(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		return values, nil

	case KindStoreSimple:
		token, rest, err := ReadSimple(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		if kind := classifyToken(token); kind != "" {
			return nil, e.serverErr(kind, rest)
		}
		switch token {
		case tokStored:
			return true, nil
		case tokNotStored:
			return false, nil
		default:
			return nil, e.protoErr(token)
		}

	case KindCas:
		token, rest, err := ReadSimple(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		if kind := classifyToken(token); kind != "" {
			return nil, e.serverErr(kind, rest)
		}
		switch token {
		case tokStored:
			return true, nil
		case tokExists, tokNotFound:
			return false, nil
		default:
			return nil, e.protoErr(token)
		}

	case KindDelete:
		token, rest, err := ReadSimple(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		if kind := classifyToken(token); kind != "" {
			return nil, e.serverErr(kind, rest)
		}
		switch token {
		case tokDeleted:
			return true, nil
		case tokNotFound:
			return false, nil
		default:
			return nil, e.protoErr(token)
		}

	case KindTouch:
		token, rest, err := ReadSimple(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		if kind := classifyToken(token); kind != "" {
			return nil, e.serverErr(kind, rest)
		}
		switch token {
		case tokTouched:
			return true, nil
		case tokNotFound:
			return false, nil
		default:
			return nil, e.protoErr(token)
		}

	case KindFlush:
		token, rest, err := ReadSimple(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		if kind := classifyToken(token); kind != "" {
			return nil, e.serverErr(kind, rest)
		}
		if token == tokOK {
			return true, nil
		}
		return nil, e.protoErr(token)

	case KindArith:
		token, rest, err := ReadSimple(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		if kind := classifyToken(token); kind != "" {
			return nil, e.serverErr(kind, rest)
		}
		if token == tokNotFound {
			return ArithResult{Found: false}, nil
		}
		n, perr := ParseUint(token)
		if perr != nil {
			return nil, e.protoErr(token)
		}
		return ArithResult{Value: n, Found: true}, nil

	case KindVersion:
		token, rest, err := ReadSimple(r)
		if err != nil {
			return nil, e.classifyIOErr(err)
		}
		if kind := classifyToken(token); kind != "" {
			return nil, e.serverErr(kind, rest)
		}
		if token != tokVersion {
			return nil, e.protoErr(token)
		}
		e.mu.Lock()
		e.version = rest
		e.mu.Unlock()
		return rest, nil

	default:
		return nil, fmt.Errorf("engine: unknown pending kind %d", p.Kind)
	}
}

// ArithResult is the outcome of an incr/decr command.
type ArithResult struct {
	Value uint64
	Found bool
}

// classifyIOErr wraps a raw socket/bufio I/O failure as an IOError; the
// reply in flight stays unconsumed (see IOError).
func (e *Engine) classifyIOErr(err error) error {
	return &IOError{Err: err}
}

func (e *Engine) protoErr(token string) error {
	return &ProtocolError{Line: token}
}

// serverErr reports a server-side error token. The caller (dispatcher)
// decides whether this forces Broken based on closeOnError; the engine
// only classifies it here.
func (e *Engine) serverErr(kind, msg string) error {
	return &ServerError{Kind: kind, Msg: msg}
}

// CloseOnError reports whether a ServerError on this engine should force
// it to Broken.
func (e *Engine) CloseOnError() bool {
	return e.closeOnError
}
