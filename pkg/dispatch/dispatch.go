// Package dispatch implements the batch dispatcher (spec component C7): it
// routes a set of keys to their owning engines, drives each engaged
// engine's socket concurrently under one shared deadline, and assembles
// the per-key results back into the shape the caller asked for.
//
// Where the source material drove this with a hand-rolled select/poll
// loop over all engaged sockets, this package instead starts one
// goroutine per engaged engine and lets the Go runtime's netpoller do the
// readiness multiplexing — the caller still sees one call that returns
// once every engaged server has answered or the deadline passes, the same
// single-flow-per-call contract, just built on goroutines instead of
// manual readiness polling (spec §5).
package dispatch

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cachemir/gomemfast/pkg/address"
	"github.com/cachemir/gomemfast/pkg/engine"
	"github.com/cachemir/gomemfast/pkg/failure"
	"github.com/cachemir/gomemfast/pkg/metrics"
	"github.com/cachemir/gomemfast/pkg/selector"
)

// ErrShunned is returned for a request whose server is currently shunned
// by the failure manager (spec §4.3).
var ErrShunned = errors.New("dispatch: server is shunned")

// ErrTimeout is delivered to any slot still unsatisfied when a batch's
// deadline fires. Per spec §4.7's timeout isolation, this never marks the
// owning engine Broken — the connection may be perfectly healthy, just
// slow — so the real reply is left to arrive and drain into the FIFO on
// a future call.
var ErrTimeout = errors.New("dispatch: batch deadline exceeded")

// Dispatcher owns one Engine per configured server and routes requests to
// them via a Selector.
type Dispatcher struct {
	mu       sync.Mutex
	addrs    []address.Address
	sel      selector.Selector
	engines  []*engine.Engine
	dialer   *address.Dialer
	failures *failure.Manager
	metrics  *metrics.Metrics
}

// New builds a Dispatcher with one Engine per server, created up front;
// each Engine connects only on first use. m may be nil, in which case
// metrics recording is a no-op.
func New(addrs []address.Address, sel selector.Selector, dialer *address.Dialer, failures *failure.Manager, closeOnError bool, m *metrics.Metrics) *Dispatcher {
	engines := make([]*engine.Engine, len(addrs))
	for i, a := range addrs {
		engines[i] = engine.New(a, dialer, closeOnError)
	}
	return &Dispatcher{addrs: addrs, sel: sel, engines: engines, dialer: dialer, failures: failures, metrics: m}
}

// Route returns the server index responsible for key.
func (d *Dispatcher) Route(key []byte) int {
	return d.sel.Select(key)
}

// NumServers returns the configured server count.
func (d *Dispatcher) NumServers() int {
	return len(d.addrs)
}

// Addr returns the address of server idx.
func (d *Dispatcher) Addr(idx int) address.Address {
	return d.addrs[idx]
}

// EngineState reports the lifecycle state of server idx's engine, mainly
// for diagnostics/tests.
func (d *Dispatcher) EngineState(idx int) engine.State {
	return d.engines[idx].State()
}

// job is one framed command targeted at a specific server.
type job struct {
	idx     int
	data    []byte
	pending *engine.Pending
}

// Close closes every engine's connection.
func (d *Dispatcher) Close() {
	for _, e := range d.engines {
		_ = e.Close()
	}
}

// Drain gives every engine until deadline to consume any outstanding
// pending replies (spec: a graceful client Close drains rather than
// abandons in-flight nowait replies).
func (d *Dispatcher) Drain(deadline time.Time) {
	var wg sync.WaitGroup
	for _, e := range d.engines {
		if !e.HasPending() {
			continue
		}
		wg.Add(1)
		go func(e *engine.Engine) {
			defer wg.Done()
			for e.HasPending() {
				if _, err := e.ReadOne(deadline); err != nil {
					e.MarkBroken(err)
					return
				}
			}
		}(e)
	}
	wg.Wait()
}

// execute groups jobs by target server, connects (or skips if shunned)
// each engaged engine, and drives its write/read cycle concurrently to
// completion or deadline. It blocks until every engaged engine is done.
func (d *Dispatcher) execute(ctx context.Context, jobs []job, deadline time.Time) {
	byServer := make(map[int][]job)
	for _, j := range jobs {
		byServer[j.idx] = append(byServer[j.idx], j)
	}

	// Deterministic engagement order, mirroring spec §5's "engines are
	// engaged in ascending server-index order" framing for reproducible
	// traces; actual I/O across engines still proceeds concurrently.
	indices := make([]int, 0, len(byServer))
	for idx := range byServer {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var wg sync.WaitGroup
	for _, idx := range indices {
		idx := idx
		group := byServer[idx]

		if d.failures.Shunned(idx) {
			d.metrics.Shun(d.addrs[idx].Canonical())
			failGroup(group, ErrShunned)
			continue
		}

		e := d.engines[idx]
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runEngine(ctx, idx, e, group, deadline)
		}()
	}
	wg.Wait()
}

// runEngine connects e if needed, enqueues group, and drives its I/O to
// completion under deadline.
func (d *Dispatcher) runEngine(ctx context.Context, idx int, e *engine.Engine, group []job, deadline time.Time) {
	addr := d.addrs[idx].Canonical()

	if e.State() != engine.Open {
		if err := e.Connect(ctx); err != nil {
			d.failures.Record(idx)
			d.metrics.ConnectError(addr)
			failGroup(group, err)
			return
		}
	}
	d.failures.RecordSuccess(idx)

	for _, j := range group {
		e.Enqueue(j.data, j.pending)
	}

	for {
		if err := e.FlushWrite(deadline); err != nil {
			if isTimeout(err) {
				d.metrics.Timeout(addr)
				timeoutGroup(group)
				return
			}
			d.failures.Record(idx)
			e.MarkBroken(err)
			return
		}
		if !e.HasOutbound() {
			break
		}
	}

	for e.HasPending() {
		done, err := e.ReadOne(deadline)
		if err == nil {
			if done {
				return
			}
			continue
		}

		var se *engine.ServerError
		var pe *engine.ProtocolError
		switch {
		case errors.As(err, &se) && !e.CloseOnError():
			// Non-fatal server error: the reply was already consumed and
			// delivered, the connection stays Open (spec §4.6/§7).
			d.metrics.ServerError(addr, se.Kind)
			if done {
				return
			}
		case errors.As(err, &pe), errors.As(err, &se):
			// ProtocolError is always fatal; a ServerError is fatal here
			// only because CloseOnError is set. Either way the reply was
			// already consumed and delivered above.
			if se != nil {
				d.metrics.ServerError(addr, se.Kind)
			}
			d.failures.Record(idx)
			e.MarkBroken(err)
			return
		case isTimeout(err):
			// Timeout isolation (spec §4.7): the connection may still be
			// healthy, only slow. Leave it Open with its still-unread
			// replies in place — a later call on this engine will drain
			// them before starting its own work — and report ErrTimeout
			// to whichever of this batch's slots haven't resolved yet.
			d.metrics.Timeout(addr)
			timeoutGroup(group)
			return
		default:
			// Any other raw transport failure: the in-flight reply was
			// never delivered; MarkBroken fails it along with the rest.
			d.failures.Record(idx)
			e.MarkBroken(err)
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func failGroup(group []job, err error) {
	for _, j := range group {
		j.pending.Deliver(nil, err)
	}
}

// timeoutGroup reports ErrTimeout to every slot in group that has not
// already received a result. Pending.Deliver is idempotent, so slots
// whose real reply already arrived are unaffected, and if the real reply
// shows up later it will find delivery already spent.
func timeoutGroup(group []job) {
	failGroup(group, ErrTimeout)
}
