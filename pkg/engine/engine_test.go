package engine

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/cachemir/gomemfast/pkg/address"
)

// newTestEngine returns an Engine wired to one end of an in-memory pipe,
// already marked Open, and the other end for a test to play "server".
func newTestEngine() (*Engine, net.Conn) {
	e := New(address.Address{Kind: address.TCP, Host: "test", Port: "0"}, &address.Dialer{}, true)
	client, server := net.Pipe()
	e.conn = client
	e.reader = bufio.NewReader(client)
	e.state = Open
	return e, server
}

func deadline() time.Time { return time.Now().Add(2 * time.Second) }

func TestEngineStoreRoundTrip(t *testing.T) {
	e, server := newTestEngine()

	var delivered any
	var deliveredErr error
	done := make(chan struct{})
	p := NewPending(KindStoreSimple, false, func(result any, err error) {
		delivered, deliveredErr = result, err
		close(done)
	})
	e.Enqueue(EncodeStore(VerbSet, "k", 0, 0, []byte("v"), 0), p)

	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
		server.Write([]byte("STORED\r\n"))
	}()

	for e.HasOutbound() {
		if err := e.FlushWrite(deadline()); err != nil {
			t.Fatalf("FlushWrite: %v", err)
		}
	}

	doneReading, err := e.ReadOne(deadline())
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if !doneReading {
		t.Fatal("expected ReadOne to report the FIFO drained")
	}

	<-done
	if delivered != true || deliveredErr != nil {
		t.Fatalf("delivered = (%v, %v), want (true, nil)", delivered, deliveredErr)
	}
	if e.HasPending() {
		t.Fatal("pending entry should have been popped")
	}
}

func TestEngineServerErrorAdvancesFIFO(t *testing.T) {
	e, server := newTestEngine()

	done := make(chan struct{})
	var deliveredErr error
	p := NewPending(KindStoreSimple, false, func(result any, err error) {
		deliveredErr = err
		close(done)
	})
	e.Enqueue(EncodeStore(VerbSet, "k", 0, 0, []byte("v"), 0), p)

	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
		server.Write([]byte("SERVER_ERROR out of memory\r\n"))
	}()

	for e.HasOutbound() {
		if err := e.FlushWrite(deadline()); err != nil {
			t.Fatalf("FlushWrite: %v", err)
		}
	}

	_, err := e.ReadOne(deadline())
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("ReadOne error = %v, want *ServerError", err)
	}
	<-done
	var se2 *ServerError
	if !errors.As(deliveredErr, &se2) {
		t.Fatalf("delivered error = %v, want *ServerError", deliveredErr)
	}
	if e.HasPending() {
		t.Fatal("a fully-read ServerError reply must still advance the FIFO")
	}
}

func TestEngineIOErrorLeavesPendingInPlace(t *testing.T) {
	e, server := newTestEngine()

	p := NewPending(KindStoreSimple, false, func(result any, err error) {})
	e.Enqueue(EncodeStore(VerbSet, "k", 0, 0, []byte("v"), 0), p)

	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
		server.Close()
	}()

	for e.HasOutbound() {
		if err := e.FlushWrite(deadline()); err != nil {
			t.Fatalf("FlushWrite: %v", err)
		}
	}

	_, err := e.ReadOne(deadline())
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("ReadOne error = %v, want *IOError", err)
	}
	if !e.HasPending() {
		t.Fatal("a raw IOError must leave the pending entry for MarkBroken to fail")
	}
}

func TestEngineMarkBrokenFailsRemainingPending(t *testing.T) {
	e, _ := newTestEngine()

	var gotErr error
	done := make(chan struct{})
	p := NewPending(KindStoreSimple, false, func(result any, err error) {
		gotErr = err
		close(done)
	})
	e.Enqueue(EncodeStore(VerbSet, "k", 0, 0, []byte("v"), 0), p)

	sentinel := errors.New("boom")
	e.MarkBroken(sentinel)

	<-done
	if !errors.Is(gotErr, sentinel) {
		t.Fatalf("gotErr = %v, want %v", gotErr, sentinel)
	}
	if e.State() != Broken {
		t.Fatalf("State() = %v, want Broken", e.State())
	}
	if e.HasPending() {
		t.Fatal("MarkBroken should have cleared the pending queue")
	}
}

func TestPendingDeliverIsIdempotent(t *testing.T) {
	calls := 0
	p := NewPending(KindStoreSimple, false, func(result any, err error) {
		calls++
	})
	p.Deliver(true, nil)
	p.Deliver(nil, errors.New("late"))
	if calls != 1 {
		t.Fatalf("deliver called %d times, want 1", calls)
	}
}

func TestPendingDiscardNeverDelivers(t *testing.T) {
	called := false
	p := NewPending(KindStoreSimple, true, func(result any, err error) {
		called = true
	})
	p.Deliver(true, nil)
	if called {
		t.Fatal("a Discard (nowait) pending must never invoke deliver")
	}
}

func TestEngineNowaitCountTracksDiscardEntries(t *testing.T) {
	e, server := newTestEngine()
	go func() {
		buf := make([]byte, 256)
		server.Read(buf)
		server.Write([]byte("STORED\r\n"))
	}()

	p := NewPending(KindStoreSimple, true, nil)
	e.Enqueue(EncodeStore(VerbSet, "k", 0, 0, []byte("v"), 0), p)
	if e.NowaitCount() != 1 {
		t.Fatalf("NowaitCount() = %d, want 1", e.NowaitCount())
	}

	for e.HasOutbound() {
		if err := e.FlushWrite(deadline()); err != nil {
			t.Fatalf("FlushWrite: %v", err)
		}
	}
	if _, err := e.ReadOne(deadline()); err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if e.NowaitCount() != 0 {
		t.Fatalf("NowaitCount() = %d, want 0 after reply consumed", e.NowaitCount())
	}
}

func TestEngineVersionCaptured(t *testing.T) {
	e, server := newTestEngine()
	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
		server.Write([]byte("VERSION 1.6.21\r\n"))
	}()

	p := NewPending(KindVersion, false, func(result any, err error) {})
	e.Enqueue(EncodeVersion(), p)
	for e.HasOutbound() {
		if err := e.FlushWrite(deadline()); err != nil {
			t.Fatalf("FlushWrite: %v", err)
		}
	}
	if _, err := e.ReadOne(deadline()); err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if e.Version() != "1.6.21" {
		t.Fatalf("Version() = %q, want %q", e.Version(), "1.6.21")
	}
}
