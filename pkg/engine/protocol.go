// Package engine implements the per-server protocol engine (spec component
// C6): it frames outbound ascii memcached commands, parses inbound replies,
// and keeps a FIFO of pending requests so replies are matched to the
// command that produced them even when several commands are in flight on
// the same connection (pipelining) or when the caller has asked to
// fire-and-forget (nowait) some of them.
package engine

import (
	"fmt"
)

// Verb is a wire command verb.
type Verb string

// Store verbs (spec §4.6).
const (
	VerbSet     Verb = "set"
	VerbAdd     Verb = "add"
	VerbReplace Verb = "replace"
	VerbAppend  Verb = "append"
	VerbPrepend Verb = "prepend"
	VerbCas     Verb = "cas"
)

// Simple-reply tokens (spec §4.6).
const (
	tokStored     = "STORED"
	tokNotStored  = "NOT_STORED"
	tokExists     = "EXISTS"
	tokNotFound   = "NOT_FOUND"
	tokDeleted    = "DELETED"
	tokTouched    = "TOUCHED"
	tokOK         = "OK"
	tokError      = "ERROR"
	tokClientErr  = "CLIENT_ERROR"
	tokServerErr  = "SERVER_ERROR"
	tokVersion    = "VERSION"
	tokValue      = "VALUE"
	tokEnd        = "END"
)

// ProtocolError reports a reply the parser could not classify. It always
// forces the owning engine to Broken (spec §4.6).
type ProtocolError struct {
	Line string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("engine: unparseable reply: %q", e.Line)
}

// ServerError reports an ERROR/CLIENT_ERROR/SERVER_ERROR token. Whether it
// forces the connection to Broken depends on the engine's CloseOnError
// setting (spec §4.6, §7).
type ServerError struct {
	Kind string // "ERROR", "CLIENT_ERROR", or "SERVER_ERROR"
	Msg  string
}

func (e *ServerError) Error() string {
	if e.Msg == "" {
		return "engine: " + e.Kind
	}
	return fmt.Sprintf("engine: %s: %s", e.Kind, e.Msg)
}

// IOError wraps a transport-level failure while reading a reply (a socket
// read error or an expired read deadline): a socket error rather than a
// reply the server sent. It leaves the reply that was in flight
// unconsumed, since the stream position after a partial read is
// undefined. The dispatcher marks the owning engine Broken for any
// IOError except an expired deadline, which leaves the connection Open.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("engine: io: %v", e.Err) }

func (e *IOError) Unwrap() error { return e.Err }
