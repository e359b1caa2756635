// Package failure implements the failure manager (spec component C3):
// per-server rolling failure counts that gate the connector, never the
// selector. A server that has failed too often recently is "shunned" —
// temporarily refused by the connector — but it keeps its assigned keys;
// requests to it simply fail fast until the shun window elapses.
package failure

import (
	"sync"
	"time"
)

// Manager tracks failure windows for a fixed set of server indices.
// Safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	maxFailures  int
	timeout      time.Duration
	windows      map[int]*window
	now          func() time.Time
}

type window struct {
	count      int
	windowFrom time.Time
	shunUntil  time.Time
}

// New creates a Manager. maxFailures == 0 disables shunning entirely (every
// call to Record is a no-op and Shunned always reports false). timeout is
// both the width of the rolling failure window and the shun duration.
func New(maxFailures int, timeout time.Duration) *Manager {
	return &Manager{
		maxFailures: maxFailures,
		timeout:     timeout,
		windows:     make(map[int]*window),
		now:         time.Now,
	}
}

// Record registers a failure observed for server idx (a connect error or a
// fatal I/O, protocol or server error on its connection). If the existing
// window is older than the failure timeout, it resets to a fresh window of
// count 1; otherwise the count is incremented. Once count reaches
// maxFailures, the server is shunned until windowFrom+timeout.
func (m *Manager) Record(idx int) {
	if m.maxFailures == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[idx]
	if !ok || now.Sub(w.windowFrom) > m.timeout {
		w = &window{count: 1, windowFrom: now}
		m.windows[idx] = w
	} else {
		w.count++
	}

	if w.count >= m.maxFailures {
		w.shunUntil = w.windowFrom.Add(m.timeout)
	}
}

// RecordSuccess clears any failure window for idx. Called after a
// successful connect so the next failure starts a fresh window.
func (m *Manager) RecordSuccess(idx int) {
	if m.maxFailures == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.windows, idx)
}

// Shunned reports whether server idx is currently shunned. While shunned,
// the connector must not attempt a syscall for this server.
func (m *Manager) Shunned(idx int) bool {
	if m.maxFailures == 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[idx]
	if !ok || w.shunUntil.IsZero() {
		return false
	}

	now := m.now()
	if now.Before(w.shunUntil) {
		return true
	}

	// Shun has expired; clear it so the next failure starts counting from
	// zero rather than immediately re-shunning off a stale window.
	delete(m.windows, idx)
	return false
}
