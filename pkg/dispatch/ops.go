package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cachemir/gomemfast/pkg/engine"
)

// Item is one key/value/flags/exptime tuple for a batch store operation.
type Item struct {
	Key     string
	Data    []byte
	Flags   uint32
	Exptime int
	CAS     uint64 // only used for VerbCas
}

// StoreResult is the per-key outcome of a batch store.
type StoreResult struct {
	Stored bool
	Err    error
}

// Get fetches keys across however many servers they route to, in one
// batch deadline. The returned map omits keys the server reported as
// missing; keys that errored are reported in errs instead.
func (d *Dispatcher) Get(ctx context.Context, keys []string, withCAS bool, deadline time.Time) (map[string]engine.ValueLine, map[string]error) {
	byIdx := make(map[int][]string)
	for _, k := range keys {
		idx := d.Route([]byte(k))
		byIdx[idx] = append(byIdx[idx], k)
	}

	var mu sync.Mutex
	values := make(map[string]engine.ValueLine)
	errs := make(map[string]error)

	var jobs []job
	for idx, group := range byIdx {
		group := group
		data := engine.EncodeGet(group, withCAS)
		pending := engine.NewPending(engine.KindRetrieval, false, func(result any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				for _, k := range group {
					errs[k] = err
				}
				return
			}
			for _, v := range result.([]engine.ValueLine) {
				values[v.Key] = v
			}
		})
		jobs = append(jobs, job{idx: idx, data: data, pending: pending})
	}

	d.execute(ctx, jobs, deadline)
	return values, errs
}

// Store issues one store command (set/add/replace/append/prepend/cas) per
// item, each routed independently. "Same key twice in one batch: the
// later command wins" is a caller-level guarantee (spec §5) satisfied
// here because results are written into the map by key as each reply
// arrives, and item order within a server's group is preserved by FIFO.
func (d *Dispatcher) Store(ctx context.Context, verb engine.Verb, items []Item, deadline time.Time) map[string]StoreResult {
	results := make(map[string]StoreResult)
	var mu sync.Mutex

	var jobs []job
	for _, it := range items {
		it := it
		idx := d.Route([]byte(it.Key))
		data := engine.EncodeStore(verb, it.Key, it.Flags, it.Exptime, it.Data, it.CAS)
		kind := engine.KindStoreSimple
		if verb == engine.VerbCas {
			kind = engine.KindCas
		}
		pending := engine.NewPending(kind, false, func(result any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[it.Key] = StoreResult{Err: err}
				return
			}
			results[it.Key] = StoreResult{Stored: result.(bool)}
		})
		jobs = append(jobs, job{idx: idx, data: data, pending: pending})
	}

	d.execute(ctx, jobs, deadline)
	return results
}

// StoreNowait is Store's fire-and-forget counterpart: no reply is
// delivered to the caller, but the reply is still parsed off the wire to
// keep each engine's FIFO aligned (spec §4.6 nowait mode).
func (d *Dispatcher) StoreNowait(ctx context.Context, verb engine.Verb, items []Item, deadline time.Time) {
	var jobs []job
	for _, it := range items {
		idx := d.Route([]byte(it.Key))
		data := engine.EncodeStore(verb, it.Key, it.Flags, it.Exptime, it.Data, it.CAS)
		kind := engine.KindStoreSimple
		if verb == engine.VerbCas {
			kind = engine.KindCas
		}
		jobs = append(jobs, job{idx: idx, data: data, pending: engine.NewPending(kind, true, nil)})
	}
	d.execute(ctx, jobs, deadline)
}

// Delete issues delete for each key, routed independently.
func (d *Dispatcher) Delete(ctx context.Context, keys []string, deadline time.Time) map[string]StoreResult {
	results := make(map[string]StoreResult)
	var mu sync.Mutex

	var jobs []job
	for _, k := range keys {
		k := k
		idx := d.Route([]byte(k))
		pending := engine.NewPending(engine.KindDelete, false, func(result any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[k] = StoreResult{Err: err}
				return
			}
			results[k] = StoreResult{Stored: result.(bool)}
		})
		jobs = append(jobs, job{idx: idx, data: engine.EncodeDelete(k), pending: pending})
	}

	d.execute(ctx, jobs, deadline)
	return results
}

// Touch bumps the TTL of each key without fetching its value.
func (d *Dispatcher) Touch(ctx context.Context, keys []string, exptime int, deadline time.Time) map[string]StoreResult {
	results := make(map[string]StoreResult)
	var mu sync.Mutex

	var jobs []job
	for _, k := range keys {
		k := k
		idx := d.Route([]byte(k))
		pending := engine.NewPending(engine.KindTouch, false, func(result any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[k] = StoreResult{Err: err}
				return
			}
			results[k] = StoreResult{Stored: result.(bool)}
		})
		jobs = append(jobs, job{idx: idx, data: engine.EncodeTouch(k, exptime), pending: pending})
	}

	d.execute(ctx, jobs, deadline)
	return results
}

// ArithResult is the outcome of an incr/decr on a single key.
type ArithResult struct {
	Value uint64
	Found bool
	Err   error
}

// Arith issues a single incr/decr command for one key.
func (d *Dispatcher) Arith(ctx context.Context, incr bool, key string, delta uint64, deadline time.Time) ArithResult {
	var out ArithResult
	idx := d.Route([]byte(key))
	pending := engine.NewPending(engine.KindArith, false, func(result any, err error) {
		if err != nil {
			out.Err = err
			return
		}
		ar := result.(engine.ArithResult)
		out.Value = ar.Value
		out.Found = ar.Found
	})
	jobs := []job{{idx: idx, data: engine.EncodeArith(incr, key, delta), pending: pending}}
	d.execute(ctx, jobs, deadline)
	return out
}

// FlushAll broadcasts flush_all to every configured server. Per spec §5,
// the delay offered to server i (of n) is
// trunc(delaySeconds * (n-1-i) / (n-1)), truncating toward zero rather
// than rounding, staggering expiry so a thundering herd of cache misses
// doesn't hit every server at once; with a single server the plain
// delaySeconds is sent unstaggered.
func (d *Dispatcher) FlushAll(ctx context.Context, delaySeconds int, deadline time.Time) map[string]StoreResult {
	results := make(map[string]StoreResult)
	var mu sync.Mutex

	n := len(d.addrs)
	var jobs []job
	for i := 0; i < n; i++ {
		i := i
		addr := d.addrs[i].Canonical()
		delay := delaySeconds
		if n > 1 {
			delay = int(float64(delaySeconds) * float64(n-1-i) / float64(n-1))
		}
		pending := engine.NewPending(engine.KindFlush, false, func(result any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[addr] = StoreResult{Err: err}
				return
			}
			results[addr] = StoreResult{Stored: result.(bool)}
		})
		jobs = append(jobs, job{idx: i, data: engine.EncodeFlushAll(delay), pending: pending})
	}

	d.execute(ctx, jobs, deadline)
	return results
}

// VersionResult is one server's reply to a version command.
type VersionResult struct {
	Version string
	Err     error
}

// VersionAll broadcasts version to every configured server.
func (d *Dispatcher) VersionAll(ctx context.Context, deadline time.Time) map[string]VersionResult {
	results := make(map[string]VersionResult)
	var mu sync.Mutex

	var jobs []job
	for i, a := range d.addrs {
		i := i
		addr := a.Canonical()
		pending := engine.NewPending(engine.KindVersion, false, func(result any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[addr] = VersionResult{Err: err}
				return
			}
			results[addr] = VersionResult{Version: result.(string)}
		})
		jobs = append(jobs, job{idx: i, data: engine.EncodeVersion(), pending: pending})
	}

	d.execute(ctx, jobs, deadline)
	return results
}
