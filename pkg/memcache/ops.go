package memcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/cachemir/gomemfast/pkg/dispatch"
	"github.com/cachemir/gomemfast/pkg/engine"
)

// Item is a fetched value, already reversed through the transform
// pipeline, plus, for GetsMulti, its CAS token.
type Item struct {
	Value  any
	CAS    uint64
	HasCAS bool
}

// GetError reports per-key failures from a multi-key fetch — a transport
// error from one server or a TransformError decoding one value. Per spec
// §4.5, a failure for one key must not affect its siblings in the same
// batch: the result map returned alongside a *GetError still holds every
// key that succeeded; Errs holds only the keys that didn't.
type GetError struct {
	Errs map[string]error
}

func (e *GetError) Error() string {
	return fmt.Sprintf("memcache: %d key(s) failed", len(e.Errs))
}

// Get fetches a single key. The second return value is false if the key
// was absent on the server (a cache miss, not an error).
func (c *Client) Get(ctx context.Context, key string) (any, bool, error) {
	items, err := c.GetMulti(ctx, []string{key})
	if err != nil {
		var ge *GetError
		if errors.As(err, &ge) {
			if keyErr, failed := ge.Errs[key]; failed {
				return nil, false, keyErr
			}
		} else {
			return nil, false, err
		}
	}
	item, ok := items[key]
	if !ok {
		return nil, false, nil
	}
	return item.Value, true, nil
}

// GetMulti fetches several keys in one batch, routed across whichever
// servers own them (spec §4.7: one multi-key call, N per-server get
// commands). Keys absent from the result are cache misses, not errors.
// A per-key error (e.g. a TransformError decoding one value, or a
// transport error from the server that owns it) never discards the rest
// of the batch: it is reported via a *GetError alongside the complete set
// of keys that did succeed, so callers that only care about the keys they
// need can ignore a non-nil error for keys outside of it.
func (c *Client) GetMulti(ctx context.Context, keys []string) (map[string]Item, error) {
	return c.getMulti(ctx, keys, false)
}

// GetsMulti is GetMulti but additionally returns each value's CAS token,
// for a later compare-and-swap.
func (c *Client) GetsMulti(ctx context.Context, keys []string) (map[string]Item, error) {
	return c.getMulti(ctx, keys, true)
}

func (c *Client) getMulti(ctx context.Context, keys []string, withCAS bool) (map[string]Item, error) {
	nsKeys := c.nsKeys(keys)
	values, errs := c.dispatcher.Get(ctx, nsKeys, withCAS, c.deadline())

	out := make(map[string]Item, len(values))
	var keyErrs map[string]error

	for nsKey, v := range values {
		value, err := c.pipeline.Fetch(v.Data, v.Flags)
		if err != nil {
			if keyErrs == nil {
				keyErrs = make(map[string]error)
			}
			keyErrs[c.stripNS(nsKey)] = fmt.Errorf("memcache: decode %q: %w", c.stripNS(nsKey), err)
			continue
		}
		out[c.stripNS(nsKey)] = Item{Value: value, CAS: v.CAS, HasCAS: v.HasCAS}
	}

	for nsKey, err := range errs {
		if keyErrs == nil {
			keyErrs = make(map[string]error)
		}
		keyErrs[c.stripNS(nsKey)] = fmt.Errorf("memcache: get %q: %w", c.stripNS(nsKey), err)
	}

	if len(keyErrs) > 0 {
		return out, &GetError{Errs: keyErrs}
	}
	return out, nil
}

func (c *Client) store(ctx context.Context, verb engine.Verb, key string, value any, exptime int, cas uint64) (bool, error) {
	data, flags, err := c.pipeline.Store(value)
	if err != nil {
		return false, fmt.Errorf("memcache: encode %q: %w", key, err)
	}

	item := dispatch.Item{Key: c.nsKey(key), Data: data, Flags: flags, Exptime: exptime, CAS: cas}

	if c.nowait {
		c.dispatcher.StoreNowait(ctx, verb, []dispatch.Item{item}, c.deadline())
		return true, nil
	}

	results := c.dispatcher.Store(ctx, verb, []dispatch.Item{item}, c.deadline())
	r := results[item.Key]
	return r.Stored, r.Err
}

// Set unconditionally stores value under key.
func (c *Client) Set(ctx context.Context, key string, value any, exptime int) (bool, error) {
	return c.store(ctx, engine.VerbSet, key, value, exptime, 0)
}

// Add stores value under key only if key does not already exist.
func (c *Client) Add(ctx context.Context, key string, value any, exptime int) (bool, error) {
	return c.store(ctx, engine.VerbAdd, key, value, exptime, 0)
}

// Replace stores value under key only if key already exists.
func (c *Client) Replace(ctx context.Context, key string, value any, exptime int) (bool, error) {
	return c.store(ctx, engine.VerbReplace, key, value, exptime, 0)
}

// Cas stores value under key only if its CAS token still matches cas on
// the server (spec §9: the token is opaque, compared verbatim by the
// server; the client never interprets it).
func (c *Client) Cas(ctx context.Context, key string, value any, exptime int, cas uint64) (bool, error) {
	return c.store(ctx, engine.VerbCas, key, value, exptime, cas)
}

// Append appends raw bytes to an existing value. Append/prepend operate
// on the stored bytes directly, so data bypasses the transform pipeline
// the way the wire protocol itself does (the server does not re-parse
// flags on an append).
func (c *Client) Append(ctx context.Context, key string, data []byte) (bool, error) {
	return c.rawStore(ctx, engine.VerbAppend, key, data)
}

// Prepend prepends raw bytes to an existing value. See Append.
func (c *Client) Prepend(ctx context.Context, key string, data []byte) (bool, error) {
	return c.rawStore(ctx, engine.VerbPrepend, key, data)
}

func (c *Client) rawStore(ctx context.Context, verb engine.Verb, key string, data []byte) (bool, error) {
	item := dispatch.Item{Key: c.nsKey(key), Data: data}

	if c.nowait {
		c.dispatcher.StoreNowait(ctx, verb, []dispatch.Item{item}, c.deadline())
		return true, nil
	}

	results := c.dispatcher.Store(ctx, verb, []dispatch.Item{item}, c.deadline())
	r := results[item.Key]
	return r.Stored, r.Err
}

// Delete removes a single key.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	results := c.DeleteMulti(ctx, []string{key})
	r := results[key]
	return r.Stored, r.Err
}

// DeleteMulti removes several keys in one batch.
func (c *Client) DeleteMulti(ctx context.Context, keys []string) map[string]dispatch.StoreResult {
	nsKeys := c.nsKeys(keys)
	results := c.dispatcher.Delete(ctx, nsKeys, c.deadline())
	out := make(map[string]dispatch.StoreResult, len(results))
	for k, v := range results {
		out[c.stripNS(k)] = v
	}
	return out
}

// Touch bumps a key's TTL without fetching its value.
func (c *Client) Touch(ctx context.Context, key string, exptime int) (bool, error) {
	results := c.dispatcher.Touch(ctx, []string{c.nsKey(key)}, exptime, c.deadline())
	r := results[c.nsKey(key)]
	return r.Stored, r.Err
}

// Incr increments key by delta. found is false if the server replies
// NOT_FOUND (the key doesn't exist); this is not reported as an error. An
// error reply from the server, such as CLIENT_ERROR for a non-numeric
// value, is returned as err.
func (c *Client) Incr(ctx context.Context, key string, delta uint64) (value uint64, found bool, err error) {
	r := c.dispatcher.Arith(ctx, true, c.nsKey(key), delta, c.deadline())
	return r.Value, r.Found, r.Err
}

// Decr decrements key by delta, floored at zero (spec §9: memcached
// clamps rather than going negative; the floored result is returned with
// found=true, distinguishable from a genuine miss only by found itself).
func (c *Client) Decr(ctx context.Context, key string, delta uint64) (value uint64, found bool, err error) {
	r := c.dispatcher.Arith(ctx, false, c.nsKey(key), delta, c.deadline())
	return r.Value, r.Found, r.Err
}

// FlushAll invalidates every key on every configured server, staggering
// the expiry across servers per spec §4.6's delay distribution formula.
func (c *Client) FlushAll(ctx context.Context, delaySeconds int) error {
	results := c.dispatcher.FlushAll(ctx, delaySeconds, c.deadline())
	for addr, r := range results {
		if r.Err != nil {
			return fmt.Errorf("memcache: flush_all on %s: %w", addr, r.Err)
		}
	}
	return nil
}

// Version returns the version string from the first configured server.
func (c *Client) Version(ctx context.Context) (string, error) {
	all, err := c.VersionAll(ctx)
	if err != nil {
		return "", err
	}
	if c.dispatcher.NumServers() > 0 {
		if v, ok := all[c.dispatcher.Addr(0).Canonical()]; ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("memcache: no servers configured")
}

// VersionAll returns the version string reported by every configured
// server, keyed by canonical address.
func (c *Client) VersionAll(ctx context.Context) (map[string]string, error) {
	results := c.dispatcher.VersionAll(ctx, c.deadline())
	out := make(map[string]string, len(results))
	for addr, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("memcache: version on %s: %w", addr, r.Err)
		}
		out[addr] = r.Version
	}
	return out, nil
}
