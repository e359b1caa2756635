// Package memcache is the client façade (spec component C8): it owns the
// selector, failure manager, engine pool (via pkg/dispatch), and value
// transform pipeline, and exposes the single-key and multi-key
// operations an application actually calls.
package memcache

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cachemir/gomemfast/pkg/address"
	"github.com/cachemir/gomemfast/pkg/config"
	"github.com/cachemir/gomemfast/pkg/dispatch"
	"github.com/cachemir/gomemfast/pkg/failure"
	"github.com/cachemir/gomemfast/pkg/metrics"
	"github.com/cachemir/gomemfast/pkg/selector"
	"github.com/cachemir/gomemfast/pkg/transform"
)

// Client is a namespaced, sharded memcached client. The zero value is not
// usable; construct one with New.
type Client struct {
	namespace  string
	ioTimeout  time.Duration
	nowait     bool
	dispatcher *dispatch.Dispatcher
	pipeline   *transform.Pipeline
}

// New builds a Client from cfg. reg may be nil to skip Prometheus
// registration. The returned bool reports whether every option in cfg
// was honored as given; false means a ConfigError-class condition was
// resolved with a safe fallback (currently: an unknown CompressAlgo,
// which disables compression rather than failing construction, per spec
// §7) and is worth a caller-visible warning.
func New(cfg *config.Config, reg prometheus.Registerer) (*Client, bool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	addrSpecs := cfg.Addresses()
	addrs := make([]address.Address, len(addrSpecs))
	canon := make([]string, len(addrSpecs))
	for i, spec := range addrSpecs {
		a, err := address.Parse(spec)
		if err != nil {
			return nil, false, fmt.Errorf("memcache: %w", err)
		}
		addrs[i] = a
		canon[i] = a.Canonical()
	}

	weights := cfg.Weights()

	var sel selector.Selector
	var err error
	if cfg.KetamaPoints > 0 {
		sel, err = selector.NewKetama(canon, weights, cfg.KetamaPoints)
	} else {
		sel, err = selector.NewWeighted(weights)
	}
	if err != nil {
		return nil, false, fmt.Errorf("memcache: %w", err)
	}

	pipeline, ok := transform.New(transform.Options{
		UTF8:              cfg.UTF8,
		CompressThreshold: cfg.CompressThreshold,
		CompressRatio:     cfg.CompressRatio,
		CompressAlgo:      cfg.CompressAlgo,
	})

	dialer := &address.Dialer{ConnectTimeout: cfg.ConnectTimeout}
	failures := failure.New(cfg.MaxFailures, cfg.FailureTimeout)
	m := metrics.New(reg)
	d := dispatch.New(addrs, sel, dialer, failures, cfg.CloseOnError, m)

	c := &Client{
		namespace:  cfg.Namespace,
		ioTimeout:  cfg.IOTimeout,
		nowait:     cfg.Nowait,
		dispatcher: d,
		pipeline:   pipeline,
	}
	return c, ok, nil
}

// Close drains every engine's outstanding replies before closing sockets
// (spec §3, §4.8: the destructor must not abandon server-side work a
// nowait command already triggered).
func (c *Client) Close() {
	c.dispatcher.Drain(c.deadline())
	c.dispatcher.Close()
}

// deadline derives a batch deadline from ioTimeout; a zero ioTimeout
// disables the bound (spec §6).
func (c *Client) deadline() time.Time {
	if c.ioTimeout <= 0 {
		return time.Time{} // the zero Time means no deadline to net.Conn
	}
	return time.Now().Add(c.ioTimeout)
}

func (c *Client) nsKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + key
}

func (c *Client) nsKeys(keys []string) []string {
	if c.namespace == "" {
		return keys
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.namespace + k
	}
	return out
}

func (c *Client) stripNS(key string) string {
	if c.namespace == "" {
		return key
	}
	return key[len(c.namespace):]
}
