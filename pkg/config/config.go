// Package config loads and validates the settings that drive a
// memcache.Client: server list, namespaces, timeouts, the failure/shun
// policy, the value transform pipeline, and selector mode.
//
// Configuration sources, in order of precedence:
//  1. Programmatic configuration (fields set directly on a Config)
//  2. Environment variables
//  3. Default values
//
// Environment variables are prefixed with "GOMEMFAST_" and use uppercase
// names, e.g. the server list can be set with
// GOMEMFAST_SERVERS=host1:11211,host2:11211.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults, spec §6.
const (
	DefaultConnectTimeout   = 250 * time.Millisecond
	DefaultIOTimeout        = time.Second
	DefaultCloseOnError     = true
	DefaultCompressThreshold = -1
	DefaultCompressRatio    = 0.8
	DefaultCompressAlgo     = "gzip"
	DefaultMaxFailures      = 0
	DefaultFailureTimeout   = 10 * time.Second
	DefaultKetamaPoints     = 0
	DefaultNowait           = false
	DefaultUTF8             = false
)

// Server is one configured cache endpoint: an address spec ("host:port"
// or an absolute unix socket path) plus its selector weight.
type Server struct {
	Address string
	Weight  float64 // defaults to 1 when unset (<= 0)
}

// Config is the full set of options a memcache.Client needs (spec §6).
type Config struct {
	Servers []Server
	// Namespace is prefixed to every user key before hashing and before
	// it is sent on the wire.
	Namespace string

	// ConnectTimeout bounds each individual connect attempt; 0 disables
	// the bound.
	ConnectTimeout time.Duration
	// IOTimeout bounds a whole dispatch batch; 0 disables the bound.
	IOTimeout time.Duration
	// CloseOnError drops a connection on any ERROR/CLIENT_ERROR/
	// SERVER_ERROR reply, not just on raw socket errors.
	CloseOnError bool

	// CompressThreshold is the minimum encoded value size, in bytes, that
	// triggers a compression attempt. -1 disables compression outright.
	CompressThreshold int
	// CompressRatio: a compression attempt is only accepted if
	// compressed_len <= CompressRatio * original_len.
	CompressRatio float64
	// CompressAlgo names a registered pkg/transform algorithm.
	CompressAlgo string
	// UTF8 transcodes string values to/from UTF-8 with flag bit b2.
	UTF8 bool

	// MaxFailures is the count of server failures (connect errors and
	// fatal I/O, protocol or server errors), within FailureTimeout, that
	// shuns a server. 0 disables shunning.
	MaxFailures int
	// FailureTimeout is both the width of the rolling failure window and
	// the shun duration.
	FailureTimeout time.Duration

	// KetamaPoints enables the Ketama consistent-hashing selector when
	// > 0 (points per unit weight); 0 selects the legacy weighted table.
	KetamaPoints int

	// Nowait makes the store calls (Set/Add/Replace/Cas/Append/Prepend)
	// report success without reporting the server's reply; the reply is
	// still read and discarded within the batch deadline. Delete and the
	// other calls always report their reply.
	Nowait bool
}

// Load builds a Config from defaults overlaid with environment
// variables. Servers are not picked up from the environment with a
// weight other than 1; callers needing weighted servers from the
// environment should set Config.Servers directly after Load.
//
// Environment variables:
//
//	GOMEMFAST_SERVERS: comma-separated "host:port" or "/path/unix.sock" list
//	GOMEMFAST_NAMESPACE: key namespace prefix
//	GOMEMFAST_CONNECT_TIMEOUT_MS: connect timeout in milliseconds
//	GOMEMFAST_IO_TIMEOUT_MS: batch I/O timeout in milliseconds
//	GOMEMFAST_CLOSE_ON_ERROR: "true"/"false"
//	GOMEMFAST_COMPRESS_THRESHOLD: integer byte threshold
//	GOMEMFAST_COMPRESS_RATIO: float in (0,1]
//	GOMEMFAST_COMPRESS_ALGO: algorithm name
//	GOMEMFAST_MAX_FAILURES: integer >= 0
//	GOMEMFAST_FAILURE_TIMEOUT_MS: failure window width in milliseconds
//	GOMEMFAST_KETAMA_POINTS: integer >= 0
//	GOMEMFAST_NOWAIT: "true"/"false"
//	GOMEMFAST_UTF8: "true"/"false"
func Load() *Config {
	c := &Config{
		Namespace:         "",
		ConnectTimeout:    DefaultConnectTimeout,
		IOTimeout:         DefaultIOTimeout,
		CloseOnError:      DefaultCloseOnError,
		CompressThreshold: DefaultCompressThreshold,
		CompressRatio:     DefaultCompressRatio,
		CompressAlgo:      DefaultCompressAlgo,
		MaxFailures:       DefaultMaxFailures,
		FailureTimeout:    DefaultFailureTimeout,
		KetamaPoints:      DefaultKetamaPoints,
		Nowait:            DefaultNowait,
		UTF8:              DefaultUTF8,
	}

	if servers := os.Getenv("GOMEMFAST_SERVERS"); servers != "" {
		for _, s := range strings.Split(servers, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			c.Servers = append(c.Servers, Server{Address: s, Weight: 1})
		}
	}

	if ns := os.Getenv("GOMEMFAST_NAMESPACE"); ns != "" {
		c.Namespace = ns
	}

	if v := os.Getenv("GOMEMFAST_CONNECT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.ConnectTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("GOMEMFAST_IO_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.IOTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("GOMEMFAST_CLOSE_ON_ERROR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.CloseOnError = b
		}
	}

	if v := os.Getenv("GOMEMFAST_COMPRESS_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CompressThreshold = n
		}
	}

	if v := os.Getenv("GOMEMFAST_COMPRESS_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CompressRatio = f
		}
	}

	if v := os.Getenv("GOMEMFAST_COMPRESS_ALGO"); v != "" {
		c.CompressAlgo = v
	}

	if v := os.Getenv("GOMEMFAST_MAX_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxFailures = n
		}
	}

	if v := os.Getenv("GOMEMFAST_FAILURE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.FailureTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("GOMEMFAST_KETAMA_POINTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KetamaPoints = n
		}
	}

	if v := os.Getenv("GOMEMFAST_NOWAIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Nowait = b
		}
	}

	if v := os.Getenv("GOMEMFAST_UTF8"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UTF8 = b
		}
	}

	return c
}

// Validate checks a Config for the ConfigError conditions spec §7 names
// explicitly: an empty server list, a non-positive FailureTimeout while
// MaxFailures > 0 (with shunning disabled FailureTimeout is not checked),
// and a compress ratio out of (0,1]. An unknown CompressAlgo is deliberately
// NOT an error here — pkg/transform resolves it by disabling compression
// with a warning, per spec §7.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("config: at least one server must be specified")
	}

	for _, s := range c.Servers {
		if s.Address == "" {
			return fmt.Errorf("config: empty server address")
		}
	}

	if c.ConnectTimeout < 0 {
		return fmt.Errorf("config: connect timeout must be >= 0")
	}

	if c.IOTimeout < 0 {
		return fmt.Errorf("config: io timeout must be >= 0")
	}

	if c.CompressRatio <= 0 || c.CompressRatio > 1 {
		return fmt.Errorf("config: compress ratio must be in (0,1], got %v", c.CompressRatio)
	}

	if c.MaxFailures < 0 {
		return fmt.Errorf("config: max failures must be >= 0")
	}

	if c.MaxFailures > 0 && c.FailureTimeout <= 0 {
		return fmt.Errorf("config: failure timeout must be > 0 when max failures is enabled")
	}

	if c.KetamaPoints < 0 {
		return fmt.Errorf("config: ketama points must be >= 0")
	}

	return nil
}

// Weights returns the per-server selector weights, each server's Weight
// field with non-positive values normalized to 1 (spec §3: "weight
// defaults to 1").
func (c *Config) Weights() []float64 {
	weights := make([]float64, len(c.Servers))
	for i, s := range c.Servers {
		if s.Weight <= 0 {
			weights[i] = 1
		} else {
			weights[i] = s.Weight
		}
	}
	return weights
}

// Addresses returns the raw address specs in server order, for
// address.Parse.
func (c *Config) Addresses() []string {
	addrs := make([]string, len(c.Servers))
	for i, s := range c.Servers {
		addrs[i] = s.Address
	}
	return addrs
}
