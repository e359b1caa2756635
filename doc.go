// Package gomemfast is a client library for a distributed, memcached-
// compatible in-memory cache. It shards keys across a pool of cache
// servers, pipelines requests per server, recovers from partial server
// failures without disturbing key assignment, and transparently
// compresses and encodes stored values.
//
// # Architecture
//
// The library is organized as a pipeline of small, independently
// testable packages:
//
//   - pkg/hashutil: the CRC32/MD5 hash primitives both selectors build on
//   - pkg/selector: Ketama consistent hashing and the legacy weighted table
//   - pkg/failure: per-server rolling failure windows and shunning
//   - pkg/address: "host:port"/unix-socket parsing and dialing
//   - pkg/transform: the flag-word value pipeline (codec, UTF-8, compression)
//   - pkg/engine: the per-connection protocol state machine
//   - pkg/dispatch: batch routing and concurrent per-server I/O
//   - pkg/metrics: optional Prometheus instrumentation
//   - pkg/config: configuration loading and validation
//   - pkg/memcache: the client façade applications import
//
// # Quick start
//
//	cfg := config.Load()
//	cfg.Servers = []config.Server{
//		{Address: "cache1:11211", Weight: 1},
//		{Address: "cache2:11211", Weight: 1},
//	}
//
//	client, _, err := memcache.New(cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Set(ctx, "user:123", "jane", 0)
//	value, found, err := client.Get(ctx, "user:123")
//
// # Scaling and distribution
//
// Keys are routed to servers with a pure function of (servers,
// ketama_points) — routing never changes in response to server
// reachability. A server that is failing is shunned (the connector
// refuses to dial it) but it keeps every key assigned to it, so clients
// that disagree about liveness never disagree about ownership.
//
// # Package structure
//
//   - pkg/memcache: client façade
//   - pkg/dispatch: batch dispatcher
//   - pkg/engine: per-server protocol engine
//   - pkg/selector: server selection
//   - pkg/failure: failure/shun tracking
//   - pkg/address: address parsing and dialing
//   - pkg/transform: value encode/compress pipeline
//   - pkg/hashutil: hash primitives
//   - pkg/config: configuration
//   - pkg/metrics: Prometheus instrumentation
//   - cmd/example: a runnable smoke test
package gomemfast
