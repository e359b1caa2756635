// Package hashutil provides the two fixed hash families used to place keys
// and Ketama ring points. Both are deterministic across processes: any two
// clients built from this package, given the same namespace and server list,
// agree on where a key lands without talking to each other.
//
// CRC32 (IEEE) hashes the namespaced key for both the legacy weighted
// selector's modular lookup and the Ketama ring's binary search target.
// MD5 hashes "<address>-<index>" to place each of a server's Ketama points;
// this is the same point-placement family used by libmemcached and
// Cache::Memcached::Fast, which keeps rings compatible with those clients
// when configured with the same virtual-point count.
package hashutil

import (
	"crypto/md5"
	"fmt"
	"hash/crc32"
)

// KeyHash returns the 32-bit CRC hash of key, used to locate the server
// responsible for it (legacy modular lookup or Ketama ring search).
func KeyHash(key []byte) uint32 {
	return crc32.ChecksumIEEE(key)
}

// PointHash returns the hash used to place the idx'th Ketama point for a
// server at address: the first four bytes, read little-endian, of the MD5
// digest of "<address>-<idx>".
func PointHash(address string, idx int) uint32 {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%d", address, idx)))
	return uint32(sum[0]) | uint32(sum[1])<<8 |
		uint32(sum[2])<<16 | uint32(sum[3])<<24
}
