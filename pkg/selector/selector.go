// Package selector implements server selection (spec component C2): given a
// key, decide which server index in a fixed list is responsible for it.
//
// Two implementations are provided. Weighted is the legacy integer-weighted
// table lookup; Ketama is the consistent-hashing ring. Both are pure and
// immutable after construction — selection never changes because a server
// went away, because rehashing on failure would desynchronize clients that
// disagree about liveness (see spec §4.2). A shunned server (pkg/failure)
// still owns its keys; it just fails fast when asked to connect.
package selector

import (
	"fmt"
	"math"
	"sort"

	"github.com/cachemir/gomemfast/pkg/hashutil"
)

// Selector maps a namespaced key to the index of the responsible server in
// the list the Selector was built from.
type Selector interface {
	// Select returns the index of the server responsible for key.
	Select(key []byte) int
	// NumServers returns the number of servers the selector was built with.
	NumServers() int
}

// maxWeightSum is the 16-bit budget the legacy table's summed weights must
// fit under (spec §4.2).
const maxWeightSum = 32768

// Weighted is the legacy selector: servers are expanded into a flat table of
// size sum(weight_i), and a key is routed by hash(key) mod sum(weight_i).
type Weighted struct {
	table []int // table[i] = server index responsible for slot i
}

// NewWeighted builds a Weighted selector from per-server weights. Weights
// are rounded to the nearest integer and floored at 1 (spec §9 Open
// Questions: rounding is unspecified upstream; nearest-integer with a
// 1-weight floor is the simplest rule consistent with "weight defaults to
// 1"). The summed integer weight must stay under 32768.
func NewWeighted(weights []float64) (*Weighted, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("selector: no servers")
	}

	intWeights := make([]int, len(weights))
	sum := 0
	for i, w := range weights {
		iw := int(math.Round(w))
		if iw < 1 {
			iw = 1
		}
		intWeights[i] = iw
		sum += iw
	}
	if sum >= maxWeightSum {
		return nil, fmt.Errorf("selector: summed weight %d exceeds budget of %d", sum, maxWeightSum)
	}

	table := make([]int, 0, sum)
	for i, iw := range intWeights {
		for j := 0; j < iw; j++ {
			table = append(table, i)
		}
	}

	return &Weighted{table: table}, nil
}

// Select implements Selector.
func (w *Weighted) Select(key []byte) int {
	h := hashutil.KeyHash(key)
	return w.table[int(h)%len(w.table)]
}

// NumServers implements Selector.
func (w *Weighted) NumServers() int {
	seen := map[int]bool{}
	for _, idx := range w.table {
		seen[idx] = true
	}
	return len(seen)
}

// ketamaPoint is one point on the consistent-hash ring.
type ketamaPoint struct {
	hash       uint32
	serverIdx  int
	subPoint   int
}

// Ketama is the consistent-hashing selector: each server contributes
// pointsPerUnitWeight*weight points to a sorted ring; a key routes to the
// server owning the first point whose hash is >= hash(key), wrapping at the
// end of the ring.
type Ketama struct {
	points  []ketamaPoint
	hashes  []uint32 // parallel to points, kept separately for binary search
	nServer int
}

// NewKetama builds a Ketama ring from server addresses (used only to derive
// deterministic point hashes — callers give the canonical "host:port" or
// socket path form) and weights. pointsPerUnitWeight must be > 0.
func NewKetama(addresses []string, weights []float64, pointsPerUnitWeight int) (*Ketama, error) {
	if len(addresses) != len(weights) {
		return nil, fmt.Errorf("selector: addresses/weights length mismatch")
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("selector: no servers")
	}
	if pointsPerUnitWeight <= 0 {
		return nil, fmt.Errorf("selector: points per unit weight must be > 0")
	}

	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("selector: ketama total weight is zero")
	}

	var points []ketamaPoint
	for i, addr := range addresses {
		n := int(math.Round(weights[i] * float64(pointsPerUnitWeight)))
		if n < 1 {
			n = 1
		}
		for j := 0; j < n; j++ {
			points = append(points, ketamaPoint{
				hash:      hashutil.PointHash(addr, j),
				serverIdx: i,
				subPoint:  j,
			})
		}
	}

	// Stable sort by hash only: equal-hash points keep their insertion
	// order, which is ascending (serverIdx, subPoint) because that's the
	// order they were appended above. That is the tie-break spec §4.2
	// requires, and it must not be redone at lookup time.
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].hash < points[j].hash
	})

	hashes := make([]uint32, len(points))
	for i, p := range points {
		hashes[i] = p.hash
	}

	return &Ketama{points: points, hashes: hashes, nServer: len(addresses)}, nil
}

// Select implements Selector.
func (k *Ketama) Select(key []byte) int {
	h := hashutil.KeyHash(key)
	idx := sort.Search(len(k.hashes), func(i int) bool {
		return k.hashes[i] >= h
	})
	if idx == len(k.hashes) {
		idx = 0
	}
	return k.points[idx].serverIdx
}

// NumServers implements Selector.
func (k *Ketama) NumServers() int {
	return k.nServer
}
