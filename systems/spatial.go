// Package systems provides the SPH building blocks stepped by the engine.
package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/components"
)

// TableSize is the fixed bucket count of the hash grid. Prime, to spread collisions.
const TableSize = 10007

// Per-axis hash multipliers.
const (
	hashPrimeX = 73856093
	hashPrimeY = 19349663
	hashPrimeZ = 83492791
)

// HashCell maps integer cell coordinates to a bucket in [0, TableSize).
// Build and query both go through here so the two paths cannot disagree.
func HashCell(x, y, z int) int {
	h := (int64(x) * hashPrimeX) ^ (int64(y) * hashPrimeY) ^ (int64(z) * hashPrimeZ)
	h %= TableSize
	if h < 0 {
		h += TableSize
	}
	return int(h)
}

// HashGrid indexes active particle slots by hashed cell for O(k) neighbor lookups.
// It holds slot indices only and is rebuilt from scratch every step.
type HashGrid struct {
	cellSize float64
	buckets  [][]int

	visited [27]int // bucket ids seen by the current query
}

// NewHashGrid creates an empty grid. cellSize must be >= the kernel radius;
// that is validated by config, not here.
func NewHashGrid(cellSize float64) *HashGrid {
	buckets := make([][]int, TableSize)
	return &HashGrid{
		cellSize: cellSize,
		buckets:  buckets,
	}
}

// CellSize returns the grid cell edge length.
func (g *HashGrid) CellSize() float64 {
	return g.cellSize
}

// CellOf returns the integer cell coordinates containing pos.
func (g *HashGrid) CellOf(pos r3.Vec) (x, y, z int) {
	return int(math.Floor(pos.X / g.cellSize)),
		int(math.Floor(pos.Y / g.cellSize)),
		int(math.Floor(pos.Z / g.cellSize))
}

// Clear empties every bucket, keeping allocated capacity.
func (g *HashGrid) Clear() {
	for i := range g.buckets {
		g.buckets[i] = g.buckets[i][:0]
	}
}

// Build clears the grid and inserts every active particle's slot index.
func (g *HashGrid) Build(particles []components.Particle) {
	g.Clear()
	for i := range particles {
		if !particles[i].Active {
			continue
		}
		x, y, z := g.CellOf(particles[i].Position)
		id := HashCell(x, y, z)
		g.buckets[id] = append(g.buckets[id], i)
	}
}

// Neighbors returns candidate slot indices from the 3x3x3 cell block around pos
// in a new slice. The solver uses NeighborsInto with a reused buffer.
func (g *HashGrid) Neighbors(pos r3.Vec) []int {
	return g.NeighborsInto(nil, pos)
}

// NeighborsInto appends candidate slot indices from the 3x3x3 cell block around pos to dst.
// Candidates include the querying particle itself and may include particles outside the
// kernel support (adjacent cells, hash collisions); callers filter by exact distance.
// A bucket reached from two colliding cells is appended only once.
func (g *HashGrid) NeighborsInto(dst []int, pos r3.Vec) []int {
	cx, cy, cz := g.CellOf(pos)

	n := 0
	for x := cx - 1; x <= cx+1; x++ {
		for y := cy - 1; y <= cy+1; y++ {
			for z := cz - 1; z <= cz+1; z++ {
				id := HashCell(x, y, z)
				if g.seen(id, n) {
					continue
				}
				g.visited[n] = id
				n++
				dst = append(dst, g.buckets[id]...)
			}
		}
	}

	return dst
}

// seen reports whether bucket id is among the first n visited this query.
func (g *HashGrid) seen(id, n int) bool {
	for i := 0; i < n; i++ {
		if g.visited[i] == id {
			return true
		}
	}
	return false
}

// BucketLoad returns the number of non-empty buckets and the longest chain.
func (g *HashGrid) BucketLoad() (used, longest int) {
	for _, b := range g.buckets {
		if len(b) == 0 {
			continue
		}
		used++
		if len(b) > longest {
			longest = len(b)
		}
	}
	return used, longest
}
