package utils

import (
	"fmt"
	"log"
	"math"

	"github.com/paulmach/orb"

	"github.com/bsaid97/go-patch-editor/engine"
)

// SpatialIndex is a uniform grid over patch bounding boxes. Adjacency
// detection and duplicate scanning only ever need the patches whose
// boxes come near the edited geometry; the grid answers that without
// walking the whole set.
type SpatialIndex struct {
	cellSize float64
	grid     map[string][]*IndexedPatch
	patches  []*IndexedPatch
}

type IndexedPatch struct {
	Patch engine.Patch
	Bound orb.Bound
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		cellSize: cellSize,
		grid:     make(map[string][]*IndexedPatch),
	}
}

// NewSpatialIndexForPatches builds an index over a whole patch set with
// a cell size derived from the shared-edge tolerance.
func NewSpatialIndexForPatches(patches engine.PatchSet) *SpatialIndex {
	cell := math.Sqrt(engine.SharedEdgeTolDegSq) * 100
	idx := NewSpatialIndex(cell)
	for _, p := range patches {
		idx.AddPatch(p)
	}
	return idx
}

func (si *SpatialIndex) AddPatch(p engine.Patch) {
	if len(p.Geometry) == 0 {
		log.Printf("spatial index: skipping patch %s with empty geometry", p.ID)
		return
	}
	ip := &IndexedPatch{Patch: p, Bound: p.Geometry.Bound()}
	si.patches = append(si.patches, ip)

	minX, minY, maxX, maxY := si.cellRange(ip.Bound, 0)
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			key := cellKey(x, y)
			si.grid[key] = append(si.grid[key], ip)
		}
	}
}

// FindCandidates returns the patches whose padded bounding box overlaps
// the query bound, as a PatchSet ready to hand to the engine.
func (si *SpatialIndex) FindCandidates(bound orb.Bound, padDeg float64) engine.PatchSet {
	minX, minY, maxX, maxY := si.cellRange(bound, padDeg)

	seen := make(map[string]bool)
	out := make(engine.PatchSet)
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for _, ip := range si.grid[cellKey(x, y)] {
				if seen[ip.Patch.ID] {
					continue
				}
				seen[ip.Patch.ID] = true
				if engine.BoundsOverlap(bound, ip.Bound, padDeg) {
					out[ip.Patch.ID] = ip.Patch
				}
			}
		}
	}
	return out
}

// Len is the number of indexed patches.
func (si *SpatialIndex) Len() int { return len(si.patches) }

func (si *SpatialIndex) cellRange(b orb.Bound, padDeg float64) (int, int, int, int) {
	return int(math.Floor((b.Min[0] - padDeg) / si.cellSize)),
		int(math.Floor((b.Min[1] - padDeg) / si.cellSize)),
		int(math.Floor((b.Max[0] + padDeg) / si.cellSize)),
		int(math.Floor((b.Max[1] + padDeg) / si.cellSize))
}

func cellKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}

// MetersToDegrees converts a metre tolerance to WGS84 degrees. One
// degree is about 111km at the equator.
func MetersToDegrees(meters float64) float64 {
	return meters / engine.MetersPerDegree
}

// DegreesToMeters is the reverse conversion for reporting.
func DegreesToMeters(degrees float64) float64 {
	return degrees * engine.MetersPerDegree
}
