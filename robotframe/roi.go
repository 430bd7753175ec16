// Package robotframe converts detected pixels into robot coordinates using a loaded camera model,
// per region corrections and a fixed scale and offset.
package robotframe

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"
)

// ROITable holds the empirical pixel offset measured for each region of the field of view. It is
// immutable once built.
//
// Regions that have no entry get the neutral offset (0, 0). This is policy rather than an error:
// the mapper must always produce an answer, and a region that was never measured is assumed to
// need no correction.
type ROITable struct {
	offsets map[int]r2.Point
}

// NewROITable copies offsets into a new table. A nil map yields an empty table.
func NewROITable(offsets map[int]r2.Point) *ROITable {
	return &ROITable{offsets: lo.Assign(offsets)}
}

// Lookup returns the offset for region idx, or (0, 0) when the region is not in the table.
func (t *ROITable) Lookup(idx int) r2.Point {
	if t == nil {
		return r2.Point{}
	}
	return t.offsets[idx]
}

// Has reports whether region idx has a measured offset.
func (t *ROITable) Has(idx int) bool {
	if t == nil {
		return false
	}
	_, ok := t.offsets[idx]
	return ok
}

// Len is the number of configured regions.
func (t *ROITable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.offsets)
}

// Indices lists the configured regions in increasing order.
func (t *ROITable) Indices() []int {
	if t == nil {
		return nil
	}
	keys := lo.Keys(t.offsets)
	sort.Ints(keys)
	return keys
}
