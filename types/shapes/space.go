package shapes

import (
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// Space is a rectangular index space: the cartesian product of one Range per
// axis. A rank-0 Space is the space of the single empty index (a scalar).
type Space []Range

// MakeSpace builds a Space from the given per-axis ranges.
func MakeSpace(ranges ...Range) Space {
	return slices.Clone(ranges)
}

// MakeSpaceDims builds the dense 0-based space with the given dimensions.
func MakeSpaceDims(dims ...int) Space {
	space := make(Space, len(dims))
	for axis, dim := range dims {
		if dim < 0 {
			exceptions.Panicf("shapes.MakeSpaceDims(%v): negative dimension", dims)
		}
		space[axis] = MakeRange(0, dim)
	}
	return space
}

// Rank returns the number of axes.
func (s Space) Rank() int { return len(s) }

// Size returns the number of index points, the product of the axis sizes.
func (s Space) Size() (size int) {
	size = 1
	for _, r := range s {
		size *= r.Size()
	}
	return
}

// Empty returns whether the space holds no index points.
func (s Space) Empty() bool {
	for _, r := range s {
		if r.Empty() {
			return true
		}
	}
	return false
}

// Equal returns whether s and s2 denote the same set of index points.
func (s Space) Equal(s2 Space) bool {
	if s.Rank() != s2.Rank() {
		return false
	}
	for axis, r := range s {
		if !r.Equal(s2[axis]) {
			return false
		}
	}
	return true
}

// ContainsSpace returns whether every index point of s2 is in s.
func (s Space) ContainsSpace(s2 Space) bool {
	if s.Rank() != s2.Rank() {
		return false
	}
	for axis, r := range s {
		if !r.ContainsRange(s2[axis]) {
			return false
		}
	}
	return true
}

// ContainsPoint returns whether the index point is in s.
func (s Space) ContainsPoint(point []int) bool {
	if len(point) != s.Rank() {
		return false
	}
	for axis, r := range s {
		if !r.Contains(point[axis]) {
			return false
		}
	}
	return true
}

// Intersect returns the index points common to s and s2, and whether the
// intersection is non-empty. Both spaces must have the same rank.
func (s Space) Intersect(s2 Space) (Space, bool) {
	if s.Rank() != s2.Rank() {
		exceptions.Panicf("Space.Intersect: rank mismatch, %s vs %s", s, s2)
	}
	out := make(Space, s.Rank())
	for axis, r := range s {
		intersection, ok := r.Intersect(s2[axis])
		if !ok {
			return nil, false
		}
		out[axis] = intersection
	}
	return out, true
}

// StorageSpace returns the dense 0-based space of storage coordinates
// backing s: one step-1 range of the same size per axis.
func (s Space) StorageSpace() Space {
	out := make(Space, s.Rank())
	for axis, r := range s {
		out[axis] = r.StorageRange()
	}
	return out
}

// Clone returns a copy of the space.
func (s Space) Clone() Space { return slices.Clone(s) }

// String implements fmt.Stringer.
func (s Space) String() string {
	parts := make([]string, s.Rank())
	for axis, r := range s {
		parts[axis] = r.String()
	}
	return "[" + strings.Join(parts, " x ") + "]"
}

// Subdivide returns the coarsest partition of the union of the given spaces
// that splits, on every axis, at every Start and End of every space. Every
// returned element is contained in one side of every original boundary, so
// it is either fully inside or fully outside each of the original spaces.
//
// All spaces must have the same rank and enumerate sub-progressions of a
// common grid. The result is ordered row-major over the per-axis cut
// intervals, which makes the partition deterministic.
func Subdivide(spaces []Space) []Space {
	if len(spaces) <= 1 {
		return slices.Clone(spaces)
	}
	rank := spaces[0].Rank()
	for _, s := range spaces {
		if s.Rank() != rank {
			exceptions.Panicf("shapes.Subdivide: rank mismatch, %s vs rank %d", s, rank)
		}
	}
	if rank == 0 {
		// All spaces are the scalar space; their union is a single element.
		return []Space{{}}
	}

	// Per-axis sorted unique cut points.
	cuts := make([][]int, rank)
	for axis := 0; axis < rank; axis++ {
		points := make([]int, 0, 2*len(spaces))
		for _, s := range spaces {
			points = append(points, s[axis].Start, s[axis].End)
		}
		slices.Sort(points)
		cuts[axis] = slices.Compact(points)
	}

	// Row-major sweep over the cells delimited by consecutive cut points.
	var out []Space
	cell := make([]int, rank) // Per-axis cut interval index.
	for {
		if fragment, ok := cellFragment(spaces, cuts, cell); ok {
			out = append(out, fragment)
		}
		axis := rank - 1
		for ; axis >= 0; axis-- {
			cell[axis]++
			if cell[axis] < len(cuts[axis])-1 {
				break
			}
			cell[axis] = 0
		}
		if axis < 0 {
			break
		}
	}
	return out
}

// cellFragment restricts the union of spaces to one cell of the cut grid.
// Since no space boundary crosses a cell, the restriction of each space to
// the cell is all-or-nothing; the first non-empty restriction is the
// fragment.
func cellFragment(spaces []Space, cuts [][]int, cell []int) (Space, bool) {
	rank := len(cell)
	for _, s := range spaces {
		fragment := make(Space, rank)
		ok := true
		for axis := 0; axis < rank && ok; axis++ {
			lo := cuts[axis][cell[axis]]
			hi := cuts[axis][cell[axis]+1]
			fragment[axis], ok = s[axis].Clip(lo, hi)
		}
		if ok {
			return fragment, true
		}
	}
	return nil, false
}
