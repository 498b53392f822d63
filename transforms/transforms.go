// Package transforms implements the affine index transformations attached to
// reshape nodes.
//
// A Transformation maps index points of one space (its domain) into another
// affinely, y = A·x + b, where the sparse integer matrix A has at most one
// non-zero entry per row. Each output coordinate is therefore either
// scale*x[axis] + offset for one domain axis, or a constant. This covers
// permutations, striding, slicing offsets, axis insertion and broadcasting,
// and is closed under composition.
//
// Throughout Lazarr transformations point in the "pull" direction: a reshape
// node's transformation maps the node's own index space into the index space
// of its input.
package transforms

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/lazarr/lazarr/types/shapes"
)

// Row is one output coordinate of a Transformation: scale*x[Input] + Offset,
// or the constant Offset when Input < 0.
type Row struct {
	Input  int // Domain axis read by this row, or -1 for a constant row.
	Scale  int
	Offset int
}

// Constant returns a row emitting the fixed coordinate c.
func Constant(c int) Row { return Row{Input: -1, Offset: c} }

// IsConstant returns whether the row ignores its input.
func (r Row) IsConstant() bool { return r.Input < 0 }

// IsIdentity returns whether the row is the identity on the given axis.
func (r Row) IsIdentity(axis int) bool {
	return r.Input == axis && r.Scale == 1 && r.Offset == 0
}

// String implements fmt.Stringer.
func (r Row) String() string {
	if r.IsConstant() {
		return fmt.Sprintf("%d", r.Offset)
	}
	return fmt.Sprintf("%d*x%d%+d", r.Scale, r.Input, r.Offset)
}

// Transformation is an affine map from a domain index space of rank InRank
// to an output space with one coordinate per row.
//
// Transformations are immutable once built.
type Transformation struct {
	inRank int
	rows   []Row
}

// New builds a Transformation with the given domain rank and output rows.
// Non-constant rows must reference a valid domain axis and have a non-zero
// scale.
func New(inRank int, rows ...Row) *Transformation {
	for i, row := range rows {
		if row.IsConstant() {
			continue
		}
		if row.Input >= inRank {
			exceptions.Panicf("transforms.New: row %d references axis %d, domain rank is %d", i, row.Input, inRank)
		}
		if row.Scale == 0 {
			exceptions.Panicf("transforms.New: row %d has zero scale but reads axis %d", i, row.Input)
		}
	}
	return &Transformation{inRank: inRank, rows: rows}
}

// Identity returns the identity transformation of the given rank.
func Identity(rank int) *Transformation {
	rows := make([]Row, rank)
	for axis := range rows {
		rows[axis] = Row{Input: axis, Scale: 1}
	}
	return &Transformation{inRank: rank, rows: rows}
}

// Translate returns the rank-preserving transformation adding the given
// offset per axis.
func Translate(offsets ...int) *Transformation {
	rows := make([]Row, len(offsets))
	for axis, offset := range offsets {
		rows[axis] = Row{Input: axis, Scale: 1, Offset: offset}
	}
	return &Transformation{inRank: len(offsets), rows: rows}
}

// InRank returns the domain rank.
func (t *Transformation) InRank() int { return t.inRank }

// OutRank returns the output rank.
func (t *Transformation) OutRank() int { return len(t.rows) }

// Rows returns the output rows. The caller must not modify them.
func (t *Transformation) Rows() []Row { return t.rows }

// IsIdentity returns whether t maps every point to itself.
func (t *Transformation) IsIdentity() bool {
	if t.OutRank() != t.inRank {
		return false
	}
	for axis, row := range t.rows {
		if !row.IsIdentity(axis) {
			return false
		}
	}
	return true
}

// Apply maps one domain index point.
func (t *Transformation) Apply(point []int) []int {
	if len(point) != t.inRank {
		exceptions.Panicf("Transformation.Apply: point has rank %d, domain rank is %d", len(point), t.inRank)
	}
	out := make([]int, t.OutRank())
	for i, row := range t.rows {
		if row.IsConstant() {
			out[i] = row.Offset
			continue
		}
		out[i] = row.Scale*point[row.Input] + row.Offset
	}
	return out
}

// ApplySpace maps a rectangular domain space to its rectangular image.
func (t *Transformation) ApplySpace(space shapes.Space) shapes.Space {
	if space.Rank() != t.inRank {
		exceptions.Panicf("Transformation.ApplySpace: space %s has rank %d, domain rank is %d",
			space, space.Rank(), t.inRank)
	}
	out := make(shapes.Space, t.OutRank())
	for i, row := range t.rows {
		if row.IsConstant() {
			out[i] = shapes.MakeRange(row.Offset, row.Offset+1)
			continue
		}
		r := space[row.Input]
		if r.Empty() {
			out[i] = shapes.MakeRange(row.Offset, row.Offset)
			continue
		}
		lo := row.Scale*r.Start + row.Offset
		hi := row.Scale*r.Last() + row.Offset
		if lo > hi {
			lo, hi = hi, lo
		}
		step := row.Scale * r.Step
		if step < 0 {
			step = -step
		}
		if step == 0 {
			step = 1
		}
		out[i] = shapes.MakeRangeStride(lo, hi+1, step)
	}
	return out
}

// Preimage returns the sub-space of domain whose image under t lies in
// image. Domain axes not referenced by any row are left unconstrained (they
// keep their range from domain).
func (t *Transformation) Preimage(image, domain shapes.Space) (shapes.Space, bool) {
	if image.Rank() != t.OutRank() || domain.Rank() != t.inRank {
		exceptions.Panicf("Transformation.Preimage: image rank %d (want %d) or domain rank %d (want %d) mismatch",
			image.Rank(), t.OutRank(), domain.Rank(), t.inRank)
	}
	out := domain.Clone()
	for i, row := range t.rows {
		r := image[i]
		if row.IsConstant() {
			if !r.Contains(row.Offset) {
				return nil, false
			}
			continue
		}
		inverse, ok := inverseRange(r, row)
		if !ok {
			return nil, false
		}
		intersection, ok := out[row.Input].Intersect(inverse)
		if !ok {
			return nil, false
		}
		out[row.Input] = intersection
	}
	return out, true
}

// inverseRange solves scale*x + offset ∈ r for x. All elements of r are
// assumed to lie on the row's image grid, which holds for ranges produced by
// ApplySpace and their sub-ranges.
func inverseRange(r shapes.Range, row Row) (shapes.Range, bool) {
	if r.Empty() {
		return shapes.Range{}, false
	}
	first := r.Start - row.Offset
	last := r.Last() - row.Offset
	if first%row.Scale != 0 || last%row.Scale != 0 {
		return shapes.Range{}, false
	}
	first /= row.Scale
	last /= row.Scale
	if first > last {
		first, last = last, first
	}
	step := r.Step / abs(row.Scale)
	if step == 0 {
		step = 1
	}
	return shapes.MakeRangeStride(first, last+1, step), true
}

// Compose returns f ∘ g: the transformation applying g first, then f.
// g's output rank must equal f's domain rank.
func Compose(f, g *Transformation) *Transformation {
	if g.OutRank() != f.inRank {
		exceptions.Panicf("transforms.Compose: g has output rank %d, f has domain rank %d", g.OutRank(), f.inRank)
	}
	rows := make([]Row, f.OutRank())
	for i, fRow := range f.rows {
		if fRow.IsConstant() {
			rows[i] = fRow
			continue
		}
		gRow := g.rows[fRow.Input]
		if gRow.IsConstant() {
			rows[i] = Constant(fRow.Scale*gRow.Offset + fRow.Offset)
			continue
		}
		rows[i] = Row{
			Input:  gRow.Input,
			Scale:  fRow.Scale * gRow.Scale,
			Offset: fRow.Scale*gRow.Offset + fRow.Offset,
		}
	}
	return &Transformation{inRank: g.inRank, rows: rows}
}

// Injective returns whether t is injective as a map on index points: no two
// domain points share an image. With at most one non-zero entry per row this
// holds exactly when every domain axis is read by at least one row.
//
// The test ignores axis sizes on purpose: a transformation that drops an
// axis is treated as non-injective even if that axis happens to have size 1.
func (t *Transformation) Injective() bool {
	read := make([]bool, t.inRank)
	for _, row := range t.rows {
		if !row.IsConstant() {
			read[row.Input] = true
		}
	}
	for _, ok := range read {
		if !ok {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (t *Transformation) String() string {
	parts := make([]string, t.OutRank())
	for i, row := range t.rows {
		parts[i] = row.String()
	}
	return fmt.Sprintf("(x0..x%d) -> (%s)", t.inRank-1, strings.Join(parts, ", "))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
