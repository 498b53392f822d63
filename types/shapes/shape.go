/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package shapes defines Range, Space and Shape, the index-space types of
// Lazarr.
//
// A Range is an arithmetic progression of integer indices; a Space is the
// cartesian product of one Range per axis; a Shape is a Space together with
// the NType of the elements. Shapes describe both lazy array nodes (see the
// dag package) and the iteration spaces swept by kernels (see kernelize).
//
// ## Glossary
//
//   - Rank: number of axes of a space or shape.
//   - Axis: the position of one range in a space, 0-based.
//   - Index space: the set of index points of a node, the product of its
//     ranges. Unlike dense 0-based dimensions, ranges may start anywhere and
//     may be strided.
//   - Storage coordinates: the dense 0-based coordinates an index space maps
//     to when materialized, one contiguous axis per range.
package shapes

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/lazarr/lazarr/types/ntypes"
)

// Shape is the index space of a lazy array together with its element ntype.
//
// Use Make (or MakeDims) to create one. Shape is a value type: modifying a
// copy does not affect the original, except for the shared Ranges backing
// array -- use Clone for a deep copy.
type Shape struct {
	NType  ntypes.NType
	Ranges Space
}

// Make returns a Shape over the given ranges.
func Make(ntype ntypes.NType, ranges ...Range) Shape {
	if !ntype.Ok() {
		exceptions.Panicf("shapes.Make: invalid ntype")
	}
	return Shape{NType: ntype, Ranges: MakeSpace(ranges...)}
}

// MakeDims returns a dense 0-based Shape with the given dimensions.
func MakeDims(ntype ntypes.NType, dims ...int) Shape {
	if !ntype.Ok() {
		exceptions.Panicf("shapes.MakeDims: invalid ntype")
	}
	return Shape{NType: ntype, Ranges: MakeSpaceDims(dims...)}
}

// Ok returns whether this is a valid Shape. The zero Shape{} is invalid.
func (s Shape) Ok() bool { return s.NType.Ok() }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return s.Ranges.Rank() }

// IsScalar returns whether the shape represents a scalar (rank 0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Size returns the number of elements, the product of the axis sizes.
func (s Shape) Size() int { return s.Ranges.Size() }

// Dim returns the size of the given axis. Negative axes count from the end,
// so axis=-1 refers to the last axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Ranges[adjustedAxis].Size()
}

// Shape returns a shallow copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// Equal compares two shapes for equality: ntype and index spaces are compared.
func (s Shape) Equal(s2 Shape) bool {
	return s.NType.Equal(s2.NType) && s.Ranges.Equal(s2.Ranges)
}

// EqualSpace compares the index spaces only; ntypes can differ.
func (s Shape) EqualSpace(s2 Shape) bool {
	return s.Ranges.Equal(s2.Ranges)
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{NType: s.NType, Ranges: s.Ranges.Clone()}
}

// String implements fmt.Stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.NType)
	}
	return fmt.Sprintf("(%s)%s", s.NType, s.Ranges)
}

// HasShape is the interface of values with an associated Shape.
type HasShape interface {
	Shape() Shape
}
