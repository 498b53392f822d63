// Package ntypes defines NType, the numeric type descriptor attached to every
// lazy array: the element DType plus an optional refinement narrowing the set
// of values the array may hold.
//
// DTypes come from github.com/gomlx/gopjrt/dtypes, the same enumeration used
// by tensor storage, so a backend can consume NTypes without translation.
//
// Operators carry specialized result-type rules for common dtype
// combinations. When no specialized rule applies, type inference aborts the
// specialization (see SpecializationAbort) and the caller falls back to the
// generic Union of the input ntypes. The abort is always handled locally and
// never surfaces to users of the dag package.
package ntypes

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Refinement narrows the set of values an array of a given DType may hold.
// It never changes storage layout, only what type inference may assume.
type Refinement int

const (
	// None is the unrefined default.
	None Refinement = iota

	// NonNegative marks arrays whose elements are known to be >= 0.
	NonNegative

	// Index marks arrays holding indices into some axis, implying NonNegative
	// and bounded by the axis size.
	Index
)

// String implements fmt.Stringer.
func (r Refinement) String() string {
	switch r {
	case None:
		return "none"
	case NonNegative:
		return "non-negative"
	case Index:
		return "index"
	}
	return fmt.Sprintf("refinement(%d)", int(r))
}

// NType is the numeric type of the elements of a lazy array.
type NType struct {
	DType      dtypes.DType
	Refinement Refinement
}

// FromDType returns the unrefined NType for dtype.
func FromDType(dtype dtypes.DType) NType {
	return NType{DType: dtype}
}

// Ok returns whether this is a valid NType.
func (n NType) Ok() bool { return n.DType != dtypes.InvalidDType }

// String implements fmt.Stringer.
func (n NType) String() string {
	if n.Refinement == None {
		return n.DType.String()
	}
	return fmt.Sprintf("%s[%s]", n.DType, n.Refinement)
}

// Equal compares dtype and refinement.
func (n NType) Equal(n2 NType) bool { return n == n2 }

// promotionRank orders dtypes for Union: within a class, wider wins; across
// classes complex > float > int > bool.
func promotionRank(dtype dtypes.DType) int {
	rank := int(dtype.Size()) * 4
	switch {
	case dtype.IsComplex():
		rank += 3 << 8
	case dtype.IsFloat():
		rank += 2 << 8
	case dtype.IsInt():
		rank += 1 << 8
		if !dtype.IsUnsigned() {
			rank++ // Signed wins ties against unsigned of the same width.
		}
	}
	return rank
}

// Union returns the most general ntype covering both a and b.
// It is the fallback result type when no specialized operator rule applies.
func Union(a, b NType) NType {
	if !a.Ok() || !b.Ok() {
		exceptions.Panicf("ntypes.Union(%s, %s): invalid ntype", a, b)
	}
	out := a
	if promotionRank(b.DType) > promotionRank(a.DType) {
		out.DType = b.DType
	}
	// Refinements only survive when both sides agree.
	if a.Refinement != b.Refinement {
		out.Refinement = None
	}
	return out
}

// UnionAll folds Union over one or more ntypes.
func UnionAll(first NType, rest ...NType) NType {
	out := first
	for _, n := range rest {
		out = Union(out, n)
	}
	return out
}

// SpecializationAbort is thrown (as a panic) when a specialized operator
// result-type path cannot be selected for a combination of input ntypes.
// Callers recover it locally (exceptions.TryCatch) and use Union instead; it is
// never surfaced.
type SpecializationAbort struct {
	Op     string
	Inputs []NType
}

// Error implements the error interface.
func (e SpecializationAbort) Error() string {
	return fmt.Sprintf("no specialized path for operator %q on %v", e.Op, e.Inputs)
}

// AbortSpecialization throws a SpecializationAbort.
func AbortSpecialization(op string, inputs ...NType) {
	panic(SpecializationAbort{Op: op, Inputs: inputs})
}
