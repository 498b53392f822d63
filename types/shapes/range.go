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

package shapes

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Range is one axis of an index space: the arithmetic progression
// {Start, Start+Step, Start+2*Step, ...} of indices strictly below End.
//
// Ranges are always kept normalized with Step > 0; use MakeRangeStride with a
// negative step and the constructor normalizes it to the ascending
// progression over the same set of indices.
type Range struct {
	Start, End, Step int
}

// MakeRange returns the dense range [start, end) with step 1.
func MakeRange(start, end int) Range {
	return Range{Start: start, End: end, Step: 1}
}

// MakeRangeStride returns the range [start, end) with the given step.
// A step of 0 is invalid and panics. A negative step enumerates downwards
// from start to end (exclusive); the result is normalized to ascending order.
func MakeRangeStride(start, end, step int) Range {
	if step == 0 {
		exceptions.Panicf("shapes.MakeRangeStride(%d, %d, 0): step must not be zero", start, end)
	}
	if step > 0 {
		return Range{Start: start, End: end, Step: step}
	}
	// Descending progression start, start+step, ... > end. Normalize.
	step = -step
	size := 0
	if start > end {
		size = (start - end + step - 1) / step
	}
	if size == 0 {
		return Range{Start: start, End: start, Step: step}
	}
	lo := start - (size-1)*step
	return Range{Start: lo, End: start + 1, Step: step}
}

// Size returns the number of indices in the range.
func (r Range) Size() int {
	if r.End <= r.Start {
		return 0
	}
	return (r.End - r.Start + r.Step - 1) / r.Step
}

// Empty returns whether the range holds no indices.
func (r Range) Empty() bool { return r.Size() == 0 }

// Last returns the largest index in the range. It panics on an empty range.
func (r Range) Last() int {
	if r.Empty() {
		exceptions.Panicf("Range%s.Last() on an empty range", r)
	}
	return r.Start + (r.Size()-1)*r.Step
}

// Contains returns whether index i is one of the range's indices.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End && (i-r.Start)%r.Step == 0
}

// ContainsRange returns whether every index of r2 is an index of r.
func (r Range) ContainsRange(r2 Range) bool {
	if r2.Empty() {
		return true
	}
	if !r.Contains(r2.Start) || !r.Contains(r2.Last()) {
		return false
	}
	return r2.Size() <= 1 || r2.Step%r.Step == 0
}

// Equal returns whether r and r2 denote the same set of indices.
func (r Range) Equal(r2 Range) bool {
	size := r.Size()
	if size != r2.Size() {
		return false
	}
	if size == 0 {
		return true
	}
	if r.Start != r2.Start {
		return false
	}
	return size == 1 || r.Step == r2.Step
}

// StorageIndex maps index i of the range to its 0-based storage coordinate.
func (r Range) StorageIndex(i int) int {
	return (i - r.Start) / r.Step
}

// StorageRange returns the 0-based, step-1 range of storage coordinates
// backing r.
func (r Range) StorageRange() Range {
	return MakeRange(0, r.Size())
}

// String implements fmt.Stringer, printing "start:end" or "start:end:step".
func (r Range) String() string {
	if r.Step == 1 {
		return fmt.Sprintf("%d:%d", r.Start, r.End)
	}
	return fmt.Sprintf("%d:%d:%d", r.Start, r.End, r.Step)
}

// gcd returns the greatest common divisor of a and b, and the Bézout
// coefficient x with a*x ≡ gcd (mod b). Both a and b must be positive.
func gcd(a, b int) (g, x int) {
	// Iterative extended Euclid, tracking only the coefficient of a.
	x0, x1 := 1, 0
	for b != 0 {
		q := a / b
		a, b = b, a-q*b
		x0, x1 = x1, x0-q*x1
	}
	return a, x0
}

// Intersect returns the range of indices common to r and r2 and whether it
// is non-empty. The intersection of two arithmetic progressions is itself an
// arithmetic progression with the combined (lcm) step, found by solving the
// pair of congruences index ≡ Start (mod Step).
func (r Range) Intersect(r2 Range) (Range, bool) {
	end := min(r.End, r2.End)
	g, bezout := gcd(r.Step, r2.Step)
	delta := r2.Start - r.Start
	if delta%g != 0 {
		return Range{}, false
	}
	step := r.Step / g * r2.Step // lcm
	// Smallest solution of x ≡ r.Start (mod r.Step), x ≡ r2.Start (mod r2.Step).
	m := r2.Step / g
	k := (delta / g * bezout) % m
	if k < 0 {
		k += m
	}
	x := r.Start + k*r.Step
	// Raise x to the first element >= both starts.
	lo := max(r.Start, r2.Start)
	if x < lo {
		x += (lo - x + step - 1) / step * step
	}
	if x >= end {
		return Range{}, false
	}
	return Range{Start: x, End: end, Step: step}, true
}

// Clip returns the sub-progression of r restricted to the interval [lo, hi).
func (r Range) Clip(lo, hi int) (Range, bool) {
	start := r.Start
	if lo > start {
		start += (lo - start + r.Step - 1) / r.Step * r.Step
	}
	end := min(r.End, hi)
	if start >= end {
		return Range{}, false
	}
	return Range{Start: start, End: end, Step: r.Step}, true
}
