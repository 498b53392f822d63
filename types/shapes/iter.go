package shapes

import "iter"

// Iter iterates over all index points of the space, row-major (the last axis
// changes fastest).
// To avoid allocating the slice of indices, the yielded point is owned by the
// Iter() method: don't change or retain it inside the loop.
func (s Space) Iter() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		rank := s.Rank()
		if rank == 0 {
			// Valid scalar: yield one empty index point.
			_ = yield(make([]int, 0))
			return
		}
		if s.Empty() {
			return
		}

		point := make([]int, rank)
		for axis, r := range s {
			point[axis] = r.Start
		}
		for {
			if !yield(point) {
				return // Consumer requested to stop iteration.
			}

			// Increment point to the next index, carrying over exhausted axes.
			axis := rank - 1
			for ; axis >= 0; axis-- {
				point[axis] += s[axis].Step
				if point[axis] < s[axis].End {
					break
				}
				point[axis] = s[axis].Start
			}
			if axis < 0 {
				break
			}
		}
	}
}
