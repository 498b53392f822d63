package kernelize

import (
	"github.com/gomlx/exceptions"

	"github.com/lazarr/lazarr/dag"
	"github.com/lazarr/lazarr/terms"
	"github.com/lazarr/lazarr/transforms"
	"github.com/lazarr/lazarr/types/shapes"
)

// Iteration-space partitioning: for one critical subtree, split the root's
// index space into disjoint, fusion-free subspaces. Within each subspace the
// walk from root to leaves selects a unique input at every fusion, so each
// subspace lowers to one kernel.

// lowerer carries the per-invocation lowering state shared by the
// partitioner, collector and blueprint builder.
type lowerer struct {
	pool     *terms.Pool
	selected *selector
}

// leafOf returns the materialized immediate to read in place of n, or nil
// when n fuses into the current kernel. root itself is never a leaf of its
// own subtree.
func (l *lowerer) leafOf(root, n *dag.Node) *dag.Node {
	if n == root {
		return nil
	}
	return l.selected.table[n]
}

// iterationSpaces returns the fusion-free subspaces of the subtree at n
// covering the preimage of relevant in root coordinates, or found=false when
// no fusion occurs below n (the caller then decides the partition).
//
// relevant is the subset of n's index space the caller is interested in;
// xform maps root coordinates to n's coordinates.
func (l *lowerer) iterationSpaces(root, n *dag.Node, relevant shapes.Space, xform *transforms.Transformation) (spaces []shapes.Space, found bool) {
	if l.leafOf(root, n) != nil {
		return nil, false
	}
	switch n.Kind() {
	case dag.KindImmediate:
		// Immediates are always in the critical table; leafOf caught them.
		exceptions.Panicf("kernelize: unregistered immediate %s", n)
		return nil, false

	case dag.KindFuse:
		for _, input := range n.Inputs() {
			intersection, ok := input.Space().Intersect(relevant)
			if !ok {
				continue
			}
			sub, subFound := l.iterationSpaces(root, input, intersection, xform)
			if !subFound {
				// Fusion boundary: the input has no deeper fusion, so the
				// preimage of the intersection is one subspace.
				preimage, ok := xform.Preimage(intersection, root.Space())
				if !ok {
					exceptions.Panicf("kernelize: fusion piece %s of %s has an empty preimage in %s",
						intersection, n, root)
				}
				spaces = append(spaces, preimage)
				continue
			}
			spaces = append(spaces, sub...)
		}
		return spaces, true

	case dag.KindReshape:
		t := n.Transformation()
		return l.iterationSpaces(root, n.Inputs()[0], t.ApplySpace(relevant), transforms.Compose(t, xform))

	case dag.KindReduction:
		// The selector materializes fusing reduction inputs, so there is
		// nothing to partition below.
		if input := n.Inputs()[0]; l.leafOf(root, input) == nil && l.selected.fusing(input) {
			exceptions.Panicf("kernelize: reduction %s kept a fusing input", n)
		}
		return nil, false

	case dag.KindMultiValueRef:
		return l.iterationSpaces(root, n.Inputs()[0], relevant, xform)

	case dag.KindMap, dag.KindMultiValueMap:
		fusingInputs := 0
		for _, input := range n.Inputs() {
			sub, subFound := l.iterationSpaces(root, input, relevant, xform)
			if !subFound {
				continue
			}
			fusingInputs++
			spaces = append(spaces, sub...)
		}
		if fusingInputs == 0 {
			return nil, false
		}
		if fusingInputs > 1 {
			// Independent partitions of the same region: refine to the
			// coarsest common one.
			spaces = shapes.Subdivide(spaces)
		}
		return spaces, true
	}
	exceptions.Panicf("kernelize: invalid node kind %s", n.Kind())
	return nil, false
}

// partition returns the kernel iteration spaces of the critical subtree at
// root: disjoint subspaces whose union is the root's index space.
func (l *lowerer) partition(root *dag.Node) []shapes.Space {
	spaces, found := l.iterationSpaces(root, root, root.Space(), transforms.Identity(root.Rank()))
	if !found {
		return []shapes.Space{root.Space()}
	}
	return spaces
}
