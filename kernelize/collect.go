package kernelize

import (
	"github.com/gomlx/exceptions"

	"github.com/lazarr/lazarr/dag"
	"github.com/lazarr/lazarr/types"
	"github.com/lazarr/lazarr/types/shapes"
)

// Source/range collection: per (subtree, iteration space), enumerate the
// leaf immediates the kernel reads and the storage ranges it sweeps.

// collection accumulates one kernel's sources and swept ranges.
type collection struct {
	// ranges are the target's storage ranges for the iteration space,
	// extended by one reduction storage range per reduction encountered, in
	// encounter order.
	ranges shapes.Space

	// sources in order of first use, deduplicated by identity.
	sources   []*dag.Node
	sourceSet types.Set[*dag.Node]
}

func (c *collection) addSource(leaf *dag.Node) {
	if c.sourceSet.Has(leaf) {
		return
	}
	c.sourceSet.Insert(leaf)
	c.sources = append(c.sources, leaf)
}

func (c *collection) sourceIndex(leaf *dag.Node) int {
	for i, source := range c.sources {
		if source == leaf {
			return i
		}
	}
	exceptions.Panicf("kernelize: %s referenced but not collected as a source", leaf)
	return -1
}

// targetStorageRanges maps an iteration subspace to the target's storage
// coordinates: per axis, the range of storage indices the subspace touches.
func targetStorageRanges(target shapes.Space, subspace shapes.Space) shapes.Space {
	ranges := make(shapes.Space, len(target))
	for axis, t := range target {
		sub := subspace[axis]
		if !t.ContainsRange(sub) {
			exceptions.Panicf("kernelize: iteration range %s escapes target range %s", sub, t)
		}
		start := t.StorageIndex(sub.Start)
		step := sub.Step / t.Step
		end := t.StorageIndex(sub.Last()) + 1
		ranges[axis] = shapes.MakeRangeStride(start, end, step)
	}
	return ranges
}

// collect walks the subtree at root for one iteration space, producing the
// kernel's swept ranges and source list.
func (l *lowerer) collect(root *dag.Node, space shapes.Space) *collection {
	c := &collection{
		ranges:    targetStorageRanges(root.Space(), space),
		sourceSet: types.MakeSet[*dag.Node](),
	}
	l.collectNode(c, root, root, space)
	return c
}

func (l *lowerer) collectNode(c *collection, root, n *dag.Node, relevant shapes.Space) {
	if leaf := l.leafOf(root, n); leaf != nil {
		c.addSource(leaf)
		return
	}
	switch n.Kind() {
	case dag.KindMap, dag.KindMultiValueMap:
		for _, input := range n.Inputs() {
			l.collectNode(c, root, input, relevant)
		}

	case dag.KindMultiValueRef:
		l.collectNode(c, root, n.Inputs()[0], relevant)

	case dag.KindReduction:
		input := n.Inputs()[0]
		reduced := input.Space()[0]
		c.ranges = append(c.ranges, reduced.StorageRange())
		extended := append(shapes.Space{reduced}, relevant...)
		l.collectNode(c, root, input, extended)

	case dag.KindFuse:
		l.collectNode(c, root, l.fusePick(n, relevant), relevant)

	case dag.KindReshape:
		l.collectNode(c, root, n.Inputs()[0], n.Transformation().ApplySpace(relevant))

	default:
		exceptions.Panicf("kernelize: cannot collect through %s", n)
	}
}

// fusePick returns the unique fuse input whose index space contains
// relevant. The iteration space being fusion-free guarantees existence and
// uniqueness.
func (l *lowerer) fusePick(n *dag.Node, relevant shapes.Space) *dag.Node {
	for _, input := range n.Inputs() {
		if input.Space().ContainsSpace(relevant) {
			return input
		}
	}
	exceptions.Panicf("kernelize: iteration space %s crosses the pieces of %s", relevant, n)
	return nil
}
