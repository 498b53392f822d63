package kernelize

import (
	"github.com/gomlx/exceptions"

	"github.com/lazarr/lazarr/dag"
	"github.com/lazarr/lazarr/terms"
	"github.com/lazarr/lazarr/transforms"
	"github.com/lazarr/lazarr/types/shapes"
)

// Blueprint construction: compose the interned term describing one kernel's
// loop nest, index expressions, operator calls and store.
//
// Blueprints only speak storage coordinates: loop axes sweep the kernel's
// storage ranges and every Reference maps loop axes to 0-based storage
// coordinates of the target or a source. Two kernels differing only by
// absolute index offsets therefore intern the same blueprint.

// buildBlueprint emits the blueprint for one kernel of root over the given
// iteration space, with the ranges and sources already collected.
func (l *lowerer) buildBlueprint(root *dag.Node, space shapes.Space, c *collection) *terms.UTerm {
	pool := l.pool
	d := root.Rank()

	// Every loop axis sweeps a dense counter over its range in c.ranges; the
	// range's start and step surface as offset and multiplier in the index
	// triples. xform maps loop counters to root index coordinates and is
	// rewritten towards each leaf's coordinates during the descent.
	rows := make([]transforms.Row, d)
	storeTriples := make([]*terms.UTerm, d)
	for axis, r := range root.Space() {
		sub := c.ranges[axis]
		rows[axis] = transforms.Row{
			Input:  axis,
			Scale:  r.Step * sub.Step,
			Offset: r.Start + r.Step*sub.Start,
		}
		storeTriples[axis] = pool.IndexTriple(axis, sub.Step, sub.Start)
	}
	xform := transforms.New(len(c.ranges), rows...)

	nextReduction := d
	body := l.express(c, root, root, space, xform, &nextReduction)

	// Loop nest over the target axes; reduction axes are swept by their
	// Reduce terms.
	expression := pool.Store(pool.Reference(0, storeTriples...), body)
	for axis := d - 1; axis >= 0; axis-- {
		expression = pool.For(axis, expression)
	}

	rangeTriples := make([]*terms.UTerm, len(c.ranges))
	for i, r := range c.ranges {
		rangeTriples[i] = pool.RangeTriple(r.Size(), r.Step)
	}
	storageTypes := make([]terms.Atom, 1+len(c.sources))
	storageTypes[0] = root.NType().DType
	for i, source := range c.sources {
		storageTypes[i+1] = source.NType().DType
	}
	return pool.Blueprint(pool.RangeInfo(rangeTriples...), pool.StorageInfo(storageTypes...), expression)
}

// express produces the expression term for n. relevant and xform follow the
// same descent as the collector, so reduction axes are numbered in the same
// encounter order that extended c.ranges.
func (l *lowerer) express(c *collection, root, n *dag.Node, relevant shapes.Space, xform *transforms.Transformation, nextReduction *int) *terms.UTerm {
	if leaf := l.leafOf(root, n); leaf != nil {
		return l.reference(c, leaf, xform)
	}
	pool := l.pool
	switch n.Kind() {
	case dag.KindMap:
		args := make([]*terms.UTerm, len(n.Inputs()))
		for i, input := range n.Inputs() {
			args[i] = l.express(c, root, input, relevant, xform, nextReduction)
		}
		return pool.Call(n.Op().Symbol(), args...)

	case dag.KindMultiValueRef:
		multi := n.Inputs()[0]
		args := make([]*terms.UTerm, len(multi.Inputs()))
		for i, input := range multi.Inputs() {
			args[i] = l.express(c, root, input, relevant, xform, nextReduction)
		}
		// The selected value is part of the operator identity.
		operator := pool.List(multi.Op().Symbol(), n.ValueIndex())
		return pool.Call(operator, args...)

	case dag.KindReduction:
		axis := *nextReduction
		*nextReduction++
		input := n.Inputs()[0]
		reduced := input.Space()[0]
		// The new loop axis sweeps the reduced range's storage coordinates;
		// prepend its row, the input's leading axis.
		rows := make([]transforms.Row, 0, input.Rank())
		rows = append(rows, transforms.Row{Input: axis, Scale: reduced.Step, Offset: reduced.Start})
		rows = append(rows, xform.Rows()...)
		extendedXform := transforms.New(xform.InRank(), rows...)
		extendedRelevant := append(shapes.Space{reduced}, relevant...)
		body := l.express(c, root, input, extendedRelevant, extendedXform, nextReduction)
		op := n.Op()
		if reduced.Empty() {
			if op.Identity == nil {
				exceptions.Panicf("kernelize: empty reduction over %q, which has no identity element", op.Name)
			}
			return pool.Accumulate(axis, op.Symbol(), *op.Identity, body)
		}
		return pool.Reduce(axis, op.Symbol(), body)

	case dag.KindFuse:
		return l.express(c, root, l.fusePick(n, relevant), relevant, xform, nextReduction)

	case dag.KindReshape:
		t := n.Transformation()
		return l.express(c, root, n.Inputs()[0], t.ApplySpace(relevant), transforms.Compose(t, xform), nextReduction)
	}
	exceptions.Panicf("kernelize: cannot express %s", n)
	return nil
}

// reference emits the Reference term reading leaf at the storage coordinates
// selected by xform, which maps loop axes to the leaf's index coordinates.
// One triple per leaf storage axis, in axis order.
func (l *lowerer) reference(c *collection, leaf *dag.Node, xform *transforms.Transformation) *terms.UTerm {
	pool := l.pool
	triples := make([]*terms.UTerm, leaf.Rank())
	for axis, row := range xform.Rows() {
		storage := leaf.Space()[axis]
		if row.IsConstant() {
			triples[axis] = pool.IndexTriple(0, 0, storage.StorageIndex(row.Offset))
			continue
		}
		// Leaf index = Scale*loop + Offset; its storage coordinate is
		// (index - Start) / Step, which must stay integral over the swept
		// loop values.
		if row.Scale%storage.Step != 0 || (row.Offset-storage.Start)%storage.Step != 0 {
			exceptions.Panicf("kernelize: index map %s is not aligned with storage range %s of %s",
				row, storage, leaf)
		}
		triples[axis] = pool.IndexTriple(row.Input, row.Scale/storage.Step, (row.Offset-storage.Start)/storage.Step)
	}
	return pool.Reference(c.sourceIndex(leaf)+1, triples...)
}
