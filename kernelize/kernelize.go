// Package kernelize lowers a DAG of lazy array expressions into kernels.
//
// Lowering runs in two passes over the roots-reachable subgraph. The first
// selects the critical nodes -- those that will be materialized as
// immediates -- and creates a fresh target immediate for each. The second
// partitions every critical subtree's index space into disjoint, fusion-free
// rectangular subspaces and emits one Kernel per subspace: the swept storage
// ranges, the leaf immediates read, and a hash-consed blueprint term
// describing the loop nest (see the terms package).
//
// The pass is deterministic: graphs that are equal up to absolute index
// offsets lower to identity-equal blueprints, which is what makes blueprints
// usable as code-generation cache keys. Lowering is synchronous, CPU-bound
// and single-threaded per invocation; all intermediate state is scoped to
// the call. Only the term pool outlives it.
package kernelize

import (
	"cmp"
	"slices"

	"k8s.io/klog/v2"

	"github.com/lazarr/lazarr/dag"
	"github.com/lazarr/lazarr/terms"
)

// Lower lowers the given roots, interning blueprints in the process-wide
// term pool. It returns the lowered Program; an empty roots list yields an
// empty Program and leaves the pool untouched.
//
// Roots must be array-valued (lower MultiValueRef selections, not the
// multi-valued node itself). Graph inconsistencies -- cycles, shape
// mismatches smuggled past the dag constructors -- are programmer errors
// and panic.
func Lower(roots ...*dag.Node) *Program {
	return LowerInto(terms.Default(), roots...)
}

// LowerInto is Lower with an explicit term pool. Backends comparing
// blueprints by identity must lower everything they compare into one pool.
func LowerInto(pool *terms.Pool, roots ...*dag.Node) *Program {
	program := &Program{kernels: make(map[*dag.Node][]*Kernel)}
	if len(roots) == 0 {
		return program
	}

	selected := selectCriticalNodes(roots)
	l := &lowerer{pool: pool, selected: selected}

	// Emit kernels per critical node, smallest depth first: a kernel only
	// reads criticals of strictly smaller depth than its own root, so this
	// fills every target after the targets it reads.
	ordered := slices.Clone(selected.order)
	slices.SortStableFunc(ordered, func(a, b *dag.Node) int {
		return cmp.Compare(a.Depth(), b.Depth())
	})
	for _, node := range ordered {
		target := selected.table[node]
		program.targets = append(program.targets, target)
		for _, space := range l.partition(node) {
			c := l.collect(node, space)
			kernel := &Kernel{
				Target:    target,
				Ranges:    c.ranges,
				Sources:   c.sources,
				Blueprint: l.buildBlueprint(node, space, c),
			}
			program.kernels[target] = append(program.kernels[target], kernel)
		}
		if klog.V(2).Enabled() {
			klog.Infof("kernelize: %s lowered to %d kernel(s)", node, len(program.kernels[target]))
		}
	}

	program.roots = make([]*dag.Node, len(roots))
	for i, root := range roots {
		program.roots[i] = selected.table[root]
	}
	if klog.V(1).Enabled() {
		klog.Infof("kernelize: %d root(s), %d target(s), pool now holds %d terms",
			len(roots), len(program.targets), pool.NodeCount())
	}
	return program
}
