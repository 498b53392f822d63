package kernelize

import (
	"github.com/gomlx/exceptions"

	"github.com/lazarr/lazarr/dag"
	"github.com/lazarr/lazarr/types"
)

// Critical-node selection: decide which DAG nodes get materialized.
//
// A node is critical when it is an immediate, a root, referenced by two or
// more edges of the roots-reachable subgraph, the input of a broadcasting
// reshape, the input of a reduction whose subtree fuses, or one of two or
// more reduction-bearing inputs of the same node. Every critical
// non-immediate gets a fresh unallocated immediate of the same shape -- the
// target its kernels will fill.

// selector carries the state of the two-phase selection DFS.
type selector struct {
	refcounts map[*dag.Node]int

	// table maps every critical node to its corresponding immediate:
	// immediates map to themselves, other critical nodes to a fresh target.
	table map[*dag.Node]*dag.Node

	// order lists the non-immediate critical nodes in registration order
	// (parents before the critical nodes of their subtrees).
	order []*dag.Node

	// traversed guards against re-walking shared multi-valued subtrees.
	traversed types.Set[*dag.Node]

	bearingMemo map[*dag.Node]bool
	fusingMemo  map[*dag.Node]bool
}

// selectCriticalNodes runs both phases over the roots.
func selectCriticalNodes(roots []*dag.Node) *selector {
	s := &selector{
		refcounts:   make(map[*dag.Node]int),
		table:       make(map[*dag.Node]*dag.Node),
		traversed:   types.MakeSet[*dag.Node](),
		bearingMemo: make(map[*dag.Node]bool),
		fusingMemo:  make(map[*dag.Node]bool),
	}
	// Phase A: per-node edge counts over the roots-reachable subgraph.
	seen := types.MakeSet[*dag.Node]()
	var countRefs func(n *dag.Node)
	countRefs = func(n *dag.Node) {
		for _, input := range n.Inputs() {
			if input.Depth() >= n.Depth() {
				exceptions.Panicf("kernelize: depth does not decrease from %s to %s, the graph is cyclic or inconsistent",
					n, input)
			}
			s.refcounts[input]++
			if !seen.Has(input) {
				seen.Insert(input)
				countRefs(input)
			}
		}
	}
	for _, root := range roots {
		root.AssertValid()
		if root.Kind() == dag.KindMultiValueMap {
			exceptions.Panicf("kernelize: root %s is multi-valued, lower its MultiValueRef selections instead", root)
		}
		if !seen.Has(root) {
			seen.Insert(root)
			countRefs(root)
		}
	}

	// Phase B: registration walk. Roots are registered unconditionally.
	for _, root := range roots {
		s.register(root)
	}
	return s
}

// boundary returns whether n separates kernels regardless of the walk:
// immediates are materialized already and refcount >= 2 nodes always become
// targets of their own.
func (s *selector) boundary(n *dag.Node) bool {
	return n.Kind() == dag.KindImmediate || s.refcounts[n] >= 2
}

// register marks n critical and returns its corresponding immediate,
// creating the fresh target (and traversing n's subtree) on first call.
func (s *selector) register(n *dag.Node) *dag.Node {
	if immediate, found := s.table[n]; found {
		return immediate
	}
	if n.Kind() == dag.KindImmediate {
		s.table[n] = n
		return n
	}
	if n.Kind() == dag.KindMultiValueMap {
		// A multi-valued node has no single storage; its MultiValueRef
		// successors are registered in its place (see visit).
		exceptions.Panicf("kernelize: cannot materialize multi-valued node %s directly", n)
	}
	target := dag.NewTarget(n.Shape())
	s.table[n] = target
	s.order = append(s.order, n)
	s.traverseInputs(n)
	return target
}

// traverseInputs applies the forcing rules of n to its inputs, then visits
// them.
func (s *selector) traverseInputs(n *dag.Node) {
	switch n.Kind() {
	case dag.KindReshape:
		// The input of a broadcasting reshape is materialized: repeatedly
		// reading a fused subtree through a non-injective index map would
		// recompute it per replica.
		if !n.Transformation().Injective() {
			s.register(n.Inputs()[0])
		}
	case dag.KindReduction:
		// A fusion below a reduction would split the reduced axis across
		// kernels writing the same target region; materialize the input
		// instead.
		if s.fusing(n.Inputs()[0]) {
			s.register(n.Inputs()[0])
		}
	default:
		// Two reduction loop nests cannot share one kernel: with two or
		// more reduction-bearing inputs, those inputs are materialized.
		bearing := 0
		for _, input := range n.Inputs() {
			if s.bearing(input) {
				bearing++
			}
		}
		if bearing >= 2 {
			for _, input := range n.Inputs() {
				if s.bearing(input) {
					s.register(input)
				}
			}
		}
	}
	for _, input := range n.Inputs() {
		s.visit(input)
	}
}

// visit applies the selection rules to a node appearing as an input.
func (s *selector) visit(n *dag.Node) {
	if _, found := s.table[n]; found {
		return
	}
	switch {
	case n.Kind() == dag.KindImmediate:
		s.register(n)
	case n.Kind() == dag.KindMultiValueMap:
		// Never registered itself; its refs are. The shared subtree is
		// traversed once, through the first visiting ref.
		if !s.traversed.Has(n) {
			s.traversed.Insert(n)
			s.traverseInputs(n)
		}
	case n.Kind() == dag.KindMultiValueRef && s.refcounts[n.Inputs()[0]] >= 2:
		// Rule 3 firing on a MultiValueMap registers its selections.
		s.register(n)
	case s.refcounts[n] >= 2:
		s.register(n)
	default:
		s.traverseInputs(n)
	}
}

// bearing returns whether n transitively contains a reduction below the next
// critical boundary.
func (s *selector) bearing(n *dag.Node) bool {
	if s.boundary(n) {
		return false
	}
	if memo, found := s.bearingMemo[n]; found {
		return memo
	}
	result := n.Kind() == dag.KindReduction
	if !result {
		for _, input := range n.Inputs() {
			if s.bearing(input) {
				result = true
				break
			}
		}
	}
	s.bearingMemo[n] = result
	return result
}

// fusing returns whether n transitively contains a fusion below the next
// critical boundary.
func (s *selector) fusing(n *dag.Node) bool {
	if s.boundary(n) {
		return false
	}
	if memo, found := s.fusingMemo[n]; found {
		return memo
	}
	result := n.Kind() == dag.KindFuse
	if !result {
		for _, input := range n.Inputs() {
			if s.fusing(input) {
				result = true
				break
			}
		}
	}
	s.fusingMemo[n] = result
	return result
}
