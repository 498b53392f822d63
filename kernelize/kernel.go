package kernelize

import (
	"fmt"
	"strings"

	"github.com/lazarr/lazarr/dag"
	"github.com/lazarr/lazarr/terms"
	"github.com/lazarr/lazarr/types/shapes"
	"github.com/lazarr/lazarr/types/xslices"
)

// Kernel is one executable unit of work: it fills a rectangular region of one
// target immediate.
//
// Ranges are the storage ranges the kernel sweeps: one per target axis first
// (the region of the target being written, in target storage coordinates),
// then one per reduction axis in the order the reductions are encountered.
// Blueprint loop axes are dense counters over these ranges; a range's start
// and step appear as offset and multiplier inside the blueprint's index
// triples.
//
// Sources are the leaf immediates the kernel reads, without duplicates, in
// order of first use. The blueprint's Reference terms index storage slot 0
// for the target and slot i+1 for Sources[i].
//
// The Blueprint is an interned term: backends may compare blueprints by
// pointer identity and use them as hash-map keys -- structurally equal
// kernels share one blueprint.
type Kernel struct {
	Target    *dag.Node
	Ranges    shapes.Space
	Sources   []*dag.Node
	Blueprint *terms.UTerm
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	sources := xslices.Map(k.Sources, func(source *dag.Node) string { return source.Shape().String() })
	return fmt.Sprintf("Kernel{target=%s, ranges=%s, sources=[%s]}",
		k.Target.Shape(), k.Ranges, strings.Join(sources, ", "))
}

// Program is the output of one lowering invocation.
type Program struct {
	// roots are the result immediates, one per lowering root, in order.
	roots []*dag.Node

	// targets are the fresh immediates created for critical nodes, ordered
	// by the depth of their critical node (ascending, stable over the
	// deterministic registration order). Filling them in this order
	// respects data dependencies.
	targets []*dag.Node

	// kernels per target.
	kernels map[*dag.Node][]*Kernel
}

// Results returns the result immediates, one per root, in root order.
// Roots that already were immediates map to themselves.
func (p *Program) Results() []*dag.Node { return p.roots }

// Targets returns the fresh target immediates in dependency order: every
// target's kernels only read immediates appearing earlier (or pre-existing
// leaves).
func (p *Program) Targets() []*dag.Node { return p.targets }

// Kernels returns the ordered kernels filling the given target.
func (p *Program) Kernels(target *dag.Node) []*Kernel { return p.kernels[target] }
