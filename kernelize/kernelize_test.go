package kernelize

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazarr/lazarr/dag"
	"github.com/lazarr/lazarr/terms"
	"github.com/lazarr/lazarr/transforms"
	"github.com/lazarr/lazarr/types/buffers"
	"github.com/lazarr/lazarr/types/ntypes"
	"github.com/lazarr/lazarr/types/shapes"
)

var f32 = ntypes.FromDType(dtypes.Float32)

// array returns a float32 immediate over the given ranges.
func array(ranges ...shapes.Range) *dag.Node {
	return dag.NewImmediate(buffers.New(shapes.Make(f32, ranges...)))
}

// assertSameNodes compares node slices by identity, not structure.
func assertSameNodes(t *testing.T, want, got []*dag.Node) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Same(t, want[i], got[i], "node #%d", i)
	}
}

// checkPartition verifies that the kernels of target partition its storage
// space exactly: pairwise disjoint target-axis ranges whose sizes sum to the
// target size.
func checkPartition(t *testing.T, program *Program, target *dag.Node) {
	t.Helper()
	kernels := program.Kernels(target)
	rank := target.Rank()
	total := 0
	for i, a := range kernels {
		writes := a.Ranges[:rank]
		total += writes.Size()
		for _, b := range kernels[i+1:] {
			_, overlap := writes.Intersect(b.Ranges[:rank])
			assert.False(t, overlap, "kernels of %s overlap: %s vs %s", target, writes, b.Ranges[:rank])
		}
	}
	assert.Equal(t, target.Size(), total, "kernels of %s do not cover it", target)
}

func TestPureMapNoFusion(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4))
	b := array(shapes.MakeRange(0, 4))
	root := dag.NewMap(dag.OpAdd, a, b)

	program := LowerInto(pool, root)
	require.Len(t, program.Targets(), 1)
	target := program.Results()[0]
	require.Same(t, program.Targets()[0], target)
	assert.True(t, target.Shape().Equal(root.Shape()))

	kernels := program.Kernels(target)
	require.Len(t, kernels, 1)
	k := kernels[0]
	assertSameNodes(t, []*dag.Node{a, b}, k.Sources)
	assert.True(t, k.Ranges.Equal(shapes.MakeSpaceDims(4)), "got ranges %s", k.Ranges)
	assert.Equal(t,
		fmt.Sprintf("(blueprint ((4 4 1)) (%[1]v %[1]v %[1]v) (for 0 (store (ref 0 (0 1 0)) (call add (ref 1 (0 1 0)) (ref 2 (0 1 0))))))", dtypes.Float32),
		k.Blueprint.String())
	checkPartition(t, program, target)
}

func TestReductionCollapsesAxis(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4), shapes.MakeRange(0, 3))
	root := dag.NewReduction(dag.OpAdd, a)

	program := LowerInto(pool, root)
	require.Len(t, program.Targets(), 1)
	target := program.Results()[0]
	assert.True(t, target.Shape().Equal(shapes.MakeDims(f32, 3)))

	kernels := program.Kernels(target)
	require.Len(t, kernels, 1)
	k := kernels[0]
	require.Len(t, k.Ranges, 2, "outer storage axis plus the reduction axis")
	assert.True(t, k.Ranges.Equal(shapes.MakeSpaceDims(3, 4)), "got ranges %s", k.Ranges)
	assertSameNodes(t, []*dag.Node{a}, k.Sources)
	assert.Equal(t,
		fmt.Sprintf("(blueprint ((2 4 1) (4 4 1)) (%[1]v %[1]v) (for 0 (store (ref 0 (0 1 0)) (reduce 1 add (ref 1 (1 1 0) (0 1 0))))))", dtypes.Float32),
		k.Blueprint.String())
}

func TestFuseForcesPartition(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4))
	b := array(shapes.MakeRange(4, 8))
	fused := must.M1(dag.NewFuse(a, b))
	root := dag.NewMap(dag.OpNeg, fused)

	program := LowerInto(pool, root)
	require.Len(t, program.Targets(), 1)
	target := program.Results()[0]

	kernels := program.Kernels(target)
	require.Len(t, kernels, 2)
	checkPartition(t, program, target)

	first, second := kernels[0], kernels[1]
	assert.True(t, first.Ranges.Equal(shapes.MakeSpace(shapes.MakeRange(0, 4))), "got %s", first.Ranges)
	assertSameNodes(t, []*dag.Node{a}, first.Sources)
	assert.True(t, second.Ranges.Equal(shapes.MakeSpace(shapes.MakeRange(4, 8))), "got %s", second.Ranges)
	assertSameNodes(t, []*dag.Node{b}, second.Sources)

	// The fusion is resolved by the partition: each blueprint reads its one
	// source with a plain multiplier-1 index, and only the store offset
	// distinguishes the two pieces.
	assert.Contains(t, first.Blueprint.String(), "(store (ref 0 (0 1 0)) (call neg (ref 1 (0 1 0))))")
	assert.Contains(t, second.Blueprint.String(), "(store (ref 0 (0 1 4)) (call neg (ref 1 (0 1 0))))")
	for _, k := range kernels {
		assert.NotContains(t, k.Blueprint.String(), "fuse")
	}
}

func TestRefcountForcesMaterialization(t *testing.T) {
	pool := terms.NewPool()
	y := array(shapes.MakeRange(0, 4))
	z := array(shapes.MakeRange(0, 4))
	x := dag.NewMap(dag.OpMul, y, z)
	root := dag.NewMap(dag.OpAdd, x, x)

	program := LowerInto(pool, root)
	require.Len(t, program.Targets(), 2, "x and the outer map materialize")

	// Smallest depth first: x's target precedes the root's.
	xTarget, rootTarget := program.Targets()[0], program.Targets()[1]
	require.Same(t, rootTarget, program.Results()[0])

	xKernels := program.Kernels(xTarget)
	require.Len(t, xKernels, 1)
	assertSameNodes(t, []*dag.Node{y, z}, xKernels[0].Sources)

	rootKernels := program.Kernels(rootTarget)
	require.Len(t, rootKernels, 1)
	assert.Equal(t, []*dag.Node{xTarget}, rootKernels[0].Sources,
		"the outer kernel reads x's materialization once, not y or z")
	assert.Contains(t, rootKernels[0].Blueprint.String(), "(call add (ref 1 (0 1 0)) (ref 1 (0 1 0)))")
}

func TestNormalizationStability(t *testing.T) {
	pool := terms.NewPool()
	b := array(shapes.MakeRange(0, 4))

	a1 := array(shapes.MakeRange(0, 4))
	root1 := dag.NewMap(dag.OpAdd, a1, b)

	// The same computation with a shifted to [10..14) and a compensating
	// reshape. Storage coordinates erase the shift.
	a2 := array(shapes.MakeRange(10, 14))
	root2 := dag.NewMap(dag.OpAdd, dag.Translated(a2, -10), b)

	program1 := LowerInto(pool, root1)
	program2 := LowerInto(pool, root2)
	bp1 := program1.Kernels(program1.Results()[0])[0].Blueprint
	bp2 := program2.Kernels(program2.Results()[0])[0].Blueprint
	require.Same(t, bp1, bp2, "translated graphs must share one blueprint")
}

func TestEmptyRoots(t *testing.T) {
	pool := terms.NewPool()
	program := LowerInto(pool)
	assert.Empty(t, program.Results())
	assert.Empty(t, program.Targets())
	assert.Equal(t, 0, pool.NodeCount(), "an empty lowering must not touch the pool")
}

func TestImmediateRoot(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4))
	program := LowerInto(pool, a)
	require.Len(t, program.Results(), 1)
	assert.Same(t, a, program.Results()[0], "immediates are their own result")
	assert.Empty(t, program.Targets(), "nothing to compute")
	assert.Empty(t, program.Kernels(a))
}

func TestSingleElementRange(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 1))
	program := LowerInto(pool, dag.NewMap(dag.OpNeg, a))
	k := program.Kernels(program.Results()[0])[0]
	assert.Contains(t, k.Blueprint.String(), "(for 0 ", "the loop appears even for one element")
	assert.Contains(t, k.Blueprint.String(), "((1 1 1))")
}

func TestScalarRoot(t *testing.T) {
	pool := terms.NewPool()
	root := dag.NewMap(dag.OpAdd, dag.NewScalar(float32(1)), dag.NewScalar(float32(2)))
	program := LowerInto(pool, root)
	k := program.Kernels(program.Results()[0])[0]
	assert.Empty(t, k.Ranges)
	assert.Equal(t,
		fmt.Sprintf("(blueprint () (%[1]v %[1]v %[1]v) (store (ref 0) (call add (ref 1) (ref 2))))", dtypes.Float32),
		k.Blueprint.String())
}

func TestRangeImmediateSource(t *testing.T) {
	pool := terms.NewPool()
	iota := dag.NewRangeImmediate(f32, shapes.MakeRange(0, 8))
	a := array(shapes.MakeRange(0, 8))
	program := LowerInto(pool, dag.NewMap(dag.OpAdd, iota, a))
	k := program.Kernels(program.Results()[0])[0]
	assertSameNodes(t, []*dag.Node{iota, a}, k.Sources)
}

func TestSharedSourceDeduplication(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4))
	root := dag.NewMap(dag.OpMul, dag.NewMap(dag.OpNeg, a), a)
	program := LowerInto(pool, root)
	k := program.Kernels(program.Results()[0])[0]
	assert.Equal(t, []*dag.Node{a}, k.Sources, "a is read twice but listed once")
}

func TestMultiValueLowering(t *testing.T) {
	pool := terms.NewPool()
	i32 := ntypes.FromDType(dtypes.Int32)
	a := dag.NewImmediate(buffers.New(shapes.MakeDims(i32, 4)))
	b := dag.NewImmediate(buffers.New(shapes.MakeDims(i32, 4)))
	dm := dag.NewMultiValueMap(dag.OpDivMod, a, b)
	quotient := dag.NewMultiValueRef(0, dm)
	remainder := dag.NewMultiValueRef(1, dm)
	root := dag.NewMap(dag.OpSub, quotient, remainder)

	program := LowerInto(pool, root)
	// The doubly referenced divmod materializes through its selections.
	require.Len(t, program.Targets(), 3)

	var quotientBlueprint string
	for _, target := range program.Targets() {
		for _, k := range program.Kernels(target) {
			if strings.Contains(k.Blueprint.String(), "(divmod 0)") {
				quotientBlueprint = k.Blueprint.String()
			}
		}
	}
	assert.Contains(t, quotientBlueprint, "(call (divmod 0) (ref 1 (0 1 0)) (ref 2 (0 1 0)))",
		"the selected value index is part of the operator identity")
}

func TestBroadcastForcesInputMaterialization(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4))
	inner := dag.NewMap(dag.OpNeg, a)
	// Broadcast [0..4) along a new trailing axis of size 3: the
	// transformation drops the new axis and is not injective.
	broadcast := dag.NewReshape(inner, shapes.MakeSpaceDims(4, 3),
		transforms.New(2, transforms.Row{Input: 0, Scale: 1}))

	program := LowerInto(pool, broadcast)
	require.Len(t, program.Targets(), 2, "the broadcast input materializes")
	innerTarget := program.Targets()[0]
	assert.True(t, innerTarget.Shape().Equal(inner.Shape()))
	rootKernel := program.Kernels(program.Results()[0])[0]
	assertSameNodes(t, []*dag.Node{innerTarget}, rootKernel.Sources)
}

func TestTwoReductionsSplit(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4), shapes.MakeRange(0, 3))
	b := array(shapes.MakeRange(0, 5), shapes.MakeRange(0, 3))
	left := dag.NewReduction(dag.OpAdd, a)
	right := dag.NewReduction(dag.OpMul, b)
	root := dag.NewMap(dag.OpAdd, left, right)

	program := LowerInto(pool, root)
	require.Len(t, program.Targets(), 3, "both reduction-bearing inputs materialize")

	rootKernel := program.Kernels(program.Results()[0])[0]
	require.Len(t, rootKernel.Sources, 2)
	assert.NotContains(t, rootKernel.Blueprint.String(), "reduce",
		"the outer kernel only combines materialized reductions")
}

func TestFuseUnderReduction(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 2), shapes.MakeRange(0, 3))
	b := array(shapes.MakeRange(2, 4), shapes.MakeRange(0, 3))
	fused := must.M1(dag.NewFuse(a, b))
	root := dag.NewReduction(dag.OpAdd, fused)

	program := LowerInto(pool, root)
	require.Len(t, program.Targets(), 2, "a fusion along the reduced axis materializes")

	fusedTarget := program.Targets()[0]
	assert.True(t, fusedTarget.Shape().Equal(fused.Shape()))
	require.Len(t, program.Kernels(fusedTarget), 2)
	checkPartition(t, program, fusedTarget)

	rootKernel := program.Kernels(program.Results()[0])[0]
	assertSameNodes(t, []*dag.Node{fusedTarget}, rootKernel.Sources)
}

func TestNestedReductions(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 2), shapes.MakeRange(0, 3), shapes.MakeRange(0, 4))
	root := dag.NewReduction(dag.OpAdd, dag.NewReduction(dag.OpAdd, a))

	program := LowerInto(pool, root)
	k := program.Kernels(program.Results()[0])[0]
	require.Len(t, k.Ranges, 3, "one target axis and two reduction axes")
	assert.True(t, k.Ranges.Equal(shapes.MakeSpaceDims(4, 3, 2)), "got %s", k.Ranges)
	assert.Contains(t, k.Blueprint.String(), "(reduce 1 add (reduce 2 add ")
}

func TestDeterministicLowering(t *testing.T) {
	build := func(pool *terms.Pool) []string {
		a := array(shapes.MakeRange(0, 4))
		b := array(shapes.MakeRange(4, 8))
		fused := must.M1(dag.NewFuse(a, b))
		root := dag.NewMap(dag.OpAdd, fused, must.M1(dag.NewFuse(array(shapes.MakeRange(0, 6)), array(shapes.MakeRange(6, 8)))))
		program := LowerInto(pool, root)
		var out []string
		for _, target := range program.Targets() {
			for _, k := range program.Kernels(target) {
				out = append(out, k.Ranges.String()+" "+k.Blueprint.String())
			}
		}
		return out
	}
	first := build(terms.NewPool())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build(terms.NewPool()))
	}
}

func TestSubdividedPartition(t *testing.T) {
	// Two fusions with different break points under one map: the partition
	// refines to the common subdivision {0..4, 4..6, 6..8}.
	pool := terms.NewPool()
	left := must.M1(dag.NewFuse(array(shapes.MakeRange(0, 4)), array(shapes.MakeRange(4, 8))))
	right := must.M1(dag.NewFuse(array(shapes.MakeRange(0, 6)), array(shapes.MakeRange(6, 8))))
	root := dag.NewMap(dag.OpAdd, left, right)

	program := LowerInto(pool, root)
	target := program.Results()[0]
	kernels := program.Kernels(target)
	require.Len(t, kernels, 3)
	checkPartition(t, program, target)
	assert.True(t, kernels[0].Ranges.Equal(shapes.MakeSpace(shapes.MakeRange(0, 4))), "got %s", kernels[0].Ranges)
	assert.True(t, kernels[1].Ranges.Equal(shapes.MakeSpace(shapes.MakeRange(4, 6))), "got %s", kernels[1].Ranges)
	assert.True(t, kernels[2].Ranges.Equal(shapes.MakeSpace(shapes.MakeRange(6, 8))), "got %s", kernels[2].Ranges)
	for _, k := range kernels {
		require.Len(t, k.Sources, 2, "each kernel reads one piece of each fusion")
	}
}

func TestInterleavedFuse(t *testing.T) {
	pool := terms.NewPool()
	even := array(shapes.MakeRangeStride(0, 8, 2))
	odd := array(shapes.MakeRangeStride(1, 8, 2))
	root := dag.NewMap(dag.OpNeg, must.M1(dag.NewFuse(even, odd)))

	program := LowerInto(pool, root)
	target := program.Results()[0]
	kernels := program.Kernels(target)
	require.Len(t, kernels, 2)
	checkPartition(t, program, target)

	// Each kernel writes every second storage cell; the stride lands in the
	// store triple's multiplier while the source reads stay dense.
	assert.True(t, kernels[0].Ranges.Equal(shapes.MakeSpace(shapes.MakeRangeStride(0, 7, 2))), "got %s", kernels[0].Ranges)
	assert.Contains(t, kernels[0].Blueprint.String(), "(store (ref 0 (0 2 0)) (call neg (ref 1 (0 1 0))))")
	assert.True(t, kernels[1].Ranges.Equal(shapes.MakeSpace(shapes.MakeRangeStride(1, 8, 2))), "got %s", kernels[1].Ranges)
	assert.Contains(t, kernels[1].Blueprint.String(), "(store (ref 0 (0 2 1)) (call neg (ref 1 (0 1 0))))")
}

func TestEmptyReductionAccumulates(t *testing.T) {
	pool := terms.NewPool()
	empty := array(shapes.MakeRange(0, 0), shapes.MakeRange(0, 3))
	root := dag.NewReduction(dag.OpAdd, empty)
	program := LowerInto(pool, root)
	k := program.Kernels(program.Results()[0])[0]
	assert.Contains(t, k.Blueprint.String(), "(accumulate 1 add 0 ",
		"an empty reduction folds from the operator's identity element")

	noIdentity := dag.NewReduction(dag.OpMax, empty)
	assert.Panics(t, func() { LowerInto(pool, noIdentity) },
		"an empty reduction without an identity element is an error")
}

func TestMultipleRoots(t *testing.T) {
	pool := terms.NewPool()
	a := array(shapes.MakeRange(0, 4))
	shared := dag.NewMap(dag.OpNeg, a)
	root1 := dag.NewMap(dag.OpAdd, shared, a)
	root2 := shared

	program := LowerInto(pool, root1, root2)
	require.Len(t, program.Results(), 2)
	assert.NotSame(t, program.Results()[0], program.Results()[1])

	// shared is a root and referenced by root1: one target, reused.
	require.Len(t, program.Targets(), 2)
	sharedTarget := program.Results()[1]
	assert.Contains(t, program.Kernels(program.Results()[0])[0].Sources, sharedTarget)
}
