// Package dag defines the lazy-array expression nodes consumed by the
// lowering pass.
//
// A Node is an immutable description of an array-valued computation:
// materialized immediates at the leaves, and pointwise maps, reductions,
// reshapes and fusions above them. Nodes form a DAG by construction -- every
// node only references previously built nodes -- so graphs are acyclic and
// the depth of a node strictly exceeds the depth of its inputs.
//
// Constructors infer shapes and ntypes. Contract violations (rank
// mismatches on maps, reshape transformations escaping the input space,
// cyclic wiring) are programmer errors and panic; fusions of incompatible
// pieces are data-dependent and surface as errors instead.
package dag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/lazarr/lazarr/transforms"
	"github.com/lazarr/lazarr/types/buffers"
	"github.com/lazarr/lazarr/types/ntypes"
	"github.com/lazarr/lazarr/types/shapes"
	"github.com/lazarr/lazarr/types/xslices"
)

// Kind discriminates the node types.
type Kind int

const (
	KindInvalid Kind = iota
	KindImmediate
	KindMap
	KindMultiValueMap
	KindMultiValueRef
	KindReshape
	KindFuse
	KindReduction
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindImmediate:
		return "Immediate"
	case KindMap:
		return "Map"
	case KindMultiValueMap:
		return "MultiValueMap"
	case KindMultiValueRef:
		return "MultiValueRef"
	case KindReshape:
		return "Reshape"
	case KindFuse:
		return "Fuse"
	case KindReduction:
		return "Reduction"
	}
	return "Invalid"
}

// Node is one lazy-array expression. Nodes are immutable once constructed;
// all observable structure is exposed through accessors.
type Node struct {
	kind   Kind
	shape  shapes.Shape
	depth  int
	inputs []*Node

	// Kind-specific payloads.
	op             *Op                        // Map, MultiValueMap, Reduction.
	transformation *transforms.Transformation // Reshape.
	valueIndex     int                        // MultiValueRef.
	buffer         *buffers.Buffer            // Immediate: nil when not yet materialized.
	iotaRange      bool                       // Immediate: values are the indices of the single axis.
}

// Kind of this node.
func (n *Node) Kind() Kind { return n.kind }

// Shape of the node's value: its index space and element ntype.
func (n *Node) Shape() shapes.Shape { return n.shape }

// NType of the node's elements.
func (n *Node) NType() ntypes.NType { return n.shape.NType }

// Space is the node's index space.
func (n *Node) Space() shapes.Space { return n.shape.Ranges }

// Rank of the node's shape.
func (n *Node) Rank() int { return n.shape.Rank() }

// Size is the node's element count.
func (n *Node) Size() int { return n.shape.Size() }

// Depth is the length of the longest path from this node to a leaf.
func (n *Node) Depth() int { return n.depth }

// Inputs are the nodes this node computes from, in order.
func (n *Node) Inputs() []*Node { return n.inputs }

// Op returns the operator of Map, MultiValueMap and Reduction nodes, nil
// otherwise.
func (n *Node) Op() *Op { return n.op }

// Transformation returns the reshape's index transformation, mapping the
// node's index space into its input's. Nil for other kinds.
func (n *Node) Transformation() *transforms.Transformation { return n.transformation }

// ValueIndex returns which output of a MultiValueMap a MultiValueRef selects.
func (n *Node) ValueIndex() int { return n.valueIndex }

// Buffer returns the immediate's storage. It is nil for range immediates and
// for targets whose storage the backend has not allocated yet.
func (n *Node) Buffer() *buffers.Buffer { return n.buffer }

// IsRangeImmediate returns whether this immediate's values are the indices
// of its single axis.
func (n *Node) IsRangeImmediate() bool { return n.kind == KindImmediate && n.iotaRange }

// AssertValid panics if n is nil or the zero node.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("dag: Node is nil")
	}
	if n.kind == KindInvalid {
		exceptions.Panicf("dag: Node in an invalid state")
	}
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var desc string
	switch n.kind {
	case KindMap, KindMultiValueMap, KindReduction:
		desc = fmt.Sprintf("%s[%s]", n.kind, n.op)
	case KindMultiValueRef:
		desc = fmt.Sprintf("%s[%d]", n.kind, n.valueIndex)
	case KindReshape:
		desc = fmt.Sprintf("%s[%s]", n.kind, n.transformation)
	case KindImmediate:
		switch {
		case n.iotaRange:
			desc = "Immediate[range]"
		case n.buffer == nil:
			desc = "Immediate[unallocated]"
		default:
			desc = "Immediate"
		}
	default:
		desc = n.kind.String()
	}
	if len(n.inputs) > 0 {
		inputs := xslices.Map(n.inputs, func(input *Node) string { return input.shape.String() })
		desc = fmt.Sprintf("%s(%s)", desc, strings.Join(inputs, ", "))
	}
	return fmt.Sprintf("%s -> %s", desc, n.shape)
}

// NewImmediate returns a leaf node over materialized storage.
func NewImmediate(buffer *buffers.Buffer) *Node {
	if buffer == nil {
		exceptions.Panicf("dag.NewImmediate: nil buffer")
	}
	return &Node{kind: KindImmediate, shape: buffer.Shape(), buffer: buffer}
}

// NewScalar returns a rank-0 immediate holding one value.
func NewScalar[T dtypes.Supported](value T) *Node {
	return NewImmediate(buffers.FromValue(value))
}

// NewRangeImmediate returns a rank-1 immediate whose elements are the
// indices of r itself. It carries no storage; backends synthesize the values.
func NewRangeImmediate(ntype ntypes.NType, r shapes.Range) *Node {
	if r.Empty() {
		exceptions.Panicf("dag.NewRangeImmediate: empty range %s", r)
	}
	return &Node{kind: KindImmediate, shape: shapes.Make(ntype, r), iotaRange: true}
}

// NewTarget returns an immediate with the given shape and no storage yet:
// the materialization target of a critical node. Backends allocate its
// storage when executing the kernels that fill it.
func NewTarget(shape shapes.Shape) *Node {
	if !shape.Ok() {
		exceptions.Panicf("dag.NewTarget: invalid shape")
	}
	return &Node{kind: KindImmediate, shape: shape}
}

// depthAbove returns 1 + the maximum depth of the inputs.
func depthAbove(inputs []*Node) (depth int) {
	for _, input := range inputs {
		depth = max(depth, input.depth+1)
	}
	return
}

// checkMapInputs validates that inputs is non-empty and all inputs share one
// index space; returns that space and the input ntypes.
func checkMapInputs(op *Op, inputs []*Node) (shapes.Space, []ntypes.NType) {
	if len(inputs) == 0 {
		exceptions.Panicf("dag: operator %q applied to no inputs", op.Name)
	}
	op.checkArity(len(inputs))
	space := inputs[0].Space()
	intypes := make([]ntypes.NType, len(inputs))
	for i, input := range inputs {
		input.AssertValid()
		intypes[i] = input.NType()
		if !input.Space().Equal(space) {
			exceptions.Panicf("dag: %q input #%d has index space %s, input #0 has %s",
				op.Name, i, input.Space(), space)
		}
	}
	return space, intypes
}

// NewMap returns a node applying op pointwise over inputs, which must share
// one index space.
func NewMap(op *Op, inputs ...*Node) *Node {
	space, intypes := checkMapInputs(op, inputs)
	return &Node{
		kind:   KindMap,
		shape:  shapes.Shape{NType: op.resultNType(intypes), Ranges: space},
		depth:  depthAbove(inputs),
		inputs: slices.Clone(inputs),
		op:     op,
	}
}

// NewMultiValueMap returns a node applying a multi-output operator pointwise.
// Its individual values are selected with NewMultiValueRef.
func NewMultiValueMap(op *Op, inputs ...*Node) *Node {
	if op.NumOutputs < 2 {
		exceptions.Panicf("dag.NewMultiValueMap: operator %q has %d outputs", op.Name, op.NumOutputs)
	}
	space, intypes := checkMapInputs(op, inputs)
	return &Node{
		kind:   KindMultiValueMap,
		shape:  shapes.Shape{NType: op.resultNType(intypes), Ranges: space},
		depth:  depthAbove(inputs),
		inputs: slices.Clone(inputs),
		op:     op,
	}
}

// NewMultiValueRef selects the n-th value of a MultiValueMap.
func NewMultiValueRef(n int, input *Node) *Node {
	input.AssertValid()
	if input.kind != KindMultiValueMap {
		exceptions.Panicf("dag.NewMultiValueRef: input is a %s, not a MultiValueMap", input.kind)
	}
	if n < 0 || n >= input.op.NumOutputs {
		exceptions.Panicf("dag.NewMultiValueRef: value index %d out of range, operator %q has %d outputs",
			n, input.op.Name, input.op.NumOutputs)
	}
	return &Node{
		kind:       KindMultiValueRef,
		shape:      input.shape,
		depth:      input.depth + 1,
		inputs:     []*Node{input},
		valueIndex: n,
	}
}

// NewReshape returns a node viewing input through an affine index
// transformation: the new node has the given index space, and element (x)
// reads input element (transformation(x)). The transformed space must lie
// inside the input's space.
func NewReshape(input *Node, space shapes.Space, transformation *transforms.Transformation) *Node {
	input.AssertValid()
	if transformation.InRank() != space.Rank() || transformation.OutRank() != input.Rank() {
		exceptions.Panicf("dag.NewReshape: transformation %s does not map rank %d to rank %d",
			transformation, space.Rank(), input.Rank())
	}
	image := transformation.ApplySpace(space)
	if !input.Space().ContainsSpace(image) {
		exceptions.Panicf("dag.NewReshape: transformed space %s escapes input space %s",
			image, input.Space())
	}
	return &Node{
		kind:           KindReshape,
		shape:          shapes.Shape{NType: input.NType(), Ranges: space},
		depth:          input.depth + 1,
		inputs:         []*Node{input},
		transformation: transformation,
	}
}

// Translated is a convenience reshape shifting input by the given per-axis
// offsets: the result's index space starts at input start + offset.
func Translated(input *Node, offsets ...int) *Node {
	if len(offsets) != input.Rank() {
		exceptions.Panicf("dag.Translated: %d offsets for rank %d", len(offsets), input.Rank())
	}
	space := make(shapes.Space, input.Rank())
	back := make([]transforms.Row, input.Rank())
	for axis, r := range input.Space() {
		space[axis] = shapes.Range{Start: r.Start + offsets[axis], End: r.End + offsets[axis], Step: r.Step}
		back[axis] = transforms.Row{Input: axis, Scale: 1, Offset: -offsets[axis]}
	}
	return NewReshape(input, space, transforms.New(input.Rank(), back...))
}

// NewFuse returns a node assembling one array out of disjoint pieces: the
// result's index space is the union of the inputs' spaces and each element
// reads the unique input containing its index.
//
// Unlike the other constructors, fusions of incompatible pieces are
// data-dependent errors, surfaced with the offending shapes rather than
// panicking: inputs must agree in rank, be pairwise disjoint, and their
// union must itself be a rectangular index space.
func NewFuse(inputs ...*Node) (*Node, error) {
	if len(inputs) == 0 {
		return nil, errors.New("dag.NewFuse: no inputs")
	}
	for _, input := range inputs {
		input.AssertValid()
	}
	rank := inputs[0].Rank()
	var err error
	for _, input := range inputs[1:] {
		if input.Rank() != rank {
			err = multierr.Append(err, errors.Errorf(
				"fuse inputs disagree in rank: %s vs %s", inputs[0].Shape(), input.Shape()))
		}
	}
	if err != nil {
		return nil, err
	}
	for i, a := range inputs {
		for _, b := range inputs[i+1:] {
			if intersection, ok := a.Space().Intersect(b.Space()); ok {
				err = multierr.Append(err, errors.Errorf(
					"fuse inputs overlap on %s: %s vs %s", intersection, a.Shape(), b.Shape()))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	union, unionErr := fuseUnion(inputs)
	if unionErr != nil {
		return nil, unionErr
	}
	ntype := inputs[0].NType()
	for _, input := range inputs[1:] {
		ntype = ntypes.Union(ntype, input.NType())
	}
	return &Node{
		kind:   KindFuse,
		shape:  shapes.Shape{NType: ntype, Ranges: union},
		depth:  depthAbove(inputs),
		inputs: slices.Clone(inputs),
	}, nil
}

// fuseUnion computes the rectangular union of the pairwise disjoint input
// spaces, or an error when the union is not rectangular.
func fuseUnion(inputs []*Node) (shapes.Space, error) {
	rank := inputs[0].Rank()
	union := make(shapes.Space, rank)
	for axis := 0; axis < rank; axis++ {
		union[axis] = fuseAxisHull(inputs, axis)
	}
	total := 0
	for _, input := range inputs {
		if !union.ContainsSpace(input.Space()) {
			return nil, errors.Errorf("fuse union %s does not embed input %s", union, input.Shape())
		}
		total += input.Size()
	}
	if total != union.Size() {
		shapeList := make([]string, len(inputs))
		for i, input := range inputs {
			shapeList[i] = input.Shape().String()
		}
		return nil, errors.Errorf("fuse inputs %s do not cover a rectangular space (union %s has %d elements, inputs %d)",
			strings.Join(shapeList, ", "), union, union.Size(), total)
	}
	return union, nil
}

// fuseAxisHull returns the tightest range covering all inputs on one axis:
// the step is the gcd of the input steps and of the start differences.
func fuseAxisHull(inputs []*Node, axis int) shapes.Range {
	first := inputs[0].Space()[axis]
	start, end, step := first.Start, first.End, first.Step
	for _, input := range inputs[1:] {
		r := input.Space()[axis]
		step = gcdInt(step, r.Step)
		if d := r.Start - start; d != 0 {
			step = gcdInt(step, absInt(d))
		}
		start = min(start, r.Start)
		end = max(end, r.End)
	}
	return shapes.MakeRangeStride(start, end, step)
}

// NewReduction returns a node reducing the leading axis of input with op.
func NewReduction(op *Op, input *Node) *Node {
	input.AssertValid()
	if input.Rank() < 1 {
		exceptions.Panicf("dag.NewReduction: input %s is a scalar, nothing to reduce", input.Shape())
	}
	op.checkArity(2)
	ntype := op.resultNType([]ntypes.NType{input.NType(), input.NType()})
	return &Node{
		kind:   KindReduction,
		shape:  shapes.Shape{NType: ntype, Ranges: input.Space()[1:].Clone()},
		depth:  input.depth + 1,
		inputs: []*Node{input},
		op:     op,
	}
}

func gcdInt(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
