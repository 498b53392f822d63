package dag

import (
	"github.com/gomlx/exceptions"

	"github.com/lazarr/lazarr/terms"
	"github.com/lazarr/lazarr/types/ntypes"
)

// Op is the identity of a pointwise operator applied by Map, MultiValueMap
// and Reduction nodes. Two nodes apply the same operator iff they hold the
// same *Op pointer, and the operator's interned Symbol is what ends up in
// blueprint Call terms -- so blueprints of kernels applying equally named
// operators are shared.
type Op struct {
	// Name of the operator; interned as its blueprint symbol.
	Name string

	// Arity is the number of array arguments; negative means variadic.
	Arity int

	// NumOutputs is > 1 for multi-value operators. Zero is treated as 1.
	NumOutputs int

	// Identity is the operator's identity element, when it has an integral
	// one. Reductions lower to Reduce terms; a reduction over a statically
	// empty range lowers to an Accumulate term seeded with Identity, and is
	// a fatal error for operators without one.
	Identity *int

	// Specialize returns the result ntype for the given input ntypes.
	// When no specialized path applies it may call
	// ntypes.AbortSpecialization; node constructors recover the abort and
	// fall back to the generic union of the inputs. A nil Specialize always
	// takes the union path.
	Specialize func(inputs []ntypes.NType) ntypes.NType
}

// Symbol returns the operator's interned blueprint symbol.
func (op *Op) Symbol() terms.Symbol { return terms.S(op.Name) }

// String implements fmt.Stringer.
func (op *Op) String() string { return op.Name }

// checkArity panics if the operator cannot take the given number of inputs.
func (op *Op) checkArity(numInputs int) {
	if op.Arity >= 0 && numInputs != op.Arity {
		exceptions.Panicf("operator %q takes %d inputs, got %d", op.Name, op.Arity, numInputs)
	}
}

// resultNType runs the operator's specialized result-type rule, falling back
// to the generic union of the inputs if the specialization aborts.
func (op *Op) resultNType(inputs []ntypes.NType) ntypes.NType {
	if len(inputs) == 0 {
		exceptions.Panicf("operator %q applied to no inputs", op.Name)
	}
	if op.Specialize != nil {
		var result ntypes.NType
		abort := exceptions.TryCatch[ntypes.SpecializationAbort](func() {
			result = op.Specialize(inputs)
		})
		if abort.Op == "" {
			return result
		}
	}
	return ntypes.UnionAll(inputs[0], inputs[1:]...)
}

// floatOnly builds a Specialize rule accepting only float inputs of one
// dtype, the common shape of specialized arithmetic paths.
func floatOnly(name string) func(inputs []ntypes.NType) ntypes.NType {
	return func(inputs []ntypes.NType) ntypes.NType {
		for _, in := range inputs {
			if !in.DType.IsFloat() || in.DType != inputs[0].DType {
				ntypes.AbortSpecialization(name, inputs...)
			}
		}
		return ntypes.FromDType(inputs[0].DType)
	}
}

func intPtr(v int) *int { return &v }

// Standard operators. Users may define their own Op values; these cover the
// common pointwise algebra.
var (
	OpAdd = &Op{Name: "add", Arity: 2, Identity: intPtr(0)}
	OpSub = &Op{Name: "sub", Arity: 2}
	OpMul = &Op{Name: "mul", Arity: 2, Identity: intPtr(1)}
	OpDiv = &Op{Name: "div", Arity: 2, Specialize: floatOnly("div")}
	OpMax = &Op{Name: "max", Arity: 2}
	OpMin = &Op{Name: "min", Arity: 2}
	OpNeg = &Op{Name: "neg", Arity: 1}

	// OpDivMod yields quotient and remainder in one pass.
	OpDivMod = &Op{Name: "divmod", Arity: 2, NumOutputs: 2}
)
