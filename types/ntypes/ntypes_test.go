package ntypes

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
)

func TestUnion(t *testing.T) {
	f32 := FromDType(dtypes.Float32)
	f64 := FromDType(dtypes.Float64)
	i32 := FromDType(dtypes.Int32)
	i64 := FromDType(dtypes.Int64)
	u32 := FromDType(dtypes.Uint32)

	tests := []struct {
		name string
		a, b NType
		want dtypes.DType
	}{
		{"same", f32, f32, dtypes.Float32},
		{"float wins over int", f32, i64, dtypes.Float32},
		{"wider float", f32, f64, dtypes.Float64},
		{"wider int", i32, i64, dtypes.Int64},
		{"signed wins width tie", u32, i32, dtypes.Int32},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Union(test.a, test.b).DType)
			assert.Equal(t, test.want, Union(test.b, test.a).DType, "union must be symmetric")
		})
	}

	assert.Panics(t, func() { Union(NType{}, f32) })
}

func TestUnionRefinements(t *testing.T) {
	plain := FromDType(dtypes.Int32)
	nonNegative := NType{DType: dtypes.Int32, Refinement: NonNegative}

	assert.Equal(t, NonNegative, Union(nonNegative, nonNegative).Refinement)
	assert.Equal(t, None, Union(nonNegative, plain).Refinement, "disagreeing refinements drop")
}

func TestUnionAll(t *testing.T) {
	got := UnionAll(
		FromDType(dtypes.Int8),
		FromDType(dtypes.Int32),
		FromDType(dtypes.Float32))
	assert.Equal(t, dtypes.Float32, got.DType)
}

func TestSpecializationAbort(t *testing.T) {
	abort := exceptions.TryCatch[SpecializationAbort](func() {
		AbortSpecialization("dot", FromDType(dtypes.Int32), FromDType(dtypes.Float32))
	})
	assert.Equal(t, "dot", abort.Op)
	assert.Len(t, abort.Inputs, 2)
	assert.Contains(t, abort.Error(), `"dot"`)
}

func TestNTypeString(t *testing.T) {
	assert.Equal(t, dtypes.Float32.String(), FromDType(dtypes.Float32).String())
	refined := NType{DType: dtypes.Int32, Refinement: Index}
	assert.Contains(t, refined.String(), "index")
	assert.False(t, NType{}.Ok())
}
