package shapes

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"

	"github.com/lazarr/lazarr/types/ntypes"
)

var f32 = ntypes.FromDType(dtypes.Float32)

func TestShape(t *testing.T) {
	s := MakeDims(f32, 4, 3)
	assert.True(t, s.Ok())
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 12, s.Size())
	assert.Equal(t, 4, s.Dim(0))
	assert.Equal(t, 3, s.Dim(-1))
	assert.Panics(t, func() { s.Dim(2) })
	assert.Equal(t, fmt.Sprintf("(%v)[0:4 x 0:3]", dtypes.Float32), s.String())

	scalar := MakeDims(f32)
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, 1, scalar.Size())

	assert.False(t, Shape{}.Ok())
}

func TestShapeEqual(t *testing.T) {
	a := Make(f32, MakeRange(0, 4))
	b := Make(f32, MakeRange(0, 4))
	c := Make(f32, MakeRange(1, 5))
	i32 := Make(ntypes.FromDType(dtypes.Int32), MakeRange(0, 4))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(i32))
	assert.True(t, a.EqualSpace(i32))
}

func TestShapeClone(t *testing.T) {
	a := Make(f32, MakeRange(0, 4))
	b := a.Clone()
	b.Ranges[0] = MakeRange(2, 8)
	assert.True(t, a.Ranges[0].Equal(MakeRange(0, 4)), "Clone must not share the ranges")
}
