// Package buffers holds the flat storage behind materialized array
// immediates.
//
// A Buffer pairs a Shape with a flat Go slice of the corresponding dtype.
// Lazarr itself never reads or writes elements during lowering -- buffers
// exist so that leaf immediates and lowering targets are concrete, typed
// values a backend can fill and read.
package buffers

import (
	"fmt"
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"

	"github.com/lazarr/lazarr/types/ntypes"
	"github.com/lazarr/lazarr/types/shapes"
)

// Buffer holds a shape and the flat data backing it.
//
// The flat slice is always of the Go type matching the shape's dtype, in
// row-major order over the shape's storage coordinates.
type Buffer struct {
	shape shapes.Shape

	// flat is always a slice of the underlying data type (shape.NType.DType).
	flat any
}

// New allocates a zero-filled buffer for the given shape.
func New(shape shapes.Shape) *Buffer {
	if !shape.Ok() {
		exceptions.Panicf("buffers.New: invalid shape")
	}
	dtype := shape.NType.DType
	size := shape.Size()
	flat := reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), size, size).Interface()
	return &Buffer{shape: shape, flat: flat}
}

// FromFlat wraps an existing flat slice. The slice's element type must match
// a supported dtype and its length the shape size.
func FromFlat(shape shapes.Shape, flat any) *Buffer {
	flatType := reflect.TypeOf(flat)
	if flatType.Kind() != reflect.Slice {
		exceptions.Panicf("buffers.FromFlat: flat data should be a slice, not %s", flatType.Kind())
	}
	dtype := dtypes.FromGoType(flatType.Elem())
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("buffers.FromFlat: flat is a slice of %s, not a supported data type", flatType.Elem())
	}
	if dtype != shape.NType.DType {
		exceptions.Panicf("buffers.FromFlat: flat dtype %s does not match shape %s", dtype, shape)
	}
	if got := reflect.ValueOf(flat).Len(); got != shape.Size() {
		exceptions.Panicf("buffers.FromFlat: flat has %d elements, shape %s requires %d", got, shape, shape.Size())
	}
	return &Buffer{shape: shape, flat: flat}
}

// FromValue builds a rank-0 buffer holding one scalar.
func FromValue[T dtypes.Supported](value T) *Buffer {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.MakeDims(ntypes.FromDType(dtype))
	return FromFlat(shape, []T{value})
}

// Shape of the buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Flat returns the flat data slice. The caller must not resize it.
func (b *Buffer) Flat() any { return b.flat }

// FlatOf returns the flat data as a []T. It panics if T does not match the
// buffer's dtype.
func FlatOf[T dtypes.Supported](b *Buffer) []T {
	flat, ok := b.flat.([]T)
	if !ok {
		exceptions.Panicf("buffers.FlatOf[%T]: buffer holds %s", flat, b.shape.NType)
	}
	return flat
}

// Float64At reads the element at the given storage offset converted to
// float64. Only defined for float dtypes; it is a debugging accessor, not an
// execution path.
func (b *Buffer) Float64At(offset int) float64 {
	switch flat := b.flat.(type) {
	case []float64:
		return flat[offset]
	case []float32:
		return float64(flat[offset])
	case []float16.Float16:
		return float64(flat[offset].Float32())
	}
	exceptions.Panicf("Buffer.Float64At: dtype %s is not a float type", b.shape.NType.DType)
	return 0
}

// Memory returns the bytes used by the flat data.
func (b *Buffer) Memory() uintptr {
	return b.shape.NType.DType.Memory() * uintptr(b.shape.Size())
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{%s, %s}", b.shape, humanize.Bytes(uint64(b.Memory())))
}
