package bag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recoverPanic runs fn and returns the recovered value, or nil if fn didn't
// panic.
func recoverPanic(fn func()) (recovered any) {
	defer func() { recovered = recover() }()
	fn()
	return nil
}

func TestAsExactMatch(t *testing.T) {
	v := newUint(KindUint32, 42)
	got, err := As[uint32](v)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got)
}

func TestAsWidensSameSignedness(t *testing.T) {
	v := newUint(KindUint32, 42)
	got, err := As[uint64](v)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	iv := newInt(KindInt16, -5)
	gotI, err := As[int64](iv)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), gotI)
}

func TestAsRejectsNarrowing(t *testing.T) {
	v := newUint(KindUint32, 42)
	_, err := As[uint16](v)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestAsRejectsCrossSignedness(t *testing.T) {
	v := newUint(KindUint32, 42)
	_, err := As[int64](v)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestAsWidensFloat32ToFloat64(t *testing.T) {
	v := newFloat(KindFloat32, 1.5)
	got, err := As[float64](v)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 0.0001)
}

func TestAsRejectsStringToNumeric(t *testing.T) {
	v := newString("hello")
	_, err := As[uint32](v)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestMustAsPanicsOnMismatch(t *testing.T) {
	v := newString("hello")
	assert.Panics(t, func() { MustAs[uint32](v) })
}

func TestObjectFieldAccess(t *testing.T) {
	obj := newObject()
	obj.setField("a", newUint(KindUint8, 1))
	obj.setField("b", newUint(KindUint8, 2))

	v, ok := obj.Field("a")
	require.True(t, ok)
	got, err := As[uint8](v)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), got)

	_, ok = obj.Field("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, obj.FieldNames())

	r := recoverPanic(func() { obj.MustField("missing") })
	require.NotNil(t, r)
	err, ok = r.(error)
	require.True(t, ok, "panic value must be an error")
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestArrayIndexAccess(t *testing.T) {
	arr := newArray([]*Value{newUint(KindUint8, 1), newUint(KindUint8, 2)})
	assert.Equal(t, 2, arr.Len())

	v, ok := arr.At(0)
	require.True(t, ok)
	got, _ := As[uint8](v)
	assert.Equal(t, uint8(1), got)

	_, ok = arr.At(5)
	assert.False(t, ok)

	r := recoverPanic(func() { arr.MustAt(5) })
	require.NotNil(t, r)
	err, ok := r.(error)
	require.True(t, ok, "panic value must be an error")
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestBlobTypeMismatch(t *testing.T) {
	v := newUint(KindUint8, 1)
	_, err := v.Blob()
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
