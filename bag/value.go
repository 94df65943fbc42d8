package bag

import "fmt"

// Kind is the tag of a decoded Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindTime
	KindDuration
	KindObject
	KindArray
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindDuration:
		return "duration"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Blob is a zero-copy view over a run of primitive-scalar array elements:
// the backing bytes, the element type name, and the element count.
type Blob struct {
	ElementType string
	Bytes       []byte
	Count       int
}

// ByteSize is the blob's total span in bytes.
func (b Blob) ByteSize() int { return len(b.Bytes) }

// Value is the decoder's dynamic tagged union: a scalar, a string, a nested
// object, an array of objects, or a blob of packed primitive scalars - a
// variant with an accessor layer, deliberately avoiding a virtual dispatch
// hierarchy.
type Value struct {
	kind Kind

	boolVal   bool
	intVal    int64
	uintVal   uint64
	floatVal  float64
	stringVal string
	timeVal   Time

	object map[string]*Value
	order  []string // field insertion order, for deterministic iteration
	array  []*Value
	blob   Blob
}

func (v *Value) Type() Kind { return v.kind }

func newBool(b bool) *Value     { return &Value{kind: KindBool, boolVal: b} }
func newInt(k Kind, n int64) *Value   { return &Value{kind: k, intVal: n} }
func newUint(k Kind, n uint64) *Value { return &Value{kind: k, uintVal: n} }
func newFloat(k Kind, f float64) *Value { return &Value{kind: k, floatVal: f} }
func newString(s string) *Value { return &Value{kind: KindString, stringVal: s} }
func newTime(k Kind, t Time) *Value { return &Value{kind: k, timeVal: t} }
func newBlob(b Blob) *Value     { return &Value{kind: KindBlob, blob: b} }
func newArray(elems []*Value) *Value { return &Value{kind: KindArray, array: elems} }

func newObject() *Value {
	return &Value{kind: KindObject, object: make(map[string]*Value)}
}

func (v *Value) setField(name string, val *Value) {
	if _, exists := v.object[name]; !exists {
		v.order = append(v.order, name)
	}
	v.object[name] = val
}

// Field looks up a member of an object Value by name, the Value["foo"]
// access rule. Returns false if v is not an object or has no such field.
func (v *Value) Field(name string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	f, ok := v.object[name]
	return f, ok
}

// MustField is Field, panicking if the field is absent or v is not an
// object. Intended for call sites that already know the schema shape.
func (v *Value) MustField(name string) *Value {
	f, ok := v.Field(name)
	if !ok {
		panic(fmt.Errorf("bag: no field %q: %w", name, ErrIndexOutOfRange))
	}
	return f
}

// FieldNames returns an object Value's member names in schema order.
func (v *Value) FieldNames() []string {
	if v.kind != KindObject {
		return nil
	}
	return v.order
}

// At indexes an array Value by position, the Value[i] access rule.
func (v *Value) At(i int) (*Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.array) {
		return nil, false
	}
	return v.array[i], true
}

// MustAt is At, panicking on an out-of-range index or non-array Value.
func (v *Value) MustAt(i int) *Value {
	if v.kind != KindArray || i < 0 || i >= len(v.array) {
		panic(fmt.Errorf("bag: index %d out of range: %w", i, ErrIndexOutOfRange))
	}
	return v.array[i]
}

// Len returns the element count of an array or blob Value.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.array)
	case KindBlob:
		return v.blob.Count
	default:
		return 0
	}
}

// Blob returns the backing Blob of a blob-kind Value, per RosValue::getBlob.
func (v *Value) Blob() (Blob, error) {
	if v.kind != KindBlob {
		return Blob{}, ErrTypeMismatch
	}
	return v.blob, nil
}

// As performs a checked narrowing/widening conversion: an exact kind match
// always succeeds; an integer kind also succeeds when T is a
// same-signedness integer type at least as wide (uint32 field accessed
// As[uint64] succeeds, As[uint16] does not); float32 also widens to
// float64. Every other combination, including any conversion touching
// string/time/duration/object/array/blob, requires an exact kind match.
// Returns ErrTypeMismatch on any other mismatch.
func As[T any](v *Value) (T, error) {
	var zero T
	if exact, ok := exactAs[T](v); ok {
		return exact, nil
	}
	if widened, ok := widenAs[T](v); ok {
		return widened, nil
	}
	return zero, ErrTypeMismatch
}

func exactAs[T any](v *Value) (T, bool) {
	var zero T
	var out any
	switch v.kind {
	case KindBool:
		out = v.boolVal
	case KindInt8:
		out = int8(v.intVal)
	case KindInt16:
		out = int16(v.intVal)
	case KindInt32:
		out = int32(v.intVal)
	case KindInt64:
		out = v.intVal
	case KindUint8:
		out = uint8(v.uintVal)
	case KindUint16:
		out = uint16(v.uintVal)
	case KindUint32:
		out = uint32(v.uintVal)
	case KindUint64:
		out = v.uintVal
	case KindFloat32:
		out = float32(v.floatVal)
	case KindFloat64:
		out = v.floatVal
	case KindString:
		out = v.stringVal
	case KindTime, KindDuration:
		out = v.timeVal
	default:
		return zero, false
	}
	t, ok := out.(T)
	return t, ok
}

// widenAs implements the same-signedness integer widening and the
// float32->float64 widening As allows beyond an exact kind match. Go
// generics can't range over "every wider integer type" directly, so each
// source kind tries every wider target width via a type switch on a zero
// value of T.
func widenAs[T any](v *Value) (T, bool) {
	var zero T
	var out any
	switch v.kind {
	case KindInt8:
		out = widenSigned(int64(v.intVal), 8, zero)
	case KindInt16:
		out = widenSigned(int64(v.intVal), 16, zero)
	case KindInt32:
		out = widenSigned(int64(v.intVal), 32, zero)
	case KindUint8:
		out = widenUnsigned(v.uintVal, 8, zero)
	case KindUint16:
		out = widenUnsigned(v.uintVal, 16, zero)
	case KindUint32:
		out = widenUnsigned(v.uintVal, 32, zero)
	case KindFloat32:
		if _, ok := any(zero).(float64); ok {
			out = float64(v.floatVal)
		}
	}
	if out == nil {
		return zero, false
	}
	t, ok := out.(T)
	return t, ok
}

// widenSigned returns n boxed as whichever signed integer type target
// names, provided that type is strictly wider than srcBits (equal width is
// already handled by exactAs, and narrower widths are a mismatch).
func widenSigned(n int64, srcBits int, target any) any {
	switch target.(type) {
	case int16:
		if srcBits < 16 {
			return int16(n)
		}
	case int32:
		if srcBits < 32 {
			return int32(n)
		}
	case int64:
		if srcBits < 64 {
			return n
		}
	}
	return nil
}

// widenUnsigned is widenSigned's unsigned counterpart.
func widenUnsigned(n uint64, srcBits int, target any) any {
	switch target.(type) {
	case uint16:
		if srcBits < 16 {
			return uint16(n)
		}
	case uint32:
		if srcBits < 32 {
			return uint32(n)
		}
	case uint64:
		if srcBits < 64 {
			return n
		}
	}
	return nil
}

// MustAs is As, panicking on a type mismatch.
func MustAs[T any](v *Value) T {
	t, err := As[T](v)
	if err != nil {
		panic(err)
	}
	return t
}
