package bag

import (
	"math"

	"github.com/go-bagreader/bagreader/msgdef"
)

// decodeMessage decodes a MESSAGE_DATA payload against schema's top-level
// members, producing an object Value. scope is the
// owning connection's scope, used to resolve embedded type names that carry
// their package prefix.
func decodeMessage(schema *msgdef.Def, scope string, data []byte) (*Value, error) {
	v, _, err := decodeMembers(schema.Members, schema, scope, data, 0)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// decodeMembers decodes an ordered sequence of fields (skipping constants,
// which never consume bytes) into an object Value.
func decodeMembers(members []msgdef.Member, def *msgdef.Def, scope string, data []byte, pos int) (*Value, int, error) {
	obj := newObject()
	for _, m := range members {
		if m.Field == nil {
			continue // constants are advertised through the schema only
		}
		val, next, err := decodeField(m.Field, def, scope, data, pos)
		if err != nil {
			return nil, pos, err
		}
		obj.setField(m.Field.Name, val)
		pos = next
	}
	return obj, pos, nil
}

// decodeField decodes a single field - scalar, primitive array (as a blob),
// or composite array (as an array of objects) - advancing pos past the
// bytes it consumes.
func decodeField(f *msgdef.Field, def *msgdef.Def, scope string, data []byte, pos int) (*Value, int, error) {
	if !f.IsArray() {
		return decodeScalar(f.TypeName, def, scope, data, pos)
	}

	length := f.ArraySize
	if length == -1 {
		n, err := readLength(data, pos)
		if err != nil {
			return nil, pos, err
		}
		length = n
		pos += 4
	}

	if width, ok := blobWidth(f.TypeName); ok {
		span := length * width
		if pos+span > len(data) {
			return nil, pos, ErrTruncatedRecord
		}
		blob := Blob{ElementType: f.TypeName, Bytes: data[pos : pos+span], Count: length}
		return newBlob(blob), pos + span, nil
	}

	elems := make([]*Value, length)
	for i := 0; i < length; i++ {
		val, next, err := decodeScalar(f.TypeName, def, scope, data, pos)
		if err != nil {
			return nil, pos, err
		}
		elems[i] = val
		pos = next
	}
	return newArray(elems), pos, nil
}

// decodeScalar decodes one scalar value of typeName: a primitive, or a
// composite type resolved against def's embedded types, via the two-step
// exact-match-then-scope-stripped lookup rule.
func decodeScalar(typeName string, def *msgdef.Def, scope string, data []byte, pos int) (*Value, int, error) {
	if val, next, ok, err := decodePrimitive(typeName, data, pos); ok || err != nil {
		return val, next, err
	}
	embedded, ok := def.Resolve(typeName, scope)
	if !ok {
		return nil, pos, ErrUnknownType
	}
	return decodeMembers(embedded.Members, def, scope, data, pos)
}

// decodePrimitive decodes a fixed-width or string primitive scalar. The
// third return value is false when typeName is not a primitive at all, in
// which case the caller falls through to embedded-type resolution.
func decodePrimitive(typeName string, data []byte, pos int) (*Value, int, bool, error) {
	if !msgdef.IsPrimitive(typeName) {
		return nil, pos, false, nil
	}
	switch typeName {
	case "bool":
		b, next, err := readByte(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newBool(b != 0), next, true, nil
	case "int8", "byte":
		b, next, err := readByte(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newInt(KindInt8, int64(int8(b))), next, true, nil
	case "uint8", "char":
		b, next, err := readByte(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newUint(KindUint8, uint64(b)), next, true, nil
	case "int16":
		n, next, err := readU16At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newInt(KindInt16, int64(int16(n))), next, true, nil
	case "uint16":
		n, next, err := readU16At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newUint(KindUint16, uint64(n)), next, true, nil
	case "int32":
		n, next, err := readU32At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newInt(KindInt32, int64(int32(n))), next, true, nil
	case "uint32":
		n, next, err := readU32At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newUint(KindUint32, uint64(n)), next, true, nil
	case "int64":
		n, next, err := readU64At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newInt(KindInt64, int64(n)), next, true, nil
	case "uint64":
		n, next, err := readU64At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newUint(KindUint64, n), next, true, nil
	case "float32":
		n, next, err := readU32At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newFloat(KindFloat32, float64(math.Float32frombits(n))), next, true, nil
	case "float64":
		n, next, err := readU64At(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newFloat(KindFloat64, math.Float64frombits(n)), next, true, nil
	case "string":
		n, err := readLength(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		pos += 4
		if pos+n > len(data) {
			return nil, pos, true, ErrTruncatedRecord
		}
		return newString(string(data[pos : pos+n])), pos + n, true, nil
	case "time":
		t, next, err := readTimeAt(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newTime(KindTime, t), next, true, nil
	case "duration":
		t, next, err := readTimeAt(data, pos)
		if err != nil {
			return nil, pos, true, err
		}
		return newTime(KindDuration, t), next, true, nil
	default:
		return nil, pos, false, nil
	}
}

// blobWidth returns the per-element byte width of a primitive scalar type
// when it is eligible for blob exposure: every fixed-width primitive except
// string, whose elements vary in length and so cannot back a zero-copy
// byte-span view (see DESIGN.md for this resolution of the blob-eligibility
// question).
func blobWidth(typeName string) (int, bool) {
	switch typeName {
	case "bool", "int8", "uint8", "byte", "char":
		return 1, true
	case "int16", "uint16":
		return 2, true
	case "int32", "uint32", "float32":
		return 4, true
	case "int64", "uint64", "float64", "time", "duration":
		return 8, true
	default:
		return 0, false
	}
}

func readByte(data []byte, pos int) (byte, int, error) {
	if pos >= len(data) {
		return 0, pos, ErrTruncatedRecord
	}
	return data[pos], pos + 1, nil
}

func readU16At(data []byte, pos int) (uint16, int, error) {
	if pos+2 > len(data) {
		return 0, pos, ErrTruncatedRecord
	}
	return u16(data[pos:]), pos + 2, nil
}

func readU32At(data []byte, pos int) (uint32, int, error) {
	if pos+4 > len(data) {
		return 0, pos, ErrTruncatedRecord
	}
	return u32(data[pos:]), pos + 4, nil
}

func readU64At(data []byte, pos int) (uint64, int, error) {
	if pos+8 > len(data) {
		return 0, pos, ErrTruncatedRecord
	}
	return u64(data[pos:]), pos + 8, nil
}

func readTimeAt(data []byte, pos int) (Time, int, error) {
	if pos+8 > len(data) {
		return Time{}, pos, ErrTruncatedRecord
	}
	return readTime(data[pos:]), pos + 8, nil
}

func readLength(data []byte, pos int) (int, error) {
	if pos+4 > len(data) {
		return 0, ErrTruncatedRecord
	}
	return int(u32(data[pos:])), nil
}
