// Package msgdef parses the embedded ROS message-definition grammar found in
// the data section of a bag CONNECTION record (http://wiki.ros.org/msg) into a
// recursive type tree.
package msgdef

import "strings"

// Def is the parsed schema attached to a connection: the top-level message's
// members, followed by zero or more named embedded (nested) type
// definitions.
type Def struct {
	Members  []Member
	Embedded []*EmbeddedDef
}

// EmbeddedDef is a named nested message type referenced by one or more
// fields of the top-level definition, or by another embedded definition.
type EmbeddedDef struct {
	TypeName string
	Members  []Member
}

// Member is one line of a message definition: either a Field or a Constant,
// never both.
type Member struct {
	Field    *Field
	Constant *Constant
}

// Field is a named, typed member that consumes bytes when a message is
// decoded.
//
// ArraySize encodes the field's array-ness: 0 means scalar, -1 means a
// variable-length array (syntactic "[]"), n>0 means a fixed-length array of
// n elements.
type Field struct {
	TypeName  string
	ArraySize int
	Name      string
}

// IsArray reports whether the field is any kind of array (fixed or
// variable-length).
func (f *Field) IsArray() bool {
	return f.ArraySize != 0
}

// Constant is a named, typed member whose value is fixed by the schema text
// and never consumes message bytes.
type Constant struct {
	TypeName  string
	Name      string
	ValueText string
}

// primitiveTypes is the set of scalar type names that never resolve against
// embedded_types, per the glossary's "primitive scalar types".
var primitiveTypes = map[string]bool{
	"bool": true, "int8": true, "uint8": true, "byte": true, "char": true,
	"int16": true, "uint16": true, "int32": true, "uint32": true,
	"int64": true, "uint64": true, "float32": true, "float64": true,
	"string": true, "time": true, "duration": true,
}

// IsPrimitive reports whether name is a primitive scalar type, short-circuiting
// embedded-type resolution.
func IsPrimitive(name string) bool {
	return primitiveTypes[name]
}

// Resolve looks up a field's type name against this definition's embedded
// types using a two-step rule: an exact match first, then a match after
// stripping a leading "scope/" prefix from typeName.
func (d *Def) Resolve(typeName, scope string) (*EmbeddedDef, bool) {
	for _, e := range d.Embedded {
		if e.TypeName == typeName {
			return e, true
		}
	}
	if scope != "" {
		prefix := scope + "/"
		if stripped := strings.TrimPrefix(typeName, prefix); stripped != typeName {
			for _, e := range d.Embedded {
				if e.TypeName == stripped {
					return e, true
				}
			}
		}
	}
	return nil, false
}
