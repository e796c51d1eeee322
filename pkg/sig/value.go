package sig

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is the tagged union mirroring the type grammar. The set of
// implementations is closed; constructing a value whose shape does not match
// any Type is not representable. Values are displayed in the same literal
// grammar the parser accepts, so outcomes round-trip visually.
type Value interface {
	// Type returns the unique Type this value conforms to.
	Type() Type
	// String renders the value in the textual literal grammar.
	String() string

	sealed()
}

type (
	// Bool is a boolean value ("b").
	Bool bool
	// Byte is an unsigned 8-bit integer ("y").
	Byte uint8
	// Int16 is a signed 16-bit integer ("n").
	Int16 int16
	// Uint16 is an unsigned 16-bit integer ("q").
	Uint16 uint16
	// Int32 is a signed 32-bit integer ("i").
	Int32 int32
	// Uint32 is an unsigned 32-bit integer ("u").
	Uint32 uint32
	// Int64 is a signed 64-bit integer ("x").
	Int64 int64
	// Uint64 is an unsigned 64-bit integer ("t").
	Uint64 uint64
	// Double is an IEEE 754 double ("d").
	Double float64
	// Str is a string value ("s").
	Str string
	// ObjectPath is a validated object path ("o").
	ObjectPath string
	// SignatureStr is a validated signature string value ("g").
	SignatureStr string
)

func (Bool) sealed()         {}
func (Byte) sealed()         {}
func (Int16) sealed()        {}
func (Uint16) sealed()       {}
func (Int32) sealed()        {}
func (Uint32) sealed()       {}
func (Int64) sealed()        {}
func (Uint64) sealed()       {}
func (Double) sealed()       {}
func (Str) sealed()          {}
func (ObjectPath) sealed()   {}
func (SignatureStr) sealed() {}

func (Bool) Type() Type         { return TypeBool }
func (Byte) Type() Type         { return TypeByte }
func (Int16) Type() Type        { return TypeInt16 }
func (Uint16) Type() Type       { return TypeUint16 }
func (Int32) Type() Type        { return TypeInt32 }
func (Uint32) Type() Type       { return TypeUint32 }
func (Int64) Type() Type        { return TypeInt64 }
func (Uint64) Type() Type       { return TypeUint64 }
func (Double) Type() Type       { return TypeDouble }
func (Str) Type() Type          { return TypeString }
func (ObjectPath) Type() Type   { return TypeObjectPath }
func (SignatureStr) Type() Type { return TypeSignature }

func (v Bool) String() string {
	if v {
		return "true"
	}
	return "false"
}

func (v Byte) String() string   { return strconv.FormatUint(uint64(v), 10) }
func (v Int16) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Uint16) String() string { return strconv.FormatUint(uint64(v), 10) }
func (v Int32) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Uint32) String() string { return strconv.FormatUint(uint64(v), 10) }
func (v Int64) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Uint64) String() string { return strconv.FormatUint(uint64(v), 10) }

func (v Double) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

func (v Str) String() string          { return strconv.Quote(string(v)) }
func (v ObjectPath) String() string   { return strconv.Quote(string(v)) }
func (v SignatureStr) String() string { return strconv.Quote(string(v)) }

// Array is a homogeneous sequence ("a?"). Elem is kept explicitly so that
// empty arrays still carry their element type.
type Array struct {
	Elem  Type
	Items []Value
}

func (Array) sealed() {}

func (v Array) Type() Type { return ArrayOf(v.Elem) }

func (v Array) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, it := range v.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(it.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Struct is a fixed-arity heterogeneous sequence ("(...)"). It is never
// empty; the signature grammar forbids zero-field structs.
type Struct struct {
	Fields []Value
}

func (Struct) sealed() {}

func (v Struct) Type() Type {
	fields := make([]Type, len(v.Fields))
	for i, f := range v.Fields {
		fields[i] = f.Type()
	}
	return StructOf(fields...)
}

func (v Struct) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, f := range v.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// DictEntry is one key/value pair of a Dict.
type DictEntry struct {
	Key   Value
	Value Value
}

// Dict is an ordered sequence of key/value pairs ("a{kv}"). Entry order is
// preserved as entered or received; keys are basic-typed.
type Dict struct {
	Key     Type
	Value   Type
	Entries []DictEntry
}

func (Dict) sealed() {}

func (v Dict) Type() Type { return DictOf(v.Key, v.Value) }

func (v Dict) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range v.Entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Key.String())
		sb.WriteString(": ")
		sb.WriteString(e.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Variant boxes a value together with its own type ("v").
type Variant struct {
	Value Value
}

func (Variant) sealed() {}

func (v Variant) Type() Type { return TypeVariant }

func (v Variant) String() string {
	return fmt.Sprintf("<%s>%s", v.Value.Type(), v.Value)
}

// Conforms reports whether v's runtime shape matches t exactly. It is the
// precondition gate used before any value is handed to the transport.
func Conforms(v Value, t Type) bool {
	switch t.Kind {
	case KindVariant:
		_, ok := v.(Variant)
		return ok
	case KindArray:
		a, ok := v.(Array)
		if !ok || !a.Elem.Equal(*t.Elem) {
			return false
		}
		for _, it := range a.Items {
			if !Conforms(it, *t.Elem) {
				return false
			}
		}
		return true
	case KindDict:
		d, ok := v.(Dict)
		if !ok || !d.Key.Equal(*t.Key) || !d.Value.Equal(*t.Value) {
			return false
		}
		for _, e := range d.Entries {
			if !Conforms(e.Key, *t.Key) || !Conforms(e.Value, *t.Value) {
				return false
			}
		}
		return true
	case KindStruct:
		s, ok := v.(Struct)
		if !ok || len(s.Fields) != len(t.Fields) {
			return false
		}
		for i, f := range s.Fields {
			if !Conforms(f, t.Fields[i]) {
				return false
			}
		}
		return true
	default:
		return v.Type().Kind == t.Kind
	}
}

// ConformsAll reports whether values matches types position by position.
func ConformsAll(values []Value, types Signature) bool {
	if len(values) != len(types) {
		return false
	}
	for i, v := range values {
		if !Conforms(v, types[i]) {
			return false
		}
	}
	return true
}

// ValidObjectPath reports whether s satisfies the object path grammar:
// "/" or "/"-separated non-empty segments of [A-Za-z0-9_].
func ValidObjectPath(s string) bool {
	if s == "/" {
		return true
	}
	if s == "" || s[0] != '/' || strings.HasSuffix(s, "/") {
		return false
	}
	for _, seg := range strings.Split(s[1:], "/") {
		if seg == "" {
			return false
		}
		for _, c := range seg {
			switch {
			case c >= 'a' && c <= 'z':
			case c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
			case c == '_':
			default:
				return false
			}
		}
	}
	return true
}
