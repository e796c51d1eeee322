// Package sig models the D-Bus type system: the compact signature grammar
// ("a{sv}", "(ii)", ...) parsed into a structural Type tree, and the Value
// tagged union that mirrors it. Every value that leaves this process is
// gated through Conforms against its target Type first.
package sig

import (
	"errors"
	"fmt"
	"strings"
)

// MaxDepth bounds container nesting during signature parsing. The grammar is
// recursive; a hostile signature must not translate into unbounded recursion.
const MaxDepth = 32

// ErrTooDeep is wrapped by ParseError when a signature nests containers
// beyond MaxDepth.
var ErrTooDeep = errors.New("signature nests too deeply")

// Kind identifies one alternative of the type grammar. The set is closed:
// switches over Kind are expected to be exhaustive.
type Kind byte

const (
	KindInvalid Kind = iota
	KindByte
	KindBool
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindObjectPath
	KindSignature
	KindUnixFD
	KindVariant
	KindArray
	KindDict
	KindStruct
)

// kindNames are human-readable names used in error messages.
var kindNames = map[Kind]string{
	KindInvalid:    "invalid",
	KindByte:       "byte",
	KindBool:       "bool",
	KindInt16:      "int16",
	KindUint16:     "uint16",
	KindInt32:      "int32",
	KindUint32:     "uint32",
	KindInt64:      "int64",
	KindUint64:     "uint64",
	KindDouble:     "double",
	KindString:     "string",
	KindObjectPath: "object path",
	KindSignature:  "signature",
	KindUnixFD:     "unix fd",
	KindVariant:    "variant",
	KindArray:      "array",
	KindDict:       "dict",
	KindStruct:     "struct",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// Basic reports whether the kind is a basic (non-container) type. Only basic
// kinds may key a dict entry.
func (k Kind) Basic() bool {
	switch k {
	case KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
		KindInt64, KindUint64, KindDouble, KindString, KindObjectPath,
		KindSignature, KindUnixFD:
		return true
	}
	return false
}

// Type is one complete type from the signature grammar. Exactly the fields
// relevant to Kind are set: Elem for arrays, Key/Value for dicts (always
// inside arrays on the wire, but a dict array is represented as KindDict
// directly), Fields for structs. Types are immutable once parsed; treat them
// as values.
type Type struct {
	Kind   Kind
	Elem   *Type  // KindArray
	Key    *Type  // KindDict
	Value  *Type  // KindDict
	Fields []Type // KindStruct
}

// Convenience prototypes for the basic types.
var (
	TypeByte       = Type{Kind: KindByte}
	TypeBool       = Type{Kind: KindBool}
	TypeInt16      = Type{Kind: KindInt16}
	TypeUint16     = Type{Kind: KindUint16}
	TypeInt32      = Type{Kind: KindInt32}
	TypeUint32     = Type{Kind: KindUint32}
	TypeInt64      = Type{Kind: KindInt64}
	TypeUint64     = Type{Kind: KindUint64}
	TypeDouble     = Type{Kind: KindDouble}
	TypeString     = Type{Kind: KindString}
	TypeObjectPath = Type{Kind: KindObjectPath}
	TypeSignature  = Type{Kind: KindSignature}
	TypeUnixFD     = Type{Kind: KindUnixFD}
	TypeVariant    = Type{Kind: KindVariant}
)

// ArrayOf returns the array type with the given element type.
func ArrayOf(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// DictOf returns the dict type a{kv}. The key must be basic; this is
// enforced by Parse, and callers constructing types directly are expected to
// uphold it.
func DictOf(key, value Type) Type {
	return Type{Kind: KindDict, Key: &key, Value: &value}
}

// StructOf returns the struct type with the given field types.
func StructOf(fields ...Type) Type {
	return Type{Kind: KindStruct, Fields: fields}
}

// String renders the type back to the signature grammar. Parsing the result
// yields a structurally equal Type.
func (t Type) String() string {
	var sb strings.Builder
	t.render(&sb)
	return sb.String()
}

func (t Type) render(sb *strings.Builder) {
	switch t.Kind {
	case KindByte:
		sb.WriteByte('y')
	case KindBool:
		sb.WriteByte('b')
	case KindInt16:
		sb.WriteByte('n')
	case KindUint16:
		sb.WriteByte('q')
	case KindInt32:
		sb.WriteByte('i')
	case KindUint32:
		sb.WriteByte('u')
	case KindInt64:
		sb.WriteByte('x')
	case KindUint64:
		sb.WriteByte('t')
	case KindDouble:
		sb.WriteByte('d')
	case KindString:
		sb.WriteByte('s')
	case KindObjectPath:
		sb.WriteByte('o')
	case KindSignature:
		sb.WriteByte('g')
	case KindUnixFD:
		sb.WriteByte('h')
	case KindVariant:
		sb.WriteByte('v')
	case KindArray:
		sb.WriteByte('a')
		t.Elem.render(sb)
	case KindDict:
		sb.WriteString("a{")
		t.Key.render(sb)
		t.Value.render(sb)
		sb.WriteByte('}')
	case KindStruct:
		sb.WriteByte('(')
		for _, f := range t.Fields {
			f.render(sb)
		}
		sb.WriteByte(')')
	}
}

// Equal reports structural equality.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		return t.Elem.Equal(*other.Elem)
	case KindDict:
		return t.Key.Equal(*other.Key) && t.Value.Equal(*other.Value)
	case KindStruct:
		if len(t.Fields) != len(other.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].Equal(other.Fields[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// Signature is an ordered sequence of complete types, e.g. the in-arguments
// of a method.
type Signature []Type

// String renders the signature back to the grammar.
func (s Signature) String() string {
	var sb strings.Builder
	for _, t := range s {
		t.render(&sb)
	}
	return sb.String()
}

// Equal reports structural equality of two signatures.
func (s Signature) Equal(other Signature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !s[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// ParseError reports a malformed signature. Offset is the byte position of
// the offending code.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
	err    error // optional sentinel, e.g. ErrTooDeep
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed signature %q at offset %d: %s", e.Input, e.Offset, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.err }

// Parse validates and parses a signature string into its sequence of
// complete types. Malformed input is rejected with a *ParseError carrying
// the byte offset; it is never coerced.
func Parse(input string) (Signature, error) {
	p := &sigParser{input: input}
	var out Signature
	for p.pos < len(p.input) {
		t, err := p.parseOne(0)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseSingle parses a signature that must contain exactly one complete
// type, as found in introspection "type" attributes.
func ParseSingle(input string) (Type, error) {
	s, err := Parse(input)
	if err != nil {
		return Type{}, err
	}
	if len(s) != 1 {
		return Type{}, &ParseError{Input: input, Offset: 0, Msg: fmt.Sprintf("expected a single complete type, got %d", len(s))}
	}
	return s[0], nil
}

// MustParseSingle is ParseSingle for known-good literals in tests and tables.
func MustParseSingle(input string) Type {
	t, err := ParseSingle(input)
	if err != nil {
		panic(err)
	}
	return t
}

type sigParser struct {
	input string
	pos   int
}

func (p *sigParser) errorf(offset int, format string, args ...any) error {
	return &ParseError{Input: p.input, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func (p *sigParser) parseOne(depth int) (Type, error) {
	if depth > MaxDepth {
		return Type{}, &ParseError{Input: p.input, Offset: p.pos, Msg: ErrTooDeep.Error(), err: ErrTooDeep}
	}
	if p.pos >= len(p.input) {
		return Type{}, p.errorf(p.pos, "unexpected end of signature")
	}

	start := p.pos
	c := p.input[p.pos]
	p.pos++

	switch c {
	case 'y':
		return TypeByte, nil
	case 'b':
		return TypeBool, nil
	case 'n':
		return TypeInt16, nil
	case 'q':
		return TypeUint16, nil
	case 'i':
		return TypeInt32, nil
	case 'u':
		return TypeUint32, nil
	case 'x':
		return TypeInt64, nil
	case 't':
		return TypeUint64, nil
	case 'd':
		return TypeDouble, nil
	case 's':
		return TypeString, nil
	case 'o':
		return TypeObjectPath, nil
	case 'g':
		return TypeSignature, nil
	case 'h':
		return TypeUnixFD, nil
	case 'v':
		return TypeVariant, nil
	case 'a':
		return p.parseArray(start, depth)
	case '(':
		return p.parseStruct(start, depth)
	case '{':
		return Type{}, p.errorf(start, "dict entry outside of array")
	case ')':
		return Type{}, p.errorf(start, "unmatched ')'")
	case '}':
		return Type{}, p.errorf(start, "unmatched '}'")
	default:
		return Type{}, p.errorf(start, "unknown type code %q", string(c))
	}
}

func (p *sigParser) parseArray(start, depth int) (Type, error) {
	if p.pos >= len(p.input) {
		return Type{}, p.errorf(start, "array without element type")
	}
	if p.input[p.pos] == '{' {
		p.pos++
		return p.parseDictEntry(depth)
	}
	elem, err := p.parseOne(depth + 1)
	if err != nil {
		return Type{}, err
	}
	return ArrayOf(elem), nil
}

func (p *sigParser) parseDictEntry(depth int) (Type, error) {
	keyStart := p.pos
	key, err := p.parseOne(depth + 1)
	if err != nil {
		return Type{}, err
	}
	if !key.Kind.Basic() {
		return Type{}, p.errorf(keyStart, "dict key must be a basic type, got %s", key.Kind)
	}
	value, err := p.parseOne(depth + 1)
	if err != nil {
		return Type{}, err
	}
	if p.pos >= len(p.input) || p.input[p.pos] != '}' {
		return Type{}, p.errorf(p.pos, "dict entry must contain exactly one key and one value")
	}
	p.pos++
	return DictOf(key, value), nil
}

func (p *sigParser) parseStruct(start, depth int) (Type, error) {
	var fields []Type
	for {
		if p.pos >= len(p.input) {
			return Type{}, p.errorf(start, "unterminated struct")
		}
		if p.input[p.pos] == ')' {
			p.pos++
			if len(fields) == 0 {
				return Type{}, p.errorf(start, "empty struct")
			}
			return StructOf(fields...), nil
		}
		f, err := p.parseOne(depth + 1)
		if err != nil {
			return Type{}, err
		}
		fields = append(fields, f)
	}
}
