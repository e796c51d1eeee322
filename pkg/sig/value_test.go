package sig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueTypes(t *testing.T) {
	cases := []struct {
		value Value
		sig   string
	}{
		{Bool(true), "b"},
		{Byte(7), "y"},
		{Int16(-1), "n"},
		{Uint16(1), "q"},
		{Int32(-1), "i"},
		{Uint32(1), "u"},
		{Int64(-1), "x"},
		{Uint64(1), "t"},
		{Double(1.5), "d"},
		{Str("hi"), "s"},
		{ObjectPath("/org"), "o"},
		{SignatureStr("a{sv}"), "g"},
		{Array{Elem: TypeInt32, Items: []Value{Int32(1)}}, "ai"},
		{Struct{Fields: []Value{Int32(1), Str("x")}}, "(is)"},
		{Dict{Key: TypeString, Value: TypeVariant}, "a{sv}"},
		{Variant{Value: Uint32(5)}, "v"},
	}
	for _, c := range cases {
		assert.Equal(t, c.sig, c.value.Type().String())
	}
}

func TestConformsBasic(t *testing.T) {
	assert.True(t, Conforms(Int32(5), TypeInt32))
	assert.False(t, Conforms(Int32(5), TypeUint32))
	assert.False(t, Conforms(Str("5"), TypeInt32))
}

func TestConformsContainers(t *testing.T) {
	ai := MustParseSingle("ai")
	assert.True(t, Conforms(Array{Elem: TypeInt32, Items: []Value{Int32(1), Int32(2)}}, ai))
	// Empty arrays still carry their element type.
	assert.True(t, Conforms(Array{Elem: TypeInt32}, ai))
	assert.False(t, Conforms(Array{Elem: TypeString}, ai))

	st := MustParseSingle("(is)")
	assert.True(t, Conforms(Struct{Fields: []Value{Int32(1), Str("a")}}, st))
	assert.False(t, Conforms(Struct{Fields: []Value{Int32(1)}}, st))
	assert.False(t, Conforms(Struct{Fields: []Value{Str("a"), Int32(1)}}, st))

	dt := MustParseSingle("a{su}")
	d := Dict{Key: TypeString, Value: TypeUint32, Entries: []DictEntry{
		{Key: Str("a"), Value: Uint32(1)},
	}}
	assert.True(t, Conforms(d, dt))
	assert.False(t, Conforms(d, MustParseSingle("a{si}")))

	// Variants conform regardless of inner type.
	assert.True(t, Conforms(Variant{Value: Str("x")}, TypeVariant))
	assert.False(t, Conforms(Str("x"), TypeVariant))
}

func TestConformsAll(t *testing.T) {
	types, err := Parse("iis")
	require.NoError(t, err)
	assert.True(t, ConformsAll([]Value{Int32(1), Int32(2), Str("x")}, types))
	assert.False(t, ConformsAll([]Value{Int32(1), Int32(2)}, types))
	assert.False(t, ConformsAll([]Value{Int32(1), Str("x"), Int32(2)}, types))
}

func TestValueString(t *testing.T) {
	cases := map[string]Value{
		"true":             Bool(true),
		"-42":              Int32(-42),
		"1.5":              Double(1.5),
		`"hi there"`:       Str("hi there"),
		`"a\"b"`:           Str(`a"b`),
		"[1, 2]":           Array{Elem: TypeInt32, Items: []Value{Int32(1), Int32(2)}},
		"[]":               Array{Elem: TypeInt32},
		`(1, "x")`:         Struct{Fields: []Value{Int32(1), Str("x")}},
		`{"k": 1}`:         Dict{Key: TypeString, Value: TypeUint32, Entries: []DictEntry{{Key: Str("k"), Value: Uint32(1)}}},
		"<u>5":             Variant{Value: Uint32(5)},
		"<as>[\"a\"]":      Variant{Value: Array{Elem: TypeString, Items: []Value{Str("a")}}},
		`"/org/test"`:      ObjectPath("/org/test"),
	}
	for want, v := range cases {
		assert.Equal(t, want, v.String())
	}
}
