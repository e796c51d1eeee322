package sig

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicTypes(t *testing.T) {
	for code, kind := range map[string]Kind{
		"y": KindByte, "b": KindBool, "n": KindInt16, "q": KindUint16,
		"i": KindInt32, "u": KindUint32, "x": KindInt64, "t": KindUint64,
		"d": KindDouble, "s": KindString, "o": KindObjectPath,
		"g": KindSignature, "h": KindUnixFD, "v": KindVariant,
	} {
		s, err := Parse(code)
		require.NoError(t, err, code)
		require.Len(t, s, 1)
		assert.Equal(t, kind, s[0].Kind)
	}
}

func TestParseContainers(t *testing.T) {
	s, err := Parse("a{sv}")
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, KindDict, s[0].Kind)
	assert.Equal(t, KindString, s[0].Key.Kind)
	assert.Equal(t, KindVariant, s[0].Value.Kind)

	s, err = Parse("(iai)")
	require.NoError(t, err)
	require.Len(t, s, 1)
	require.Equal(t, KindStruct, s[0].Kind)
	require.Len(t, s[0].Fields, 2)
	assert.Equal(t, KindInt32, s[0].Fields[0].Kind)
	assert.Equal(t, KindArray, s[0].Fields[1].Kind)
	assert.Equal(t, KindInt32, s[0].Fields[1].Elem.Kind)
}

func TestParseMultipleCompleteTypes(t *testing.T) {
	s, err := Parse("iias")
	require.NoError(t, err)
	require.Len(t, s, 3)
	assert.Equal(t, KindArray, s[2].Kind)
	assert.Equal(t, KindString, s[2].Elem.Kind)
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]int{
		"z":    0, // unknown code
		"a":    0, // array without element
		"(ii":  0, // unterminated struct
		"()":   0, // empty struct
		"{sv}": 0, // dict entry outside array
		"a{vs}": 2, // non-basic key
		"a{s}":  3, // missing value
		"i)":    1, // stray close
	}
	for input, offset := range cases {
		_, err := Parse(input)
		require.Error(t, err, input)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, input)
		assert.Equal(t, offset, pe.Offset, input)
	}
}

func TestParseTooDeep(t *testing.T) {
	deep := strings.Repeat("a", MaxDepth+2) + "i"
	_, err := Parse(deep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooDeep))

	// Nesting at the limit is still fine.
	ok := strings.Repeat("a", MaxDepth-1) + "i"
	_, err = Parse(ok)
	assert.NoError(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, input := range []string{
		"", "i", "ii", "as", "a{sv}", "(ii)", "(i(si))", "aa{s(iv)}",
		"a{oa{sa{sv}}}", "v", "ho", "(so)a{us}bd",
	} {
		s, err := Parse(input)
		require.NoError(t, err, input)
		assert.Equal(t, input, s.String(), input)

		again, err := Parse(s.String())
		require.NoError(t, err, input)
		assert.True(t, s.Equal(again), input)
	}
}

func TestEqualStructural(t *testing.T) {
	a := MustParseSingle("a{s(ii)}")
	b := MustParseSingle("a{s(ii)}")
	c := MustParseSingle("a{s(iu)}")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, TypeInt32.Equal(TypeUint32))
}

func TestParseSingle(t *testing.T) {
	_, err := ParseSingle("ii")
	assert.Error(t, err)

	ty, err := ParseSingle("a{sv}")
	require.NoError(t, err)
	assert.Equal(t, KindDict, ty.Kind)
}

func TestValidObjectPath(t *testing.T) {
	for _, good := range []string{"/", "/org", "/org/freedesktop/DBus", "/a_b/c1"} {
		assert.True(t, ValidObjectPath(good), good)
	}
	for _, bad := range []string{"", "//", "/org/", "org", "/or-g", "/a b"} {
		assert.False(t, ValidObjectPath(bad), bad)
	}
}
