// Package literal converts operator-typed text into a sig.Value conforming
// to a known target type. The parse is signature-directed: the target type is
// consumed left to right and only the syntax valid for the expected type is
// accepted, so "5" is a byte against "y" and an int64 against "x", never a
// guess.
//
// Grammar:
//   - booleans: true / false
//   - integers: decimal digits, optional leading '-' for signed widths;
//     range-checked against the declared width
//   - doubles: decimal with optional fraction and exponent
//   - strings: double-quoted, escapes \\ \" \/ \b \f \n \r \t \uXXXX
//   - object paths and signatures: quoted like strings, then validated
//   - arrays: [elem, elem, ...]; [] is the empty array
//   - structs: (v1, v2, ...); arity must match the struct exactly
//   - dicts: {key: value, ...}; keys are basic-typed
//   - variants: <signature>value, e.g. <u>5 or <as>["x"]
//
// Whitespace is permitted around any token. Unix file descriptors have no
// literal form and always fail. Parsing is total: malformed input returns a
// *ParseError carrying the byte offset and the expected type, and never a
// partial value.
package literal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/busline/dscope/pkg/sig"
)

// Sentinel error kinds, matchable with errors.Is through *ParseError.
var (
	// ErrIntegerOutOfRange marks an integer literal that does not fit the
	// declared width or sign.
	ErrIntegerOutOfRange = errors.New("integer out of range")
	// ErrArityMismatch marks a struct literal whose field count differs
	// from the struct type.
	ErrArityMismatch = errors.New("wrong number of struct fields")
	// ErrTrailingInput marks leftover text after a complete value.
	ErrTrailingInput = errors.New("trailing input after value")
	// ErrUnparseable marks types with no literal form (unix fds).
	ErrUnparseable = errors.New("type has no literal form")
)

// ParseError reports why and where a literal failed to parse.
type ParseError struct {
	Offset   int    // byte offset into the input
	Expected string // description of what was expected, e.g. "int32"
	Msg      string
	err      error
}

func (e *ParseError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("offset %d: expected %s: %s", e.Offset, e.Expected, e.Msg)
	}
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.err }

// Parse parses input as a single value of type t. The whole input must be
// consumed; trailing non-space text fails with ErrTrailingInput.
func Parse(input string, t sig.Type) (sig.Value, error) {
	p := &parser{input: input}
	v, err := p.parseValue(t)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, p.wrap(p.pos, "", ErrTrailingInput, "%q left over", p.input[p.pos:])
	}
	return v, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(offset int, expected, format string, args ...any) error {
	return &ParseError{Offset: offset, Expected: expected, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) wrap(offset int, expected string, sentinel error, format string, args ...any) error {
	return &ParseError{Offset: offset, Expected: expected, Msg: fmt.Sprintf(format, args...), err: sentinel}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// eat consumes c if it is next, reporting success.
func (p *parser) eat(c byte) bool {
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseValue(t sig.Type) (sig.Value, error) {
	p.skipSpace()
	switch t.Kind {
	case sig.KindBool:
		return p.parseBool()
	case sig.KindByte, sig.KindUint16, sig.KindUint32, sig.KindUint64:
		return p.parseUnsigned(t.Kind)
	case sig.KindInt16, sig.KindInt32, sig.KindInt64:
		return p.parseSigned(t.Kind)
	case sig.KindDouble:
		return p.parseDouble()
	case sig.KindString:
		s, err := p.parseQuoted("string")
		if err != nil {
			return nil, err
		}
		return sig.Str(s), nil
	case sig.KindObjectPath:
		return p.parseObjectPath()
	case sig.KindSignature:
		return p.parseSignatureStr()
	case sig.KindVariant:
		return p.parseVariant()
	case sig.KindArray:
		return p.parseArray(t)
	case sig.KindDict:
		return p.parseDict(t)
	case sig.KindStruct:
		return p.parseStruct(t)
	case sig.KindUnixFD:
		return nil, p.wrap(p.pos, "unix fd", ErrUnparseable, "file descriptors cannot be entered")
	default:
		return nil, p.errorf(p.pos, t.Kind.String(), "unsupported type")
	}
}

func (p *parser) parseBool() (sig.Value, error) {
	start := p.pos
	if strings.HasPrefix(p.input[p.pos:], "true") {
		p.pos += 4
		return sig.Bool(true), nil
	}
	if strings.HasPrefix(p.input[p.pos:], "false") {
		p.pos += 5
		return sig.Bool(false), nil
	}
	return nil, p.errorf(start, "bool", "want true or false")
}

// digits consumes a run of decimal digits, optionally preceded by a minus
// sign when neg is allowed, returning the consumed text.
func (p *parser) digits(neg bool) (string, int) {
	start := p.pos
	if neg && p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	return p.input[start:p.pos], start
}

func (p *parser) parseUnsigned(kind sig.Kind) (sig.Value, error) {
	text, start := p.digits(false)
	if text == "" {
		return nil, p.errorf(start, kind.String(), "want decimal digits")
	}
	bits := map[sig.Kind]int{sig.KindByte: 8, sig.KindUint16: 16, sig.KindUint32: 32, sig.KindUint64: 64}[kind]
	n, err := strconv.ParseUint(text, 10, bits)
	if err != nil {
		return nil, p.wrap(start, kind.String(), ErrIntegerOutOfRange, "%q does not fit %d unsigned bits", text, bits)
	}
	switch kind {
	case sig.KindByte:
		return sig.Byte(n), nil
	case sig.KindUint16:
		return sig.Uint16(n), nil
	case sig.KindUint32:
		return sig.Uint32(n), nil
	default:
		return sig.Uint64(n), nil
	}
}

func (p *parser) parseSigned(kind sig.Kind) (sig.Value, error) {
	text, start := p.digits(true)
	if text == "" || text == "-" {
		return nil, p.errorf(start, kind.String(), "want decimal digits")
	}
	bits := map[sig.Kind]int{sig.KindInt16: 16, sig.KindInt32: 32, sig.KindInt64: 64}[kind]
	n, err := strconv.ParseInt(text, 10, bits)
	if err != nil {
		return nil, p.wrap(start, kind.String(), ErrIntegerOutOfRange, "%q does not fit %d signed bits", text, bits)
	}
	switch kind {
	case sig.KindInt16:
		return sig.Int16(n), nil
	case sig.KindInt32:
		return sig.Int32(n), nil
	default:
		return sig.Int64(n), nil
	}
}

func (p *parser) parseDouble() (sig.Value, error) {
	start := p.pos
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
	}
	digitRun := func() bool {
		n := 0
		for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
			p.pos++
			n++
		}
		return n > 0
	}
	if !digitRun() {
		p.pos = start
		return nil, p.errorf(start, "double", "want decimal number")
	}
	if p.eat('.') {
		if !digitRun() {
			return nil, p.errorf(p.pos, "double", "want digits after decimal point")
		}
	}
	if p.pos < len(p.input) && (p.input[p.pos] == 'e' || p.input[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.input) && (p.input[p.pos] == '+' || p.input[p.pos] == '-') {
			p.pos++
		}
		if !digitRun() {
			return nil, p.errorf(p.pos, "double", "want exponent digits")
		}
	}
	f, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, p.errorf(start, "double", "%v", err)
	}
	return sig.Double(f), nil
}

// parseQuoted parses a double-quoted string with escape handling.
func (p *parser) parseQuoted(expected string) (string, error) {
	start := p.pos
	if !p.eat('"') {
		return "", p.errorf(start, expected, "want opening quote")
	}
	var sb strings.Builder
	for {
		if p.pos >= len(p.input) {
			return "", p.errorf(start, expected, "unterminated string")
		}
		c := p.input[p.pos]
		switch c {
		case '"':
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return "", p.errorf(p.pos, expected, "unterminated escape")
			}
			esc := p.input[p.pos]
			p.pos++
			switch esc {
			case '\\', '/', '"':
				sb.WriteByte(esc)
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'u':
				if p.pos+4 > len(p.input) {
					return "", p.errorf(p.pos, expected, "want 4 hex digits after \\u")
				}
				hex := p.input[p.pos : p.pos+4]
				n, err := strconv.ParseUint(hex, 16, 32)
				if err != nil {
					return "", p.errorf(p.pos, expected, "invalid unicode escape %q", hex)
				}
				p.pos += 4
				if !utf8.ValidRune(rune(n)) {
					sb.WriteRune(utf8.RuneError)
				} else {
					sb.WriteRune(rune(n))
				}
			default:
				return "", p.errorf(p.pos-1, expected, "unknown escape \\%c", esc)
			}
		default:
			_, size := utf8.DecodeRuneInString(p.input[p.pos:])
			sb.WriteString(p.input[p.pos : p.pos+size])
			p.pos += size
		}
	}
}

func (p *parser) parseObjectPath() (sig.Value, error) {
	start := p.pos
	s, err := p.parseQuoted("object path")
	if err != nil {
		return nil, err
	}
	if !sig.ValidObjectPath(s) {
		return nil, p.errorf(start, "object path", "%q is not a valid object path", s)
	}
	return sig.ObjectPath(s), nil
}

func (p *parser) parseSignatureStr() (sig.Value, error) {
	start := p.pos
	s, err := p.parseQuoted("signature")
	if err != nil {
		return nil, err
	}
	if _, err := sig.Parse(s); err != nil {
		return nil, p.errorf(start, "signature", "%q is not a valid signature", s)
	}
	return sig.SignatureStr(s), nil
}

// parseVariant reads <signature>value: the explicit inner signature prefix
// disambiguates the wrapped type.
func (p *parser) parseVariant() (sig.Value, error) {
	start := p.pos
	if !p.eat('<') {
		return nil, p.errorf(start, "variant", "want '<signature>value'")
	}
	end := strings.IndexByte(p.input[p.pos:], '>')
	if end < 0 {
		return nil, p.errorf(start, "variant", "unterminated signature prefix")
	}
	sigText := strings.TrimSpace(p.input[p.pos : p.pos+end])
	inner, err := sig.ParseSingle(sigText)
	if err != nil {
		return nil, p.errorf(p.pos, "variant", "bad inner signature %q: %v", sigText, err)
	}
	p.pos += end + 1
	v, err := p.parseValue(inner)
	if err != nil {
		return nil, err
	}
	return sig.Variant{Value: v}, nil
}

func (p *parser) parseArray(t sig.Type) (sig.Value, error) {
	start := p.pos
	if !p.eat('[') {
		return nil, p.errorf(start, t.String(), "want '['")
	}
	arr := sig.Array{Elem: *t.Elem}
	p.skipSpace()
	if p.eat(']') {
		return arr, nil
	}
	for {
		v, err := p.parseValue(*t.Elem)
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, v)
		p.skipSpace()
		if p.eat(']') {
			return arr, nil
		}
		if !p.eat(',') {
			return nil, p.errorf(p.pos, t.String(), "want ',' or ']'")
		}
	}
}

func (p *parser) parseDict(t sig.Type) (sig.Value, error) {
	start := p.pos
	if !p.eat('{') {
		return nil, p.errorf(start, t.String(), "want '{'")
	}
	d := sig.Dict{Key: *t.Key, Value: *t.Value}
	p.skipSpace()
	if p.eat('}') {
		return d, nil
	}
	for {
		k, err := p.parseValue(*t.Key)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.eat(':') {
			return nil, p.errorf(p.pos, t.String(), "want ':' after dict key")
		}
		v, err := p.parseValue(*t.Value)
		if err != nil {
			return nil, err
		}
		d.Entries = append(d.Entries, sig.DictEntry{Key: k, Value: v})
		p.skipSpace()
		if p.eat('}') {
			return d, nil
		}
		if !p.eat(',') {
			return nil, p.errorf(p.pos, t.String(), "want ',' or '}'")
		}
	}
}

func (p *parser) parseStruct(t sig.Type) (sig.Value, error) {
	start := p.pos
	if !p.eat('(') {
		return nil, p.errorf(start, t.String(), "want '('")
	}
	st := sig.Struct{}
	for i, field := range t.Fields {
		if i > 0 {
			p.skipSpace()
			if !p.eat(',') {
				if p.pos < len(p.input) && p.input[p.pos] == ')' {
					return nil, p.wrap(p.pos, t.String(), ErrArityMismatch, "got %d fields, want %d", i, len(t.Fields))
				}
				return nil, p.errorf(p.pos, t.String(), "want ',' between struct fields")
			}
		}
		v, err := p.parseValue(field)
		if err != nil {
			return nil, err
		}
		st.Fields = append(st.Fields, v)
	}
	p.skipSpace()
	if !p.eat(')') {
		if p.eat(',') {
			return nil, p.wrap(p.pos-1, t.String(), ErrArityMismatch, "more than %d fields", len(t.Fields))
		}
		return nil, p.errorf(p.pos, t.String(), "want ')'")
	}
	return st, nil
}
