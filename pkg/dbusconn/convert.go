package dbusconn

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/busline/dscope/pkg/sig"
)

// ErrUnixFD is returned when a reply or signal carries a file descriptor.
// Descriptors cannot cross into the value model, they are process-local.
var ErrUnixFD = errors.New("unix fd values are not supported")

var (
	objectPathType = reflect.TypeOf(dbus.ObjectPath(""))
	signatureType  = reflect.TypeOf(dbus.Signature{})
	variantType    = reflect.TypeOf(dbus.Variant{})
	unixFDType     = reflect.TypeOf(dbus.UnixFD(0))
)

// nativeType maps a wire type to the Go type godbus marshals it from.
func nativeType(t sig.Type) (reflect.Type, error) {
	switch t.Kind {
	case sig.KindByte:
		return reflect.TypeOf(byte(0)), nil
	case sig.KindBool:
		return reflect.TypeOf(false), nil
	case sig.KindInt16:
		return reflect.TypeOf(int16(0)), nil
	case sig.KindUint16:
		return reflect.TypeOf(uint16(0)), nil
	case sig.KindInt32:
		return reflect.TypeOf(int32(0)), nil
	case sig.KindUint32:
		return reflect.TypeOf(uint32(0)), nil
	case sig.KindInt64:
		return reflect.TypeOf(int64(0)), nil
	case sig.KindUint64:
		return reflect.TypeOf(uint64(0)), nil
	case sig.KindDouble:
		return reflect.TypeOf(float64(0)), nil
	case sig.KindString:
		return reflect.TypeOf(""), nil
	case sig.KindObjectPath:
		return objectPathType, nil
	case sig.KindSignature:
		return signatureType, nil
	case sig.KindUnixFD:
		return unixFDType, nil
	case sig.KindVariant:
		return variantType, nil
	case sig.KindArray:
		elem, err := nativeType(*t.Elem)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case sig.KindDict:
		key, err := nativeType(*t.Key)
		if err != nil {
			return nil, err
		}
		val, err := nativeType(*t.Value)
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(key, val), nil
	case sig.KindStruct:
		fields := make([]reflect.StructField, len(t.Fields))
		for i, f := range t.Fields {
			ft, err := nativeType(f)
			if err != nil {
				return nil, err
			}
			fields[i] = reflect.StructField{
				Name: fmt.Sprintf("F%d", i),
				Type: ft,
			}
		}
		return reflect.StructOf(fields), nil
	}
	return nil, fmt.Errorf("no native representation for %s", t.Kind)
}

// Encode turns a value into the native representation godbus marshals.
func Encode(v sig.Value) (interface{}, error) {
	switch x := v.(type) {
	case sig.Byte:
		return byte(x), nil
	case sig.Bool:
		return bool(x), nil
	case sig.Int16:
		return int16(x), nil
	case sig.Uint16:
		return uint16(x), nil
	case sig.Int32:
		return int32(x), nil
	case sig.Uint32:
		return uint32(x), nil
	case sig.Int64:
		return int64(x), nil
	case sig.Uint64:
		return uint64(x), nil
	case sig.Double:
		return float64(x), nil
	case sig.Str:
		return string(x), nil
	case sig.ObjectPath:
		return dbus.ObjectPath(x), nil
	case sig.SignatureStr:
		return dbus.ParseSignature(string(x))
	case sig.Variant:
		inner, err := Encode(x.Value)
		if err != nil {
			return nil, err
		}
		s, err := dbus.ParseSignature(x.Value.Type().String())
		if err != nil {
			return nil, err
		}
		return dbus.MakeVariantWithSignature(inner, s), nil
	case sig.Array:
		st, err := nativeType(sig.ArrayOf(x.Elem))
		if err != nil {
			return nil, err
		}
		out := reflect.MakeSlice(st, 0, len(x.Items))
		for _, item := range x.Items {
			n, err := Encode(item)
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, reflect.ValueOf(n))
		}
		return out.Interface(), nil
	case sig.Dict:
		mt, err := nativeType(v.Type())
		if err != nil {
			return nil, err
		}
		out := reflect.MakeMapWithSize(mt, len(x.Entries))
		for _, e := range x.Entries {
			k, err := Encode(e.Key)
			if err != nil {
				return nil, err
			}
			val, err := Encode(e.Value)
			if err != nil {
				return nil, err
			}
			out.SetMapIndex(reflect.ValueOf(k), reflect.ValueOf(val))
		}
		return out.Interface(), nil
	case sig.Struct:
		st, err := nativeType(v.Type())
		if err != nil {
			return nil, err
		}
		out := reflect.New(st).Elem()
		for i, f := range x.Fields {
			n, err := Encode(f)
			if err != nil {
				return nil, err
			}
			out.Field(i).Set(reflect.ValueOf(n))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("cannot encode %T", v)
}

// EncodeAll encodes a whole argument list.
func EncodeAll(values []sig.Value) ([]interface{}, error) {
	out := make([]interface{}, len(values))
	for i, v := range values {
		n, err := Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Decode interprets a native reply value against its declared wire type.
// godbus hands struct bodies back as []interface{} and containers as typed
// slices and maps, so decoding is driven by the expected type, not by the
// dynamic one.
func Decode(n interface{}, t sig.Type) (sig.Value, error) {
	switch t.Kind {
	case sig.KindUnixFD:
		return nil, ErrUnixFD
	case sig.KindVariant:
		va, ok := n.(dbus.Variant)
		if !ok {
			return nil, decodeErr(n, t)
		}
		inner, err := sig.ParseSingle(va.Signature().String())
		if err != nil {
			return nil, fmt.Errorf("variant signature: %w", err)
		}
		iv, err := Decode(va.Value(), inner)
		if err != nil {
			return nil, err
		}
		return sig.Variant{Value: iv}, nil
	case sig.KindSignature:
		s, ok := n.(dbus.Signature)
		if !ok {
			return nil, decodeErr(n, t)
		}
		return sig.SignatureStr(s.String()), nil
	}

	rv := reflect.ValueOf(n)
	switch t.Kind {
	case sig.KindByte:
		if rv.Kind() == reflect.Uint8 {
			return sig.Byte(rv.Uint()), nil
		}
	case sig.KindBool:
		if rv.Kind() == reflect.Bool {
			return sig.Bool(rv.Bool()), nil
		}
	case sig.KindInt16:
		if rv.Kind() == reflect.Int16 {
			return sig.Int16(rv.Int()), nil
		}
	case sig.KindUint16:
		if rv.Kind() == reflect.Uint16 {
			return sig.Uint16(rv.Uint()), nil
		}
	case sig.KindInt32:
		if rv.Kind() == reflect.Int32 {
			return sig.Int32(rv.Int()), nil
		}
	case sig.KindUint32:
		if rv.Kind() == reflect.Uint32 {
			return sig.Uint32(rv.Uint()), nil
		}
	case sig.KindInt64:
		if rv.Kind() == reflect.Int64 {
			return sig.Int64(rv.Int()), nil
		}
	case sig.KindUint64:
		if rv.Kind() == reflect.Uint64 {
			return sig.Uint64(rv.Uint()), nil
		}
	case sig.KindDouble:
		if rv.Kind() == reflect.Float64 {
			return sig.Double(rv.Float()), nil
		}
	case sig.KindString:
		if rv.Kind() == reflect.String {
			return sig.Str(rv.String()), nil
		}
	case sig.KindObjectPath:
		if rv.Kind() == reflect.String {
			return sig.ObjectPath(rv.String()), nil
		}
	case sig.KindArray:
		if rv.Kind() != reflect.Slice {
			return nil, decodeErr(n, t)
		}
		arr := sig.Array{Elem: *t.Elem}
		for i := 0; i < rv.Len(); i++ {
			item, err := Decode(rv.Index(i).Interface(), *t.Elem)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, item)
		}
		return arr, nil
	case sig.KindDict:
		if rv.Kind() != reflect.Map {
			return nil, decodeErr(n, t)
		}
		d := sig.Dict{Key: *t.Key, Value: *t.Value}
		iter := rv.MapRange()
		for iter.Next() {
			k, err := Decode(iter.Key().Interface(), *t.Key)
			if err != nil {
				return nil, err
			}
			val, err := Decode(iter.Value().Interface(), *t.Value)
			if err != nil {
				return nil, err
			}
			d.Entries = append(d.Entries, sig.DictEntry{Key: k, Value: val})
		}
		// Map iteration order is random; render order should not be.
		sort.Slice(d.Entries, func(i, j int) bool {
			return d.Entries[i].Key.String() < d.Entries[j].Key.String()
		})
		return d, nil
	case sig.KindStruct:
		fields, ok := n.([]interface{})
		if !ok {
			// Structs we encoded ourselves round-trip as reflect structs.
			if rv.Kind() != reflect.Struct {
				return nil, decodeErr(n, t)
			}
			fields = make([]interface{}, rv.NumField())
			for i := range fields {
				fields[i] = rv.Field(i).Interface()
			}
		}
		if len(fields) != len(t.Fields) {
			return nil, fmt.Errorf("struct has %d fields, signature %q wants %d", len(fields), t.String(), len(t.Fields))
		}
		s := sig.Struct{}
		for i, f := range fields {
			fv, err := Decode(f, t.Fields[i])
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, fv)
		}
		return s, nil
	}
	return nil, decodeErr(n, t)
}

// DecodeBody decodes a full message body against its declared signature.
func DecodeBody(body []interface{}, types sig.Signature) ([]sig.Value, error) {
	if len(body) != len(types) {
		return nil, fmt.Errorf("body has %d values, signature %q wants %d", len(body), types.String(), len(types))
	}
	out := make([]sig.Value, len(body))
	for i, n := range body {
		v, err := Decode(n, types[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// DecodeAny decodes a native value without a declared type, inferring the
// wire type from the value itself. Signal bodies arrive this way.
func DecodeAny(n interface{}) (sig.Value, error) {
	t, err := sig.ParseSingle(dbus.SignatureOf(n).String())
	if err != nil {
		return nil, fmt.Errorf("infer signature: %w", err)
	}
	return Decode(n, t)
}

func decodeErr(n interface{}, t sig.Type) error {
	return fmt.Errorf("cannot decode %T as %s", n, t.Kind)
}
