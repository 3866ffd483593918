package wire

import (
	"fmt"
	"math/big"
	"reflect"
)

// Marshal encodes msg into the SSH wire format, field by field in
// declaration order. It is grounded on the reflection-based approach the
// wider SSH ecosystem uses for fixed-shape protocol messages (KEXINIT,
// USERAUTH_REQUEST and friends) instead of hand-writing an Encode method
// per message type.
//
// Supported field types: byte, bool, uint32, string, []byte, []string
// (encoded as a name-list), and *big.Int (encoded as an mpint). The first
// field of a struct tagged with a message id constant is typically a byte
// holding that id; Marshal does not special-case it.
func Marshal(msg any) []byte {
	v := reflect.Indirect(reflect.ValueOf(msg))
	var out []byte
	for i := 0; i < v.NumField(); i++ {
		out = marshalField(out, v.Field(i))
	}
	return out
}

func marshalField(dst []byte, f reflect.Value) []byte {
	switch f.Kind() {
	case reflect.Uint8:
		return append(dst, byte(f.Uint()))
	case reflect.Bool:
		return PutBool(dst, f.Bool())
	case reflect.Uint32:
		return PutUint32(dst, uint32(f.Uint()))
	case reflect.Uint64:
		return PutUint64(dst, f.Uint())
	case reflect.String:
		return PutString(dst, []byte(f.String()))
	case reflect.Slice:
		return marshalSliceField(dst, f)
	case reflect.Ptr:
		if bi, ok := f.Interface().(*big.Int); ok {
			return PutMpint(dst, bi)
		}
		panic(fmt.Sprintf("wire: unsupported pointer field type %s", f.Type()))
	default:
		panic(fmt.Sprintf("wire: unsupported field kind %s", f.Kind()))
	}
}

func marshalSliceField(dst []byte, f reflect.Value) []byte {
	switch {
	case f.Type().Elem().Kind() == reflect.Uint8:
		return PutString(dst, f.Bytes())
	case f.Type().Elem().Kind() == reflect.String:
		names := make([]string, f.Len())
		for i := range names {
			names[i] = f.Index(i).String()
		}
		return PutNameList(dst, names)
	default:
		panic(fmt.Sprintf("wire: unsupported slice element type %s", f.Type().Elem()))
	}
}

// Unmarshal decodes buf into msg, field by field in declaration order,
// mirroring Marshal. It returns an error wrapping ErrMalformedPacket on any
// truncated or malformed field.
func Unmarshal(buf []byte, msg any) error {
	v := reflect.Indirect(reflect.ValueOf(msg))
	for i := 0; i < v.NumField(); i++ {
		var err error
		buf, err = unmarshalField(buf, v.Field(i))
		if err != nil {
			return fmt.Errorf("wire: unmarshal field %d of %T: %w", i, msg, err)
		}
	}
	return nil
}

func unmarshalField(buf []byte, f reflect.Value) ([]byte, error) {
	switch f.Kind() {
	case reflect.Uint8:
		if len(buf) < 1 {
			return nil, ErrMalformedPacket
		}
		f.SetUint(uint64(buf[0]))
		return buf[1:], nil
	case reflect.Bool:
		b, rest, err := ParseBool(buf)
		if err != nil {
			return nil, err
		}
		f.SetBool(b)
		return rest, nil
	case reflect.Uint32:
		n, rest, err := ParseUint32(buf)
		if err != nil {
			return nil, err
		}
		f.SetUint(uint64(n))
		return rest, nil
	case reflect.String:
		s, rest, err := ParseString(buf)
		if err != nil {
			return nil, err
		}
		f.SetString(string(s))
		return rest, nil
	case reflect.Slice:
		return unmarshalSliceField(buf, f)
	case reflect.Ptr:
		if _, ok := f.Interface().(*big.Int); ok {
			n, rest, err := ParseMpint(buf)
			if err != nil {
				return nil, err
			}
			f.Set(reflect.ValueOf(n))
			return rest, nil
		}
		return nil, fmt.Errorf("wire: unsupported pointer field type %s", f.Type())
	default:
		return nil, fmt.Errorf("wire: unsupported field kind %s", f.Kind())
	}
}

func unmarshalSliceField(buf []byte, f reflect.Value) ([]byte, error) {
	switch {
	case f.Type().Elem().Kind() == reflect.Uint8:
		s, rest, err := ParseString(buf)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(s))
		copy(cp, s)
		f.SetBytes(cp)
		return rest, nil
	case f.Type().Elem().Kind() == reflect.String:
		names, rest, err := ParseNameList(buf)
		if err != nil {
			return nil, err
		}
		f.Set(reflect.ValueOf(names))
		return rest, nil
	default:
		return nil, fmt.Errorf("wire: unsupported slice element type %s", f.Type().Elem())
	}
}
