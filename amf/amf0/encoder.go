package amf0

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// Encode serializes values back to back.
func Encode(values ...Value) ([]byte, error) {
	size := 0
	for _, v := range values {
		size += Size(v)
	}
	buf := make([]byte, 0, size)
	var err error
	for _, v := range values {
		if buf, err = AppendValue(buf, v); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// EncodeValue serializes a single value.
func EncodeValue(v Value) ([]byte, error) {
	return AppendValue(make([]byte, 0, Size(v)), v)
}

// AppendValue appends the encoding of v to b. Values with no encode rule (including
// Unsupported) fail with *UnsupportedValueError and leave nothing half written in the
// returned slice.
func AppendValue(b []byte, v Value) ([]byte, error) {
	start := len(b)
	b, err := appendValue(b, v)
	if err != nil {
		return b[:start], err
	}
	return b, nil
}

func appendValue(b []byte, v Value) ([]byte, error) {
	switch v := v.(type) {
	case Number:
		return appendNumber(append(b, TypeNumber), float64(v)), nil
	case Boolean:
		if v {
			return append(b, TypeBoolean, 1), nil
		}
		return append(b, TypeBoolean, 0), nil
	case String:
		if len(v) <= MaxShortStringLength {
			b = append(b, TypeString)
			b = binary.BigEndian.AppendUint16(b, uint16(len(v)))
			return append(b, v...), nil
		}
		b = append(b, TypeLongString)
		b = binary.BigEndian.AppendUint32(b, uint32(len(v)))
		return append(b, v...), nil
	case *Object:
		if v == nil {
			return append(b, TypeNull), nil
		}
		b = append(b, TypeObject)
		for _, key := range v.keys {
			if len(key) > MaxShortStringLength {
				return b, ErrKeyTooLong
			}
			b = binary.BigEndian.AppendUint16(b, uint16(len(key)))
			b = append(b, key...)
			var err error
			if b, err = appendValue(b, v.values[key]); err != nil {
				return b, err
			}
		}
		return append(b, 0x00, 0x00, TypeObjectEnd), nil
	case Null:
		return append(b, TypeNull), nil
	case Undefined:
		return append(b, TypeUndefined), nil
	case Date:
		b = appendNumber(append(b, TypeDate), v.Milliseconds)
		// timezone, always 0
		return append(b, 0x00, 0x00), nil
	case Unsupported:
		return b, &UnsupportedValueError{Marker: v.Marker}
	default:
		return b, &UnsupportedValueError{Type: fmt.Sprintf("%T", v)}
	}
}

func appendNumber(b []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(f))
}

// Size returns the number of bytes v spans in its AMF0 representation, or 0 if v has no encoding.
// Eg: String("test") returns 7 (1 marker byte, 2 length bytes, 4 bytes of text).
func Size(v Value) int {
	switch v := v.(type) {
	case Number:
		return 9
	case Boolean:
		return 2
	case String:
		if len(v) <= MaxShortStringLength {
			return 3 + len(v)
		}
		return 5 + len(v)
	case *Object:
		if v == nil {
			return 1
		}
		size := 1 + 3
		for _, key := range v.keys {
			size += 2 + len(key) + Size(v.values[key])
		}
		return size
	case Null, Undefined:
		return 1
	case Date:
		return 11
	default:
		return 0
	}
}

// ValueOf converts a plain Go value to a Value. Maps become objects with their keys
// sorted, nil becomes Null and every numeric type becomes a Number.
func ValueOf(v interface{}) (Value, error) {
	switch v := v.(type) {
	case Value:
		return v, nil
	case nil:
		return Null{}, nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case int:
		return Number(v), nil
	case int32:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case uint8:
		return Number(v), nil
	case uint16:
		return Number(v), nil
	case uint32:
		return Number(v), nil
	case bool:
		return Boolean(v), nil
	case string:
		return String(v), nil
	case time.Time:
		return NewDate(v), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			val, err := ValueOf(v[k])
			if err != nil {
				return nil, err
			}
			obj.Set(k, val)
		}
		return obj, nil
	default:
		return nil, &UnsupportedValueError{Type: fmt.Sprintf("%T", v)}
	}
}
