package amf0

import (
	"encoding/binary"
	"math"
)

const maxNestingDepth = 64

// Decode reads values from b until it is exhausted. Callers pass exactly the bytes
// of one decode unit (for example a command message payload).
//
// On error the values decoded so far are returned along with the number of bytes
// they consumed.
func Decode(b []byte) ([]Value, int, error) {
	var values []Value
	offset := 0
	for offset < len(b) {
		v, n, err := decodeValue(b[offset:], 0)
		if err != nil {
			return values, offset, err
		}
		values = append(values, v)
		offset += n
	}
	return values, offset, nil
}

// DecodeValue reads a single value from the start of b and returns the number of bytes it spans.
func DecodeValue(b []byte) (Value, int, error) {
	return decodeValue(b, 0)
}

func decodeValue(b []byte, depth int) (Value, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrUnexpectedEnd
	}
	if depth > maxNestingDepth {
		return nil, 0, ErrNestingTooDeep
	}
	marker := b[0]
	body := b[1:]
	switch marker {
	case TypeNumber:
		if len(body) < 8 {
			return nil, 0, ErrUnexpectedEnd
		}
		return Number(decodeNumber(body)), 9, nil
	case TypeBoolean:
		if len(body) < 1 {
			return nil, 0, ErrUnexpectedEnd
		}
		return Boolean(body[0] != 0), 2, nil
	case TypeString:
		s, n, err := decodeString(body)
		if err != nil {
			return nil, 0, err
		}
		return String(s), 1 + n, nil
	case TypeLongString:
		s, n, err := decodeLongString(body)
		if err != nil {
			return nil, 0, err
		}
		return String(s), 1 + n, nil
	case TypeObject:
		obj, n, err := decodeObject(body, depth)
		if err != nil {
			return nil, 0, err
		}
		return obj, 1 + n, nil
	case TypeNull:
		return Null{}, 1, nil
	case TypeUndefined:
		return Undefined{}, 1, nil
	case TypeDate:
		// 8 byte double followed by a 2 byte timezone, which is ignored
		if len(body) < 10 {
			return nil, 0, ErrUnexpectedEnd
		}
		return Date{Milliseconds: decodeNumber(body)}, 11, nil
	case TypeUnsupported:
		return Unsupported{Marker: marker}, 1, nil
	case TypeReference, TypeECMAArray, TypeStrictArray, TypeXMLDocument, TypeTypedObject:
		n, err := skipComposite(marker, body, depth)
		if err != nil {
			return nil, 0, err
		}
		return Unsupported{Marker: marker, Raw: body[:n]}, 1 + n, nil
	default:
		return nil, 0, &UnsupportedValueError{Marker: marker}
	}
}

// skipComposite returns the length of the payload following one of the markers that
// are recognized but not interpreted.
func skipComposite(marker byte, b []byte, depth int) (int, error) {
	switch marker {
	case TypeReference:
		if len(b) < 2 {
			return 0, ErrUnexpectedEnd
		}
		return 2, nil
	case TypeXMLDocument:
		_, n, err := decodeLongString(b)
		return n, err
	case TypeECMAArray:
		// The associative count is only a hint, the property list ends with the end marker.
		if len(b) < 4 {
			return 0, ErrUnexpectedEnd
		}
		n, err := skipProperties(b[4:], depth)
		return 4 + n, err
	case TypeTypedObject:
		_, classLen, err := decodeString(b)
		if err != nil {
			return 0, err
		}
		n, err := skipProperties(b[classLen:], depth)
		return classLen + n, err
	case TypeStrictArray:
		if len(b) < 4 {
			return 0, ErrUnexpectedEnd
		}
		count := binary.BigEndian.Uint32(b)
		offset := 4
		for i := uint32(0); i < count; i++ {
			_, n, err := decodeValue(b[offset:], depth+1)
			if err != nil {
				return 0, err
			}
			offset += n
		}
		return offset, nil
	}
	return 0, &UnsupportedValueError{Marker: marker}
}

func skipProperties(b []byte, depth int) (int, error) {
	offset := 0
	for {
		rest := b[offset:]
		if isEndOfObject(rest) {
			return offset + 3, nil
		}
		_, keyLen, err := decodeString(rest)
		if err != nil {
			return 0, err
		}
		_, n, err := decodeValue(rest[keyLen:], depth+1)
		if err != nil {
			return 0, err
		}
		offset += keyLen + n
	}
}

// decodeObject reads properties until the end of object marker. It returns the number
// of bytes consumed including the end marker.
func decodeObject(b []byte, depth int) (*Object, int, error) {
	obj := NewObject()
	offset := 0
	for {
		rest := b[offset:]
		if isEndOfObject(rest) {
			return obj, offset + 3, nil
		}
		// keys are always short strings without the string marker
		key, keyLen, err := decodeString(rest)
		if err != nil {
			return nil, 0, err
		}
		val, n, err := decodeValue(rest[keyLen:], depth+1)
		if err != nil {
			return nil, 0, err
		}
		obj.Set(key, val)
		offset += keyLen + n
	}
}

func isEndOfObject(b []byte) bool {
	return len(b) >= 3 && b[0] == 0x00 && b[1] == 0x00 && b[2] == TypeObjectEnd
}

// decodeString reads a 2-byte length prefixed string and returns the bytes consumed.
func decodeString(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, ErrUnexpectedEnd
	}
	length := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+length {
		return "", 0, ErrUnexpectedEnd
	}
	return string(b[2 : 2+length]), 2 + length, nil
}

func decodeLongString(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, ErrUnexpectedEnd
	}
	length := uint64(binary.BigEndian.Uint32(b))
	if uint64(len(b)) < 4+length {
		return "", 0, ErrUnexpectedEnd
	}
	return string(b[4 : 4+length]), 4 + int(length), nil
}

func decodeNumber(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}
