// Package amf0 implements the AMF0 value format carried by command, data and
// shared object messages.
//
// Decoded values are a closed set of types implementing Value. Callers match on
// them with a type switch:
//
//	switch v := v.(type) {
//	case amf0.Number:
//	case amf0.String:
//	case *amf0.Object:
//	...
//	}
package amf0

import (
	"errors"
	"fmt"
	"time"
)

// Markers
const (
	TypeNumber      byte = 0x00
	TypeBoolean     byte = 0x01
	TypeString      byte = 0x02
	TypeObject      byte = 0x03
	TypeMovieClip   byte = 0x04 // reserved, not supported
	TypeNull        byte = 0x05
	TypeUndefined   byte = 0x06
	TypeReference   byte = 0x07
	TypeECMAArray   byte = 0x08
	TypeObjectEnd   byte = 0x09
	TypeStrictArray byte = 0x0A
	TypeDate        byte = 0x0B
	TypeLongString  byte = 0x0C
	TypeUnsupported byte = 0x0D
	TypeRecordSet   byte = 0x0E // reserved, not supported
	TypeXMLDocument byte = 0x0F
	TypeTypedObject byte = 0x10
)

// MaxShortStringLength is the longest string encoded with a 2-byte length prefix.
// Anything longer is written as a long string.
const MaxShortStringLength = 0xFFFF

var (
	ErrUnexpectedEnd    = errors.New("amf0: unexpected end of data")
	ErrNestingTooDeep   = errors.New("amf0: values nested too deeply")
	ErrKeyTooLong       = errors.New("amf0: object key longer than 65535 bytes")
	ErrUnsupportedValue = errors.New("amf0: unsupported value")
)

// UnsupportedValueError is returned when a marker or Go type has no decode or encode rule.
// It matches ErrUnsupportedValue with errors.Is.
type UnsupportedValueError struct {
	// Marker is set when decoding hit an unknown marker, or when encoding a recognized
	// marker whose payload is not supported.
	Marker byte
	// Type is set when encoding a Go value with no AMF0 representation.
	Type string
}

func (e *UnsupportedValueError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("amf0: cannot encode type %s", e.Type)
	}
	return fmt.Sprintf("amf0: unsupported marker 0x%02x", e.Marker)
}

func (e *UnsupportedValueError) Unwrap() error {
	return ErrUnsupportedValue
}

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNumber Kind = iota
	KindBoolean
	KindString
	KindObject
	KindNull
	KindUndefined
	KindDate
	KindReference
	KindECMAArray
	KindStrictArray
	KindXMLDocument
	KindTypedObject
	KindUnsupported
)

var kindNames = [...]string{
	KindNumber:      "number",
	KindBoolean:     "boolean",
	KindString:      "string",
	KindObject:      "object",
	KindNull:        "null",
	KindUndefined:   "undefined",
	KindDate:        "date",
	KindReference:   "reference",
	KindECMAArray:   "ecma-array",
	KindStrictArray: "strict-array",
	KindXMLDocument: "xml-document",
	KindTypedObject: "typed-object",
	KindUnsupported: "unsupported",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is one decoded AMF0 value. The set of implementations is closed to this package.
type Value interface {
	Kind() Kind
	amf0Value()
}

type Number float64

type Boolean bool

// String holds both short and long strings. The encoder picks the marker by length.
type String string

type Null struct{}

type Undefined struct{}

// Date is a timestamp in milliseconds since the Unix epoch. The wire timezone field is ignored.
type Date struct {
	Milliseconds float64
}

// Unsupported is a value whose marker is recognized but whose payload is not
// interpreted. Raw holds the bytes that followed the marker, so siblings keep decoding.
type Unsupported struct {
	Marker byte
	Raw    []byte
}

func (Number) Kind() Kind { return KindNumber }
func (Boolean) Kind() Kind { return KindBoolean }
func (String) Kind() Kind { return KindString }
func (Null) Kind() Kind { return KindNull }
func (Undefined) Kind() Kind { return KindUndefined }
func (Date) Kind() Kind { return KindDate }
func (*Object) Kind() Kind { return KindObject }
func (u Unsupported) Kind() Kind {
	switch u.Marker {
	case TypeReference:
		return KindReference
	case TypeECMAArray:
		return KindECMAArray
	case TypeStrictArray:
		return KindStrictArray
	case TypeXMLDocument:
		return KindXMLDocument
	case TypeTypedObject:
		return KindTypedObject
	default:
		return KindUnsupported
	}
}

func (Number) amf0Value() {}
func (Boolean) amf0Value() {}
func (String) amf0Value() {}
func (Null) amf0Value() {}
func (Undefined) amf0Value() {}
func (Date) amf0Value() {}
func (*Object) amf0Value() {}
func (Unsupported) amf0Value() {}

// NewDate converts t to a Date with millisecond precision.
func NewDate(t time.Time) Date {
	return Date{Milliseconds: float64(t.UnixNano() / int64(time.Millisecond))}
}

func (d Date) Time() time.Time {
	return time.Unix(0, int64(d.Milliseconds)*int64(time.Millisecond))
}

// IsAbsent reports whether v is Null or Undefined. Consumers that do not care
// which of the two markers was sent should use this instead of matching on the type.
func IsAbsent(v Value) bool {
	switch v.(type) {
	case Null, Undefined:
		return true
	}
	return v == nil
}

// Object is an ordered mapping of string keys to values. Keys are unique: setting
// an existing key replaces its value and keeps its original position.
type Object struct {
	keys   []string
	values map[string]Value
}

func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set stores v under key and returns o so calls can be chained.
func (o *Object) Set(key string, v Value) *Object {
	if o.values == nil {
		o.values = make(map[string]Value)
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in encounter order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

func (o *Object) Len() int {
	return len(o.keys)
}

// GetString returns the value under key if it is a String.
func (o *Object) GetString(key string) (string, bool) {
	v, ok := o.values[key].(String)
	return string(v), ok
}

// GetNumber returns the value under key if it is a Number.
func (o *Object) GetNumber(key string) (float64, bool) {
	v, ok := o.values[key].(Number)
	return float64(v), ok
}
