// Package amf routes object-encoded payloads to the codec for their format version.
// Only AMF0 is implemented. AMF3 payloads are recognized and rejected with
// ErrUnsupportedVersion so callers can apply their own policy.
package amf

import (
	"github.com/pkg/errors"
	"github.com/torresjeff/rtmpserver/amf/amf0"
)

const AMFVersion0 uint8 = 0
const AMFVersion3 uint8 = 3

var ErrUnsupportedVersion = errors.New("amf: unsupported AMF version")

func Encode(version uint8, values ...amf0.Value) ([]byte, error) {
	switch version {
	case AMFVersion0:
		return amf0.Encode(values...)
	default:
		return nil, errors.Wrapf(ErrUnsupportedVersion, "encode version %d", version)
	}
}

// Decode decodes every value in b and returns the number of bytes consumed.
func Decode(version uint8, b []byte) ([]amf0.Value, int, error) {
	switch version {
	case AMFVersion0:
		return amf0.Decode(b)
	default:
		return nil, 0, errors.Wrapf(ErrUnsupportedVersion, "decode version %d", version)
	}
}
