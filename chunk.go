package rtmp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/torresjeff/rtmpserver/internal/binary24"
)

type ChunkType uint8

const (
	ChunkType0 ChunkType = iota
	ChunkType1
	ChunkType2
	ChunkType3
)

const (
	chunkType0MessageHeaderLength = 11
	chunkType1MessageHeaderLength = 7
	chunkType2MessageHeaderLength = 3

	extendedTimestampLength = 4
	// A 24-bit timestamp field holding this value means the real value follows as 4 extra bytes.
	extendedTimestampSentinel = binary24.MaxUint24
)

// Chunk stream ids 0 and 1 are escape values in the basic header, and the 3-byte form
// tops out at 65599.
const (
	MinChunkStreamID = 2
	MaxChunkStreamID = 0xFFFF + 64

	maxOneByteChunkStreamID = 63
	maxTwoByteChunkStreamID = 0xFF + 64
)

var (
	ErrNotAHeader            = errors.New("chunk header: buffer too short to hold a chunk header")
	ErrInvalidChunkType      = errors.New("chunk header: unknown chunk type")
	ErrInvalidChunkStreamID  = errors.New("chunk header: chunk stream id out of range")
	ErrMessageLengthTooLarge = errors.New("chunk header: message length does not fit in 24 bits")
)

// ChunkHeader is one chunk's basic header, message header and extended timestamp.
// Fields a chunk type does not carry are zero after decoding; the chunk assembler
// fills them from the previous header on the same chunk stream.
type ChunkHeader struct {
	ChunkType     ChunkType
	ChunkStreamID uint32
	// Timestamp is absolute for type 0 chunks and a delta for types 1 and 2. Values of
	// 0xFFFFFF and above travel in the extended timestamp field.
	Timestamp       uint32
	MessageLength   uint32
	MessageType     MessageType
	MessageStreamID uint32
	// HeaderLength is the number of bytes the header occupies on the wire.
	HeaderLength int
}

func (h ChunkHeader) String() string {
	return fmt.Sprintf("fmt=%d csid=%d ts=%d len=%d type=%s msid=%d", h.ChunkType, h.ChunkStreamID,
		h.Timestamp, h.MessageLength, h.MessageType, h.MessageStreamID)
}

func messageHeaderLength(t ChunkType) int {
	switch t {
	case ChunkType0:
		return chunkType0MessageHeaderLength
	case ChunkType1:
		return chunkType1MessageHeaderLength
	case ChunkType2:
		return chunkType2MessageHeaderLength
	default:
		return 0
	}
}

func basicHeaderLength(chunkStreamID uint32) int {
	switch {
	case chunkStreamID <= maxOneByteChunkStreamID:
		return 1
	case chunkStreamID <= maxTwoByteChunkStreamID:
		return 2
	default:
		return 3
	}
}

// DecodeChunkHeader parses the chunk header at the start of b. It returns ErrNotAHeader
// when b is too short to contain the whole header; the caller should wait for more data.
func DecodeChunkHeader(b []byte) (ChunkHeader, error) {
	var h ChunkHeader
	if len(b) < 1 {
		return h, ErrNotAHeader
	}
	// chunk type lives in the 2 highest bits, the chunk stream id (or its escape value) in the lowest 6
	h.ChunkType = ChunkType(b[0] >> 6)
	n := 1
	switch csid := uint32(b[0] & 0x3F); csid {
	case 0:
		if len(b) < 2 {
			return h, ErrNotAHeader
		}
		h.ChunkStreamID = uint32(b[1]) + 64
		n = 2
	case 1:
		if len(b) < 3 {
			return h, ErrNotAHeader
		}
		// second byte is the low byte, so ids 64..65599 round-trip
		h.ChunkStreamID = uint32(b[2])*256 + uint32(b[1]) + 64
		n = 3
	default:
		h.ChunkStreamID = csid
	}

	mhLen := messageHeaderLength(h.ChunkType)
	if len(b) < n+mhLen {
		return h, ErrNotAHeader
	}
	mh := b[n : n+mhLen]
	if h.ChunkType <= ChunkType2 {
		h.Timestamp = binary24.BigEndian.Uint24(mh[0:3])
	}
	if h.ChunkType <= ChunkType1 {
		h.MessageLength = binary24.BigEndian.Uint24(mh[3:6])
		h.MessageType = MessageType(mh[6])
	}
	if h.ChunkType == ChunkType0 {
		// message stream id is the one little endian field in the header
		h.MessageStreamID = binary.LittleEndian.Uint32(mh[7:11])
	}
	n += mhLen

	if h.ChunkType <= ChunkType2 && h.Timestamp == extendedTimestampSentinel {
		if len(b) < n+extendedTimestampLength {
			return h, ErrNotAHeader
		}
		h.Timestamp = binary.BigEndian.Uint32(b[n : n+extendedTimestampLength])
		n += extendedTimestampLength
	}
	h.HeaderLength = n
	return h, nil
}

// EncodeChunkHeader returns the wire form of h using the smallest basic header that
// fits the chunk stream id. HeaderLength is ignored.
func EncodeChunkHeader(h ChunkHeader) ([]byte, error) {
	return AppendChunkHeader(make([]byte, 0, 3+chunkType0MessageHeaderLength+extendedTimestampLength), h)
}

// AppendChunkHeader appends the wire form of h to b.
func AppendChunkHeader(b []byte, h ChunkHeader) ([]byte, error) {
	if h.ChunkType > ChunkType3 {
		return b, ErrInvalidChunkType
	}
	if h.ChunkStreamID < MinChunkStreamID || h.ChunkStreamID > MaxChunkStreamID {
		return b, ErrInvalidChunkStreamID
	}
	if h.MessageLength > binary24.MaxUint24 {
		return b, ErrMessageLengthTooLarge
	}

	fmtBits := byte(h.ChunkType) << 6
	switch basicHeaderLength(h.ChunkStreamID) {
	case 1:
		b = append(b, fmtBits|byte(h.ChunkStreamID))
	case 2:
		b = append(b, fmtBits, byte(h.ChunkStreamID-64))
	default:
		id := h.ChunkStreamID - 64
		b = append(b, fmtBits|1, byte(id), byte(id>>8))
	}

	extended := h.ChunkType <= ChunkType2 && h.Timestamp >= extendedTimestampSentinel
	if h.ChunkType <= ChunkType2 {
		if extended {
			b = binary24.BigEndian.AppendUint24(b, extendedTimestampSentinel)
		} else {
			b = binary24.BigEndian.AppendUint24(b, h.Timestamp)
		}
	}
	if h.ChunkType <= ChunkType1 {
		b = binary24.BigEndian.AppendUint24(b, h.MessageLength)
		b = append(b, byte(h.MessageType))
	}
	if h.ChunkType == ChunkType0 {
		b = binary.LittleEndian.AppendUint32(b, h.MessageStreamID)
	}
	if extended {
		b = binary.BigEndian.AppendUint32(b, h.Timestamp)
	}
	return b, nil
}
