package rtmp

import (
	"github.com/torresjeff/rtmpserver/config"
	"github.com/torresjeff/rtmpserver/internal/binary24"
)

const DefaultChunkSize = config.DefaultChunkSize

// MaxChunkSize is the largest chunk size a Set Chunk Size message can carry (31 bits).
const MaxChunkSize = config.MaxChunkSize

// IngestStatus says why Ingest stopped consuming the buffer.
type IngestStatus uint8

const (
	// IngestDrained means every byte of the buffer was consumed.
	IngestDrained IngestStatus = iota
	// IngestNeedHeader means the remaining bytes do not hold a complete chunk header.
	IngestNeedHeader
	// IngestNeedBody means a header was found but the chunk body is not fully present.
	IngestNeedBody
	// IngestPaused means a Set Chunk Size or Abort message completed. It must be
	// dispatched before the rest of the buffer is ingested, because it changes how
	// the following chunks are read.
	IngestPaused
)

func (s IngestStatus) String() string {
	switch s {
	case IngestDrained:
		return "drained"
	case IngestNeedHeader:
		return "need_header"
	case IngestNeedBody:
		return "need_body"
	case IngestPaused:
		return "paused"
	}
	return "unknown"
}

// IngestResult is the outcome of one Ingest call.
type IngestResult struct {
	// Messages that became complete, in arrival order.
	Messages []*Message
	// Consumed is the number of bytes of the buffer that were fully processed. The
	// caller keeps buf[Consumed:] and prepends it to the next read.
	Consumed int
	Status   IngestStatus
	// Dropped lists chunks or messages that were discarded as malformed.
	Dropped []*FramingError
}

// ChunkStreamState is what a chunk stream remembers between chunks: the last header
// with every field resolved, and the message currently being reassembled.
type ChunkStreamState struct {
	header ChunkHeader
	// absolute timestamp of the current (or last) message
	timestamp uint32
	// delta inherited by type 3 chunks that start a new message
	timestampDelta uint32
	payload        []byte
	// bytesLeft > 0 while a message is in progress
	bytesLeft uint32
	// discard is set when the message in progress will be dropped on completion
	discard bool
}

// ChunkAssembler turns chunks into messages and messages into chunks for one
// direction of one connection. It is not safe for concurrent use.
type ChunkAssembler struct {
	chunkSize uint32
	// The key is the chunk stream ID
	streams map[uint32]*ChunkStreamState
}

func NewChunkAssembler() *ChunkAssembler {
	return &ChunkAssembler{
		chunkSize: DefaultChunkSize,
		streams:   make(map[uint32]*ChunkStreamState),
	}
}

func (a *ChunkAssembler) ChunkSize() uint32 {
	return a.chunkSize
}

func (a *ChunkAssembler) SetChunkSize(size uint32) error {
	if size == 0 || size > MaxChunkSize {
		return ErrInvalidChunkSize
	}
	a.chunkSize = size
	return nil
}

// Abort discards the partially received message on chunk stream csid. It reports
// whether there was one. The chunk stream keeps its last header for inheritance.
func (a *ChunkAssembler) Abort(csid uint32) bool {
	st, ok := a.streams[csid]
	if !ok || st.bytesLeft == 0 {
		return false
	}
	st.payload = nil
	st.bytesLeft = 0
	st.discard = false
	return true
}

// PendingBytes returns how many payload bytes are buffered for the incomplete message on csid.
func (a *ChunkAssembler) PendingBytes(csid uint32) int {
	if st, ok := a.streams[csid]; ok {
		return len(st.payload)
	}
	return 0
}

// Reset forgets every chunk stream.
func (a *ChunkAssembler) Reset() {
	a.streams = make(map[uint32]*ChunkStreamState)
}

// Ingest consumes as many complete chunks from buf as it can. It never fails because
// of missing data: it stops and reports how far it got. The returned error is set only
// when the stream cannot be resynchronized (a chunk whose extent is unknowable).
func (a *ChunkAssembler) Ingest(buf []byte) (IngestResult, error) {
	var res IngestResult
	for {
		rest := buf[res.Consumed:]
		if len(rest) == 0 {
			res.Status = IngestDrained
			return res, nil
		}
		h, err := DecodeChunkHeader(rest)
		if err != nil {
			res.Status = IngestNeedHeader
			return res, nil
		}

		st, known := a.streams[h.ChunkStreamID]
		if !known {
			if h.ChunkType >= ChunkType2 {
				return res, &FramingError{ChunkStreamID: h.ChunkStreamID, Err: ErrNoPreviousChunk}
			}
			// Stored only once the whole chunk is present. A type 1 header declares
			// its length, so that message is read into the fresh state and dropped.
			st = &ChunkStreamState{}
		}

		resolved := h
		newMessage := !known || st.bytesLeft == 0
		var interrupted bool
		if known {
			switch h.ChunkType {
			case ChunkType1:
				resolved.MessageStreamID = st.header.MessageStreamID
			case ChunkType2:
				resolved.MessageLength = st.header.MessageLength
				resolved.MessageType = st.header.MessageType
				resolved.MessageStreamID = st.header.MessageStreamID
			case ChunkType3:
				resolved.MessageLength = st.header.MessageLength
				resolved.MessageType = st.header.MessageType
				resolved.MessageStreamID = st.header.MessageStreamID
				resolved.Timestamp = st.timestampDelta
			}
			if !newMessage && h.ChunkType != ChunkType3 {
				interrupted = true
				newMessage = true
			}
		}

		bytesLeft := st.bytesLeft
		if newMessage {
			bytesLeft = resolved.MessageLength
		}
		bodyLen := bytesLeft
		if bodyLen > a.chunkSize {
			bodyLen = a.chunkSize
		}
		chunkLen := h.HeaderLength + int(bodyLen)
		if len(rest) < chunkLen {
			res.Status = IngestNeedBody
			return res, nil
		}

		// The whole chunk is present, commit it.
		if !known {
			a.streams[h.ChunkStreamID] = st
			if h.ChunkType == ChunkType1 {
				st.discard = true
				res.Dropped = append(res.Dropped, &FramingError{ChunkStreamID: h.ChunkStreamID, MessageType: h.MessageType, Err: ErrNoPreviousChunk})
			}
		}
		if interrupted {
			res.Dropped = append(res.Dropped, &FramingError{ChunkStreamID: h.ChunkStreamID, MessageType: st.header.MessageType, Err: ErrMessageInterrupted})
			st.discard = false
		}
		if newMessage {
			switch h.ChunkType {
			case ChunkType0:
				st.timestamp = h.Timestamp
				st.timestampDelta = h.Timestamp
			case ChunkType1, ChunkType2:
				st.timestamp += h.Timestamp
				st.timestampDelta = h.Timestamp
			case ChunkType3:
				st.timestamp += st.timestampDelta
			}
			st.payload = make([]byte, 0, preallocLength(resolved.MessageLength))
		}
		st.header = resolved
		st.payload = append(st.payload, rest[h.HeaderLength:chunkLen]...)
		st.bytesLeft = bytesLeft - bodyLen
		res.Consumed += chunkLen

		if st.bytesLeft > 0 {
			continue
		}
		msg := &Message{
			ChunkStreamID: h.ChunkStreamID,
			Type:          resolved.MessageType,
			StreamID:      resolved.MessageStreamID,
			Timestamp:     st.timestamp,
			Payload:       st.payload,
		}
		st.payload = nil
		if st.discard {
			st.discard = false
			continue
		}
		res.Messages = append(res.Messages, msg)
		if h.ChunkStreamID == protocolChunkStreamID && (msg.Type == SetChunkSize || msg.Type == AbortMessage) {
			res.Status = IngestPaused
			return res, nil
		}
	}
}

// preallocLength bounds the buffer reserved up front for a declared message length,
// so a header alone cannot make the assembler reserve 16 MiB.
func preallocLength(declared uint32) int {
	const limit = 1 << 20
	if declared > limit {
		return limit
	}
	return int(declared)
}

// Emit splits msg into chunks of at most ChunkSize payload bytes on chunk stream csid.
// The first chunk uses chunkType; the rest are type 3. Types 1 to 3 compress the header
// against the last message emitted on csid and fail with ErrHeaderMismatch when the
// omitted fields would not be inherited correctly.
func (a *ChunkAssembler) Emit(csid uint32, msg *Message, chunkType ChunkType) ([][]byte, error) {
	length := uint32(len(msg.Payload))
	if length > binary24.MaxUint24 {
		return nil, ErrMessageLengthTooLarge
	}
	h := ChunkHeader{
		ChunkType:       chunkType,
		ChunkStreamID:   csid,
		Timestamp:       msg.Timestamp,
		MessageLength:   length,
		MessageType:     msg.Type,
		MessageStreamID: msg.StreamID,
	}

	st, known := a.streams[csid]
	if chunkType != ChunkType0 {
		if !known {
			return nil, ErrNoPreviousChunk
		}
		prev := st.header
		h.Timestamp = msg.Timestamp - st.timestamp
		if msg.StreamID != prev.MessageStreamID {
			return nil, ErrHeaderMismatch
		}
		if chunkType >= ChunkType2 && (length != prev.MessageLength || msg.Type != prev.MessageType) {
			return nil, ErrHeaderMismatch
		}
		if chunkType == ChunkType3 && h.Timestamp != st.timestampDelta {
			return nil, ErrHeaderMismatch
		}
	}

	first, err := EncodeChunkHeader(h)
	if err != nil {
		return nil, err
	}
	continuation, err := EncodeChunkHeader(ChunkHeader{ChunkType: ChunkType3, ChunkStreamID: csid})
	if err != nil {
		return nil, err
	}

	chunks := make([][]byte, 0, 1+len(msg.Payload)/int(a.chunkSize))
	header := first
	offset := uint32(0)
	for {
		end := offset + a.chunkSize
		if end > length {
			end = length
		}
		chunk := make([]byte, 0, len(header)+int(end-offset))
		chunk = append(chunk, header...)
		chunk = append(chunk, msg.Payload[offset:end]...)
		chunks = append(chunks, chunk)
		offset = end
		if offset >= length {
			break
		}
		header = continuation
	}

	if !known {
		st = &ChunkStreamState{}
		a.streams[csid] = st
	}
	h.MessageLength = length
	st.header = h
	st.timestamp = msg.Timestamp
	st.timestampDelta = h.Timestamp
	return chunks, nil
}
