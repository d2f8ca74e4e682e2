package rtmp

import (
	"encoding/binary"

	"github.com/torresjeff/rtmpserver/amf/amf0"
)

// Protocol control messages always travel on chunk stream 2 with message stream 0.

func newControlMessage(t MessageType, payload []byte) *Message {
	return &Message{
		ChunkStreamID: protocolChunkStreamID,
		Type:          t,
		StreamID:      0,
		Payload:       payload,
	}
}

func uint32Payload(v uint32) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, v)
	return payload
}

func NewSetChunkSizeMessage(size uint32) *Message {
	return newControlMessage(SetChunkSize, uint32Payload(size&MaxChunkSize))
}

// NewAbortMessage asks the peer to discard the partial message on chunk stream csid.
func NewAbortMessage(csid uint32) *Message {
	return newControlMessage(AbortMessage, uint32Payload(csid))
}

// NewAckMessage acknowledges sequenceNumber bytes received so far.
func NewAckMessage(sequenceNumber uint32) *Message {
	return newControlMessage(Acknowledgement, uint32Payload(sequenceNumber))
}

func NewWindowAckSizeMessage(size uint32) *Message {
	return newControlMessage(WindowAcknowledgementSize, uint32Payload(size))
}

func NewSetPeerBandwidthMessage(size uint32, limit LimitType) *Message {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload, size)
	payload[4] = byte(limit)
	return newControlMessage(SetPeerBandwidth, payload)
}

// NewUserControlMessage frames a user control event: 2 bytes of event type followed by the event data.
func NewUserControlMessage(event UserControlEventType, data []byte) *Message {
	payload := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(payload, uint16(event))
	copy(payload[2:], data)
	return newControlMessage(UserControlMessage, payload)
}

// NewStreamBeginMessage tells the peer that streamID became functional.
func NewStreamBeginMessage(streamID uint32) *Message {
	return NewUserControlMessage(EventStreamBegin, uint32Payload(streamID))
}

// NewCommandMessage encodes values as an AMF0 command message on message stream streamID.
func NewCommandMessage(csid uint32, streamID uint32, values ...amf0.Value) (*Message, error) {
	payload, err := amf0.Encode(values...)
	if err != nil {
		return nil, err
	}
	return &Message{
		ChunkStreamID: csid,
		Type:          CommandMessageAMF0,
		StreamID:      streamID,
		Payload:       payload,
	}, nil
}
