package rtmp

import "fmt"

type MessageType uint8

const (
	SetChunkSize MessageType = 1 + iota
	AbortMessage
	Acknowledgement
	UserControlMessage
	WindowAcknowledgementSize
	SetPeerBandwidth

	AudioMessage MessageType = 8
	VideoMessage MessageType = 9

	DataMessageAMF3         MessageType = 15
	SharedObjectMessageAMF3 MessageType = 16
	CommandMessageAMF3      MessageType = 17

	DataMessageAMF0         MessageType = 18
	SharedObjectMessageAMF0 MessageType = 19
	CommandMessageAMF0      MessageType = 20

	AggregateMessage MessageType = 22
)

var messageTypeNames = map[MessageType]string{
	SetChunkSize:              "set_chunk_size",
	AbortMessage:              "abort",
	Acknowledgement:           "ack",
	UserControlMessage:        "user_control",
	WindowAcknowledgementSize: "window_ack_size",
	SetPeerBandwidth:          "set_peer_bandwidth",
	AudioMessage:              "audio",
	VideoMessage:              "video",
	DataMessageAMF3:           "data_amf3",
	SharedObjectMessageAMF3:   "shared_object_amf3",
	CommandMessageAMF3:        "command_amf3",
	DataMessageAMF0:           "data_amf0",
	SharedObjectMessageAMF0:   "shared_object_amf0",
	CommandMessageAMF0:        "command_amf0",
	AggregateMessage:          "aggregate",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// IsProtocolControl reports whether t is one of the five protocol control message types.
// User control messages are not included.
func (t MessageType) IsProtocolControl() bool {
	switch t {
	case SetChunkSize, AbortMessage, Acknowledgement, WindowAcknowledgementSize, SetPeerBandwidth:
		return true
	}
	return false
}

// Message is a complete logical message, independent of how many chunks carried it.
// Timestamp is absolute: the chunk assembler resolves deltas before handing a message out.
type Message struct {
	ChunkStreamID uint32
	Type          MessageType
	StreamID      uint32
	Timestamp     uint32
	Payload       []byte
}

// Length is the total payload length declared in the message header.
func (m *Message) Length() uint32 {
	return uint32(len(m.Payload))
}
