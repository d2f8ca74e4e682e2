package rtmp

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmpserver/amf"
	"github.com/torresjeff/rtmpserver/amf/amf0"
	"go.uber.org/zap"
)

// Protocol control messages travel only on chunk stream 2.
const protocolChunkStreamID = 2

type LimitType uint8

const (
	LimitHard    LimitType = 0
	LimitSoft    LimitType = 1
	LimitDynamic LimitType = 2
)

type UserControlEventType uint16

const (
	EventStreamBegin      UserControlEventType = 0
	EventStreamEOF        UserControlEventType = 1
	EventStreamDry        UserControlEventType = 2
	EventSetBufferLength  UserControlEventType = 3
	EventStreamIsRecorded UserControlEventType = 4
	EventPingRequest      UserControlEventType = 6
	EventPingResponse     UserControlEventType = 7
)

// UserControlEvent is a framed but uninterpreted user control message.
type UserControlEvent struct {
	Type UserControlEventType
	Data []byte
}

// ControlState records what the peer announced through protocol control messages.
// Nothing here is enforced.
type ControlState struct {
	LastAcknowledgement uint32
	WindowAckSize       uint32
	PeerBandwidth       uint32
	PeerBandwidthLimit  LimitType
}

// ChunkController is the part of the inbound chunk assembler protocol control messages act on.
type ChunkController interface {
	SetChunkSize(size uint32) error
	Abort(csid uint32) bool
}

// CommandHandler receives the decoded values of AMF0 command, data and shared object messages.
type CommandHandler interface {
	OnCommand(msg *Message, values []amf0.Value) error
}

type UserControlHandler interface {
	OnUserControl(msg *Message, event UserControlEvent) error
}

// MediaSink receives audio, video and aggregate messages with their payload untouched.
type MediaSink interface {
	WriteMedia(msg *Message) error
}

// MessageHandler receives messages of types the manager does not recognize.
type MessageHandler interface {
	OnMessage(msg *Message) error
}

type CommandHandlerFunc func(msg *Message, values []amf0.Value) error

func (f CommandHandlerFunc) OnCommand(msg *Message, values []amf0.Value) error { return f(msg, values) }

type UserControlHandlerFunc func(msg *Message, event UserControlEvent) error

func (f UserControlHandlerFunc) OnUserControl(msg *Message, event UserControlEvent) error {
	return f(msg, event)
}

type MediaSinkFunc func(msg *Message) error

func (f MediaSinkFunc) WriteMedia(msg *Message) error { return f(msg) }

type MessageHandlerFunc func(msg *Message) error

func (f MessageHandlerFunc) OnMessage(msg *Message) error { return f(msg) }

// Handlers are the application collaborators a MessageManager hands messages to.
// Nil fields drop the corresponding messages.
type Handlers struct {
	Command     CommandHandler
	UserControl UserControlHandler
	Media       MediaSink
	Unknown     MessageHandler
}

type nopHandler struct{}

func (nopHandler) OnCommand(*Message, []amf0.Value) error         { return nil }
func (nopHandler) OnUserControl(*Message, UserControlEvent) error { return nil }
func (nopHandler) WriteMedia(*Message) error                      { return nil }
func (nopHandler) OnMessage(*Message) error                       { return nil }

// MessageManager classifies complete messages and invokes the matching handler.
// Protocol control messages are handled here and change the connection's chunk and
// control state.
type MessageManager struct {
	logger   *zap.Logger
	chunks   ChunkController
	handlers Handlers
	control  ControlState
}

func NewMessageManager(logger *zap.Logger, chunks ChunkController, handlers Handlers) *MessageManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handlers.Command == nil {
		handlers.Command = nopHandler{}
	}
	if handlers.UserControl == nil {
		handlers.UserControl = nopHandler{}
	}
	if handlers.Media == nil {
		handlers.Media = nopHandler{}
	}
	if handlers.Unknown == nil {
		handlers.Unknown = nopHandler{}
	}
	return &MessageManager{
		logger:   logger,
		chunks:   chunks,
		handlers: handlers,
	}
}

func (m *MessageManager) ControlState() ControlState {
	return m.control
}

// Handle dispatches msg. A *FramingError means msg was dropped and the connection can
// continue. Errors matching amf0.ErrUnsupportedValue or amf.ErrUnsupportedVersion mean the
// payload could not be decoded. Any other error comes from a handler.
func (m *MessageManager) Handle(msg *Message) error {
	m.logger.Debug("message received",
		zap.Stringer("type", msg.Type),
		zap.Uint32("csid", msg.ChunkStreamID),
		zap.Uint32("streamID", msg.StreamID),
		zap.Uint32("timestamp", msg.Timestamp),
		zap.Int("length", len(msg.Payload)))

	if msg.Type.IsProtocolControl() {
		return m.handleControlMessage(msg)
	}
	switch msg.Type {
	case UserControlMessage:
		return m.handleUserControlMessage(msg)
	case CommandMessageAMF0, DataMessageAMF0, SharedObjectMessageAMF0:
		return m.handleObjectMessage(msg, amf.AMFVersion0)
	case CommandMessageAMF3, DataMessageAMF3, SharedObjectMessageAMF3:
		return m.handleObjectMessage(msg, amf.AMFVersion3)
	case AudioMessage, VideoMessage, AggregateMessage:
		return errors.Wrapf(m.handlers.Media.WriteMedia(msg), "media sink (%s)", msg.Type)
	default:
		m.logger.Warn("received unknown message type", zap.Uint8("type", uint8(msg.Type)),
			zap.Uint32("csid", msg.ChunkStreamID), zap.Int("length", len(msg.Payload)))
		return errors.Wrapf(m.handlers.Unknown.OnMessage(msg), "unknown message handler (%s)", msg.Type)
	}
}

func (m *MessageManager) framingError(msg *Message, err error) error {
	return &FramingError{ChunkStreamID: msg.ChunkStreamID, MessageType: msg.Type, Err: err}
}

func (m *MessageManager) handleControlMessage(msg *Message) error {
	if msg.ChunkStreamID != protocolChunkStreamID {
		return m.framingError(msg, ErrWrongChunkStream)
	}
	payload := msg.Payload
	expected := 4
	if msg.Type == SetPeerBandwidth {
		expected = 5
	}
	if len(payload) != expected {
		return m.framingError(msg, ErrPayloadLength)
	}
	value := binary.BigEndian.Uint32(payload[:4])

	switch msg.Type {
	case SetChunkSize:
		// The first bit must be zero, so only 31 bits carry the size
		size := value & MaxChunkSize
		if err := m.chunks.SetChunkSize(size); err != nil {
			return m.framingError(msg, err)
		}
		m.logger.Debug("set chunk size", zap.Uint32("size", size))
	case AbortMessage:
		// The payload of an abort message is the chunk stream ID whose current message is to be discarded
		aborted := m.chunks.Abort(value)
		m.logger.Debug("abort message", zap.Uint32("csid", value), zap.Bool("discarded", aborted))
	case Acknowledgement:
		// The payload of an ack message is the sequence number (number of bytes received so far)
		m.control.LastAcknowledgement = value
	case WindowAcknowledgementSize:
		m.control.WindowAckSize = value
		m.logger.Debug("set window ack size", zap.Uint32("size", value))
	case SetPeerBandwidth:
		limit := LimitType(payload[4])
		if limit > LimitDynamic {
			return m.framingError(msg, ErrInvalidLimitType)
		}
		m.control.PeerBandwidth = value
		m.control.PeerBandwidthLimit = limit
		m.logger.Debug("set peer bandwidth", zap.Uint32("size", value), zap.Uint8("limit", uint8(limit)))
	}
	return nil
}

func (m *MessageManager) handleUserControlMessage(msg *Message) error {
	// First 2 bytes of payload contain event type
	if len(msg.Payload) < 2 {
		return m.framingError(msg, ErrPayloadLength)
	}
	event := UserControlEvent{
		Type: UserControlEventType(binary.BigEndian.Uint16(msg.Payload[:2])),
		Data: msg.Payload[2:],
	}
	return errors.Wrap(m.handlers.UserControl.OnUserControl(msg, event), "user control handler")
}

func (m *MessageManager) handleObjectMessage(msg *Message, version uint8) error {
	values, _, err := amf.Decode(version, msg.Payload)
	if err != nil {
		return errors.Wrapf(err, "decode %s payload", msg.Type)
	}
	return errors.Wrapf(m.handlers.Command.OnCommand(msg, values), "command handler (%s)", msg.Type)
}
