package rtmp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/torresjeff/rtmpserver/amf"
	"github.com/torresjeff/rtmpserver/amf/amf0"
)

type fakeChunkController struct {
	chunkSize uint32
	aborted   []uint32
}

func (c *fakeChunkController) SetChunkSize(size uint32) error {
	if size == 0 {
		return ErrInvalidChunkSize
	}
	c.chunkSize = size
	return nil
}

func (c *fakeChunkController) Abort(csid uint32) bool {
	c.aborted = append(c.aborted, csid)
	return true
}

func controlMessage(t MessageType, payload ...byte) *Message {
	return &Message{ChunkStreamID: protocolChunkStreamID, Type: t, Payload: payload}
}

func TestHandleProtocolControl(t *testing.T) {
	chunks := &fakeChunkController{}
	m := NewMessageManager(nil, chunks, Handlers{})

	if err := m.Handle(controlMessage(SetChunkSize, 0x80, 0x00, 0x10, 0x00)); err != nil {
		t.Fatalf("set chunk size: %v", err)
	}
	if chunks.chunkSize != 0x1000 {
		t.Fatalf("chunk size = %#x, want the high bit masked off", chunks.chunkSize)
	}
	if err := m.Handle(controlMessage(AbortMessage, 0, 0, 0, 7)); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if len(chunks.aborted) != 1 || chunks.aborted[0] != 7 {
		t.Fatalf("aborted = %v, want [7]", chunks.aborted)
	}
	if err := m.Handle(controlMessage(Acknowledgement, 0, 0, 0x10, 0)); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := m.Handle(controlMessage(WindowAcknowledgementSize, 0, 0x26, 0x25, 0xA0)); err != nil {
		t.Fatalf("window ack size: %v", err)
	}
	if err := m.Handle(controlMessage(SetPeerBandwidth, 0, 0x26, 0x25, 0xA0, byte(LimitDynamic))); err != nil {
		t.Fatalf("set peer bandwidth: %v", err)
	}

	want := ControlState{
		LastAcknowledgement: 0x1000,
		WindowAckSize:       2500000,
		PeerBandwidth:       2500000,
		PeerBandwidthLimit:  LimitDynamic,
	}
	if got := m.ControlState(); got != want {
		t.Fatalf("control state = %+v, want %+v", got, want)
	}
}

func TestHandleProtocolControlFramingErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want error
	}{
		{"wrong chunk stream", &Message{ChunkStreamID: 3, Type: SetChunkSize, Payload: []byte{0, 0, 1, 0}}, ErrWrongChunkStream},
		{"short set chunk size", controlMessage(SetChunkSize, 0, 1, 0), ErrPayloadLength},
		{"long ack", controlMessage(Acknowledgement, 0, 0, 0, 1, 0), ErrPayloadLength},
		{"short peer bandwidth", controlMessage(SetPeerBandwidth, 0, 0, 0, 1), ErrPayloadLength},
		{"zero chunk size", controlMessage(SetChunkSize, 0, 0, 0, 0), ErrInvalidChunkSize},
		{"bad limit type", controlMessage(SetPeerBandwidth, 0, 0, 0, 1, 3), ErrInvalidLimitType},
		{"short user control", controlMessage(UserControlMessage, 0), ErrPayloadLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := &fakeChunkController{chunkSize: DefaultChunkSize}
			m := NewMessageManager(nil, chunks, Handlers{})
			err := m.Handle(tt.msg)
			var ferr *FramingError
			if !errors.As(err, &ferr) {
				t.Fatalf("error = %v, want a *FramingError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if ferr.MessageType != tt.msg.Type {
				t.Fatalf("framing error type = %s, want %s", ferr.MessageType, tt.msg.Type)
			}
			if chunks.chunkSize != DefaultChunkSize {
				t.Fatal("a rejected message changed the chunk size")
			}
		})
	}
}

func TestHandleUserControl(t *testing.T) {
	var got UserControlEvent
	m := NewMessageManager(nil, &fakeChunkController{}, Handlers{
		UserControl: UserControlHandlerFunc(func(msg *Message, event UserControlEvent) error {
			got = event
			return nil
		}),
	})
	if err := m.Handle(NewUserControlMessage(EventSetBufferLength, []byte{0, 0, 0, 1, 0, 0, 0x0B, 0xB8})); err != nil {
		t.Fatal(err)
	}
	if got.Type != EventSetBufferLength || !bytes.Equal(got.Data, []byte{0, 0, 0, 1, 0, 0, 0x0B, 0xB8}) {
		t.Fatalf("event = %+v", got)
	}
}

func TestHandleCommand(t *testing.T) {
	msg, err := NewCommandMessage(3, 0,
		amf0.String("connect"),
		amf0.Number(1),
		amf0.NewObject().Set("app", amf0.String("live")).Set("tcUrl", amf0.String("rtmp://localhost/live")),
	)
	if err != nil {
		t.Fatal(err)
	}

	var values []amf0.Value
	var gotType MessageType
	m := NewMessageManager(nil, &fakeChunkController{}, Handlers{
		Command: CommandHandlerFunc(func(msg *Message, v []amf0.Value) error {
			gotType = msg.Type
			values = v
			return nil
		}),
	})
	if err := m.Handle(msg); err != nil {
		t.Fatal(err)
	}
	if gotType != CommandMessageAMF0 || len(values) != 3 {
		t.Fatalf("got %d values for %s", len(values), gotType)
	}
	if values[0] != amf0.String("connect") || values[1] != amf0.Number(1) {
		t.Fatalf("values = %v", values)
	}
	obj, ok := values[2].(*amf0.Object)
	if !ok {
		t.Fatalf("third value is %T, want *amf0.Object", values[2])
	}
	if app, _ := obj.GetString("app"); app != "live" {
		t.Fatalf("app = %q", app)
	}
}

func TestHandleDataAndSharedObjectUseAMF0(t *testing.T) {
	payload, err := amf0.Encode(amf0.String("@setDataFrame"), amf0.String("onMetaData"))
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	m := NewMessageManager(nil, &fakeChunkController{}, Handlers{
		Command: CommandHandlerFunc(func(msg *Message, v []amf0.Value) error {
			calls++
			if len(v) != 2 {
				t.Errorf("%s: %d values, want 2", msg.Type, len(v))
			}
			return nil
		}),
	})
	for _, typ := range []MessageType{DataMessageAMF0, SharedObjectMessageAMF0} {
		if err := m.Handle(&Message{ChunkStreamID: 4, Type: typ, Payload: payload}); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}
	if calls != 2 {
		t.Fatalf("command handler called %d times, want 2", calls)
	}
}

func TestHandleDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want error
	}{
		{"amf3 command", &Message{ChunkStreamID: 3, Type: CommandMessageAMF3, Payload: []byte{0, 2, 0, 1, 'x'}}, amf.ErrUnsupportedVersion},
		{"amf3 data", &Message{ChunkStreamID: 3, Type: DataMessageAMF3, Payload: []byte{0}}, amf.ErrUnsupportedVersion},
		{"amf3 shared object", &Message{ChunkStreamID: 3, Type: SharedObjectMessageAMF3, Payload: []byte{0}}, amf.ErrUnsupportedVersion},
		{"movie clip marker", &Message{ChunkStreamID: 3, Type: CommandMessageAMF0, Payload: []byte{0x04}}, amf0.ErrUnsupportedValue},
		{"truncated number", &Message{ChunkStreamID: 3, Type: CommandMessageAMF0, Payload: []byte{0x00, 0x40}}, amf0.ErrUnexpectedEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			m := NewMessageManager(nil, &fakeChunkController{}, Handlers{
				Command: CommandHandlerFunc(func(*Message, []amf0.Value) error {
					called = true
					return nil
				}),
			})
			err := m.Handle(tt.msg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !IsDecodeError(err) {
				t.Fatalf("IsDecodeError(%v) = false", err)
			}
			if IsFramingError(err) {
				t.Fatal("decode failure reported as a framing error")
			}
			if called {
				t.Fatal("command handler called for an undecodable payload")
			}
		})
	}
}

func TestHandleMediaPassThrough(t *testing.T) {
	var received []*Message
	m := NewMessageManager(nil, &fakeChunkController{}, Handlers{
		Media: MediaSinkFunc(func(msg *Message) error {
			received = append(received, msg)
			return nil
		}),
	})
	payload := []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xFF}
	for _, typ := range []MessageType{AudioMessage, VideoMessage, AggregateMessage} {
		if err := m.Handle(&Message{ChunkStreamID: 6, Type: typ, StreamID: 1, Payload: payload}); err != nil {
			t.Fatal(err)
		}
	}
	if len(received) != 3 {
		t.Fatalf("media sink received %d messages, want 3", len(received))
	}
	for _, msg := range received {
		if !bytes.Equal(msg.Payload, payload) {
			t.Fatalf("%s payload changed: %x", msg.Type, msg.Payload)
		}
	}
}

func TestHandleUnknownType(t *testing.T) {
	var got *Message
	m := NewMessageManager(nil, &fakeChunkController{}, Handlers{
		Unknown: MessageHandlerFunc(func(msg *Message) error {
			got = msg
			return nil
		}),
	})
	msg := &Message{ChunkStreamID: 3, Type: MessageType(99), Payload: []byte{1, 2}}
	if err := m.Handle(msg); err != nil {
		t.Fatal(err)
	}
	if got != msg {
		t.Fatal("unknown message was not passed through")
	}
}

func TestHandleHandlerError(t *testing.T) {
	sinkErr := errors.New("disk full")
	m := NewMessageManager(nil, &fakeChunkController{}, Handlers{
		Media: MediaSinkFunc(func(*Message) error { return sinkErr }),
	})
	err := m.Handle(&Message{ChunkStreamID: 6, Type: VideoMessage})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("error = %v, want the sink error", err)
	}
	if IsFramingError(err) || IsDecodeError(err) {
		t.Fatalf("handler error misclassified: %v", err)
	}
}

func TestHandleWithoutHandlers(t *testing.T) {
	m := NewMessageManager(nil, &fakeChunkController{}, Handlers{})
	msgs := []*Message{
		{ChunkStreamID: 6, Type: AudioMessage, Payload: []byte{1}},
		NewUserControlMessage(EventPingRequest, []byte{0, 0, 0, 1}),
		{ChunkStreamID: 3, Type: MessageType(42)},
	}
	for _, msg := range msgs {
		if err := m.Handle(msg); err != nil {
			t.Fatalf("%s: %v", msg.Type, err)
		}
	}
}

func TestControlMessageBuilders(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		typ     MessageType
		payload []byte
	}{
		{"set chunk size", NewSetChunkSizeMessage(4096), SetChunkSize, []byte{0, 0, 0x10, 0}},
		{"set chunk size masks high bit", NewSetChunkSizeMessage(0xFFFFFFFF), SetChunkSize, []byte{0x7F, 0xFF, 0xFF, 0xFF}},
		{"abort", NewAbortMessage(5), AbortMessage, []byte{0, 0, 0, 5}},
		{"ack", NewAckMessage(3073), Acknowledgement, []byte{0, 0, 0x0C, 0x01}},
		{"window ack size", NewWindowAckSizeMessage(2500000), WindowAcknowledgementSize, []byte{0, 0x26, 0x25, 0xA0}},
		{"set peer bandwidth", NewSetPeerBandwidthMessage(2500000, LimitSoft), SetPeerBandwidth, []byte{0, 0x26, 0x25, 0xA0, 1}},
		{"stream begin", NewStreamBeginMessage(1), UserControlMessage, []byte{0, 0, 0, 0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Type != tt.typ || tt.msg.ChunkStreamID != protocolChunkStreamID || tt.msg.StreamID != 0 {
				t.Fatalf("message %+v", tt.msg)
			}
			if !bytes.Equal(tt.msg.Payload, tt.payload) {
				t.Fatalf("payload = %x, want %x", tt.msg.Payload, tt.payload)
			}
		})
	}
}

func TestControlMessagesAreAcceptedByManager(t *testing.T) {
	chunks := &fakeChunkController{}
	m := NewMessageManager(nil, chunks, Handlers{})
	for _, msg := range []*Message{
		NewSetChunkSizeMessage(4096),
		NewAbortMessage(4),
		NewAckMessage(10),
		NewWindowAckSizeMessage(5000),
		NewSetPeerBandwidthMessage(5000, LimitHard),
	} {
		if err := m.Handle(msg); err != nil {
			t.Fatalf("%s: %v", msg.Type, err)
		}
	}
	if chunks.chunkSize != 4096 {
		t.Fatalf("chunk size = %d", chunks.chunkSize)
	}
}
