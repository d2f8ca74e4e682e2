package rtmp

// ByteStream is the blocking transport the handshake runs over.
type ByteStream interface {
	// Receive performs one read and returns what arrived, up to len(p) bytes.
	Receive(p []byte) (int, error)
	// ReceiveFull blocks until len(p) bytes have arrived.
	ReceiveFull(p []byte) error
	// Send writes the buffers back to back as a single send.
	Send(buffers ...[]byte) error
}

type Handshaker interface {
	Handshake(stream ByteStream) (ConnectionSeed, error)
}

type byteStream struct {
	*Reader
	*Writer
}

// NewByteStream joins a Reader and a Writer into a ByteStream.
func NewByteStream(reader *Reader, writer *Writer) ByteStream {
	return byteStream{Reader: reader, Writer: writer}
}
