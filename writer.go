package rtmp

import "bufio"

// Writer is the sending half of a connection's byte stream.
type Writer struct {
	writer *bufio.Writer
	n      uint64
}

func NewWriter(writer *bufio.Writer) (*Writer, error) {
	if writer == nil {
		return nil, ErrNilWriter
	}
	return &Writer{writer: writer}, nil
}

// Send writes every buffer in order and flushes once, so the peer sees them as one send.
func (w *Writer) Send(buffers ...[]byte) error {
	for _, b := range buffers {
		n, err := w.writer.Write(b)
		w.n += uint64(n)
		if err != nil {
			return err
		}
	}
	return w.writer.Flush()
}

// WrittenBytes returns the number of bytes accepted for sending since the Writer was created.
func (w *Writer) WrittenBytes() uint64 {
	return w.n
}
