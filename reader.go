package rtmp

import (
	"bufio"
	"io"
)

// Reader is the receiving half of a connection's byte stream. It counts every byte
// it hands out so the session can report how much it has received.
type Reader struct {
	reader *bufio.Reader
	n      uint64
}

func NewReader(reader *bufio.Reader) (*Reader, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	return &Reader{reader: reader}, nil
}

// Receive performs a single read into p and returns however many bytes arrived,
// which may be fewer than len(p).
func (r *Reader) Receive(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n += uint64(n)
	return n, err
}

// ReceiveFull reads exactly len(p) bytes into p.
// If an EOF happens after reading some but not all the bytes, it returns io.ErrUnexpectedEOF.
func (r *Reader) ReceiveFull(p []byte) error {
	n, err := io.ReadFull(r.reader, p)
	r.n += uint64(n)
	return err
}

// ReadBytes returns the number of bytes received since the Reader was created.
func (r *Reader) ReadBytes() uint64 {
	return r.n
}
