package rtmp

import (
	"errors"
	"fmt"
)

var ErrNilWriter = errors.New("expected *bufio.Writer to be non-nil, but got a nil value")
var ErrNilReader = errors.New("expected *bufio.Reader to be non-nil, but got a nil value")

var (
	ErrNoPreviousChunk    = errors.New("received chunk type that depends on a previous chunk, but no previous chunk was found")
	ErrMessageInterrupted = errors.New("new message started before the previous one on the same chunk stream was complete")
	ErrInvalidChunkSize   = errors.New("chunk size must be between 1 and 0x7FFFFFFF")
	ErrHeaderMismatch     = errors.New("message header cannot be expressed with the requested chunk type")
	ErrPayloadLength      = errors.New("control message payload has the wrong length")
	ErrWrongChunkStream   = errors.New("protocol control message outside the protocol chunk stream")
	ErrInvalidLimitType   = errors.New("invalid peer bandwidth limit type")
)

// FramingError describes a message that was dropped because it was malformed.
// The connection it arrived on stays usable.
type FramingError struct {
	ChunkStreamID uint32
	MessageType   MessageType
	Err           error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error on chunk stream %d (%s): %v", e.ChunkStreamID, e.MessageType, e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// IsFramingError reports whether err is, or wraps, a *FramingError.
func IsFramingError(err error) bool {
	var ferr *FramingError
	return errors.As(err, &ferr)
}
