// Package storage persists media message payloads. Payloads are written as-is; their
// codec framing is not interpreted.
package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	rtmp "github.com/torresjeff/rtmpserver"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("storage: sink is closed")

// FileSink appends the payload of every media message it receives to a file per
// message type inside one directory. The directory is created on the first write.
type FileSink struct {
	logger *zap.Logger
	dir    string

	mu     sync.Mutex
	files  map[rtmp.MessageType]*os.File
	closed bool
}

// NewFileSink returns a sink writing under savePath/connectionID.
func NewFileSink(logger *zap.Logger, savePath string, connectionID string) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{
		logger: logger,
		dir:    filepath.Join(savePath, connectionID),
		files:  make(map[rtmp.MessageType]*os.File),
	}
}

func (s *FileSink) Dir() string {
	return s.dir
}

func fileName(t rtmp.MessageType) string {
	switch t {
	case rtmp.AudioMessage:
		return "audio.bin"
	case rtmp.VideoMessage:
		return "video.bin"
	case rtmp.AggregateMessage:
		return "aggregate.bin"
	default:
		return t.String() + ".bin"
	}
}

func (s *FileSink) WriteMedia(msg *rtmp.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	f, ok := s.files[msg.Type]
	if !ok {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return errors.Wrap(err, "create media directory")
		}
		path := filepath.Join(s.dir, fileName(msg.Type))
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		s.logger.Debug("opened media file", zap.String("path", path))
		s.files[msg.Type] = f
	}

	if _, err := f.Write(msg.Payload); err != nil {
		return errors.Wrapf(err, "write %s payload", msg.Type)
	}
	return nil
}

// Close closes every open file. Writes after Close fail with ErrClosed.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for t, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close %s file", t)
		}
	}
	s.files = nil
	return firstErr
}

type discard struct{}

func (discard) WriteMedia(*rtmp.Message) error { return nil }

// Discard is a media sink that drops every payload.
var Discard rtmp.MediaSink = discard{}
