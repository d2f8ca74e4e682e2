package main

import (
	"io"

	rtmp "github.com/torresjeff/rtmpserver"
	"github.com/torresjeff/rtmpserver/audio"
	"github.com/torresjeff/rtmpserver/video"
	"go.uber.org/zap"
)

// inspectingSink logs codec sequence headers and key frames before handing the payload,
// untouched, to the next sink.
type inspectingSink struct {
	logger *zap.Logger
	next   rtmp.MediaSink
}

func newInspectingSink(logger *zap.Logger, next rtmp.MediaSink) *inspectingSink {
	return &inspectingSink{logger: logger, next: next}
}

func (s *inspectingSink) WriteMedia(msg *rtmp.Message) error {
	switch msg.Type {
	case rtmp.AudioMessage:
		if h, err := audio.ParseTagHeader(msg.Payload); err == nil && h.IsSequenceHeader() {
			s.logger.Info("audio sequence header", zap.Stringer("format", h.Format),
				zap.Int("sampleRate", h.SampleRate.Hz()), zap.Uint8("channels", uint8(h.Channels)+1))
		}
	case rtmp.VideoMessage:
		h, err := video.ParseTagHeader(msg.Payload)
		if err != nil {
			break
		}
		if h.IsSequenceHeader() {
			s.logger.Info("video sequence header", zap.Stringer("codec", h.Codec))
		} else if h.IsKeyFrame() {
			s.logger.Debug("key frame", zap.Stringer("codec", h.Codec), zap.Uint32("timestamp", msg.Timestamp))
		}
	}
	return s.next.WriteMedia(msg)
}

func (s *inspectingSink) Close() error {
	if closer, ok := s.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
