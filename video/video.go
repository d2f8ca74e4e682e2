// Package video reads the tag header at the start of a video message payload.
// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf
package video

import (
	"errors"
	"strconv"
)

type FrameType uint8

const (
	KeyFrame             FrameType = 1
	InterFrame           FrameType = 2
	DisposableInterFrame FrameType = 3
	GeneratedKeyFrame    FrameType = 4
	// Video info/command frame
	CommandFrame FrameType = 5
)

type Codec uint8

const (
	SorensonH263    Codec = 2
	ScreenVideo     Codec = 3
	VP6             Codec = 4
	VP6AlphaChannel Codec = 5
	ScreenVideoV2   Codec = 6
	H264            Codec = 7
)

var codecNames = map[Codec]string{
	SorensonH263:    "h263",
	ScreenVideo:     "screen_video",
	VP6:             "vp6",
	VP6AlphaChannel: "vp6_alpha",
	ScreenVideoV2:   "screen_video_v2",
	H264:            "h264",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return "codec(" + strconv.Itoa(int(c)) + ")"
}

type AVCPacketType uint8

const (
	AVCSequenceHeader AVCPacketType = 0
	AVCNALU           AVCPacketType = 1
	AVCEndOfSequence  AVCPacketType = 2
)

var ErrShortPayload = errors.New("video: payload too short for a tag header")

// TagHeader is the first byte of a video payload, plus the AVC packet type and
// composition time for H.264.
type TagHeader struct {
	FrameType FrameType
	Codec     Codec
	// Only meaningful when Codec is H264
	AVCPacketType   AVCPacketType
	CompositionTime int32
	// Length is the number of payload bytes the header occupies
	Length int
}

func ParseTagHeader(payload []byte) (TagHeader, error) {
	var h TagHeader
	if len(payload) < 1 {
		return h, ErrShortPayload
	}
	h.FrameType = FrameType(payload[0] >> 4)
	h.Codec = Codec(payload[0] & 0x0F)
	h.Length = 1
	if h.Codec == H264 {
		if len(payload) < 5 {
			return h, ErrShortPayload
		}
		h.AVCPacketType = AVCPacketType(payload[1])
		// signed 24 bit
		ct := int32(payload[2])<<16 | int32(payload[3])<<8 | int32(payload[4])
		if ct&0x800000 != 0 {
			ct -= 1 << 24
		}
		h.CompositionTime = ct
		h.Length = 5
	}
	return h, nil
}

func (h TagHeader) IsKeyFrame() bool {
	return h.FrameType == KeyFrame || h.FrameType == GeneratedKeyFrame
}

// IsSequenceHeader reports whether the payload carries the AVC decoder configuration.
func (h TagHeader) IsSequenceHeader() bool {
	return h.Codec == H264 && h.AVCPacketType == AVCSequenceHeader
}
