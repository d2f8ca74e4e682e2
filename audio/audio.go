// Package audio reads the tag header at the start of an audio message payload.
// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf
package audio

import (
	"errors"
	"strconv"
)

type Format uint8

const (
	LinearPCMPlatformEndian Format = 0
	ADPCM                   Format = 1
	MP3                     Format = 2
	LinearPCMLittleEndian   Format = 3
	Nellymoser16KHzMono     Format = 4
	Nellymoser8KHzMono      Format = 5
	Nellymoser              Format = 6
	G711AlawLogPCM          Format = 7
	G711MulawLogPCM         Format = 8
	AAC                     Format = 10
	Speex                   Format = 11
	MP38KHz                 Format = 14
	DeviceSpecificSound     Format = 15
)

var formatNames = map[Format]string{
	LinearPCMPlatformEndian: "pcm",
	ADPCM:                   "adpcm",
	MP3:                     "mp3",
	LinearPCMLittleEndian:   "pcm_le",
	Nellymoser16KHzMono:     "nellymoser_16khz",
	Nellymoser8KHzMono:      "nellymoser_8khz",
	Nellymoser:              "nellymoser",
	G711AlawLogPCM:          "g711_alaw",
	G711MulawLogPCM:         "g711_mulaw",
	AAC:                     "aac",
	Speex:                   "speex",
	MP38KHz:                 "mp3_8khz",
	DeviceSpecificSound:     "device_specific",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "format(" + strconv.Itoa(int(f)) + ")"
}

type SampleRate uint8

const (
	Rate5p5KHz SampleRate = 0
	Rate11KHz  SampleRate = 1
	Rate22KHz  SampleRate = 2
	Rate44KHz  SampleRate = 3
)

// Hz returns the sample rate in hertz.
func (r SampleRate) Hz() int {
	switch r {
	case Rate5p5KHz:
		return 5512
	case Rate11KHz:
		return 11025
	case Rate22KHz:
		return 22050
	default:
		return 44100
	}
}

type SampleSize uint8

const (
	Size8Bit  SampleSize = 0
	Size16Bit SampleSize = 1
)

type Channel uint8

const (
	Mono   Channel = 0
	Stereo Channel = 1
)

type AACPacketType uint8

const (
	AACSequenceHeader AACPacketType = 0
	AACRaw            AACPacketType = 1
)

var ErrShortPayload = errors.New("audio: payload too short for a tag header")

// TagHeader is the first byte of an audio payload, plus the AAC packet type for AAC.
type TagHeader struct {
	Format     Format
	SampleRate SampleRate
	SampleSize SampleSize
	Channels   Channel
	// Only meaningful when Format is AAC
	AACPacketType AACPacketType
	// Length is the number of payload bytes the header occupies
	Length int
}

func ParseTagHeader(payload []byte) (TagHeader, error) {
	var h TagHeader
	if len(payload) < 1 {
		return h, ErrShortPayload
	}
	h.Format = Format(payload[0] >> 4)
	h.SampleRate = SampleRate((payload[0] >> 2) & 0x03)
	h.SampleSize = SampleSize((payload[0] >> 1) & 0x01)
	h.Channels = Channel(payload[0] & 0x01)
	h.Length = 1
	if h.Format == AAC {
		if len(payload) < 2 {
			return h, ErrShortPayload
		}
		h.AACPacketType = AACPacketType(payload[1])
		h.Length = 2
	}
	return h, nil
}

// IsSequenceHeader reports whether the payload carries the AAC decoder configuration.
func (h TagHeader) IsSequenceHeader() bool {
	return h.Format == AAC && h.AACPacketType == AACSequenceHeader
}
