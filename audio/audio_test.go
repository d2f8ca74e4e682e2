package audio

import "testing"

func TestParseTagHeader(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		want     TagHeader
		sequence bool
	}{
		{"aac sequence header", []byte{0xAF, 0x00, 0x12, 0x10}, TagHeader{Format: AAC, SampleRate: Rate44KHz, SampleSize: Size16Bit, Channels: Stereo, AACPacketType: AACSequenceHeader, Length: 2}, true},
		{"aac raw", []byte{0xAF, 0x01, 0x21}, TagHeader{Format: AAC, SampleRate: Rate44KHz, SampleSize: Size16Bit, Channels: Stereo, AACPacketType: AACRaw, Length: 2}, false},
		{"mp3 mono", []byte{0x22, 0xFF}, TagHeader{Format: MP3, SampleRate: Rate5p5KHz, SampleSize: Size16Bit, Channels: Mono, Length: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTagHeader(tt.payload)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got.IsSequenceHeader() != tt.sequence {
				t.Fatalf("IsSequenceHeader = %v", got.IsSequenceHeader())
			}
		})
	}
}

func TestParseTagHeaderShort(t *testing.T) {
	if _, err := ParseTagHeader(nil); err != ErrShortPayload {
		t.Fatalf("empty payload: %v", err)
	}
	if _, err := ParseTagHeader([]byte{0xAF}); err != ErrShortPayload {
		t.Fatalf("aac without packet type: %v", err)
	}
}

func TestFormatAndRate(t *testing.T) {
	if AAC.String() != "aac" || Format(9).String() != "format(9)" {
		t.Fatalf("unexpected names %s, %s", AAC, Format(9))
	}
	if Rate44KHz.Hz() != 44100 || Rate5p5KHz.Hz() != 5512 {
		t.Fatal("unexpected sample rates")
	}
}
