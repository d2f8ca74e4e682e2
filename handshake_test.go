package rtmp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// fakeStream replays each packet with a separate Receive, the way distinct peer writes arrive.
type fakeStream struct {
	packets [][]byte
	sent    [][]byte
}

func (s *fakeStream) Receive(p []byte) (int, error) {
	if len(s.packets) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.packets[0])
	s.packets[0] = s.packets[0][n:]
	if len(s.packets[0]) == 0 {
		s.packets = s.packets[1:]
	}
	return n, nil
}

func (s *fakeStream) ReceiveFull(p []byte) error {
	read := 0
	for read < len(p) {
		n, err := s.Receive(p[read:])
		read += n
		if err != nil {
			if read > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

func (s *fakeStream) Send(buffers ...[]byte) error {
	s.sent = append(s.sent, bytes.Join(buffers, nil))
	return nil
}

func patternRandom(b []byte) error {
	for i := range b {
		b[i] = byte(i % 251)
	}
	return nil
}

func newTestHandshaker() *ServerHandshaker {
	return &ServerHandshaker{
		Random: patternRandom,
		Now:    func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func testC1() []byte {
	c1 := make([]byte, handshakeMessageLength)
	c1[0], c1[1], c1[2], c1[3] = 0, 0, 0x12, 0x34
	for i := handshakeRandomOffset; i < len(c1); i++ {
		c1[i] = byte(i * 3)
	}
	return c1
}

// expectedC2 is what a well-behaved client echoes back for the S1 newTestHandshaker sends.
func expectedC2() []byte {
	s1 := make([]byte, handshakeMessageLength)
	patternRandom(s1[handshakeRandomOffset:])
	return generateEcho(s1)
}

func TestServerHandshakeCoalesced(t *testing.T) {
	c1 := testC1()
	stream := &fakeStream{packets: [][]byte{append([]byte{RtmpVersion3}, c1...), expectedC2()}}

	seed, err := newTestHandshaker().Handshake(stream)
	if err != nil {
		t.Fatalf("Handshake error: %v", err)
	}
	if !seed.Coalesced || seed.PeerTimestamp != 0x1234 || seed.StartTime.Unix() != 1700000000 {
		t.Fatalf("unexpected seed %+v", seed)
	}
	if len(stream.sent) != 2 {
		t.Fatalf("%d sends, want S0+S1 then S2", len(stream.sent))
	}
	if len(stream.sent[0]) != 1+handshakeMessageLength || stream.sent[0][0] != RtmpVersion3 {
		t.Fatalf("first send is %d bytes starting with %d", len(stream.sent[0]), stream.sent[0][0])
	}
	s2 := stream.sent[1]
	if !bytes.Equal(s2, generateEcho(c1)) {
		t.Fatal("S2 does not echo C1")
	}
}

func TestServerHandshakeSeparateC0(t *testing.T) {
	c1 := testC1()
	stream := &fakeStream{packets: [][]byte{{RtmpVersion3}, c1[:700], c1[700:], expectedC2()}}

	seed, err := newTestHandshaker().Handshake(stream)
	if err != nil {
		t.Fatalf("Handshake error: %v", err)
	}
	if seed.Coalesced {
		t.Fatal("C0 arrived alone but the handshake was marked coalesced")
	}
	if len(stream.sent) != 3 {
		t.Fatalf("%d sends, want S0, S1 and S2", len(stream.sent))
	}
	if !bytes.Equal(stream.sent[0], []byte{RtmpVersion3}) {
		t.Fatalf("S0 = %x", stream.sent[0])
	}
	if len(stream.sent[1]) != handshakeMessageLength || len(stream.sent[2]) != handshakeMessageLength {
		t.Fatalf("S1/S2 lengths %d, %d", len(stream.sent[1]), len(stream.sent[2]))
	}
}

func TestServerHandshakeFailures(t *testing.T) {
	badZero := testC1()
	badZero[5] = 1
	badC2 := expectedC2()
	badC2[handshakeMessageLength-1] ^= 0xFF

	tests := []struct {
		name         string
		packets      [][]byte
		want         error
		step         string
		sendsNothing bool
	}{
		{"unsupported version", [][]byte{append([]byte{6}, testC1()...)}, ErrUnsupportedRTMPVersion, "c0", true},
		{"c1 zero field", [][]byte{append([]byte{RtmpVersion3}, badZero...)}, ErrInvalidC1Message, "c1", true},
		{"truncated c1", [][]byte{{RtmpVersion3}, testC1()[:100]}, io.ErrUnexpectedEOF, "c1", true},
		{"empty stream", nil, io.EOF, "c0", true},
		{"wrong c2", [][]byte{append([]byte{RtmpVersion3}, testC1()...), badC2}, ErrWrongC2Message, "c2", false},
		{"missing c2", [][]byte{append([]byte{RtmpVersion3}, testC1()...)}, io.EOF, "c2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := &fakeStream{packets: tt.packets}
			_, err := newTestHandshaker().Handshake(stream)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var herr *HandshakeError
			if !errors.As(err, &herr) || herr.Step != tt.step {
				t.Fatalf("error %v is not a handshake error at step %s", err, tt.step)
			}
			if tt.sendsNothing && len(stream.sent) != 0 {
				t.Fatalf("%d sends on a rejected handshake, want none", len(stream.sent))
			}
		})
	}
}

func newPipeStream(t *testing.T, conn net.Conn) ByteStream {
	t.Helper()
	reader, err := NewReader(bufio.NewReader(conn))
	if err != nil {
		t.Fatal(err)
	}
	writer, err := NewWriter(bufio.NewWriter(conn))
	if err != nil {
		t.Fatal(err)
	}
	return NewByteStream(reader, writer)
}

func TestClientServerHandshake(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	type result struct {
		seed ConnectionSeed
		err  error
	}
	serverStream := newPipeStream(t, serverConn)
	done := make(chan result, 1)
	go func() {
		seed, err := NewServerHandshaker().Handshake(serverStream)
		done <- result{seed, err}
	}()

	if err := ClientHandshake(newPipeStream(t, clientConn)); err != nil {
		t.Fatalf("ClientHandshake error: %v", err)
	}
	res := <-done
	if res.err != nil {
		t.Fatalf("server Handshake error: %v", res.err)
	}
	if !res.seed.Coalesced {
		t.Fatal("client sent C0+C1 together but the server did not see it coalesced")
	}
}

func TestNewReaderWriterNil(t *testing.T) {
	if _, err := NewReader(nil); err != ErrNilReader {
		t.Fatalf("NewReader(nil) = %v", err)
	}
	if _, err := NewWriter(nil); err != ErrNilWriter {
		t.Fatalf("NewWriter(nil) = %v", err)
	}
}
