package rtmp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/torresjeff/rtmpserver/rand"
)

const RtmpVersion3 = 3

const (
	handshakeMessageLength = 1536
	handshakeRandomOffset  = 8
	handshakeRandomLength  = handshakeMessageLength - handshakeRandomOffset
)

var (
	ErrUnsupportedRTMPVersion = errors.New("the version of RTMP is not supported")
	ErrInvalidC1Message       = errors.New("server handshake: c1 zero field is not zero")
	ErrWrongC2Message         = errors.New("server handshake: s1 and c2 handshake messages do not match")
	ErrWrongS2Message         = errors.New("client handshake: c1 and s2 handshake messages do not match")
)

// HandshakeError is fatal for the connection it happened on.
type HandshakeError struct {
	// Step is the handshake message being read or written when the failure happened
	Step string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed at %s: %v", e.Step, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ConnectionSeed is what survives the handshake.
type ConnectionSeed struct {
	// StartTime is when the handshake completed; outbound message timestamps are relative to it.
	StartTime time.Time
	// PeerTimestamp is the timestamp the client put in C1.
	PeerTimestamp uint32
	// Coalesced is true when the client sent C0 and C1 in a single write.
	Coalesced bool
}

// ServerHandshaker performs the server side of the simple (unsigned) handshake.
type ServerHandshaker struct {
	// Random fills its argument with random data. Defaults to crypto/rand.
	Random func(b []byte) error
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewServerHandshaker() *ServerHandshaker {
	return &ServerHandshaker{
		Random: rand.GenerateCryptoSafeRandomData,
		Now:    time.Now,
	}
}

// Handshake runs C0/C1 -> S0/S1/S2 -> C2. Nothing is sent if C0 or C1 is invalid.
func (hs *ServerHandshaker) Handshake(stream ByteStream) (ConnectionSeed, error) {
	var seed ConnectionSeed

	c1, coalesced, err := readC0C1(stream)
	if err != nil {
		return seed, err
	}
	seed.Coalesced = coalesced
	seed.PeerTimestamp = binary.BigEndian.Uint32(c1[:4])

	// s1: 4 byte timestamp (0), 4 zero bytes, then our random data
	s1 := make([]byte, handshakeMessageLength)
	random := hs.Random
	if random == nil {
		random = rand.GenerateCryptoSafeRandomData
	}
	if err := random(s1[handshakeRandomOffset:]); err != nil {
		return seed, &HandshakeError{Step: "s1", Err: err}
	}

	s0 := []byte{RtmpVersion3}
	if coalesced {
		// peers that coalesce C0+C1 expect S0+S1 in one piece
		if err := stream.Send(s0, s1); err != nil {
			return seed, &HandshakeError{Step: "s0s1", Err: err}
		}
	} else {
		if err := stream.Send(s0); err != nil {
			return seed, &HandshakeError{Step: "s0", Err: err}
		}
		if err := stream.Send(s1); err != nil {
			return seed, &HandshakeError{Step: "s1", Err: err}
		}
	}

	if err := stream.Send(generateEcho(c1)); err != nil {
		return seed, &HandshakeError{Step: "s2", Err: err}
	}

	c2 := make([]byte, handshakeMessageLength)
	if err := stream.ReceiveFull(c2); err != nil {
		return seed, &HandshakeError{Step: "c2", Err: err}
	}
	if !bytes.Equal(c2[:4], []byte{0, 0, 0, 0}) || !bytes.Equal(c2[handshakeRandomOffset:], s1[handshakeRandomOffset:]) {
		return seed, &HandshakeError{Step: "c2", Err: ErrWrongC2Message}
	}

	now := hs.Now
	if now == nil {
		now = time.Now
	}
	seed.StartTime = now()
	return seed, nil
}

// readC0C1 returns C1 and whether it arrived in the same read as C0.
func readC0C1(stream ByteStream) ([]byte, bool, error) {
	var c0c1 [1 + handshakeMessageLength]byte
	n, err := stream.Receive(c0c1[:])
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, false, &HandshakeError{Step: "c0", Err: err}
	}
	if c0c1[0] != RtmpVersion3 {
		return nil, false, &HandshakeError{Step: "c0", Err: ErrUnsupportedRTMPVersion}
	}

	coalesced := n > 1
	// Either only C0 arrived, or C0 and part of C1. Read the rest of C1.
	if n < len(c0c1) {
		if err := stream.ReceiveFull(c0c1[n:]); err != nil {
			return nil, coalesced, &HandshakeError{Step: "c1", Err: err}
		}
	}

	c1 := c0c1[1:]
	if !bytes.Equal(c1[4:8], []byte{0, 0, 0, 0}) {
		return nil, coalesced, &HandshakeError{Step: "c1", Err: ErrInvalidC1Message}
	}
	return c1, coalesced, nil
}

// generateEcho builds S2 (or C2) from the peer's C1 (or S1): its timestamp, 4 zero bytes and its random data.
func generateEcho(peer []byte) []byte {
	echo := make([]byte, handshakeMessageLength)
	copy(echo[:4], peer[:4])
	copy(echo[handshakeRandomOffset:], peer[handshakeRandomOffset:])
	return echo
}

// ClientHandshake performs the client side of the handshake: C0+C1, S0/S1/S2, C2.
func ClientHandshake(stream ByteStream) error {
	c0c1 := make([]byte, 1+handshakeMessageLength)
	c0c1[0] = RtmpVersion3
	if err := rand.GenerateCryptoSafeRandomData(c0c1[1+handshakeRandomOffset:]); err != nil {
		return &HandshakeError{Step: "c1", Err: err}
	}
	if err := stream.Send(c0c1); err != nil {
		return &HandshakeError{Step: "c0c1", Err: err}
	}

	s0s1s2 := make([]byte, 1+2*handshakeMessageLength)
	if err := stream.ReceiveFull(s0s1s2); err != nil {
		return &HandshakeError{Step: "s0s1s2", Err: err}
	}
	if s0s1s2[0] != RtmpVersion3 {
		return &HandshakeError{Step: "s0", Err: ErrUnsupportedRTMPVersion}
	}
	s1 := s0s1s2[1 : 1+handshakeMessageLength]
	s2 := s0s1s2[1+handshakeMessageLength:]
	if !bytes.Equal(s2[handshakeRandomOffset:], c0c1[1+handshakeRandomOffset:]) {
		return &HandshakeError{Step: "s2", Err: ErrWrongS2Message}
	}

	if err := stream.Send(generateEcho(s1)); err != nil {
		return &HandshakeError{Step: "c2", Err: err}
	}
	return nil
}
