package rtmp

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmpserver/amf"
	"github.com/torresjeff/rtmpserver/amf/amf0"
	"github.com/torresjeff/rtmpserver/config"
	"github.com/torresjeff/rtmpserver/metrics"
	"github.com/torresjeff/rtmpserver/rand"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Session represents a connection made with the RTMP server where messages are exchanged between client/server.
// Protocol state belongs to one Session and is only touched by its read loop. The outbound
// side is guarded by sendMu.
type Session struct {
	logger    *zap.Logger
	sessionID string
	conn      net.Conn
	config    *config.Config
	store     ContextStore
	metrics   *metrics.Metrics

	reader     *Reader
	writer     *Writer
	handshaker Handshaker
	seed       ConnectionSeed

	inbound        *ChunkAssembler
	messageManager *MessageManager
	handlers       Handlers

	// bytes received but not yet consumed by the assembler
	pending    []byte
	readBuffer []byte

	sendMu   sync.Mutex
	outbound *ChunkAssembler
}

// NewSession prepares a session for conn. Nothing is read or written until Run.
// cfg, store and m may be nil.
func NewSession(logger *zap.Logger, conn net.Conn, cfg *config.Config, store ContextStore, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	sessionID := rand.GenerateUuid()
	logger = logger.With(zap.String("session", sessionID), zap.String("remote", conn.RemoteAddr().String()))

	// Creating a reader or writer only fails on nil input
	reader, _ := NewReader(bufio.NewReaderSize(conn, cfg.Server.ReadBufferSize))
	writer, _ := NewWriter(bufio.NewWriterSize(conn, cfg.Server.ReadBufferSize))

	session := &Session{
		logger:     logger,
		sessionID:  sessionID,
		conn:       conn,
		config:     cfg,
		store:      store,
		metrics:    m,
		reader:     reader,
		writer:     writer,
		handshaker: NewServerHandshaker(),
		inbound:    NewChunkAssembler(),
		outbound:   NewChunkAssembler(),
		readBuffer: make([]byte, cfg.Server.ReadBufferSize),
	}
	session.SetHandlers(Handlers{})
	return session
}

func (session *Session) GetID() string {
	return session.sessionID
}

func (session *Session) RemoteAddr() net.Addr {
	return session.conn.RemoteAddr()
}

// Seed returns what the handshake produced. It is the zero value until the handshake completes.
func (session *Session) Seed() ConnectionSeed {
	return session.seed
}

// SetHandlers replaces the application handlers. It must be called before Run.
func (session *Session) SetHandlers(handlers Handlers) {
	session.handlers = handlers
	session.messageManager = NewMessageManager(session.logger, session.inbound, handlers)
}

// SetHandshaker replaces the default server handshaker. It must be called before Run.
func (session *Session) SetHandshaker(handshaker Handshaker) {
	session.handshaker = handshaker
}

// ControlState returns what the peer announced through protocol control messages so far.
func (session *Session) ControlState() ControlState {
	return session.messageManager.ControlState()
}

// ReadBytes is the number of bytes received on the connection, handshake included.
func (session *Session) ReadBytes() uint64 {
	return session.reader.ReadBytes()
}

// Run performs the handshake and then reads chunks until the peer disconnects, a fatal error
// happens or ctx is cancelled. The connection is closed and the session unregistered on return.
// A clean disconnect or cancellation returns nil.
func (session *Session) Run(ctx context.Context) error {
	session.metrics.ConnectionOpened()
	defer session.close()

	group, groupCtx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	group.Go(func() error {
		defer close(done)
		return session.serve(ctx)
	})
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			// unblocks the handshake or the read loop
			session.conn.Close()
		case <-done:
		}
		return nil
	})
	return group.Wait()
}

func (session *Session) serve(ctx context.Context) error {
	session.logger.Info("starting handshake")
	if err := session.handshake(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		var herr *HandshakeError
		if errors.As(err, &herr) {
			session.metrics.HandshakeFailed(herr.Step)
		}
		return err
	}
	session.logger.Info("handshake completed successfully", zap.Bool("coalesced", session.seed.Coalesced))

	if session.store != nil {
		if err := session.store.Register(session); err != nil {
			return errors.Wrap(err, "register session")
		}
		defer session.store.Destroy(session.sessionID)
	}

	if err := session.announceChunkSize(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return session.readLoop(ctx)
}

func (session *Session) handshake() error {
	if timeout := session.config.Server.HandshakeTimeout; timeout > 0 {
		if err := session.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return errors.Wrap(err, "set handshake deadline")
		}
		defer session.conn.SetDeadline(time.Time{})
	}

	seed, err := session.handshaker.Handshake(NewByteStream(session.reader, session.writer))
	if err != nil {
		return err
	}
	session.seed = seed
	return nil
}

// announceChunkSize tells the peer about an outbound chunk size larger than the default
// and switches the outbound assembler to it.
func (session *Session) announceChunkSize() error {
	size := session.config.Chunk.OutChunkSize
	if size <= DefaultChunkSize {
		return nil
	}
	session.sendMu.Lock()
	defer session.sendMu.Unlock()
	if err := session.send(NewSetChunkSizeMessage(size)); err != nil {
		return errors.Wrap(err, "announce chunk size")
	}
	return session.outbound.SetChunkSize(size)
}

func (session *Session) readLoop(ctx context.Context) error {
	idleTimeout := session.config.Server.IdleTimeout
	for {
		if idleTimeout > 0 {
			if err := session.conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return errors.Wrap(err, "set read deadline")
			}
		}
		n, err := session.reader.Receive(session.readBuffer)
		if n > 0 {
			session.metrics.BytesReceived(n)
			session.pending = append(session.pending, session.readBuffer[:n]...)
			if perr := session.processPending(); perr != nil {
				return perr
			}
		}
		if err != nil {
			if err == io.EOF {
				session.logger.Info("connection closed by peer")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read")
		}
	}
}

// processPending feeds the pending bytes to the assembler until no complete chunk is left,
// dispatching every message it completes, and keeps the unconsumed tail for the next read.
func (session *Session) processPending() error {
	consumed := 0
	defer func() {
		session.pending = append(session.pending[:0], session.pending[consumed:]...)
	}()

	for consumed < len(session.pending) {
		result, err := session.inbound.Ingest(session.pending[consumed:])
		consumed += result.Consumed
		for _, dropped := range result.Dropped {
			session.dropped(dropped)
		}
		for _, msg := range result.Messages {
			if err := session.dispatch(msg); err != nil {
				return err
			}
		}
		if err != nil {
			return errors.Wrap(err, "ingest")
		}
		if result.Status != IngestPaused {
			return nil
		}
	}
	return nil
}

func (session *Session) dropped(ferr *FramingError) {
	session.logger.Warn("dropped message", zap.Uint32("csid", ferr.ChunkStreamID),
		zap.Stringer("type", ferr.MessageType), zap.Error(ferr.Err))
	session.metrics.MessageDropped(ferr.Err.Error())
}

func (session *Session) dispatch(msg *Message) error {
	session.metrics.MessageReceived(msg.Type.String())
	err := session.messageManager.Handle(msg)
	if err == nil {
		return nil
	}
	var ferr *FramingError
	if errors.As(err, &ferr) {
		session.dropped(ferr)
		return nil
	}
	if IsDecodeError(err) {
		session.logger.Warn("could not decode message payload", zap.Stringer("type", msg.Type), zap.Error(err))
		session.metrics.MessageDropped("decode")
		return nil
	}
	return err
}

// IsDecodeError reports whether err comes from decoding an object-encoded payload rather
// than from a handler.
func IsDecodeError(err error) bool {
	return errors.Is(err, amf.ErrUnsupportedVersion) ||
		errors.Is(err, amf0.ErrUnsupportedValue) ||
		errors.Is(err, amf0.ErrUnexpectedEnd) ||
		errors.Is(err, amf0.ErrNestingTooDeep) ||
		errors.Is(err, amf0.ErrKeyTooLong)
}

// Send chunks msg at the current outbound chunk size and writes all of its chunks at once.
// It is safe to call from handlers and from other goroutines.
func (session *Session) Send(msg *Message) error {
	session.sendMu.Lock()
	defer session.sendMu.Unlock()
	return session.send(msg)
}

func (session *Session) send(msg *Message) error {
	chunks, err := session.outbound.Emit(msg.ChunkStreamID, msg, ChunkType0)
	if err != nil {
		return err
	}
	before := session.writer.WrittenBytes()
	err = session.writer.Send(chunks...)
	session.metrics.BytesSent(int(session.writer.WrittenBytes() - before))
	return errors.Wrapf(err, "send %s", msg.Type)
}

func (session *Session) close() {
	if closer, ok := session.handlers.Media.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			session.logger.Warn("error closing media sink", zap.Error(err))
		}
	}
	session.conn.Close()
	session.inbound.Reset()
	session.pending = nil
	session.metrics.ConnectionClosed()
}
