package rtmp

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmpserver/config"
	"github.com/torresjeff/rtmpserver/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HandlersFactory builds the application handlers for a new session.
type HandlersFactory func(session *Session) Handlers

// Server represents the RTMP server, where a client/app can stream media to. The server listens for incoming connections.
type Server struct {
	Addr   string
	Logger *zap.Logger
	// Config defaults to config.Default() when nil
	Config  *config.Config
	Context ContextStore
	Metrics *metrics.Metrics
	// NewHandlers is called once per accepted connection. Messages are dropped when nil.
	NewHandlers HandlersFactory
}

func (s *Server) init() {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Config == nil {
		s.Config = config.Default()
	}
	if s.Addr == "" {
		s.Addr = s.Config.Addr()
	}
	if s.Context == nil {
		s.Context = NewInMemoryContext()
	}
}

// ListenAndServe listens on s.Addr and serves connections until ctx is cancelled.
// If no Addr (host:port) has been assigned, the configured address is used (":1935" by default).
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.init()
	tcpAddress, err := net.ResolveTCPAddr("tcp", s.Addr)
	if err != nil {
		return errors.Errorf("[server] error resolving tcp address: %s", err)
	}

	listener, err := net.ListenTCP("tcp", tcpAddress)
	if err != nil {
		return errors.Wrap(err, "[server] listen")
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener, running one session per connection. It returns
// after ctx is cancelled or the listener fails, once every session has ended.
// A failing session only closes its own connection.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.init()
	s.Logger.Info("[server] listening", zap.Stringer("addr", listener.Addr()))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-groupCtx.Done()
		return listener.Close()
	})
	group.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if groupCtx.Err() != nil {
					return nil
				}
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					s.Logger.Error("[server] error accepting incoming connection", zap.Error(err))
					continue
				}
				return errors.Wrap(err, "[server] accept")
			}

			s.Logger.Info("[server] accepted incoming connection", zap.Stringer("remote", conn.RemoteAddr()))
			group.Go(func() error {
				s.serveConn(groupCtx, conn)
				return nil
			})
		}
	})

	err := group.Wait()
	s.Logger.Info("[server] stopped", zap.Stringer("addr", listener.Addr()))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	sess := NewSession(s.Logger, conn, s.Config, s.Context, s.Metrics)
	if s.NewHandlers != nil {
		sess.SetHandlers(s.NewHandlers(sess))
	}

	s.Logger.Info("[server] starting session", zap.String("session", sess.GetID()))
	if err := sess.Run(ctx); err != nil {
		s.Logger.Error("[server] session ended with an error", zap.String("session", sess.GetID()), zap.Error(err))
		return
	}
	s.Logger.Info("[server] session ended", zap.String("session", sess.GetID()))
}
