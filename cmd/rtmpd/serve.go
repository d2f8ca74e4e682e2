package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	rtmp "github.com/torresjeff/rtmpserver"
	"github.com/torresjeff/rtmpserver/amf/amf0"
	"github.com/torresjeff/rtmpserver/config"
	"github.com/torresjeff/rtmpserver/metrics"
	"github.com/torresjeff/rtmpserver/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	configPath  string
	host        string
	port        int
	savePath    string
	metricsAddr string
	debug       bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept RTMP connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to listen on")
	cmd.Flags().IntVarP(&opts.port, "port", "p", config.DefaultPort, "Port to listen on")
	cmd.Flags().StringVar(&opts.savePath, "save-path", "", "Directory media payloads are written to")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Address of the metrics and health endpoint")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	return cmd
}

// loadConfig reads the configuration file if one was given and lets explicitly set flags override it.
func loadConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("save-path") {
		cfg.Storage.SavePath = opts.savePath
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	server := &rtmp.Server{
		Logger:      logger,
		Config:      cfg,
		Context:     rtmp.NewInMemoryContext(),
		Metrics:     metrics.New(registry),
		NewHandlers: newHandlers(logger, cfg),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.ListenAndServe(groupCtx)
	})
	if cfg.Metrics.Addr != "" {
		httpServer := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newRouter(registry, server.Context),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics endpoint")
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}
	return group.Wait()
}

// newHandlers logs object-encoded messages and persists media under the configured save path.
func newHandlers(logger *zap.Logger, cfg *config.Config) rtmp.HandlersFactory {
	return func(session *rtmp.Session) rtmp.Handlers {
		sessionLogger := logger.With(zap.String("session", session.GetID()))

		var media rtmp.MediaSink = storage.Discard
		if cfg.Storage.SavePath != "" {
			media = storage.NewFileSink(sessionLogger, cfg.Storage.SavePath, session.GetID())
		}

		return rtmp.Handlers{
			Command: rtmp.CommandHandlerFunc(func(msg *rtmp.Message, values []amf0.Value) error {
				name := ""
				if len(values) > 0 {
					if s, ok := values[0].(amf0.String); ok {
						name = string(s)
					}
				}
				sessionLogger.Info("object message", zap.Stringer("type", msg.Type),
					zap.String("name", name), zap.Int("values", len(values)))
				return nil
			}),
			UserControl: rtmp.UserControlHandlerFunc(func(msg *rtmp.Message, event rtmp.UserControlEvent) error {
				sessionLogger.Debug("user control event", zap.Uint16("event", uint16(event.Type)), zap.Int("length", len(event.Data)))
				return nil
			}),
			Media: newInspectingSink(sessionLogger, media),
		}
	}
}
