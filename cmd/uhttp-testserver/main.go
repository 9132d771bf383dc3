// Command uhttp-testserver serves the HTTP API exercised by the uhttp
// integration tests and examples.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l}
		}),
		fx.Provide(
			newViper,
			newConfig,
			newLogger,
			newRegistry,
			newHandler,
			newServer,
		),
		fx.Invoke(bindServer),
	)
	app.Run()
}

func newLogger(cfg Config) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func newServer(cfg Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:    cfg.Address,
		Handler: h,
	}
}

// bindServer starts the accept loop with the application and shuts the
// application down if the loop exits on its own.
func bindServer(lc fx.Lifecycle, s *http.Server, sh fx.Shutdowner, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var lcfg net.ListenConfig
			l, err := lcfg.Listen(ctx, "tcp", s.Addr)
			if err != nil {
				return err
			}

			logger.Info("test server listening", zap.String("address", l.Addr().String()))
			go func() {
				defer sh.Shutdown()
				if err := s.Serve(l); !errors.Is(err, http.ErrServerClosed) {
					logger.Error("test server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: s.Shutdown,
	})
}
