package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scrivener/internal/config"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Run serves HTTP and, when a config path was given, watches the config file.
// It blocks until ctx is cancelled or the server fails. On cancellation the
// server drains in-flight requests for up to server.shutdown_timeout and Run
// returns the context error.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}

	hs := &http.Server{
		Handler:           a.server,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	hs.RegisterOnShutdown(a.server.CloseStreams)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = hs.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = hs.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	if a.configPath != "" {
		g.Go(func() error { return a.watch(gctx) })
	}

	slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// watch polls the config file until ctx is done.
func (a *App) watch(ctx context.Context) error {
	var opts []config.WatcherOption
	if a.watchEvery > 0 {
		opts = append(opts, config.WithInterval(a.watchEvery))
	}
	w, err := config.NewWatcher(a.configPath, a.ApplyConfig, opts...)
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// ApplyConfig applies the hot-reloadable differences between old and new:
// the log level and the grammar throttle interval. Other changes are logged
// as requiring a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MinIntervalChanged {
		if th := a.Throttle(); th != nil {
			th.SetMinInterval(d.NewMinInterval)
			slog.Info("grammar min interval changed", "min_interval", d.NewMinInterval)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}
