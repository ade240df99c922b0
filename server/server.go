// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"

	"github.com/dalemusser/addfriend/config"
)

// WithShutdownSignals returns a context canceled on SIGINT or SIGTERM.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if logger != nil && parent.Err() == nil {
			logger.Info("shutdown signal received")
		}
	}()
	return ctx, stop
}

// ListenAndServe serves handler according to cfg until ctx is canceled:
// plain HTTP, HTTPS with cert_file/key_file, or HTTPS with Let's Encrypt
// http-01. Both HTTPS modes add a :80 listener that redirects (and answers
// ACME challenges for Let's Encrypt).
func ListenAndServe(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) error {
	if cfg == nil || handler == nil {
		return errors.New("server: config and handler are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newHTTPServer(cfg, handler, logger)

	if !cfg.HTTP.UseHTTPS {
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", addr, err)
		}
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		return run(ctx, srv, ln, nil, cfg.HTTP.ShutdownTimeout, logger)
	}

	var (
		tlsCfg   *tls.Config
		redirect http.Handler = RedirectHandler()
	)
	if cfg.TLS.UseLetsEncrypt {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
			Email:      cfg.TLS.LetsEncryptEmail,
		}
		tlsCfg = m.TLSConfig()
		tlsCfg.MinVersion = tls.VersionTLS12
		redirect = m.HTTPHandler(redirect)
	} else {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
	}
	srv.TLSConfig = tlsCfg

	aux := newHTTPServer(cfg, redirect, logger)
	aux.Addr = ":80"

	addr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)
	base, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen https %s: %w", addr, err)
	}
	logger.Info("HTTPS server listening",
		zap.String("addr", base.Addr().String()),
		zap.Bool("lets_encrypt", cfg.TLS.UseLetsEncrypt),
		zap.String("domain", cfg.TLS.Domain))
	return run(ctx, srv, tls.NewListener(base, tlsCfg), aux, cfg.HTTP.ShutdownTimeout, logger)
}

func newHTTPServer(cfg *config.CoreConfig, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

// run serves srv on ln, and aux on its own address when non-nil, until ctx
// ends or either server fails. Shutdown gets a fresh grace period because
// ctx is already done by then.
func run(ctx context.Context, srv *http.Server, ln net.Listener, aux *http.Server, grace time.Duration, logger *zap.Logger) error {
	primaryErr := make(chan error, 1)
	go func() { primaryErr <- srv.Serve(ln) }()

	var auxErr chan error
	if aux != nil {
		auxErr = make(chan error, 1)
		go func() { auxErr <- aux.ListenAndServe() }()
		logger.Info("redirect listener started", zap.String("addr", aux.Addr))
	}

	shutdown := func() error {
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if aux != nil {
			_ = aux.Shutdown(sctx)
		}
		return srv.Shutdown(sctx)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		if err := shutdown(); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	case err := <-primaryErr:
		_ = shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("primary server: %w", err)
	case err := <-auxErr:
		_ = srv.Close()
		return fmt.Errorf("redirect server: %w", err)
	}
}
