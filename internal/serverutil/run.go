// Package serverutil runs an http.Server with graceful shutdown semantics.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds graceful shutdown when the context is
// cancelled.
const DefaultShutdownTimeout = 10 * time.Second

type options struct {
	certFile        string
	keyFile         string
	shutdownTimeout time.Duration
	ready           chan<- struct{}
}

// Option adjusts how Run hosts the server.
type Option func(*options)

// WithTLS serves TLS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(o *options) {
		o.certFile = certFile
		o.keyFile = keyFile
	}
}

// WithShutdownTimeout overrides DefaultShutdownTimeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.shutdownTimeout = timeout
		}
	}
}

// WithReady installs a channel closed once the listener is accepting.
func WithReady(ready chan<- struct{}) Option {
	return func(o *options) {
		o.ready = ready
	}
}

// Run starts the provided HTTP server and blocks until it stops. When the
// context is cancelled, Run attempts a graceful shutdown bounded by the
// shutdown timeout.
func Run(ctx context.Context, srv *http.Server, opts ...Option) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	cfg := options{shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if (cfg.certFile == "") != (cfg.keyFile == "") {
		return fmt.Errorf("both TLS cert file and key file must be provided")
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	if cfg.certFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.certFile, cfg.keyFile)
		if err != nil {
			ln.Close()
			return err
		}
		tlsCfg := srv.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		} else {
			tlsCfg = tlsCfg.Clone()
		}
		tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	if cfg.ready != nil {
		close(cfg.ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return shutdownCtx.Err()
	}

	return shutdownErr
}
