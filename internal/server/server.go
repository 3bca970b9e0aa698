package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	CertFile string
	KeyFile  string
	// MinVersion sets minimum TLS version (default: TLS 1.2)
	MinVersion string
}

// Enabled reports whether both a certificate and a key are configured.
func (c *TLSConfig) Enabled() bool {
	return c != nil && c.CertFile != "" && c.KeyFile != ""
}

// Server wraps http.Server with TLS support
type Server struct {
	httpServer *http.Server
	tlsConfig  *TLSConfig
	logger     *zap.Logger
}

// NewServer creates a server listening on addr. TLS is used when tlsConfig
// names a certificate and key.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, tlsConfig *TLSConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if tlsConfig.Enabled() {
		server.TLSConfig = &tls.Config{
			MinVersion: getTLSVersion(tlsConfig.MinVersion),
			CurvePreferences: []tls.CurveID{
				tls.X25519,
				tls.CurveP256,
			},
		}
	}

	return &Server{
		httpServer: server,
		tlsConfig:  tlsConfig,
		logger:     logger,
	}
}

// Start serves until the server is shut down.
func (s *Server) Start() error {
	var err error
	if s.tlsConfig.Enabled() {
		s.logger.Info("starting HTTPS server", zap.String("addr", s.httpServer.Addr))
		err = s.httpServer.ListenAndServeTLS(s.tlsConfig.CertFile, s.tlsConfig.KeyFile)
	} else {
		s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func getTLSVersion(version string) uint16 {
	switch version {
	case "1.3", "TLS1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
