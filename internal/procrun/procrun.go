// Package procrun wires one HTTP server into an oklog/run.Group, serving
// plaintext or TLS per spec.md §6 Configuration (`TLS_CERT_PATH`/
// `TLS_KEY_PATH`) and shutting it down gracefully on group interruption.
// Grounded on cmd/dex/serve.go's serverRunner, generalized so all three
// service binaries share one listen/serve/shutdown implementation instead
// of each main.go re-deriving it.
package procrun

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oklog/run"

	"github.com/yanniks/health-companion-prototype/internal/logging"
)

// Server pairs an *http.Server with the name and optional TLS material
// used to run it under an oklog/run.Group.
type Server struct {
	name   string
	srv    *http.Server
	tlsCrt string
	tlsKey string
	logger logging.Logger
}

// New wraps srv for supervision under the given display name.
func New(name string, srv *http.Server, logger logging.Logger) *Server {
	return &Server{name: name, srv: srv, logger: logger}
}

// WithTLS arms TLS serving when both paths are non-empty.
func (s *Server) WithTLS(certPath, keyPath string) *Server {
	s.tlsCrt = certPath
	s.tlsKey = keyPath
	return s
}

func (s *Server) serve(listener net.Listener) error {
	if s.tlsCrt != "" && s.tlsKey != "" {
		return s.srv.ServeTLS(listener, s.tlsCrt, s.tlsKey)
	}
	return s.srv.Serve(listener)
}

// AddTo registers this server's listen/serve/shutdown lifecycle as one
// execute/interrupt pair of gr, per spec.md §6 TLS-or-plaintext selection.
func (s *Server) AddTo(gr *run.Group) error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening (%s) on %s: %w", s.name, s.srv.Addr, err)
	}

	gr.Add(func() error {
		s.logger.Infof("listening (%s) on %s", s.name, s.srv.Addr)
		return s.serve(listener)
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.logger.Debugf("starting graceful shutdown (%s)", s.name)
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Errorf("graceful shutdown (%s): %v", s.name, err)
		}
	})
	return nil
}
