package api

import (
	"context"
	"math/big"
	"net"
	"net/http"
	"strings"

	"github.com/axiomesh/voting/core"
	"github.com/axiomesh/voting/repo"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Server struct {
	config repo.RPC
	logger logrus.FieldLogger

	rpc      *rpc.Server
	http     *http.Server
	listener net.Listener
}

func NewServer(config repo.RPC, session *core.Session, logs core.Client, logger logrus.FieldLogger) (*Server, error) {
	srv := rpc.NewServer()
	for _, api := range APIs(session, logs, logger) {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			return nil, errors.Wrapf(err, "register %s api", api.Namespace)
		}
	}

	s := &Server{
		config: config,
		logger: logger,
		rpc:    srv,
	}
	s.http = &http.Server{
		Handler:      s.handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s, nil
}

func (s *Server) handler() http.Handler {
	if !s.config.EnableWebsocket {
		return s.rpc
	}
	ws := s.rpc.WebsocketHandler(s.config.WebsocketOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocket(r) {
			ws.ServeHTTP(w, r)
			return
		}
		s.rpc.ServeHTTP(w, r)
	})
}

func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// RPC returns the underlying rpc server, for in-process clients.
func (s *Server) RPC() *rpc.Server {
	return s.rpc
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.config.Listen)
	}
	s.listener = listener

	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("rpc server: %s", err)
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"addr":      listener.Addr().String(),
		"websocket": s.config.EnableWebsocket,
	}).Info("RPC server started")
	return nil
}

// Addr is the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.rpc.Stop()
	s.logger.Info("RPC server stopped")
	return err
}

func newBlock(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}
