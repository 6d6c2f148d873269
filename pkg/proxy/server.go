// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/novatechflow/kafgate/internal/metrics"
)

// Listener describes one gateway listen socket. With a TLSConfig the
// negotiated SNI hostname feeds routing; plaintext listeners route by port
// alone.
type Listener struct {
	Addr      string
	TLSConfig *tls.Config
}

// ServerConfig assembles the accept layer.
type ServerConfig struct {
	Listeners []Listener
	Router    *Router
	Logger    *slog.Logger
	// MaxConnections caps concurrently served connections across all
	// listeners; zero selects the default.
	MaxConnections int
	// TLSHandshakeTimeout bounds the client handshake; zero selects the
	// default.
	TLSHandshakeTimeout time.Duration
}

const (
	defaultMaxConnections      = 1024
	defaultTLSHandshakeTimeout = 10 * time.Second
)

// Server accepts client connections and hands each to the router.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
	sem    chan struct{}
}

// NewServer validates the configuration.
func NewServer(cfg ServerConfig) (*Server, error) {
	if len(cfg.Listeners) == 0 {
		return nil, fmt.Errorf("at least one listener required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("router required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = defaultMaxConnections
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, maxConns),
	}, nil
}

// ListenAndServe runs every listener until ctx cancels or a listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listeners := make([]net.Listener, 0, len(s.cfg.Listeners))
	for _, lc := range s.cfg.Listeners {
		ln, err := net.Listen("tcp", lc.Addr)
		if err != nil {
			for _, open := range listeners {
				open.Close()
			}
			return fmt.Errorf("listen %s: %w", lc.Addr, err)
		}
		s.logger.Info("gateway listening", "addr", ln.Addr().String(), "tls", lc.TLSConfig != nil)
		listeners = append(listeners, ln)
	}

	errCh := make(chan error, len(listeners))
	var wg sync.WaitGroup
	for i, ln := range listeners {
		wg.Add(1)
		go func(ln net.Listener, lc Listener) {
			defer wg.Done()
			errCh <- s.acceptLoop(ctx, ln, lc)
		}(ln, s.cfg.Listeners[i])
	}

	var firstErr error
	select {
	case <-ctx.Done():
	case firstErr = <-errCh:
	}
	for _, ln := range listeners {
		ln.Close()
	}
	wg.Wait()
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, lc Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				s.logger.Warn("accept temporary error", "error", err)
				continue
			}
			return err
		}
		metrics.ConnectionsTotal.Inc()
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
		go func(c net.Conn) {
			defer func() { <-s.sem }()
			s.handleConn(ctx, c, lc)
		}(conn)
	}
}

// handleConn resolves the routing inputs (listen port, SNI hostname) and
// hands the connection to the router.
func (s *Server) handleConn(ctx context.Context, conn net.Conn, lc Listener) {
	port, err := localPort(conn)
	if err != nil {
		s.logger.Warn("local port resolve failed", "error", err)
		conn.Close()
		return
	}

	sniHostname := ""
	if lc.TLSConfig != nil {
		timeout := s.cfg.TLSHandshakeTimeout
		if timeout <= 0 {
			timeout = defaultTLSHandshakeTimeout
		}
		tlsConn := tls.Server(conn, lc.TLSConfig)
		hsCtx, cancel := context.WithTimeout(ctx, timeout)
		err := tlsConn.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			s.logger.Warn("client tls handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
			tlsConn.Close()
			return
		}
		sniHostname = tlsConn.ConnectionState().ServerName
		conn = tlsConn
	}

	s.cfg.Router.Serve(ctx, conn, sniHostname, port)
}

func localPort(conn net.Conn) (int32, error) {
	_, portStr, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return 0, err
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(port), nil
}
