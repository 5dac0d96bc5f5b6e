// Package server implements the wormhole tunnel server: the control
// listener clients dial into (C2/C8), the visitor listener the public
// internet dials into (C7), and the registries and per-client tasks that
// connect the two (C3/C4/C5/C6).
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/yamux"
	"golang.org/x/crypto/acme/autocert"

	"github.com/nyxwell/wormhole/internal/config"
	"github.com/nyxwell/wormhole/internal/protocol"
)

// HandshakeTimeout bounds how long the server waits for a client's first
// frame after the control stream is accepted.
const HandshakeTimeout = 10 * time.Second

// Server ties the control and visitor listeners to the shared registries.
type Server struct {
	cfg     config.Config
	conns   *Connections
	streams *StreamRegistry

	// knownClients, when non-empty, restricts which ClientIds may
	// authenticate unless cfg.AllowUnknownClients is set. Left empty by
	// default: spec.md describes the gate but not a pre-registration
	// source, so this is exposed for an embedder to populate rather than
	// driven by a new environment variable.
	knownClients map[protocol.ClientId]bool
}

// New builds a Server from cfg.
func New(cfg config.Config) *Server {
	return &Server{
		cfg:          cfg,
		conns:        NewConnections(),
		streams:      NewStreamRegistry(),
		knownClients: make(map[protocol.ClientId]bool),
	}
}

// Run starts both listeners and blocks until the control listener fails.
func (s *Server) Run() error {
	visitorLn, err := net.Listen("tcp", s.cfg.VisitorAddr)
	if err != nil {
		return fmt.Errorf("listen on visitor addr %s: %w", s.cfg.VisitorAddr, err)
	}

	if s.cfg.Domain != "" {
		return s.runWithTLS(visitorLn)
	}
	return s.runPlain(visitorLn)
}

// runPlain serves the visitor listener as raw TCP and the control
// listener as plain HTTP, for local development without a domain.
func (s *Server) runPlain(visitorLn net.Listener) error {
	slog.Info("visitor listener started (plain TCP)", "addr", visitorLn.Addr())
	go s.acceptVisitors(visitorLn)

	slog.Info("control listener started (plain HTTP)", "addr", s.cfg.ControlAddr)
	return http.ListenAndServe(s.cfg.ControlAddr, s.controlMux())
}

// runWithTLS wraps the visitor listener with an autocert-issued
// certificate and serves ACME HTTP-01 challenges on a separate listener,
// while the control listener stays plain (it never speaks HTTP to
// browsers, only to the reference client).
func (s *Server) runWithTLS(visitorLn net.Listener) error {
	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(s.cfg.CertCacheDir),
		HostPolicy: s.hostPolicy,
	}

	tlsVisitorLn := tls.NewListener(visitorLn, manager.TLSConfig())
	slog.Info("visitor listener started (TLS)", "addr", tlsVisitorLn.Addr(), "domain", "*."+s.cfg.Domain)
	go s.acceptVisitors(tlsVisitorLn)

	go func() {
		slog.Info("ACME challenge listener started", "addr", s.cfg.ACMEHTTPAddr)
		challengeServer := &http.Server{Addr: s.cfg.ACMEHTTPAddr, Handler: manager.HTTPHandler(nil)}
		if err := challengeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ACME challenge listener error", "error", err)
		}
	}()

	slog.Info("control listener started (plain HTTP)", "addr", s.cfg.ControlAddr)
	return http.ListenAndServe(s.cfg.ControlAddr, s.controlMux())
}

// hostPolicy only issues certificates for subdomains with a live client,
// same idea as the teacher's own hostPolicy, adapted to the new registry.
func (s *Server) hostPolicy(_ context.Context, host string) error {
	sub := protocol.SubDomain(extractSubdomain(host))
	if sub == "" {
		return fmt.Errorf("invalid host: %s", host)
	}
	if _, exists := s.conns.ClientForHost(sub); !exists {
		return fmt.Errorf("no tunnel registered for subdomain: %s", sub)
	}
	return nil
}

func (s *Server) controlMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health_check", s.handleHealthCheck)
	mux.HandleFunc("/wormhole", s.handleWormhole)
	return mux
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleWormhole hijacks the HTTP connection, wraps it as a single yamux
// stream, and runs the handshake, tunnel task, and reader task (C2/C4/C5)
// for the client that results.
func (s *Server) handleWormhole(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		slog.Error("failed to hijack control connection", "error", err)
		return
	}

	session, err := yamux.Server(conn, nil)
	if err != nil {
		slog.Error("failed to establish control session", "error", err)
		conn.Close()
		return
	}

	stream, err := session.AcceptStream()
	if err != nil {
		slog.Error("failed to accept control stream", "error", err)
		session.Close()
		return
	}

	tr := protocol.NewTransport(stream)

	ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
	result, err := TryHandshake(ctx, tr, s.cfg.SecretKey, s.cfg.AllowUnknownClients, s.knownClients, s.conns)
	cancel()
	if err != nil {
		slog.Info("handshake failed", "error", err, "remote_addr", conn.RemoteAddr())
		session.Close()
		return
	}

	client := NewConnectedClient(result.Payload.Id, result.Host, func() { session.Close() })
	s.conns.Add(client)
	slog.Info("client connected", "client", client.Id, "host", client.Host, "remote_addr", conn.RemoteAddr())

	go RunTunnelTask(tr, client, s.conns)
	RunReaderTask(tr, client, s.streams, s.conns)
}

func (s *Server) acceptVisitors(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			slog.Error("failed to accept visitor connection", "error", err)
			return
		}
		go AcceptVisitor(conn, s.conns, s.streams, s.cfg.AllowedHosts)
	}
}
