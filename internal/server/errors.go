package server

import "errors"

// Handshake failure modes returned by TryHandshake. The auth and
// subdomain failures are each answered with a ServerHello status first;
// a timeout or transport error gets no reply.
var (
	ErrHandshakeTimeout    = errors.New("server: handshake timed out before first frame")
	ErrHandshakeTransport  = errors.New("server: handshake transport error")
	ErrHandshakeAuthFailed = errors.New("server: client hello signature or identity rejected")
	ErrHandshakeInvalidSub = errors.New("server: requested subdomain is not a valid label")
	ErrHandshakeSubInUse   = errors.New("server: requested subdomain is already in use")
)

// ErrClientGone is returned by ConnectedClient.Send when an enqueue to a
// client's outbound queue fails because the client has disconnected or
// been superseded by a reconnect.
var ErrClientGone = errors.New("server: client is gone")
