package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// HandshakeResult is what a successful handshake produces: the verified
// client identity and the subdomain it was granted.
type HandshakeResult struct {
	Payload protocol.ClientHelloPayload
	Host    protocol.SubDomain
}

// TryHandshake reads the first frame off tr, verifies it, resolves a
// subdomain for the client, and sends the matching ServerHello. It
// returns an error for every failure mode in spec.md's handshake table;
// the caller is responsible for closing the underlying connection when
// an error is returned (a ServerHello failure reply has already been
// sent for the recoverable cases; a timeout or transport error has not).
func TryHandshake(ctx context.Context, tr *protocol.Transport, secret protocol.SecretKey, allowUnknown bool, knownClients map[protocol.ClientId]bool, conns *Connections) (HandshakeResult, error) {
	type readResult struct {
		hello protocol.ClientHello
		err   error
	}
	ch := make(chan readResult, 1)
	go func() {
		hello, err := tr.ReadClientHello()
		ch <- readResult{hello, err}
	}()

	var hello protocol.ClientHello
	select {
	case <-ctx.Done():
		return HandshakeResult{}, fmt.Errorf("%w: %v", ErrHandshakeTimeout, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return HandshakeResult{}, fmt.Errorf("%w: %v", ErrHandshakeTransport, r.err)
		}
		hello = r.hello
	}

	if !secret.Verify(hello.Payload, hello.Signature) || !clientIdAllowed(knownClients, hello.Payload.Id, allowUnknown) {
		_ = tr.SendServerHello(protocol.NewServerHelloError(protocol.StatusAuthFailed))
		return HandshakeResult{}, ErrHandshakeAuthFailed
	}

	host, err := resolveSubDomain(hello.Payload, conns)
	if err != nil {
		status := protocol.StatusInvalidSubDomain
		if err == ErrHandshakeSubInUse {
			status = protocol.StatusSubDomainInUse
		}
		_ = tr.SendServerHello(protocol.NewServerHelloError(status))
		return HandshakeResult{}, err
	}

	if err := tr.SendServerHello(protocol.NewServerHelloSuccess(host)); err != nil {
		return HandshakeResult{}, fmt.Errorf("%w: %v", ErrHandshakeTransport, err)
	}

	return HandshakeResult{Payload: hello.Payload, Host: host}, nil
}

// clientIdAllowed implements the ALLOW_UNKNOWN_CLIENTS gate: unknown
// clients are accepted outright if allowUnknown is set, or if the
// operator never populated a pre-registration set at all (in which case
// there is nothing to check membership against). Otherwise the id must
// be a member of knownClients.
func clientIdAllowed(knownClients map[protocol.ClientId]bool, id protocol.ClientId, allowUnknown bool) bool {
	if allowUnknown || len(knownClients) == 0 {
		return true
	}
	return knownClients[id]
}

// resolveSubDomain implements the subdomain resolution algorithm: no
// preference gets a random domain, an explicit preference is normalized
// and checked for collision (with same-ClientId reconnects permitted to
// supersede), and anonymous clients get a prefixed-random domain built
// from their preference without claiming it exclusively.
func resolveSubDomain(payload protocol.ClientHelloPayload, conns *Connections) (protocol.SubDomain, error) {
	requested := strings.TrimSpace(payload.SubDomain)

	if requested == "" {
		return RandomSubDomain(), nil
	}

	if payload.IsAnonymous {
		normalized, ok := protocol.NormalizeSubDomain(requested)
		if !ok {
			return "", ErrHandshakeInvalidSub
		}
		return PrefixedRandomSubDomain(string(normalized)), nil
	}

	normalized, ok := protocol.NormalizeSubDomain(requested)
	if !ok {
		return "", ErrHandshakeInvalidSub
	}

	if existing, taken := conns.ClientForHost(normalized); taken && existing.Id != payload.Id {
		return "", ErrHandshakeSubInUse
	}

	return normalized, nil
}
