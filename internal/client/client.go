// Package client implements the wormhole reference tunnel client: it
// authenticates to the control listener, negotiates a subdomain, and
// proxies each Init'd stream to a local service.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/yamux"

	"github.com/nyxwell/wormhole/internal/protocol"
	"github.com/nyxwell/wormhole/internal/proxy"
)

// PingInterval is how often the client sends a keepalive Ping upstream.
const PingInterval = 30 * time.Second

// Client is the wormhole tunnel client.
type Client struct {
	serverAddr  string
	localAddr   string
	id          protocol.ClientId
	subdomain   string
	isAnonymous bool
	secret      protocol.SecretKey

	session *yamux.Session
	tr      *protocol.Transport
	sendMu  sync.Mutex

	streamsMu sync.Mutex
	streams   map[protocol.StreamId]*streamConn

	assignedHost protocol.SubDomain

	backoffConfig BackoffConfig
	reconnect     bool
}

// New creates a new tunnel client with a fresh random identity.
func New(serverAddr, localAddr string, secret protocol.SecretKey) *Client {
	return &Client{
		serverAddr:    serverAddr,
		localAddr:     localAddr,
		id:            protocol.NewClientId(),
		secret:        secret,
		backoffConfig: DefaultBackoffConfig(),
		reconnect:     true,
		streams:       make(map[protocol.StreamId]*streamConn),
	}
}

// WithId overrides the client's randomly generated identity. Used by a
// reconnecting client that wants the server to recognize it as the same
// ClientId and supersede its previous session rather than collide on the
// subdomain it already owns.
func (c *Client) WithId(id protocol.ClientId) *Client {
	c.id = id
	return c
}

// WithSubdomain sets a preferred subdomain for the tunnel.
func (c *Client) WithSubdomain(subdomain string) *Client {
	c.subdomain = subdomain
	return c
}

// WithAnonymous marks the requested subdomain as a prefix hint rather
// than an exclusive claim.
func (c *Client) WithAnonymous(anon bool) *Client {
	c.isAnonymous = anon
	return c
}

// WithBackoff sets the backoff configuration for reconnection.
func (c *Client) WithBackoff(config BackoffConfig) *Client {
	c.backoffConfig = config
	return c
}

// WithReconnect enables or disables automatic reconnection.
func (c *Client) WithReconnect(enabled bool) *Client {
	c.reconnect = enabled
	return c
}

// WithMaxRetries sets the maximum number of reconnection attempts.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	c.backoffConfig.MaxRetries = maxRetries
	return c
}

// Run connects to the server, performs the handshake, and serves
// incoming streams until the control link drops or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	log.Debug("connecting to server", "server", c.serverAddr)

	conn, err := net.Dial("tcp", c.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to server %s: %w", c.serverAddr, err)
	}

	session, err := yamux.Client(conn, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create control session: %w", err)
	}
	c.session = session

	go func() {
		<-ctx.Done()
		session.Close()
	}()

	stream, err := session.OpenStream()
	if err != nil {
		session.Close()
		return fmt.Errorf("failed to open control stream: %w", err)
	}

	c.tr = protocol.NewTransport(stream)

	payload := protocol.ClientHelloPayload{Id: c.id, SubDomain: c.subdomain, IsAnonymous: c.isAnonymous}
	hello, err := protocol.NewClientHello(c.secret, payload)
	if err != nil {
		session.Close()
		return fmt.Errorf("failed to sign client hello: %w", err)
	}
	if err := c.tr.SendClientHello(hello); err != nil {
		session.Close()
		return fmt.Errorf("failed to send client hello: %w", err)
	}

	serverHello, err := c.tr.ReadServerHello()
	if err != nil {
		session.Close()
		return fmt.Errorf("failed to read server hello: %w", err)
	}

	switch serverHello.Status {
	case protocol.StatusSuccess:
		c.assignedHost = protocol.SubDomain(serverHello.SubDomain)
		log.Info("tunnel ready", "host", c.assignedHost)
	case protocol.StatusSubDomainInUse:
		session.Close()
		return ErrSubdomainTaken
	case protocol.StatusInvalidSubDomain:
		session.Close()
		return fmt.Errorf("%w: requested subdomain is invalid", ErrPermanentFailure)
	case protocol.StatusAuthFailed:
		session.Close()
		return fmt.Errorf("%w: client hello rejected", ErrPermanentFailure)
	default:
		session.Close()
		return fmt.Errorf("unexpected server hello status: %q", serverHello.Status)
	}

	go c.sendPings(ctx)

	log.Info("forwarding requests", "to", c.localAddr)

	for {
		pkt, err := c.tr.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return ErrShutdown
			}
			return fmt.Errorf("control channel read error: %w", err)
		}
		c.dispatch(pkt)
	}
}

// dispatch routes one inbound control packet to the right handler.
func (c *Client) dispatch(pkt protocol.ControlPacket) {
	switch pkt.Type {
	case protocol.PacketInit:
		sc := newStreamConn(pkt.StreamId, c)
		c.streamsMu.Lock()
		c.streams[pkt.StreamId] = sc
		c.streamsMu.Unlock()
		go c.serveLocal(sc)
	case protocol.PacketData:
		c.streamsMu.Lock()
		sc := c.streams[pkt.StreamId]
		c.streamsMu.Unlock()
		if sc != nil {
			sc.feed(pkt.Data)
		}
	case protocol.PacketEnd:
		c.streamsMu.Lock()
		sc := c.streams[pkt.StreamId]
		c.streamsMu.Unlock()
		if sc != nil {
			sc.end()
		}
	case protocol.PacketPing:
		log.Debug("ping received")
	default:
		log.Warn("unexpected control packet", "type", pkt.Type)
	}
}

// serveLocal dials the local service for a newly Init'd stream and
// proxies it bidirectionally. A dial failure sends Refused instead.
func (c *Client) serveLocal(sc *streamConn) {
	defer func() {
		c.streamsMu.Lock()
		delete(c.streams, sc.id)
		c.streamsMu.Unlock()
	}()

	localConn, err := net.Dial("tcp", c.localAddr)
	if err != nil {
		log.Error("failed to connect to local service", "error", err, "local", c.localAddr)
		c.send(protocol.NewRefusedPacket(sc.id))
		sc.discard()
		return
	}
	defer localConn.Close()

	if err := proxy.Bidirectional(sc, localConn); err != nil {
		log.Debug("stream completed", "stream", sc.id, "error", err)
	}
	sc.Close()
}

// send serializes pkt onto the control channel. Multiple goroutines
// (the ping loop and every stream's pump) call this concurrently, so
// writes are serialized with sendMu.
func (c *Client) send(pkt protocol.ControlPacket) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.tr.SendPacket(pkt); err != nil {
		log.Debug("failed to write control packet, closing session", "error", err)
		c.session.Close()
		return false
	}
	return true
}

// sendPings sends a keepalive Ping upstream at a steady interval.
func (c *Client) sendPings(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.send(protocol.NewPingPacket()) {
				return
			}
		}
	}
}

// RunWithReconnect runs the client with automatic reconnection on
// transient failures.
func (c *Client) RunWithReconnect(ctx context.Context) error {
	if !c.reconnect {
		return c.Run(ctx)
	}

	backoff := NewBackoff(c.backoffConfig)

	for {
		c.assignedHost = ""

		err := c.Run(ctx)

		if c.assignedHost != "" {
			backoff.Reset()
		}

		if err == nil || isPermanentError(err) {
			return err
		}

		if backoff.MaxRetriesReached() {
			log.Error("max reconnection attempts reached")
			return ErrMaxRetriesExceeded
		}

		delay := backoff.NextDelay()
		log.Warn("connection lost, reconnecting...",
			"error", err,
			"attempt", backoff.Attempt(),
			"delay", delay.Round(time.Millisecond),
		)

		select {
		case <-ctx.Done():
			return ErrShutdown
		case <-time.After(delay):
		}

		log.Info("attempting to reconnect", "server", c.serverAddr)
	}
}

// Close closes the client's control session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// Host returns the subdomain assigned by the server.
func (c *Client) Host() protocol.SubDomain {
	return c.assignedHost
}
