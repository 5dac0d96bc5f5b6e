package server

import (
	"sync"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// ConnectedClient is the authoritative handle for one tunnel client's
// control channel. The registry holds the canonical pointer; the tunnel
// task and reader task (RunTunnelTask / RunReaderTask) each hold the same
// pointer rather than a private copy, so closing its queue is visible to
// every holder at once.
type ConnectedClient struct {
	Id             protocol.ClientId
	Host           protocol.SubDomain
	queue          *outboundQueue
	closeTransport func()
}

// NewConnectedClient builds a ConnectedClient with a fresh outbound queue.
// closeTransport, if non-nil, is invoked when this client is superseded by
// a reconnect so its stale control connection is torn down promptly.
func NewConnectedClient(id protocol.ClientId, host protocol.SubDomain, closeTransport func()) *ConnectedClient {
	return &ConnectedClient{Id: id, Host: host, queue: newOutboundQueue(), closeTransport: closeTransport}
}

// Send enqueues a control packet for delivery by this client's tunnel
// task. It returns ErrClientGone if the client's queue has already been
// closed (disconnected, or superseded by a reconnect).
func (c *ConnectedClient) Send(p protocol.ControlPacket) error {
	if !c.queue.Push(p) {
		return ErrClientGone
	}
	return nil
}

// Connections is the process-wide registry of live clients, indexed both
// by ClientId and by the SubDomain they are currently serving.
type Connections struct {
	mu     sync.RWMutex
	byId   map[protocol.ClientId]*ConnectedClient
	byHost map[protocol.SubDomain]*ConnectedClient
}

// NewConnections returns an empty registry.
func NewConnections() *Connections {
	return &Connections{
		byId:   make(map[protocol.ClientId]*ConnectedClient),
		byHost: make(map[protocol.SubDomain]*ConnectedClient),
	}
}

// Add inserts client, superseding any existing entry for the same
// ClientId. A superseded client's outbound queue is closed and its
// control transport torn down, so its tunnel and reader tasks exit
// promptly instead of lingering until their socket eventually times out.
func (c *Connections) Add(client *ConnectedClient) {
	c.mu.Lock()
	old, hadOld := c.byId[client.Id]
	c.byId[client.Id] = client
	c.byHost[client.Host] = client
	c.mu.Unlock()

	if hadOld && old != client {
		old.queue.Close()
		if old.closeTransport != nil {
			old.closeTransport()
		}
	}
}

// Remove is idempotent and keyed by identity: it only deletes the
// ClientId entry if it still points to client, and only deletes the
// SubDomain entry if it too still points to client. This prevents a
// stale removal from clobbering a newer client that has since
// reconnected onto the same id or subdomain.
func (c *Connections) Remove(client *ConnectedClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.byId[client.Id]; ok && cur == client {
		delete(c.byId, client.Id)
	}
	if cur, ok := c.byHost[client.Host]; ok && cur == client {
		delete(c.byHost, client.Host)
	}
}

// ClientForHost returns the client currently serving host, if any.
func (c *Connections) ClientForHost(host protocol.SubDomain) (*ConnectedClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.byHost[host]
	return client, ok
}

// ClientById returns the client registered under id, if any.
func (c *Connections) ClientById(id protocol.ClientId) (*ConnectedClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.byId[id]
	return client, ok
}

// StreamRegistry is the process-wide registry of active visitor streams,
// indexed by StreamId.
type StreamRegistry struct {
	mu      sync.RWMutex
	streams map[protocol.StreamId]*ActiveStream
}

// NewStreamRegistry returns an empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{streams: make(map[protocol.StreamId]*ActiveStream)}
}

// Insert registers s under its Id.
func (r *StreamRegistry) Insert(s *ActiveStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.Id] = s
}

// Get looks up the active stream for id.
func (r *StreamRegistry) Get(id protocol.StreamId) (*ActiveStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	return s, ok
}

// Remove deregisters id. Idempotent.
func (r *StreamRegistry) Remove(id protocol.StreamId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}
