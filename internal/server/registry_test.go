package server

import (
	"errors"
	"testing"

	"github.com/nyxwell/wormhole/internal/protocol"
)

func TestConnectionsAddAndLookup(t *testing.T) {
	conns := NewConnections()
	c := NewConnectedClient(protocol.NewClientId(), "demo", nil)
	conns.Add(c)

	got, ok := conns.ClientForHost("demo")
	if !ok || got != c {
		t.Fatalf("expected to find client by host")
	}
	got, ok = conns.ClientById(c.Id)
	if !ok || got != c {
		t.Fatalf("expected to find client by id")
	}
}

func TestConnectionsAddSupersedesAndClosesOldQueue(t *testing.T) {
	conns := NewConnections()
	id := protocol.NewClientId()

	closed := false
	old := NewConnectedClient(id, "demo", func() { closed = true })
	conns.Add(old)

	newer := NewConnectedClient(id, "demo", nil)
	conns.Add(newer)

	if !old.queue.closed {
		t.Errorf("superseded client's queue should be closed")
	}
	if !closed {
		t.Errorf("superseded client's transport should be closed")
	}

	got, ok := conns.ClientById(id)
	if !ok || got != newer {
		t.Errorf("registry should only contain the newest client for id")
	}
	hostGot, ok := conns.ClientForHost("demo")
	if !ok || hostGot != newer {
		t.Errorf("registry should only contain the newest client for host")
	}
}

func TestConnectionsRemoveIsCASOnIdentity(t *testing.T) {
	conns := NewConnections()
	id := protocol.NewClientId()

	stale := NewConnectedClient(id, "demo", nil)
	conns.Add(stale)
	fresh := NewConnectedClient(id, "demo", nil)
	conns.Add(fresh)

	// Removing the stale pointer must not evict the fresh client that
	// has since reconnected onto the same id and host.
	conns.Remove(stale)

	got, ok := conns.ClientById(id)
	if !ok || got != fresh {
		t.Fatalf("stale removal must not evict the current client")
	}
	hostGot, ok := conns.ClientForHost("demo")
	if !ok || hostGot != fresh {
		t.Fatalf("stale removal must not evict the current host mapping")
	}
}

func TestConnectionsRemoveIsIdempotent(t *testing.T) {
	conns := NewConnections()
	c := NewConnectedClient(protocol.NewClientId(), "demo", nil)
	conns.Add(c)
	conns.Remove(c)
	conns.Remove(c) // must not panic

	if _, ok := conns.ClientForHost("demo"); ok {
		t.Errorf("expected host entry to be gone")
	}
}

func TestConnectedClientSendFailsAfterQueueClosed(t *testing.T) {
	c := NewConnectedClient(protocol.NewClientId(), "demo", nil)

	if err := c.Send(protocol.NewPingPacket()); err != nil {
		t.Fatalf("Send on a fresh client returned %v, want nil", err)
	}

	c.queue.Close()

	if err := c.Send(protocol.NewPingPacket()); !errors.Is(err, ErrClientGone) {
		t.Fatalf("Send after queue close = %v, want ErrClientGone", err)
	}
}

func TestStreamRegistryInsertGetRemove(t *testing.T) {
	reg := NewStreamRegistry()
	client := NewConnectedClient(protocol.NewClientId(), "demo", nil)
	stream := NewActiveStream(protocol.NewStreamId(), client)

	reg.Insert(stream)
	got, ok := reg.Get(stream.Id)
	if !ok || got != stream {
		t.Fatalf("expected to find inserted stream")
	}

	reg.Remove(stream.Id)
	if _, ok := reg.Get(stream.Id); ok {
		t.Fatalf("expected stream to be gone after remove")
	}
	reg.Remove(stream.Id) // idempotent
}
