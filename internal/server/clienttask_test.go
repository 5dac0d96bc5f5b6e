package server

import (
	"io"
	"testing"
	"time"

	"github.com/nyxwell/wormhole/internal/protocol"
)

type pipeReadOnly struct{ io.Reader }

func (p pipeReadOnly) Write(b []byte) (int, error) { return 0, io.ErrClosedPipe }
func (p pipeReadOnly) Close() error                { return nil }

type pipeWriteOnly struct{ io.Writer }

func (p pipeWriteOnly) Read(b []byte) (int, error) { return 0, io.EOF }
func (p pipeWriteOnly) Close() error               { return nil }

func TestRunTunnelTaskDrainsQueueInOrder(t *testing.T) {
	r, w := io.Pipe()
	tr := protocol.NewTransport(pipeWriteOnly{w})
	client := NewConnectedClient(protocol.NewClientId(), "demo", nil)
	conns := NewConnections()
	conns.Add(client)

	id := protocol.NewStreamId()
	client.Send(protocol.NewDataPacket(id, []byte("one")))
	client.Send(protocol.NewDataPacket(id, []byte("two")))

	done := make(chan struct{})
	go func() {
		RunTunnelTask(tr, client, conns)
		close(done)
	}()

	reader := protocol.NewTransport(pipeReadOnly{r})
	p1, err := reader.ReadPacket()
	if err != nil || string(p1.Data) != "one" {
		t.Fatalf("unexpected first packet: %+v err=%v", p1, err)
	}
	p2, err := reader.ReadPacket()
	if err != nil || string(p2.Data) != "two" {
		t.Fatalf("unexpected second packet: %+v err=%v", p2, err)
	}

	client.queue.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunTunnelTask did not exit after queue close")
	}
}

func TestRunTunnelTaskRemovesClientOnWriteError(t *testing.T) {
	r, w := io.Pipe()
	tr := protocol.NewTransport(pipeWriteOnly{w})
	client := NewConnectedClient(protocol.NewClientId(), "demo", nil)
	conns := NewConnections()
	conns.Add(client)
	r.Close() // force the next write to fail

	client.Send(protocol.NewPingPacket())

	done := make(chan struct{})
	go func() {
		RunTunnelTask(tr, client, conns)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunTunnelTask did not exit after write error")
	}
	if _, ok := conns.ClientById(client.Id); ok {
		t.Errorf("expected client to be removed from registry after a write error")
	}
}

func TestRunReaderTaskDispatchesDataToStream(t *testing.T) {
	r, w := io.Pipe()
	readerTr := protocol.NewTransport(pipeReadOnly{r})
	client := NewConnectedClient(protocol.NewClientId(), "demo", nil)
	conns := NewConnections()
	conns.Add(client)
	streams := NewStreamRegistry()
	stream := NewActiveStream(protocol.NewStreamId(), client)
	streams.Insert(stream)

	done := make(chan struct{})
	go func() {
		RunReaderTask(readerTr, client, streams, conns)
		close(done)
	}()

	enc := protocol.NewTransport(pipeWriteOnly{w})
	if err := enc.SendPacket(protocol.NewDataPacket(stream.Id, []byte("payload"))); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-stream.tx:
		if string(msg.Data) != "payload" {
			t.Errorf("unexpected stream message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("stream never received the dispatched packet")
	}

	w.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunReaderTask did not exit after writer closed")
	}
	if _, ok := conns.ClientById(client.Id); ok {
		t.Errorf("expected client to be removed from registry after reader task exits")
	}
}

func TestRunReaderTaskDropsPacketForUnknownStream(t *testing.T) {
	r, w := io.Pipe()
	readerTr := protocol.NewTransport(pipeReadOnly{r})
	client := NewConnectedClient(protocol.NewClientId(), "demo", nil)
	conns := NewConnections()
	conns.Add(client)
	streams := NewStreamRegistry()

	done := make(chan struct{})
	go func() {
		RunReaderTask(readerTr, client, streams, conns)
		close(done)
	}()

	enc := protocol.NewTransport(pipeWriteOnly{w})
	if err := enc.SendPacket(protocol.NewDataPacket(protocol.NewStreamId(), []byte("orphan"))); err != nil {
		t.Fatalf("send: %v", err)
	}
	w.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunReaderTask did not exit; a packet for an unknown stream should just be dropped")
	}
}
