package server

import (
	"testing"
	"time"

	"github.com/nyxwell/wormhole/internal/protocol"
)

func TestOutboundQueuePreservesOrder(t *testing.T) {
	q := newOutboundQueue()
	id := protocol.NewStreamId()
	for i := 0; i < 5; i++ {
		if !q.Push(protocol.NewDataPacket(id, []byte{byte(i)})) {
			t.Fatalf("push %d should succeed", i)
		}
	}

	for i := 0; i < 5; i++ {
		p, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d should succeed", i)
		}
		if len(p.Data) != 1 || p.Data[0] != byte(i) {
			t.Errorf("pop %d = %+v, want data [%d]", i, p, i)
		}
	}
}

func TestOutboundQueuePopBlocksUntilPush(t *testing.T) {
	q := newOutboundQueue()
	done := make(chan protocol.ControlPacket, 1)
	go func() {
		p, _ := q.Pop()
		done <- p
	}()

	select {
	case <-done:
		t.Fatalf("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(protocol.NewPingPacket())
	select {
	case p := <-done:
		if p.Type != protocol.PacketPing {
			t.Errorf("got %+v, want a ping packet", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop never returned after Push")
	}
}

func TestOutboundQueueCloseDrainsThenReportsClosed(t *testing.T) {
	q := newOutboundQueue()
	q.Push(protocol.NewPingPacket())
	q.Close()
	q.Close() // idempotent

	if q.Push(protocol.NewPingPacket()) {
		t.Errorf("push after close should fail")
	}

	if _, ok := q.Pop(); !ok {
		t.Fatalf("expected the buffered packet to drain before reporting closed")
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected closed queue to report ok=false once drained")
	}
}
