package server

import (
	"sync"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// outboundQueue is the unbounded, ordered, multi-producer/single-consumer
// queue backing a ConnectedClient's outbound control packets. Packets are
// delivered to Pop in the order Push was called; the neither Go's channel
// type nor the pack offers an unbounded channel, so this is a small,
// self-contained queue rather than a pulled-in dependency — see DESIGN.md.
//
// Closing the queue is the disconnect signal described in spec.md §3
// ("the queue's drop cascades into disconnect"): once closed, Push always
// fails and Pop drains any remaining items before reporting closed.
type outboundQueue struct {
	mu     sync.Mutex
	buf    []protocol.ControlPacket
	notify chan struct{}
	closed bool
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{notify: make(chan struct{}, 1)}
}

// Push enqueues p. It returns false if the queue has been closed, in
// which case the caller's send has "failed" per spec.md's error table.
func (q *outboundQueue) Push(p protocol.ControlPacket) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.buf = append(q.buf, p)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until a packet is available or the queue is closed and
// drained, matching ok=false to "queue-closed" in the tunnel task's loop.
func (q *outboundQueue) Pop() (protocol.ControlPacket, bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			p := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return p, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return protocol.ControlPacket{}, false
		}
		<-q.notify
	}
}

// Close marks the queue closed. Safe to call more than once.
func (q *outboundQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
