package client

import (
	"io"
	"sync"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// streamConn adapts one tunnel-multiplexed stream into an
// io.ReadWriteCloser so it can be handed to proxy.Bidirectional
// alongside a real net.Conn to the local service, the same way the
// server's visitor pumps adapt their side of the same stream.
//
// Reads drain chunks fed by the control-channel dispatch loop (feed);
// writes serialize Data packets back onto the control channel; Close
// sends End and stops accepting further chunks.
type streamConn struct {
	id     protocol.StreamId
	client *Client

	mu       sync.Mutex
	chunks   chan []byte
	leftover []byte
	closed   bool
}

func newStreamConn(id protocol.StreamId, c *Client) *streamConn {
	return &streamConn{id: id, client: c, chunks: make(chan []byte, 32)}
}

// Read implements io.Reader, unpacking buffered chunks fed by feed.
func (s *streamConn) Read(p []byte) (int, error) {
	if len(s.leftover) > 0 {
		n := copy(p, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}
	chunk, ok := <-s.chunks
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		s.leftover = chunk[n:]
	}
	return n, nil
}

// Write implements io.Writer by forwarding a Data packet upstream.
func (s *streamConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk := append([]byte(nil), p...)
	if !s.client.send(protocol.NewDataPacket(s.id, chunk)) {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}

// Close sends End upstream and stops accepting further chunks.
func (s *streamConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.send(protocol.NewEndPacket(s.id))
	close(s.chunks)
	return nil
}

// discard stops accepting further chunks without sending End, used when
// the stream never opened a local connection (a Refused was already
// sent instead).
func (s *streamConn) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.chunks)
}

// feed delivers a Data chunk received from the server. Called from the
// single control-channel dispatch loop, so it must never block; if the
// buffer is full the chunk is dropped, matching the "natural TCP
// backpressure" this buffer approximates on the client side.
func (s *streamConn) feed(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- data:
	default:
	}
}

// end signals that the server has no more data for this stream (the
// visitor closed its side), without closing the write direction.
func (s *streamConn) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.chunks)
}
