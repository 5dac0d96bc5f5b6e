package server

import (
	"log/slog"
	"net"
	"sync"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// StreamMessage is what the per-client reader task (RunReaderTask)
// delivers to a stream's pump: either a chunk of tunnel-side data, or
// notice that the tunnel refused to open a local connection.
type StreamMessage struct {
	Refused bool
	Data    []byte
}

// NewStreamData wraps a chunk of tunnel-origin bytes.
func NewStreamData(b []byte) StreamMessage { return StreamMessage{Data: b} }

// NewStreamRefused signals that the tunnel declined to proxy this stream.
func NewStreamRefused() StreamMessage { return StreamMessage{Refused: true} }

// ActiveStream tracks one visitor connection's CREATED -> OPEN -> CLOSING
// -> DONE lifecycle. CREATED is implicit (the zero time between Insert
// and the first pump starting); OPEN is while both pumps run; CLOSING
// begins the instant either pump hits a terminal event; DONE is reached
// once the stream is deregistered and tx is closed.
type ActiveStream struct {
	Id     protocol.StreamId
	Client *ConnectedClient

	mu     sync.Mutex
	tx     chan StreamMessage
	closed bool
}

// NewActiveStream allocates a stream bound to client. The channel is
// modestly buffered: visitor sockets provide natural TCP backpressure on
// the tunnel-to-visitor direction, so an unbounded queue isn't needed
// here the way it is for the per-client outbound queue.
func NewActiveStream(id protocol.StreamId, client *ConnectedClient) *ActiveStream {
	return &ActiveStream{Id: id, Client: client, tx: make(chan StreamMessage, 32)}
}

// Deliver attempts to hand msg to the stream's pump. It returns false,
// without panicking, if the stream has already closed or its buffer is
// full — both cases the reader task treats as "drop silently".
func (s *ActiveStream) Deliver(msg StreamMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.tx <- msg:
		return true
	default:
		return false
	}
}

// close transitions the stream to CLOSING/DONE by closing tx. Idempotent
// and safe to call from either pump or from the orchestrator.
func (s *ActiveStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.tx)
}

const refusedResponse = "HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"
const notFoundResponse = "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

// runStreamPumps drives a visitor connection's two pumps to completion,
// then deregisters the stream and closes the visitor socket. prefix, if
// non-empty, is forwarded to the client before the visitor's own bytes
// (used when the caller has already consumed some bytes off the socket
// to resolve a subdomain and needs to replay them).
func runStreamPumps(stream *ActiveStream, visitorConn net.Conn, streams *StreamRegistry, conns *Connections, prefix []byte) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); visitorToTunnel(stream, visitorConn, conns, prefix) }()
	go func() { defer wg.Done(); tunnelToVisitor(stream, visitorConn) }()
	wg.Wait()

	streams.Remove(stream.Id)
	stream.close()
	visitorConn.Close()
}

// visitorToTunnel reads bytes off the visitor socket and forwards them as
// Data packets to the client. It enqueues End(id) once the visitor side
// reaches EOF or errors, and closes the stream right there — that close
// is what unblocks tunnelToVisitor's range over stream.tx, so the pair
// only has to wait on the slower of the two pumps, not on the visitor
// pump alone. It also tears the stream down immediately if a send to the
// client ever fails (the client is gone).
func visitorToTunnel(stream *ActiveStream, visitorConn net.Conn, conns *Connections, prefix []byte) {
	if len(prefix) > 0 {
		if err := stream.Client.Send(protocol.NewDataPacket(stream.Id, prefix)); err != nil {
			conns.Remove(stream.Client)
			stream.close()
			return
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := visitorConn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if err := stream.Client.Send(protocol.NewDataPacket(stream.Id, chunk)); err != nil {
				conns.Remove(stream.Client)
				stream.close()
				return
			}
		}
		if err != nil {
			_ = stream.Client.Send(protocol.NewEndPacket(stream.Id))
			stream.close()
			return
		}
	}
}

// tunnelToVisitor drains the stream's pump channel and writes Data
// payloads to the visitor socket, or serves a canned refusal and closes
// the socket on Refused.
func tunnelToVisitor(stream *ActiveStream, visitorConn net.Conn) {
	for msg := range stream.tx {
		if msg.Refused {
			if _, err := visitorConn.Write([]byte(refusedResponse)); err != nil {
				slog.Debug("failed writing refusal to visitor", "stream", stream.Id, "error", err)
			}
			visitorConn.Close()
			return
		}
		if len(msg.Data) == 0 {
			continue
		}
		if _, err := visitorConn.Write(msg.Data); err != nil {
			return
		}
	}
}
