package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// PingInterval is how long the server waits after receiving a Ping
// before scheduling a reply Ping onto the client's outbound queue.
// spec.md leaves the exact value to the implementation; 10s matches the
// keepalive cadence a reverse-tunnel control link typically uses.
const PingInterval = 10 * time.Second

// RunTunnelTask is C4: it drains client's outbound queue and serializes
// each packet onto tr, in order, until the queue is closed or a write
// fails. A write failure means the physical connection is gone, so the
// client is removed from conns; a closed queue means someone else (a
// reconnect, or the reader task) already did that, and the task exits
// quietly.
func RunTunnelTask(tr *protocol.Transport, client *ConnectedClient, conns *Connections) {
	for {
		pkt, ok := client.queue.Pop()
		if !ok {
			slog.Debug("tunnel task ending, queue closed", "client", client.Id)
			return
		}
		if err := tr.SendPacket(pkt); err != nil {
			slog.Info("client disconnected, aborting tunnel task", "client", client.Id, "error", err)
			conns.Remove(client)
			return
		}
	}
}

// RunReaderTask is C5: it reads control packets off tr and dispatches
// them, until the read side hits a transport-level error (the client
// hung up). A single malformed frame does not end the connection — it's
// logged and the loop keeps going. On exit it removes the client from
// conns and closes its outbound queue, which is what lets RunTunnelTask
// and any blocked writers unwind.
func RunReaderTask(tr *protocol.Transport, client *ConnectedClient, streams *StreamRegistry, conns *Connections) {
	defer client.queue.Close()
	defer conns.Remove(client)

	for {
		pkt, err := tr.ReadPacket()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedPacket) {
				slog.Warn("discarding malformed control frame", "client", client.Id, "error", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				slog.Info("client disconnected", "client", client.Id)
			} else {
				slog.Info("client read error", "client", client.Id, "error", err)
			}
			return
		}

		switch pkt.Type {
		case protocol.PacketData:
			if s, ok := streams.Get(pkt.StreamId); ok {
				s.Deliver(NewStreamData(pkt.Data))
			}
		case protocol.PacketRefused:
			if s, ok := streams.Get(pkt.StreamId); ok {
				s.Deliver(NewStreamRefused())
			}
		case protocol.PacketPing:
			schedulePingReply(client)
		case protocol.PacketInit, protocol.PacketEnd:
			slog.Warn("protocol violation: unexpected packet from client", "client", client.Id, "type", pkt.Type)
		default:
			slog.Warn("unrecognized control packet type", "client", client.Id, "type", pkt.Type)
		}
	}
}

// schedulePingReply enqueues a reply Ping after PingInterval. If the
// client has disconnected by the time the timer fires, Push fails
// silently — there is nothing left to notify.
func schedulePingReply(client *ConnectedClient) {
	time.AfterFunc(PingInterval, func() {
		_ = client.Send(protocol.NewPingPacket())
	})
}
