package server

import (
	"log/slog"
	"net"
	"strings"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// AcceptVisitor is C7: given a freshly accepted visitor connection, it
// resolves the target subdomain, looks up the owning client, and if one
// exists, registers a stream and hands the connection off to its pumps.
// allowedHosts restricts which Host suffixes are eligible for tunneling
// at all; an empty list means no restriction.
func AcceptVisitor(conn net.Conn, conns *Connections, streams *StreamRegistry, allowedHosts []string) {
	host, wrapped, err := parseHTTPHost(conn)
	if err != nil {
		slog.Debug("visitor connection is not valid HTTP", "error", err)
	}

	if len(allowedHosts) > 0 && !hostSuffixAllowed(host, allowedHosts) {
		writeAndClose(wrapped, notFoundResponse)
		return
	}

	sub := protocol.SubDomain(strings.ToLower(extractSubdomain(host)))
	client, ok := conns.ClientForHost(sub)
	if !ok {
		writeAndClose(wrapped, notFoundResponse)
		return
	}

	streamId := protocol.NewStreamId()
	stream := NewActiveStream(streamId, client)
	streams.Insert(stream)

	if err := client.Send(protocol.NewInitPacket(streamId)); err != nil {
		conns.Remove(client)
		streams.Remove(streamId)
		wrapped.Close()
		return
	}

	runStreamPumps(stream, wrapped, streams, conns, nil)
}

func hostSuffixAllowed(host string, allowedHosts []string) bool {
	host = strings.ToLower(host)
	if colon := strings.LastIndex(host, ":"); colon != -1 && strings.Count(host, ":") == 1 {
		host = host[:colon]
	}
	for _, suffix := range allowedHosts {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" {
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func writeAndClose(conn net.Conn, response string) {
	_, _ = conn.Write([]byte(response))
	conn.Close()
}
