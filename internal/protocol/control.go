package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// PacketType tags the variant of a ControlPacket.
type PacketType string

// The five control packet variants carried on the control channel after
// the handshake: Init/Data/Refused/End multiplex visitor streams by
// StreamId, and Ping is the keepalive heartbeat.
const (
	PacketInit    PacketType = "init"
	PacketData    PacketType = "data"
	PacketRefused PacketType = "refused"
	PacketEnd     PacketType = "end"
	PacketPing    PacketType = "ping"
)

// ControlPacket is the tagged union flowing over the control channel once
// the handshake has completed. Only Type and the fields relevant to that
// type are meaningful; StreamId is the zero value and Data is nil for
// Ping.
type ControlPacket struct {
	Type     PacketType `json:"type"`
	StreamId StreamId   `json:"stream_id"`
	Data     []byte     `json:"data"`
}

// NewInitPacket builds an Init(stream_id) packet.
func NewInitPacket(id StreamId) ControlPacket {
	return ControlPacket{Type: PacketInit, StreamId: id}
}

// NewDataPacket builds a Data(stream_id, bytes) packet. data may be empty
// but must round-trip as an empty (non-nil) slice, never as absent.
func NewDataPacket(id StreamId, data []byte) ControlPacket {
	if data == nil {
		data = []byte{}
	}
	return ControlPacket{Type: PacketData, StreamId: id, Data: data}
}

// NewRefusedPacket builds a Refused(stream_id) packet.
func NewRefusedPacket(id StreamId) ControlPacket {
	return ControlPacket{Type: PacketRefused, StreamId: id}
}

// NewEndPacket builds an End(stream_id) packet.
func NewEndPacket(id StreamId) ControlPacket {
	return ControlPacket{Type: PacketEnd, StreamId: id}
}

// NewPingPacket builds a Ping packet.
func NewPingPacket() ControlPacket {
	return ControlPacket{Type: PacketPing}
}

// Transport handles reading and writing handshake and control messages
// over a single framed duplex stream (in practice, the one yamux.Stream
// accepted for a client's control channel). Each Send/Read call
// corresponds to exactly one JSON value on the wire, which is what makes
// the framing self-delimiting: encoding/json's Decoder consumes exactly
// one value per Decode call regardless of what follows it on the stream.
type Transport struct {
	encoder *json.Encoder
	decoder *json.Decoder
	stream  io.ReadWriteCloser
}

// NewTransport wraps stream for handshake and control packet exchange.
func NewTransport(stream io.ReadWriteCloser) *Transport {
	return &Transport{
		encoder: json.NewEncoder(stream),
		decoder: json.NewDecoder(stream),
		stream:  stream,
	}
}

// SendClientHello writes a signed ClientHello frame.
func (t *Transport) SendClientHello(hello ClientHello) error {
	return t.encoder.Encode(hello)
}

// ReadClientHello reads exactly one frame and decodes it as a ClientHello.
func (t *Transport) ReadClientHello() (ClientHello, error) {
	var hello ClientHello
	if err := t.decoder.Decode(&hello); err != nil {
		return ClientHello{}, fmt.Errorf("read client hello: %w", err)
	}
	return hello, nil
}

// SendServerHello writes a ServerHello frame.
func (t *Transport) SendServerHello(hello ServerHello) error {
	return t.encoder.Encode(hello)
}

// ReadServerHello reads exactly one frame and decodes it as a ServerHello.
func (t *Transport) ReadServerHello() (ServerHello, error) {
	var hello ServerHello
	if err := t.decoder.Decode(&hello); err != nil {
		return ServerHello{}, fmt.Errorf("read server hello: %w", err)
	}
	return hello, nil
}

// SendPacket writes a ControlPacket frame.
func (t *Transport) SendPacket(p ControlPacket) error {
	return t.encoder.Encode(p)
}

// ErrMalformedPacket wraps a ReadPacket failure caused by a frame that
// doesn't parse as JSON or doesn't match ControlPacket's shape. Callers
// should treat it as a single bad frame, not a dead connection — the
// offending bytes have been consumed (for a frame that is not JSON at
// all, up to the newline that ends it) and the stream is fine to keep
// reading from. Any other error out of ReadPacket is a
// transport-level failure (EOF, reset, ...) and the connection is gone.
var ErrMalformedPacket = errors.New("protocol: malformed control packet")

// ReadPacket reads the next frame and decodes it as a ControlPacket.
// Errors are wrapped so callers can tell a bad frame (ErrMalformedPacket)
// apart from a transport failure with errors.Is; it never panics.
func (t *Transport) ReadPacket() (ControlPacket, error) {
	var p ControlPacket
	if err := t.decoder.Decode(&p); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) {
			// A json.Decoder returns the same syntax error on every later
			// Decode, so skip past the newline json.Encoder writes after
			// each frame and continue on a fresh decoder.
			br := bufio.NewReader(io.MultiReader(t.decoder.Buffered(), t.stream))
			_, _ = br.ReadBytes('\n')
			t.decoder = json.NewDecoder(br)
		}
		if syntaxErr != nil || errors.As(err, &typeErr) {
			return ControlPacket{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
		}
		return ControlPacket{}, fmt.Errorf("decode control packet: %w", err)
	}
	if p.Type == PacketData && p.Data == nil {
		p.Data = []byte{}
	}
	return p, nil
}

// Close closes the underlying stream.
func (t *Transport) Close() error {
	return t.stream.Close()
}
