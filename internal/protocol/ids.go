// Package protocol defines the wire types and wire codec for the wormhole
// control protocol: the signed handshake (ClientHello/ServerHello) and the
// multiplexed stream packets (ControlPacket) that ride the single control
// channel after the handshake completes.
package protocol

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ClientId opaquely identifies a registered tunnel client for the lifetime
// of the process. It is comparable and cheap to copy.
type ClientId uuid.UUID

// NewClientId generates a fresh, collision-free client id.
func NewClientId() ClientId {
	return ClientId(uuid.New())
}

// ParseClientId parses a client id previously rendered with String.
func ParseClientId(s string) (ClientId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ClientId{}, fmt.Errorf("invalid client id %q: %w", s, err)
	}
	return ClientId(id), nil
}

func (c ClientId) String() string { return uuid.UUID(c).String() }

// MarshalText lets ClientId round-trip through encoding/json as a string.
func (c ClientId) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements the counterpart to MarshalText.
func (c *ClientId) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return fmt.Errorf("invalid client id %q: %w", b, err)
	}
	*c = ClientId(id)
	return nil
}

// StreamId is generated fresh for every visitor connection. It is unique
// for the lifetime of the process; uuid.New draws from a CSPRNG, which is
// sufficient to avoid coordination between concurrently accepted visitors.
type StreamId uuid.UUID

// NewStreamId generates a fresh, collision-free stream id.
func NewStreamId() StreamId {
	return StreamId(uuid.New())
}

func (s StreamId) String() string { return uuid.UUID(s).String() }

func (s StreamId) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *StreamId) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return fmt.Errorf("invalid stream id %q: %w", b, err)
	}
	*s = StreamId(id)
	return nil
}

// SubDomain is a lowercase alphanumeric virtual host identifier.
type SubDomain string

// ValidSubDomain reports whether s contains only lowercase letters and
// digits once normalized. The caller is expected to have already lowered
// the string; ValidSubDomain itself only checks the character class so
// that callers can distinguish "needed lowering" from "illegal character"
// if they care to.
func ValidSubDomain(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !('a' <= r && r <= 'z' || '0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

// NormalizeSubDomain lowercases s and reports whether the result is a
// legal SubDomain (alphanumeric only).
func NormalizeSubDomain(s string) (SubDomain, bool) {
	lowered := strings.ToLower(s)
	if !ValidSubDomain(lowered) {
		return "", false
	}
	return SubDomain(lowered), true
}
