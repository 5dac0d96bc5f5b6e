package server

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/nyxwell/wormhole/internal/protocol"
)

// randomSuffixBytes controls the length of the random portion of a
// generated subdomain, matching the 4-byte/8-hex-character suffix the
// teacher used for its own generated subdomains.
const randomSuffixBytes = 4

// randomHex returns n random bytes hex-encoded, lowercase by construction
// and therefore always a valid SubDomain label on its own.
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("server: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// RandomSubDomain generates a fresh random subdomain for a client that
// requested none, mirroring the reference server's random_domain().
func RandomSubDomain() protocol.SubDomain {
	return protocol.SubDomain(randomHex(randomSuffixBytes))
}

// PrefixedRandomSubDomain generates "<prefix>-<random>", used when an
// anonymous client requests a human-friendly prefix without claiming
// exclusive ownership of it, mirroring prefixed_random_domain().
func PrefixedRandomSubDomain(prefix string) protocol.SubDomain {
	return protocol.SubDomain(prefix + "-" + randomHex(randomSuffixBytes))
}
