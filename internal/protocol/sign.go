package protocol

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SecretKey is the server-wide shared secret used to sign and verify
// ClientHello payloads. Treated as an opaque byte string, never logged.
type SecretKey []byte

// GenerateSecretKey produces a fresh random secret for standalone mode,
// i.e. when no SECRET_KEY is configured out-of-band.
func GenerateSecretKey() (SecretKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	return SecretKey(buf), nil
}

// Sign computes the hex-encoded HMAC-SHA256 of payload's canonical JSON
// encoding under k.
func (k SecretKey) Sign(payload ClientHelloPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode client hello payload: %w", err)
	}
	mac := hmac.New(sha256.New, k)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether sig is a valid signature of payload under k,
// using a constant-time comparison.
func (k SecretKey) Verify(payload ClientHelloPayload, sig string) bool {
	want, err := k.Sign(payload)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(sig)) == 1
}
