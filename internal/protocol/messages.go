package protocol

// Message types for the handshake that precedes the packet stream.
const (
	TypeClientHello = "client_hello"
	TypeServerHello = "server_hello"
)

// ServerHello status values. Exactly one is set on a given ServerHello.
const (
	StatusSuccess            = "success"
	StatusSubDomainInUse     = "subdomain_in_use"
	StatusInvalidSubDomain   = "invalid_subdomain"
	StatusAuthFailed         = "auth_failed"
)

// ClientHelloPayload is the part of a ClientHello that gets signed. It
// never carries the signature itself, so the same bytes are reproducible
// on both the signing and verifying side.
type ClientHelloPayload struct {
	Id           ClientId `json:"id"`
	SubDomain    string   `json:"sub_domain,omitempty"`
	IsAnonymous  bool     `json:"is_anonymous"`
}

// ClientHello is what a client sends as the first frame on the control
// channel: a signed ClientHelloPayload.
type ClientHello struct {
	Type      string             `json:"type"`
	Payload   ClientHelloPayload `json:"payload"`
	Signature string             `json:"signature"`
}

// NewClientHello signs payload with secret and wraps it for the wire.
func NewClientHello(secret SecretKey, payload ClientHelloPayload) (ClientHello, error) {
	sig, err := secret.Sign(payload)
	if err != nil {
		return ClientHello{}, err
	}
	return ClientHello{
		Type:      TypeClientHello,
		Payload:   payload,
		Signature: sig,
	}, nil
}

// ServerHello is the single reply to a ClientHello.
type ServerHello struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	SubDomain string `json:"sub_domain,omitempty"`
}

// NewServerHelloSuccess builds a Success ServerHello.
func NewServerHelloSuccess(sub SubDomain) ServerHello {
	return ServerHello{Type: TypeServerHello, Status: StatusSuccess, SubDomain: string(sub)}
}

// NewServerHelloError builds a non-success ServerHello for the given status.
func NewServerHelloError(status string) ServerHello {
	return ServerHello{Type: TypeServerHello, Status: status}
}
