package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ConnectHandshakeHeader is the HTTP header carrying the base64url,
// unpadded JSON ConnectHandshake document on the WebSocket upgrade
// request.
const ConnectHandshakeHeader = "X-MxLite-ConnectHandshake"

// AgentAuthHeader carries the base64 124-byte AuthRequest (see auth.go).
const AgentAuthHeader = "X-MxLite-AgentAuth"

// ConnectHandshake is the document an agent presents when opening a
// WebSocket session, describing who it is and what it's running.
type ConnectHandshake struct {
	Version        int      `json:"version"`
	HostID         string   `json:"host_id"`
	SessionID      string   `json:"session_id"`
	Envs           []string `json:"envs"`
	ControllerURL  string   `json:"controller_url"`
	SystemInfo     json.RawMessage `json:"system_info"`
}

// Encode renders the handshake as base64url JSON, without padding,
// suitable for the ConnectHandshakeHeader header value.
func (h *ConnectHandshake) Encode() (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal handshake: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeConnectHandshake parses a header value produced by Encode.
func DecodeConnectHandshake(header string) (*ConnectHandshake, error) {
	data, err := base64.RawURLEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("decode handshake base64: %w", err)
	}
	var h ConnectHandshake
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode handshake json: %w", err)
	}
	return &h, nil
}
