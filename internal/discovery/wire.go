// Package discovery implements the UDP broadcast discovery protocol
// (spec §4.3): the controller-side responder, the agent-side client
// that broadcasts and HTTP-pings candidates, and the wire types they
// share.
package discovery

import "encoding/json"

// Port is the fixed UDP port both sides bind to.
const Port = 11451

// ProtocolRevision is the only supported discovery wire revision.
const ProtocolRevision = 1

const (
	MagicRequest  = "MXA-DISCOVER"
	MagicResponse = "MXA-RESPONSE"
)

// Request is broadcast by an agent looking for a controller.
type Request struct {
	Magic    string `json:"magic"`
	Revision int    `json:"revision"`
}

// NewRequest builds the standard discovery request.
func NewRequest() Request {
	return Request{Magic: MagicRequest, Revision: ProtocolRevision}
}

// Response is unicast back by a controller that received a valid Request.
type Response struct {
	Magic string   `json:"magic"`
	WS    []string `json:"ws"`
}

// Encode marshals to the wire JSON form.
func (r Request) Encode() ([]byte, error) { return json.Marshal(r) }

// Encode marshals to the wire JSON form.
func (r Response) Encode() ([]byte, error) { return json.Marshal(r) }

// DecodeRequest parses a datagram as a Request.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	err := json.Unmarshal(data, &r)
	return r, err
}

// DecodeResponse parses a datagram as a Response.
func DecodeResponse(data []byte) (Response, error) {
	var r Response
	err := json.Unmarshal(data, &r)
	return r, err
}
