// Package protocol defines the wire envelope and payload types shared
// between the controller and the agent over the WebSocket connection,
// plus the handshake and authentication documents carried on the
// upgrade request.
package protocol

import "encoding/json"

// ProtocolVersion is the version stamped on every ControllerRequest.
const ProtocolVersion = 1

// MessageKind discriminates the envelope.
type MessageKind string

const (
	KindNone              MessageKind = "none"
	KindControllerRequest MessageKind = "controller_request"
	KindAgentResponse     MessageKind = "agent_response"
)

// Message is the top-level envelope exchanged over the WebSocket
// connection. At most one of the embedded payload fields is set,
// selected by Kind; a KindNone message carries neither.
type Message struct {
	Kind     MessageKind       `json:"type"`
	Request  *ControllerRequest `json:"request,omitempty"`
	Response *AgentResponse     `json:"response,omitempty"`
}

// NoneMessage builds the sentinel message sent back for anything the
// receiver could not route (malformed frame, unexpected variant).
func NoneMessage() *Message {
	return &Message{Kind: KindNone}
}

// NewControllerRequestMessage wraps a ControllerRequest for the wire.
func NewControllerRequestMessage(req ControllerRequest) *Message {
	return &Message{Kind: KindControllerRequest, Request: &req}
}

// NewAgentResponseMessage wraps an AgentResponse for the wire.
func NewAgentResponseMessage(resp AgentResponse) *Message {
	return &Message{Kind: KindAgentResponse, Response: &resp}
}

// Encode marshals the message to JSON text, the only frame type this
// protocol uses (binary frames are a protocol error, per spec §4.8).
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a JSON text frame into a Message.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
