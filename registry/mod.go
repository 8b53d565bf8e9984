package registry

import (
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
)

// Exec is the type of function a callback must have. It takes the decoded
// message and the packet it came in.
type Exec func(types.Message, transport.Packet) error

// Registry defines the functions to register messages and process incoming
// packets.
type Registry interface {
	// RegisterMessage makes a message type known to the registry so that it
	// can be decoded, without attaching a callback.
	RegisterMessage(types.Message)

	// RegisterMessageCallback registers a message type and the callback
	// executed when a packet carrying this type is processed.
	RegisterMessageCallback(types.Message, Exec)

	// ProcessPacket decodes the message of the packet and executes the
	// registered callback. Returns an error if the type is unknown, if the
	// message can't be decoded, or if the callback fails.
	ProcessPacket(pkt transport.Packet) error

	// ProcessMessage executes the callback registered for an already decoded
	// message.
	ProcessMessage(msg types.Message, pkt transport.Packet) error

	// MarshalMessage encodes a message into a transport message.
	MarshalMessage(types.Message) (transport.Message, error)

	// DecodeMessage decodes a transport message into a new message of the
	// registered type.
	DecodeMessage(transport.Message) (types.Message, error)

	// GetMessages returns the types that were registered.
	GetMessages() []types.Message
}
