package types

// Message defines the type of message that can be marshalled/unmarshalled
// over the network.
type Message interface {
	NewEmpty() Message
	Name() string
	String() string
	HTML() string
}

// RPCMessage is a message exchanged in a request/response pair. Every RPC
// message carries a header with its MessageID and the contact of the sender.
type RPCMessage interface {
	Message

	// GetHeader returns the RPC header of the message.
	GetHeader() MessageHeader

	// IsRequest tells whether the message is a request (as opposed to a
	// response).
	IsRequest() bool
}

// MessageHeader is the common header of every RPC message.
type MessageHeader struct {
	// MessageID correlates a response with its request. A response reuses
	// the MessageID of the request it answers.
	MessageID MessageID

	// Contact is the sender of the message, as claimed by the sender.
	Contact Contact
}
