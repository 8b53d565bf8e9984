package types

import "fmt"

// -----------------------------------------------------------------------------
// PingRequest

// NewEmpty implements types.Message.
func (p PingRequest) NewEmpty() Message {
	return &PingRequest{}
}

// Name implements types.Message.
func (p PingRequest) Name() string {
	return "pingreq"
}

// String implements types.Message.
func (p PingRequest) String() string {
	return fmt.Sprintf("{ping %s from %s}", p.Header.MessageID, p.Header.Contact)
}

// HTML implements types.Message.
func (p PingRequest) HTML() string {
	return p.String()
}

// GetHeader implements types.RPCMessage.
func (p PingRequest) GetHeader() MessageHeader {
	return p.Header
}

// IsRequest implements types.RPCMessage.
func (p PingRequest) IsRequest() bool {
	return true
}

// -----------------------------------------------------------------------------
// PingResponse

// NewEmpty implements types.Message.
func (p PingResponse) NewEmpty() Message {
	return &PingResponse{}
}

// Name implements types.Message.
func (p PingResponse) Name() string {
	return "pingresp"
}

// String implements types.Message.
func (p PingResponse) String() string {
	return fmt.Sprintf("{pong %s from %s}", p.Header.MessageID, p.Header.Contact)
}

// HTML implements types.Message.
func (p PingResponse) HTML() string {
	return p.String()
}

// GetHeader implements types.RPCMessage.
func (p PingResponse) GetHeader() MessageHeader {
	return p.Header
}

// IsRequest implements types.RPCMessage.
func (p PingResponse) IsRequest() bool {
	return false
}

// -----------------------------------------------------------------------------
// NodeRequest

// NewEmpty implements types.Message.
func (n NodeRequest) NewEmpty() Message {
	return &NodeRequest{}
}

// Name implements types.Message.
func (n NodeRequest) Name() string {
	return "findnodereq"
}

// String implements types.Message.
func (n NodeRequest) String() string {
	return fmt.Sprintf("{findnode %s from %s}", n.Key.Short(), n.Header.Contact)
}

// HTML implements types.Message.
func (n NodeRequest) HTML() string {
	return n.String()
}

// GetHeader implements types.RPCMessage.
func (n NodeRequest) GetHeader() MessageHeader {
	return n.Header
}

// IsRequest implements types.RPCMessage.
func (n NodeRequest) IsRequest() bool {
	return true
}

// -----------------------------------------------------------------------------
// NodeResponse

// NewEmpty implements types.Message.
func (n NodeResponse) NewEmpty() Message {
	return &NodeResponse{}
}

// Name implements types.Message.
func (n NodeResponse) Name() string {
	return "findnoderesp"
}

// String implements types.Message.
func (n NodeResponse) String() string {
	return fmt.Sprintf("{findnode reply with %d contacts from %s}", len(n.Contacts), n.Header.Contact)
}

// HTML implements types.Message.
func (n NodeResponse) HTML() string {
	return n.String()
}

// GetHeader implements types.RPCMessage.
func (n NodeResponse) GetHeader() MessageHeader {
	return n.Header
}

// IsRequest implements types.RPCMessage.
func (n NodeResponse) IsRequest() bool {
	return false
}

// -----------------------------------------------------------------------------
// ValueRequest

// NewEmpty implements types.Message.
func (v ValueRequest) NewEmpty() Message {
	return &ValueRequest{}
}

// Name implements types.Message.
func (v ValueRequest) Name() string {
	return "findvaluereq"
}

// String implements types.Message.
func (v ValueRequest) String() string {
	return fmt.Sprintf("{findvalue %s from %s}", v.Key.Short(), v.Header.Contact)
}

// HTML implements types.Message.
func (v ValueRequest) HTML() string {
	return v.String()
}

// GetHeader implements types.RPCMessage.
func (v ValueRequest) GetHeader() MessageHeader {
	return v.Header
}

// IsRequest implements types.RPCMessage.
func (v ValueRequest) IsRequest() bool {
	return true
}

// -----------------------------------------------------------------------------
// ValueResponse

// NewEmpty implements types.Message.
func (v ValueResponse) NewEmpty() Message {
	return &ValueResponse{}
}

// Name implements types.Message.
func (v ValueResponse) Name() string {
	return "findvalueresp"
}

// String implements types.Message.
func (v ValueResponse) String() string {
	if v.Found {
		return fmt.Sprintf("{findvalue reply with value %s from %s}", v.Value.Key.Short(), v.Header.Contact)
	}
	return fmt.Sprintf("{findvalue reply with %d contacts from %s}", len(v.Contacts), v.Header.Contact)
}

// HTML implements types.Message.
func (v ValueResponse) HTML() string {
	return v.String()
}

// GetHeader implements types.RPCMessage.
func (v ValueResponse) GetHeader() MessageHeader {
	return v.Header
}

// IsRequest implements types.RPCMessage.
func (v ValueResponse) IsRequest() bool {
	return false
}

// -----------------------------------------------------------------------------
// StoreRequest

// NewEmpty implements types.Message.
func (s StoreRequest) NewEmpty() Message {
	return &StoreRequest{}
}

// Name implements types.Message.
func (s StoreRequest) Name() string {
	return "storereq"
}

// String implements types.Message.
func (s StoreRequest) String() string {
	return fmt.Sprintf("{store %s (%d bytes) from %s}", s.Key.Short(), s.Value.Len(), s.Header.Contact)
}

// HTML implements types.Message.
func (s StoreRequest) HTML() string {
	return s.String()
}

// GetHeader implements types.RPCMessage.
func (s StoreRequest) GetHeader() MessageHeader {
	return s.Header
}

// IsRequest implements types.RPCMessage.
func (s StoreRequest) IsRequest() bool {
	return true
}

// -----------------------------------------------------------------------------
// StoreResponse

// NewEmpty implements types.Message.
func (s StoreResponse) NewEmpty() Message {
	return &StoreResponse{}
}

// Name implements types.Message.
func (s StoreResponse) Name() string {
	return "storeresp"
}

// String implements types.Message.
func (s StoreResponse) String() string {
	return fmt.Sprintf("{store reply %s from %s}", s.Status, s.Header.Contact)
}

// HTML implements types.Message.
func (s StoreResponse) HTML() string {
	return s.String()
}

// GetHeader implements types.RPCMessage.
func (s StoreResponse) GetHeader() MessageHeader {
	return s.Header
}

// IsRequest implements types.RPCMessage.
func (s StoreResponse) IsRequest() bool {
	return false
}
