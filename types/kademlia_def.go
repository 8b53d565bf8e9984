package types

// PingRequest checks that a remote node is alive.
//
// - implements types.RPCMessage
type PingRequest struct {
	Header MessageHeader
}

// PingResponse answers a PingRequest.
//
// - implements types.RPCMessage
type PingResponse struct {
	Header MessageHeader
}

// NodeRequest asks a remote node for the contacts it knows closest to Key
// (FIND_NODE).
//
// - implements types.RPCMessage
type NodeRequest struct {
	Header MessageHeader

	// Key is the lookup target
	Key KUID
}

// NodeResponse answers a NodeRequest with up to K contacts.
//
// - implements types.RPCMessage
type NodeResponse struct {
	Header MessageHeader

	Contacts []Contact
}

// ValueRequest asks a remote node for the value stored under Key
// (FIND_VALUE).
//
// - implements types.RPCMessage
type ValueRequest struct {
	Header MessageHeader

	Key KUID
}

// ValueResponse answers a ValueRequest. If the remote node stores the value,
// Found is true and Value is set, otherwise Contacts holds the closest
// contacts it knows.
//
// - implements types.RPCMessage
type ValueResponse struct {
	Header MessageHeader

	Found    bool
	Value    ValueTuple
	Contacts []Contact
}

// StoreRequest asks a remote node to store a value.
//
// - implements types.RPCMessage
type StoreRequest struct {
	Header MessageHeader

	Key   KUID
	Value Value
}

// StoreResponse answers a StoreRequest.
//
// - implements types.RPCMessage
type StoreResponse struct {
	Header MessageHeader

	Status StoreStatus
}

// StoreStatus is the outcome of a STORE on the remote side.
type StoreStatus uint8

const (
	// StoreOK means the value is stored.
	StoreOK StoreStatus = iota
	// StoreLengthRequired means the value was empty.
	StoreLengthRequired
	// StoreInternalError means the remote database failed.
	StoreInternalError
)

// String implements fmt.Stringer.
func (s StoreStatus) String() string {
	switch s {
	case StoreOK:
		return "200 OK"
	case StoreLengthRequired:
		return "411 Length Required"
	case StoreInternalError:
		return "500 Internal Server Error"
	default:
		return "unknown status"
	}
}
