package peer

import (
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/types"
)

// Service defines the functions for the basic operations of a peer.
type Service interface {
	// Start starts the node. It binds the socket and starts the daemons.
	Start() error

	// Stop stops the node. Every outstanding request is cancelled.
	Stop() error

	// GetAddr returns the address of the node.
	GetAddr() string

	// GetContact returns the contact describing this node.
	GetContact() types.Contact

	// GetRoutingTable returns a snapshot of the contacts known by the node.
	GetRoutingTable() []types.Contact
}

// DHT defines the operations of the distributed hash table. Every operation
// is asynchronous and returns a future that can be waited on or cancelled.
type DHT interface {
	// Bootstrap joins the network through the node at addr: it pings it
	// with backoff, then looks up its own ID.
	Bootstrap(addr string) error

	// Ping sends a PING to the node at addr.
	Ping(addr string) *future.Future[types.PingResult]

	// Lookup finds the K closest nodes to key.
	Lookup(key types.KUID) *future.Future[types.LookupResult]

	// Get finds a value stored under key.
	Get(key types.KUID) *future.Future[types.ValueResult]

	// Put looks up the K closest nodes to key and stores the value on them.
	Put(key types.KUID, value types.Value, conf PutConfig) *future.Future[types.PutResult]

	// PutTo stores the value on the given contacts, skipping the lookup.
	PutTo(contacts []types.Contact, key types.KUID, value types.Value,
		conf PutConfig) *future.Future[types.PutResult]

	// GetLocalValues returns the values stored by this node.
	GetLocalValues() []types.ValueTuple
}
