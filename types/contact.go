package types

import "fmt"

// Contact describes a remote node: its identifier and where to reach it.
type Contact struct {
	// ID is the node identifier.
	ID KUID

	// Address is the transport address, e.g. 127.0.0.1:4001.
	Address string

	// InstanceID changes every time a node restarts with the same ID.
	InstanceID int
}

// String implements fmt.Stringer.
func (c Contact) String() string {
	return fmt.Sprintf("{%s@%s}", c.ID.Short(), c.Address)
}

// SameNode tells whether both contacts designate the same node identity.
func (c Contact) SameNode(other Contact) bool {
	return c.ID == other.ID
}
