package types

import (
	"fmt"
	"time"
)

// Value is the content stored in the DHT.
type Value struct {
	Content []byte

	// Repeatable values are allowed to be stored more than once by the same
	// sender under the same key.
	Repeatable bool
}

// Len returns the size of the content.
func (v Value) Len() int {
	return len(v.Content)
}

// IsEmpty tells whether the value carries no content.
func (v Value) IsEmpty() bool {
	return len(v.Content) == 0
}

// ValueTuple is a value as stored in a database: who sent it, under which
// key, and when it was stored.
type ValueTuple struct {
	Sender   Contact
	Key      KUID
	Value    Value
	StoredAt time.Time
}

// String implements fmt.Stringer.
func (v ValueTuple) String() string {
	return fmt.Sprintf("{%s: %d bytes from %s}", v.Key.Short(), v.Value.Len(), v.Sender)
}
