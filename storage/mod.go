package storage

import (
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

// ErrValueTooLarge is returned when a value exceeds the database limit.
var ErrValueTooLarge = xerrors.New("value too large")

// ErrEmptyValue is returned when a value has no content.
var ErrEmptyValue = xerrors.New("empty value")

// Database stores the values a node is responsible for.
type Database interface {
	// Put stores a value tuple. It returns the previous tuple stored under
	// the same key, if any.
	Put(tuple types.ValueTuple) (prev types.ValueTuple, replaced bool, err error)

	// Get returns the tuple stored under key.
	Get(key types.KUID) (types.ValueTuple, bool)

	// Delete removes the tuple stored under key.
	Delete(key types.KUID)

	// Values returns a snapshot of all the stored tuples.
	Values() []types.ValueTuple

	// Len returns the number of stored tuples.
	Len() int
}
