package inmemory

import (
	"sort"

	"go.dedis.ch/kdht/storage"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

// DefaultMaxValueSize is the largest value content accepted by default.
const DefaultMaxValueSize = 32 * 1024

// NewDatabase returns a new in-memory database. A maxValueSize of 0 means
// DefaultMaxValueSize.
func NewDatabase(maxValueSize int) storage.Database {
	if maxValueSize == 0 {
		maxValueSize = DefaultMaxValueSize
	}

	return &Database{
		tuples:  newKVStore[types.KUID, types.ValueTuple](),
		maxSize: maxValueSize,
	}
}

// Database implements an in-memory database
//
// - implements storage.Database
type Database struct {
	tuples  *kvStore[types.KUID, types.ValueTuple]
	maxSize int
}

// Put implements storage.Database
func (d *Database) Put(tuple types.ValueTuple) (types.ValueTuple, bool, error) {
	if tuple.Value.IsEmpty() {
		return types.ValueTuple{}, false, storage.ErrEmptyValue
	}
	if tuple.Value.Len() > d.maxSize {
		return types.ValueTuple{}, false, xerrors.Errorf("%d > %d: %w", tuple.Value.Len(), d.maxSize,
			storage.ErrValueTooLarge)
	}

	// keep our own copy, the caller may reuse the buffer
	content := make([]byte, tuple.Value.Len())
	copy(content, tuple.Value.Content)
	tuple.Value.Content = content

	prev, replaced := d.tuples.Swap(tuple.Key, tuple)
	return prev, replaced, nil
}

// Get implements storage.Database
func (d *Database) Get(key types.KUID) (types.ValueTuple, bool) {
	return d.tuples.Get(key)
}

// Delete implements storage.Database
func (d *Database) Delete(key types.KUID) {
	d.tuples.Delete(key)
}

// Values implements storage.Database
func (d *Database) Values() []types.ValueTuple {
	res := make([]types.ValueTuple, 0, d.tuples.Len())
	d.tuples.ForEach(func(_ types.KUID, tuple types.ValueTuple) bool {
		res = append(res, tuple)
		return true
	})

	sort.Slice(res, func(i, j int) bool {
		return res[i].Key.Less(res[j].Key)
	})
	return res
}

// Len implements storage.Database
func (d *Database) Len() int {
	return d.tuples.Len()
}
