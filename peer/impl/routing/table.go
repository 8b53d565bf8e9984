package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.dedis.ch/kdht/types"
)

// NewTable returns an empty routing table for the node self.
func NewTable(self types.Contact, k int, clk clock.Clock) *Table {
	t := &Table{
		self:  self,
		k:     k,
		clock: clk,
	}

	now := clk.Now()
	for i := range t.buckets {
		t.buckets[i] = newBucket(now)
	}

	return t
}

// Table is a Kademlia routing table: bucket i holds the contacts sharing
// exactly i leading bits with the local node ID.
type Table struct {
	self  types.Contact
	k     int
	clock clock.Clock

	sync.RWMutex
	buckets [types.KUIDBits]*bucket
}

// Self returns the contact of the local node.
func (t *Table) Self() types.Contact {
	t.RLock()
	defer t.RUnlock()

	return t.self
}

// Add inserts or refreshes a contact. It returns true if the contact was not
// known before. The local node is never added.
func (t *Table) Add(c types.Contact) bool {
	if c.ID == t.self.ID || c.Address == "" {
		return false
	}

	t.Lock()
	defer t.Unlock()

	return t.buckets[t.index(c.ID)].add(c, t.k)
}

// Remove drops a contact, typically after it failed to answer.
func (t *Table) Remove(id types.KUID) bool {
	if id == t.self.ID {
		return false
	}

	t.Lock()
	defer t.Unlock()

	return t.buckets[t.index(id)].remove(id)
}

// Contains tells whether the contact is in the table.
func (t *Table) Contains(id types.KUID) bool {
	if id == t.self.ID {
		return false
	}

	t.RLock()
	defer t.RUnlock()

	return t.buckets[t.index(id)].find(id) != nil
}

// SelectClosest returns up to n contacts sorted by distance to key.
func (t *Table) SelectClosest(key types.KUID, n int) []types.Contact {
	contacts := t.Contacts()
	SortByDistance(contacts, key)

	if len(contacts) > n {
		contacts = contacts[:n]
	}
	return contacts
}

// Contacts returns a snapshot of all the contacts.
func (t *Table) Contacts() []types.Contact {
	t.RLock()
	defer t.RUnlock()

	res := []types.Contact{}
	for _, b := range t.buckets {
		res = append(res, b.all()...)
	}
	return res
}

// Len returns the number of contacts.
func (t *Table) Len() int {
	t.RLock()
	defer t.RUnlock()

	n := 0
	for _, b := range t.buckets {
		n += b.contacts.Len()
	}
	return n
}

// Touch records that a lookup for key just happened, which refreshes the
// bucket key falls into.
func (t *Table) Touch(key types.KUID) {
	if key == t.self.ID {
		return
	}

	t.Lock()
	defer t.Unlock()

	t.buckets[t.index(key)].touched = t.clock.Now()
}

// StaleBuckets returns the indices of the buckets that have not been touched
// for maxAge, up to the deepest non-empty bucket.
func (t *Table) StaleBuckets(maxAge time.Duration) []int {
	t.RLock()
	defer t.RUnlock()

	deepest := -1
	for i, b := range t.buckets {
		if b.contacts.Len() > 0 {
			deepest = i
		}
	}

	now := t.clock.Now()
	res := []int{}
	for i := 0; i <= deepest; i++ {
		if now.Sub(t.buckets[i].touched) >= maxAge {
			res = append(res, i)
		}
	}
	return res
}

func (t *Table) index(id types.KUID) int {
	i := t.self.ID.CommonPrefixLen(id)
	if i >= types.KUIDBits {
		i = types.KUIDBits - 1
	}
	return i
}

// SortByDistance sorts contacts by XOR distance to key, closest first.
func SortByDistance(contacts []types.Contact, key types.KUID) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return key.Closer(contacts[i].ID, contacts[j].ID)
	})
}
