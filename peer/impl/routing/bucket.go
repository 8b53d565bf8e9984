package routing

import (
	"container/list"
	"time"

	"go.dedis.ch/kdht/types"
)

// replacementSize bounds the number of contacts waiting for a slot.
const replacementSize = 8

// bucket keeps up to k contacts, most recently seen first. Contacts seen while
// the bucket is full wait in the replacement cache.
type bucket struct {
	contacts     *list.List
	replacements []types.Contact
	touched      time.Time
}

func newBucket(now time.Time) *bucket {
	return &bucket{
		contacts: list.New(),
		touched:  now,
	}
}

func (b *bucket) find(id types.KUID) *list.Element {
	for e := b.contacts.Front(); e != nil; e = e.Next() {
		if e.Value.(types.Contact).ID == id {
			return e
		}
	}
	return nil
}

// add inserts or refreshes the contact. It returns true if the contact is
// new to the bucket.
func (b *bucket) add(c types.Contact, k int) bool {
	e := b.find(c.ID)
	if e != nil {
		// the node may have a new address or instance
		e.Value = c
		b.contacts.MoveToFront(e)
		return false
	}

	if b.contacts.Len() < k {
		b.contacts.PushFront(c)
		return true
	}

	b.addReplacement(c)
	return false
}

func (b *bucket) addReplacement(c types.Contact) {
	for i := range b.replacements {
		if b.replacements[i].ID == c.ID {
			b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
			break
		}
	}
	if len(b.replacements) >= replacementSize {
		b.replacements = b.replacements[1:]
	}
	b.replacements = append(b.replacements, c)
}

// remove drops the contact and promotes the most recent replacement.
func (b *bucket) remove(id types.KUID) bool {
	e := b.find(id)
	if e == nil {
		return false
	}
	b.contacts.Remove(e)

	n := len(b.replacements)
	if n > 0 {
		b.contacts.PushBack(b.replacements[n-1])
		b.replacements = b.replacements[:n-1]
	}
	return true
}

func (b *bucket) all() []types.Contact {
	res := make([]types.Contact, 0, b.contacts.Len())
	for e := b.contacts.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(types.Contact))
	}
	return res
}
