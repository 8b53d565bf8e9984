package types

import (
	"fmt"
	"time"
)

// LookupResult is the outcome of an iterative FIND_NODE lookup.
type LookupResult struct {
	Key KUID

	// Contacts are the closest live contacts found, sorted by distance to
	// Key.
	Contacts []Contact

	// Hops is the number of rounds the lookup took.
	Hops int

	// Queried is the number of remote nodes that were sent a request.
	Queried int

	Elapsed time.Duration
}

// String implements fmt.Stringer.
func (l LookupResult) String() string {
	return fmt.Sprintf("{lookup %s: %d contacts in %d hops, %s}", l.Key.Short(), len(l.Contacts),
		l.Hops, l.Elapsed)
}

// ValueResult is the outcome of an iterative FIND_VALUE lookup.
type ValueResult struct {
	Key   KUID
	Value ValueTuple

	// Source is the node the value was read from.
	Source Contact

	Hops    int
	Elapsed time.Duration
}

// PingResult is the outcome of a PING.
type PingResult struct {
	Contact Contact
	RTT     time.Duration
}

// StoreState is the final state of a STORE sent to one contact.
type StoreState uint8

const (
	// StoreStored means the contact answered with StoreOK.
	StoreStored StoreState = iota
	// StoreRejected means the contact answered with another status.
	StoreRejected
	// StoreTimedOut means the contact did not answer in time.
	StoreTimedOut
	// StoreFailed means the request could not be sent.
	StoreFailed
	// StoreCancelled means the store was cancelled before an answer came.
	StoreCancelled
)

// String implements fmt.Stringer.
func (s StoreState) String() string {
	switch s {
	case StoreStored:
		return "stored"
	case StoreRejected:
		return "rejected"
	case StoreTimedOut:
		return "timed out"
	case StoreFailed:
		return "failed"
	case StoreCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StoreOutcome is the per-contact outcome of a store.
type StoreOutcome struct {
	Contact Contact
	State   StoreState

	// Status is the status returned by the contact, only meaningful for
	// StoreStored and StoreRejected.
	Status StoreStatus

	RTT time.Duration
	Err error
}

// StoreResult aggregates the per-contact outcomes of a store.
type StoreResult struct {
	Key      KUID
	Outcomes []StoreOutcome
	Elapsed  time.Duration
}

// Count returns the number of outcomes in the given state.
func (s StoreResult) Count(state StoreState) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// StoredOn returns the contacts that acknowledged the store.
func (s StoreResult) StoredOn() []Contact {
	res := []Contact{}
	for _, o := range s.Outcomes {
		if o.State == StoreStored {
			res = append(res, o.Contact)
		}
	}
	return res
}

// String implements fmt.Stringer.
func (s StoreResult) String() string {
	return fmt.Sprintf("{store %s: %d/%d stored, %s}", s.Key.Short(), s.Count(StoreStored),
		len(s.Outcomes), s.Elapsed)
}

// PutResult is the outcome of a put, i.e. a lookup followed by a store.
// Lookup is nil when the put skipped the lookup.
type PutResult struct {
	Key    KUID
	Lookup *LookupResult
	Store  *StoreResult
}
