package store

import (
	"sync"

	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/types"
)

// phase is the state of a put.
//
//	INIT -> LOOKUP_RUNNING -> STORE_RUNNING -> DONE
//
// PutTo goes from INIT to STORE_RUNNING directly, and any state can go to
// DONE on cancellation.
type phase uint8

const (
	phaseInit phase = iota
	phaseLookup
	phaseStore
	phaseDone
)

// putState is the state of one put. The lock is only held to check and
// change the phase, never while calling into the lookup or the store.
type putState struct {
	sync.Mutex
	key    types.KUID
	phase  phase
	user   *future.Future[types.PutResult]
	lookup *future.Future[types.LookupResult]
	store  *future.Future[types.StoreResult]
	found  *types.LookupResult
}

func newPutState(key types.KUID) *putState {
	return &putState{
		key:   key,
		phase: phaseInit,
		user:  future.New[types.PutResult](),
	}
}

// startLookup moves from INIT to LOOKUP_RUNNING.
func (s *putState) startLookup(lookup *future.Future[types.LookupResult]) bool {
	s.Lock()
	defer s.Unlock()

	if s.phase != phaseInit || s.halted() {
		return false
	}
	s.phase = phaseLookup
	s.lookup = lookup
	return true
}

// startStore moves from the given phase to STORE_RUNNING.
func (s *putState) startStore(from phase, found *types.LookupResult,
	store *future.Future[types.StoreResult]) bool {

	s.Lock()
	defer s.Unlock()

	if s.phase != from || s.halted() {
		return false
	}
	s.phase = phaseStore
	s.found = found
	s.store = store
	return true
}

// halted tells whether the user future is already completed. A cancelled
// future is marked completed before its listeners run, so this catches a
// cancellation whose listener did not move the phase to DONE yet. Must be
// called with the lock held.
func (s *putState) halted() bool {
	if !s.user.IsDone() {
		return false
	}
	s.phase = phaseDone
	return true
}

// finish moves from the given phase to DONE.
func (s *putState) finish(from phase) bool {
	s.Lock()
	defer s.Unlock()

	if s.phase != from {
		return false
	}
	s.phase = phaseDone
	return true
}

// cancel moves to DONE and returns the sub-operation to cancel, if any.
func (s *putState) cancel() (*future.Future[types.LookupResult], *future.Future[types.StoreResult]) {
	s.Lock()
	defer s.Unlock()

	current := s.phase
	s.phase = phaseDone

	switch current {
	case phaseLookup:
		return s.lookup, nil
	case phaseStore:
		return nil, s.store
	default:
		return nil, nil
	}
}

func (s *putState) lookupResult() *types.LookupResult {
	s.Lock()
	defer s.Unlock()

	return s.found
}
