package store

import (
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/dispatcher"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

var (
	// ErrNoContacts is returned when a store is given no contact.
	ErrNoContacts = xerrors.New("no contacts to store to")

	// ErrStoreFailed is returned when no contact acknowledged the store.
	ErrStoreFailed = xerrors.New("no contact stored the value")
)

// Requester sends requests and cancels them.
type Requester interface {
	SendRequest(dest types.Contact, msg types.RPCMessage, timeout time.Duration, cb dispatcher.Callback) error
	Cancel(id types.MessageID) bool
}

// Lookuper finds the closest nodes to a key.
type Lookuper interface {
	Lookup(key types.KUID, timeout time.Duration) *future.Future[types.LookupResult]
}

// RequestFactory creates STORE requests.
type RequestFactory interface {
	Self() types.Contact
	CreateStoreRequest(dest types.Contact, key types.KUID, value types.Value) *types.StoreRequest
}

// NewManager returns a new store manager.
func NewManager(conf *peer.Configuration, requester Requester, factory RequestFactory,
	lookups Lookuper) *Manager {

	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		conf:      conf,
		requester: requester,
		factory:   factory,
		lookups:   lookups,
		clock:     clk,
		logger: log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().
			Str("node", conf.NodeID.Short()).Str("module", "store").Logger(),
	}
}

// Manager runs puts: a lookup of the closest nodes to a key followed by a
// store of the value on them, as a single cancellable operation.
type Manager struct {
	conf      *peer.Configuration
	requester Requester
	factory   RequestFactory
	lookups   Lookuper
	clock     clock.Clock
	logger    zerolog.Logger
}

// Put looks up the closest nodes to key, then stores the value on them.
//
// The returned future fails with the lookup error if the lookup fails, in
// which case no STORE is sent. If the store fails, the future fails with the
// store error and its value still carries the lookup result. Cancelling the
// future cancels whichever phase is running, and a cancelled phase cancels
// the future.
func (m *Manager) Put(key types.KUID, value types.Value, conf peer.PutConfig) *future.Future[types.PutResult] {
	conf = conf.Merge(m.conf.PutDefaults)
	s := newPutState(key)
	m.watchUser(s)

	lookup := m.lookups.Lookup(key, conf.LookupTimeout)
	if !s.startLookup(lookup) {
		lookup.Cancel()
		return s.user
	}

	m.logger.Debug().Str("key", key.Short()).Msg("put: lookup started")

	lookup.AddListener(func(res types.LookupResult, err error) {
		m.lookupDone(s, res, err, value, conf)
	})

	return s.user
}

// PutTo stores the value on the given contacts, without a lookup. The
// Lookup field of the result is nil.
func (m *Manager) PutTo(contacts []types.Contact, key types.KUID, value types.Value,
	conf peer.PutConfig) *future.Future[types.PutResult] {

	conf = conf.Merge(m.conf.PutDefaults)
	s := newPutState(key)
	m.watchUser(s)

	proc := m.newStoreProcess(contacts, key, value, conf)
	proc.halted = s.user.IsDone
	if !s.startStore(phaseInit, nil, proc.res) {
		return s.user
	}

	proc.res.AddListener(func(res types.StoreResult, err error) {
		m.storeDone(s, res, err)
	})
	proc.start()

	return s.user
}

func (m *Manager) watchUser(s *putState) {
	s.user.AddListener(func(_ types.PutResult, _ error) {
		if !s.user.IsCancelled() {
			return
		}

		lookup, store := s.cancel()
		if lookup != nil {
			lookup.Cancel()
		}
		if store != nil {
			store.Cancel()
		}
	})
}

func (m *Manager) lookupDone(s *putState, res types.LookupResult, err error, value types.Value,
	conf peer.PutConfig) {

	if err != nil {
		if !s.finish(phaseLookup) {
			return
		}

		if xerrors.Is(err, future.ErrCancelled) {
			s.user.Cancel()
			return
		}

		m.logger.Debug().Err(err).Str("key", s.key.Short()).Msg("put: lookup failed")
		s.user.SetError(xerrors.Errorf("put %s: %w", s.key.Short(), err))
		return
	}

	proc := m.newStoreProcess(res.Contacts, s.key, value, conf)
	proc.halted = s.user.IsDone
	if !s.startStore(phaseLookup, &res, proc.res) {
		return
	}

	m.logger.Debug().Str("key", s.key.Short()).Int("contacts", len(res.Contacts)).
		Msg("put: store started")

	proc.res.AddListener(func(res types.StoreResult, err error) {
		m.storeDone(s, res, err)
	})
	proc.start()
}

func (m *Manager) storeDone(s *putState, res types.StoreResult, err error) {
	if !s.finish(phaseStore) {
		return
	}

	if xerrors.Is(err, future.ErrCancelled) {
		s.user.Cancel()
		return
	}

	result := types.PutResult{
		Key:    s.key,
		Lookup: s.lookupResult(),
		Store:  &res,
	}

	if err != nil {
		m.logger.Debug().Err(err).Str("key", s.key.Short()).Msg("put: store failed")
		s.user.Set(result, xerrors.Errorf("put %s: %w", s.key.Short(), err))
		return
	}

	m.logger.Debug().Str("key", s.key.Short()).Int("stored", res.Count(types.StoreStored)).
		Msg("put: done")
	s.user.SetValue(result)
}
