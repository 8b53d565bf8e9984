package lookup

import (
	"errors"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/dispatcher"
	"go.dedis.ch/kdht/peer/impl/message"
	"go.dedis.ch/kdht/peer/impl/routing"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

var (
	// ErrNoContacts is returned when the routing table holds no contact to
	// start from.
	ErrNoContacts = xerrors.New("no contacts to query")

	// ErrNoResponse is returned when no queried contact answered.
	ErrNoResponse = xerrors.New("no contact answered")

	// ErrLookupTimeout is returned when the lookup doesn't converge in time.
	ErrLookupTimeout = xerrors.New("lookup timed out")

	// ErrValueNotFound is returned by Get when no node stores the value.
	ErrValueNotFound = xerrors.New("value not found")
)

// Requester sends requests and cancels them.
type Requester interface {
	SendRequest(dest types.Contact, msg types.RPCMessage, timeout time.Duration, cb dispatcher.Callback) error
	Cancel(id types.MessageID) bool
}

// NewManager returns a new lookup manager.
func NewManager(conf *peer.Configuration, requester Requester, factory *message.Factory,
	table *routing.Table) *Manager {

	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		conf:      conf,
		requester: requester,
		factory:   factory,
		table:     table,
		clock:     clk,
		k:         int(conf.K),
		alpha:     int(conf.Alpha),
		logger: log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().
			Str("node", conf.NodeID.Short()).Str("module", "lookup").Logger(),
	}
}

// Manager runs iterative FIND_NODE and FIND_VALUE lookups.
type Manager struct {
	conf      *peer.Configuration
	requester Requester
	factory   *message.Factory
	table     *routing.Table
	clock     clock.Clock
	k         int
	alpha     int
	logger    zerolog.Logger
}

// Lookup finds the k closest nodes to key that answer. Cancelling the
// returned future cancels the requests in flight.
func (m *Manager) Lookup(key types.KUID, timeout time.Duration) *future.Future[types.LookupResult] {
	res := future.New[types.LookupResult]()
	stop := stopOnCancel(res)

	m.table.Touch(key)

	go func() {
		start := m.clock.Now()
		p := m.newProcess(key, false, timeout)

		_, err := p.run(stop)
		if err != nil {
			m.logger.Debug().Err(err).Str("key", key.Short()).Msg("lookup failed")
			res.SetError(xerrors.Errorf("lookup %s: %w", key.Short(), err))
			return
		}

		result := p.lookupResult(m.clock.Since(start))
		m.logger.Debug().Str("key", key.Short()).Int("contacts", len(result.Contacts)).
			Int("hops", result.Hops).Msg("lookup done")
		res.SetValue(result)
	}()

	return res
}

// Get finds a value stored under key. The local database is checked first.
func (m *Manager) Get(key types.KUID, timeout time.Duration) *future.Future[types.ValueResult] {
	if m.conf.Storage != nil {
		tuple, ok := m.conf.Storage.Get(key)
		if ok {
			return future.Completed(types.ValueResult{
				Key:    key,
				Value:  tuple,
				Source: m.table.Self(),
			}, nil)
		}
	}

	res := future.New[types.ValueResult]()
	stop := stopOnCancel(res)

	m.table.Touch(key)

	go func() {
		start := m.clock.Now()
		p := m.newProcess(key, true, timeout)

		found, err := p.run(stop)
		if err == nil && found == nil {
			err = ErrValueNotFound
		}
		if errors.Is(err, ErrNoResponse) {
			err = ErrValueNotFound
		}
		if err != nil {
			res.SetError(xerrors.Errorf("get %s: %w", key.Short(), err))
			return
		}

		hops := p.seen[found.Header.Contact.ID]
		result := types.ValueResult{
			Key:     key,
			Value:   found.Value,
			Source:  found.Header.Contact,
			Elapsed: m.clock.Since(start),
		}
		if hops != nil {
			result.Hops = hops.hop
		}
		res.SetValue(result)
	}()

	return res
}

// stopOnCancel returns a channel closed when the future is cancelled.
func stopOnCancel[T any](f *future.Future[T]) <-chan struct{} {
	stop := make(chan struct{})
	f.AddListener(func(_ T, err error) {
		if errors.Is(err, future.ErrCancelled) && f.IsCancelled() {
			close(stop)
		}
	})
	return stop
}
