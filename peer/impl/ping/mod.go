package ping

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
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

// Requester sends requests and cancels them.
type Requester interface {
	SendRequest(dest types.Contact, msg types.RPCMessage, timeout time.Duration, cb dispatcher.Callback) error
	Cancel(id types.MessageID) bool
}

// Lookuper finds the closest nodes to a key.
type Lookuper interface {
	Lookup(key types.KUID, timeout time.Duration) *future.Future[types.LookupResult]
}

// NewManager returns a new ping manager.
func NewManager(conf *peer.Configuration, requester Requester, factory *message.Factory,
	table *routing.Table, lookups Lookuper) *Manager {

	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		conf:      conf,
		requester: requester,
		factory:   factory,
		table:     table,
		lookups:   lookups,
		clock:     clk,
		logger: log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().
			Str("node", conf.NodeID.Short()).Str("module", "ping").Logger(),
	}
}

// Manager pings nodes and bootstraps the local node into a network.
type Manager struct {
	conf      *peer.Configuration
	requester Requester
	factory   *message.Factory
	table     *routing.Table
	lookups   Lookuper
	clock     clock.Clock
	logger    zerolog.Logger
}

// Ping sends a PING to addr. A node that answers is added to the routing
// table.
func (m *Manager) Ping(addr string) *future.Future[types.PingResult] {
	res := future.New[types.PingResult]()

	dest := types.Contact{Address: addr}
	msg := m.factory.CreatePingRequest(dest)
	id := msg.GetHeader().MessageID

	res.AddListener(func(_ types.PingResult, _ error) {
		if res.IsCancelled() {
			m.requester.Cancel(id)
		}
	})

	err := m.requester.SendRequest(dest, msg, m.conf.RequestTimeout, func(o dispatcher.Outcome) {
		if o.Kind != dispatcher.OutcomeResponse {
			res.SetError(xerrors.Errorf("ping %s: %w", addr, o.Err))
			return
		}

		contact := o.Response.GetHeader().Contact
		contact.Address = addr
		m.table.Add(contact)

		res.SetValue(types.PingResult{Contact: contact, RTT: o.RTT})
	})
	if err != nil {
		res.SetError(xerrors.Errorf("ping %s: %w", addr, err))
	}

	return res
}

// Bootstrap joins the network through the node at addr. The node is pinged
// with an exponential backoff, then a lookup of the local ID fills the
// routing table.
func (m *Manager) Bootstrap(addr string) error {
	op := func() error {
		_, err := m.Ping(addr).Get(context.Background())
		return err
	}

	notify := func(err error, next time.Duration) {
		m.logger.Info().Err(err).Str("addr", addr).Dur("retry in", next).Msg("bootstrap ping failed")
	}

	err := backoff.RetryNotify(op, newBackoff(m.conf.BackoffBootstrap), notify)
	if err != nil {
		return xerrors.Errorf("failed to reach bootstrap node: %v", err)
	}

	_, err = m.lookups.Lookup(m.conf.NodeID, m.conf.PutDefaults.LookupTimeout).Get(context.Background())
	if err != nil {
		return xerrors.Errorf("failed to look up self: %v", err)
	}

	m.logger.Info().Str("addr", addr).Int("contacts", m.table.Len()).Msg("bootstrapped")
	return nil
}

// newBackoff waits Initial, then multiplies the wait by Factor, for at most
// Retry retries.
func newBackoff(conf peer.Backoff) backoff.BackOff {
	longest := conf.Initial
	for i := uint(0); i < conf.Retry; i++ {
		longest *= time.Duration(conf.Factor)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = conf.Initial
	b.Multiplier = float64(conf.Factor)
	b.RandomizationFactor = 0
	b.MaxInterval = longest
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithMaxRetries(b, uint64(conf.Retry))
}
