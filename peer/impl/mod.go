package impl

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/daemon"
	"go.dedis.ch/kdht/peer/impl/dispatcher"
	"go.dedis.ch/kdht/peer/impl/handler"
	"go.dedis.ch/kdht/peer/impl/lookup"
	"go.dedis.ch/kdht/peer/impl/message"
	"go.dedis.ch/kdht/peer/impl/ping"
	"go.dedis.ch/kdht/peer/impl/routing"
	"go.dedis.ch/kdht/peer/impl/store"
	"go.dedis.ch/kdht/storage/inmemory"
	"go.dedis.ch/kdht/types"
)

// node implements a peer of the DHT
//
// - implements peer.Peer
type node struct {
	conf       *peer.Configuration
	factory    *message.Factory
	dispatcher *dispatcher.Dispatcher
	table      *routing.Table
	handler    *handler.Handler
	lookups    *lookup.Manager
	stores     *store.Manager
	pings      *ping.Manager
	daemon     *daemon.Daemon
}

// NewPeer creates a new peer. Zero fields of the configuration are set to
// their default.
func NewPeer(conf peer.Configuration) peer.Peer {
	setDefaults(&conf)

	factory := message.NewFactory(&conf)
	disp := dispatcher.NewDispatcher(&conf, factory)
	table := routing.NewTable(factory.Self(), int(conf.K), conf.Clock)

	lookups := lookup.NewManager(&conf, disp, factory, table)
	stores := store.NewManager(&conf, disp, factory, lookups)
	pings := ping.NewManager(&conf, disp, factory, table, lookups)

	h := handler.NewHandler(&conf, disp, factory, table, stores)
	h.Register()

	n := node{
		conf:       &conf,
		factory:    factory,
		dispatcher: disp,
		table:      table,
		handler:    h,
		lookups:    lookups,
		stores:     stores,
		pings:      pings,
		daemon:     daemon.NewDaemon(&conf, table, lookups, stores),
	}

	return &n
}

func setDefaults(conf *peer.Configuration) {
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	if conf.NodeID.IsZero() {
		conf.NodeID = types.RandomKUID()
	}
	if conf.Storage == nil {
		conf.Storage = inmemory.NewDatabase(0)
	}
	if conf.K == 0 {
		conf.K = 20
	}
	if conf.Alpha == 0 {
		conf.Alpha = 3
	}
	if conf.RequestTimeout == 0 {
		conf.RequestTimeout = time.Second * 5
	}
	if conf.ResponseHistorySize == 0 {
		conf.ResponseHistorySize = dispatcher.DefaultHistorySize
	}
	if conf.ListenerQueueSize == 0 {
		conf.ListenerQueueSize = dispatcher.DefaultListenerQueueSize
	}
	if conf.BackoffBootstrap == (peer.Backoff{}) {
		conf.BackoffBootstrap = peer.Backoff{Initial: time.Second, Factor: 2, Retry: 4}
	}

	conf.PutDefaults = conf.PutDefaults.Merge(peer.PutConfig{
		LookupTimeout: time.Second * 30,
		StoreTimeout:  conf.RequestTimeout,
		Parallelism:   conf.K,
	})
}

// Start implements peer.Service
func (n *node) Start() error {
	zerolog.SetGlobalLevel(n.conf.LogLevel)

	err := n.dispatcher.Bind(n.conf.Socket)
	if err != nil {
		return err
	}

	return n.daemon.Start()
}

// Stop implements peer.Service
func (n *node) Stop() error {
	err := n.daemon.Stop()
	if err != nil {
		return err
	}

	return n.dispatcher.Close()
}

// GetAddr implements peer.Service
func (n *node) GetAddr() string {
	return n.conf.Socket.GetAddress()
}

// GetContact implements peer.Service
func (n *node) GetContact() types.Contact {
	return n.factory.Self()
}

// GetRoutingTable implements peer.Service
func (n *node) GetRoutingTable() []types.Contact {
	return n.table.Contacts()
}

// Bootstrap implements peer.DHT
func (n *node) Bootstrap(addr string) error {
	return n.pings.Bootstrap(addr)
}

// Ping implements peer.DHT
func (n *node) Ping(addr string) *future.Future[types.PingResult] {
	return n.pings.Ping(addr)
}

// Lookup implements peer.DHT
func (n *node) Lookup(key types.KUID) *future.Future[types.LookupResult] {
	return n.lookups.Lookup(key, n.conf.PutDefaults.LookupTimeout)
}

// Get implements peer.DHT
func (n *node) Get(key types.KUID) *future.Future[types.ValueResult] {
	return n.lookups.Get(key, n.conf.PutDefaults.LookupTimeout)
}

// Put implements peer.DHT
func (n *node) Put(key types.KUID, value types.Value, conf peer.PutConfig) *future.Future[types.PutResult] {
	return n.stores.Put(key, value, conf)
}

// PutTo implements peer.DHT
func (n *node) PutTo(contacts []types.Contact, key types.KUID, value types.Value,
	conf peer.PutConfig) *future.Future[types.PutResult] {

	return n.stores.PutTo(contacts, key, value, conf)
}

// GetLocalValues implements peer.DHT
func (n *node) GetLocalValues() []types.ValueTuple {
	return n.conf.Storage.Values()
}

// AddMessageListener registers a listener of the messages sent and received
// by the node.
func (n *node) AddMessageListener(l dispatcher.MessageListener) {
	n.dispatcher.AddMessageListener(l)
}
