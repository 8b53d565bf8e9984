// Package testing provides the helpers used to run DHT nodes in tests.
package testing

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/registry/standard"
	"go.dedis.ch/kdht/storage"
	"go.dedis.ch/kdht/storage/inmemory"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
)

// TestNode is a started node with access to its socket.
type TestNode struct {
	peer.Peer
	config configTemplate
	socket transport.ClosableSocket
}

// GetIns returns the packets received by the node.
func (t TestNode) GetIns() []transport.Packet {
	return t.socket.GetIns()
}

// GetOuts returns the packets sent by the node.
func (t TestNode) GetOuts() []transport.Packet {
	return t.socket.GetOuts()
}

// GetStorage returns the database of the node.
func (t TestNode) GetStorage() storage.Database {
	return t.config.storage
}

// Option is the type of the options of NewTestNode.
type Option func(*configTemplate)

type configTemplate struct {
	nodeID            types.KUID
	clock             clock.Clock
	storage           storage.Database
	k                 uint
	alpha             uint
	requestTimeout    time.Duration
	putDefaults       peer.PutConfig
	historySize       uint
	listenerQueueSize uint
	refreshInterval   time.Duration
	republishInterval time.Duration
	storeForward      bool
	backoff           peer.Backoff
	logLevel          zerolog.Level
	autoStart         bool
}

func newConfigTemplate() configTemplate {
	return configTemplate{
		storage:        inmemory.NewDatabase(0),
		k:              20,
		alpha:          3,
		requestTimeout: time.Second,
		putDefaults: peer.PutConfig{
			LookupTimeout: time.Second * 10,
			StoreTimeout:  time.Second,
		},
		storeForward: true,
		backoff: peer.Backoff{
			Initial: time.Millisecond * 100,
			Factor:  2,
			Retry:   3,
		},
		logLevel:  zerolog.InfoLevel,
		autoStart: true,
	}
}

// WithNodeID sets the node ID.
func WithNodeID(id types.KUID) Option {
	return func(ct *configTemplate) {
		ct.nodeID = id
	}
}

// WithClock sets the clock of the node.
func WithClock(clk clock.Clock) Option {
	return func(ct *configTemplate) {
		ct.clock = clk
	}
}

// WithStorage sets the database of the node.
func WithStorage(db storage.Database) Option {
	return func(ct *configTemplate) {
		ct.storage = db
	}
}

// WithK sets the bucket size and replication factor.
func WithK(k uint) Option {
	return func(ct *configTemplate) {
		ct.k = k
	}
}

// WithAlpha sets the lookup parallelism.
func WithAlpha(alpha uint) Option {
	return func(ct *configTemplate) {
		ct.alpha = alpha
	}
}

// WithRequestTimeout sets the timeout of every request.
func WithRequestTimeout(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.requestTimeout = d
	}
}

// WithPutDefaults sets the defaults of Put and PutTo.
func WithPutDefaults(conf peer.PutConfig) Option {
	return func(ct *configTemplate) {
		ct.putDefaults = conf
	}
}

// WithResponseHistorySize sets the number of response ids remembered.
func WithResponseHistorySize(n uint) Option {
	return func(ct *configTemplate) {
		ct.historySize = n
	}
}

// WithListenerQueueSize sets the number of buffered message events.
func WithListenerQueueSize(n uint) Option {
	return func(ct *configTemplate) {
		ct.listenerQueueSize = n
	}
}

// WithRefresh sets the bucket refresh interval.
func WithRefresh(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.refreshInterval = d
	}
}

// WithRepublish sets the republish interval.
func WithRepublish(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.republishInterval = d
	}
}

// WithStoreForward enables or disables store forwarding.
func WithStoreForward(enabled bool) Option {
	return func(ct *configTemplate) {
		ct.storeForward = enabled
	}
}

// WithBootstrapBackoff sets the backoff of Bootstrap.
func WithBootstrapBackoff(b peer.Backoff) Option {
	return func(ct *configTemplate) {
		ct.backoff = b
	}
}

// WithLogLevel sets the global log level.
func WithLogLevel(level zerolog.Level) Option {
	return func(ct *configTemplate) {
		ct.logLevel = level
	}
}

// WithAutostart sets whether the node is started by NewTestNode.
func WithAutostart(autostart bool) Option {
	return func(ct *configTemplate) {
		ct.autoStart = autostart
	}
}

// NewTestNode returns a new node created with the factory and bound on addr.
// The node is started unless WithAutostart(false) is given.
func NewTestNode(t require.TestingT, f peer.Factory, trans transport.Transport,
	addr string, opts ...Option) TestNode {

	template := newConfigTemplate()
	for _, opt := range opts {
		opt(&template)
	}

	socket, err := trans.CreateSocket(addr)
	require.NoError(t, err)

	config := peer.Configuration{
		Socket:              socket,
		MessageRegistry:     standard.NewRegistry(),
		Storage:             template.storage,
		Clock:               template.clock,
		NodeID:              template.nodeID,
		K:                   template.k,
		Alpha:               template.alpha,
		RequestTimeout:      template.requestTimeout,
		PutDefaults:         template.putDefaults,
		ResponseHistorySize: template.historySize,
		ListenerQueueSize:   template.listenerQueueSize,
		RefreshInterval:     template.refreshInterval,
		RepublishInterval:   template.republishInterval,
		StoreForward:        template.storeForward,
		BackoffBootstrap:    template.backoff,
		LogLevel:            template.logLevel,
	}

	node := f(config)

	if template.autoStart {
		require.NoError(t, node.Start())
	}

	return TestNode{
		Peer:   node,
		config: template,
		socket: socket,
	}
}

// StopNodes stops every node, for use with defer.
func StopNodes(t *testing.T, nodes ...TestNode) {
	for _, n := range nodes {
		require.NoError(t, n.Stop())
	}
}
