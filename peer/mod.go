package peer

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"go.dedis.ch/kdht/registry"
	"go.dedis.ch/kdht/storage"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
)

// Peer defines the interface of a node of the DHT. It embeds all the
// interfaces that will have to be implemented.
type Peer interface {
	Service
	DHT
}

// Factory is the type of function we are using to create new instances of
// peers.
type Factory func(Configuration) Peer

// Configuration is the struct that contains the configuration argument when
// creating a peer.
type Configuration struct {
	Socket          transport.Socket
	MessageRegistry registry.Registry

	// Storage holds the values this node is responsible for.
	Storage storage.Database

	// Clock drives every timer of the node: request timeouts and daemons.
	// Tests use a mock clock.
	// Default: clock.New()
	Clock clock.Clock

	// NodeID is the identifier of the node in the key space.
	// Default: random
	NodeID types.KUID

	// InstanceID distinguishes two runs of a node with the same NodeID.
	// Default: 0
	InstanceID int

	// K is the bucket size and the replication factor, i.e. the number of
	// contacts a lookup returns and a put stores to.
	// Default: 20
	K uint

	// Alpha is the number of requests a lookup keeps in flight.
	// Default: 3
	Alpha uint

	// RequestTimeout is the time after which an unanswered request is
	// considered lost. It must be > 0.
	// Default: 5s
	RequestTimeout time.Duration

	// PutDefaults is used for any zero field of the PutConfig given to Put or
	// PutTo.
	// Default: {30s 5s K}
	PutDefaults PutConfig

	// ResponseHistorySize is the number of response MessageIDs remembered to
	// reject replayed responses.
	// Default: 512
	ResponseHistorySize uint

	// ListenerQueueSize is the number of message events buffered for message
	// listeners. Events are dropped when the queue is full.
	// Default: 256
	ListenerQueueSize uint

	// RefreshInterval is the interval at which buckets that have not been
	// looked up recently are refreshed. 0 disables the refresh.
	// Default: 0
	RefreshInterval time.Duration

	// RepublishInterval is the interval at which locally stored values are
	// stored again to the current closest nodes. 0 disables republishing.
	// Default: 0
	RepublishInterval time.Duration

	// StoreForward enables forwarding stored values to newly discovered
	// nodes that are closer to their key.
	// Default: true
	StoreForward bool

	// Backoff parameters used to ping the bootstrap node.
	// Default: {1s 2 4}
	BackoffBootstrap Backoff

	// LogLevel is the global log level set when the peer starts.
	// Default: zerolog.InfoLevel
	LogLevel zerolog.Level
}

// PutConfig configures a put: a lookup followed by a store.
type PutConfig struct {
	// LookupTimeout bounds the whole lookup phase. 0 means the configuration
	// default.
	LookupTimeout time.Duration

	// StoreTimeout bounds each STORE request. 0 means the configuration
	// default.
	StoreTimeout time.Duration

	// Parallelism is the number of STORE requests in flight. 0 means the
	// configuration default.
	Parallelism uint
}

// Merge returns the config where every zero field is taken from defaults.
func (p PutConfig) Merge(defaults PutConfig) PutConfig {
	if p.LookupTimeout == 0 {
		p.LookupTimeout = defaults.LookupTimeout
	}
	if p.StoreTimeout == 0 {
		p.StoreTimeout = defaults.StoreTimeout
	}
	if p.Parallelism == 0 {
		p.Parallelism = defaults.Parallelism
	}
	return p
}

// Backoff describes parameters for a backoff algorithm. The initial time must
// be multiplied by "factor" a maximum of "retry" time.
//
//	for i := 0; i < retry; i++ {
//	  wait(initial)
//	  initial *= factor
//	}
type Backoff struct {
	Initial time.Duration
	Factor  uint
	Retry   uint
}
