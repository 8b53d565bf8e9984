package daemon

import (
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/routing"
	"go.dedis.ch/kdht/types"
)

// Lookuper finds the closest nodes to a key.
type Lookuper interface {
	Lookup(key types.KUID, timeout time.Duration) *future.Future[types.LookupResult]
}

// Putter stores values on the closest nodes.
type Putter interface {
	Put(key types.KUID, value types.Value, conf peer.PutConfig) *future.Future[types.PutResult]
}

// NewDaemon returns the daemons of a node. They start with Start.
func NewDaemon(conf *peer.Configuration, table *routing.Table, lookups Lookuper, puts Putter) *Daemon {
	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Daemon{
		conf:    conf,
		table:   table,
		lookups: lookups,
		puts:    puts,
		clock:   clk,
		logger: log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().
			Str("node", conf.NodeID.Short()).Str("module", "daemon").Logger(),
	}
}

// Daemon runs the periodic tasks of a node: the refresh of the buckets that
// were not looked up recently, and the republishing of the local values.
type Daemon struct {
	conf    *peer.Configuration
	table   *routing.Table
	lookups Lookuper
	puts    Putter
	clock   clock.Clock
	logger  zerolog.Logger

	sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Start starts the daemons whose interval is not 0.
func (d *Daemon) Start() error {
	d.Lock()
	defer d.Unlock()

	if d.stopChan != nil {
		return nil
	}
	d.stopChan = make(chan struct{})

	d.run(d.conf.RefreshInterval, d.refresh)
	d.run(d.conf.RepublishInterval, d.republish)

	return nil
}

// Stop stops the daemons and waits for them to return.
func (d *Daemon) Stop() error {
	d.Lock()
	stop := d.stopChan
	d.stopChan = nil
	d.Unlock()

	if stop == nil {
		return nil
	}

	close(stop)
	d.wg.Wait()

	return nil
}

func (d *Daemon) run(interval time.Duration, task func()) {
	if interval == 0 {
		/* the daemon is disabled */
		return
	}

	stop := d.stopChan
	ticker := d.clock.Ticker(interval)
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

// refresh looks up a random key in every bucket not touched for a refresh
// interval.
func (d *Daemon) refresh() {
	self := d.table.Self().ID

	for _, i := range d.table.StaleBuckets(d.conf.RefreshInterval) {
		i := i
		key := self.RandomWithPrefix(i)

		d.logger.Debug().Int("bucket", i).Str("key", key.Short()).Msg("refresh")

		d.lookups.Lookup(key, d.conf.PutDefaults.LookupTimeout).AddListener(
			func(_ types.LookupResult, err error) {
				if err != nil {
					d.logger.Debug().Err(err).Int("bucket", i).Msg("refresh failed")
				}
			})
	}
}

// republish puts again every local value, so that it reaches the nodes that
// are currently the closest to its key.
func (d *Daemon) republish() {
	for _, tuple := range d.conf.Storage.Values() {
		key := tuple.Key

		d.puts.Put(key, tuple.Value, peer.PutConfig{}).AddListener(func(res types.PutResult, err error) {
			if err != nil {
				d.logger.Debug().Err(err).Str("key", key.Short()).Msg("republish failed")
				return
			}
			d.logger.Debug().Str("key", key.Short()).Int("stored", res.Store.Count(types.StoreStored)).
				Msg("republished")
		})
	}
}
