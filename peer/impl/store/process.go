package store

import (
	"context"
	"sync"
	"time"

	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/dispatcher"
	"go.dedis.ch/kdht/types"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

// storeProcess sends a STORE to a set of contacts, at most Parallelism at a
// time, and completes once every contact has a final outcome.
type storeProcess struct {
	m        *Manager
	key      types.KUID
	value    types.Value
	conf     peer.PutConfig
	contacts []types.Contact
	res      *future.Future[types.StoreResult]

	// halted, when set, stops the process from sending more requests
	halted func() bool

	sem       *semaphore.Weighted
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	sync.Mutex
	outcomes  []types.StoreOutcome
	inflight  map[int]types.MessageID
	remaining int
}

func (m *Manager) newStoreProcess(contacts []types.Contact, key types.KUID, value types.Value,
	conf peer.PutConfig) *storeProcess {

	contacts = m.targets(contacts)
	ctx, cancel := context.WithCancel(context.Background())

	parallelism := conf.Parallelism
	if parallelism == 0 {
		parallelism = 1
	}

	return &storeProcess{
		m:         m,
		key:       key,
		value:     value,
		conf:      conf,
		contacts:  contacts,
		res:       future.New[types.StoreResult](),
		sem:       semaphore.NewWeighted(int64(parallelism)),
		ctx:       ctx,
		cancel:    cancel,
		outcomes:  make([]types.StoreOutcome, len(contacts)),
		inflight:  make(map[int]types.MessageID),
		remaining: len(contacts),
	}
}

// targets removes the local node and duplicates, and keeps at most K
// contacts.
func (m *Manager) targets(contacts []types.Contact) []types.Contact {
	self := m.factory.Self()
	seen := make(map[string]struct{}, len(contacts))
	res := make([]types.Contact, 0, len(contacts))

	for _, c := range contacts {
		if c.Address == "" || c.Address == self.Address {
			continue
		}
		if !c.ID.IsZero() && c.ID == self.ID {
			continue
		}

		_, ok := seen[c.Address]
		if ok {
			continue
		}
		seen[c.Address] = struct{}{}

		res = append(res, c)
	}

	k := int(m.conf.K)
	if k > 0 && len(res) > k {
		res = res[:k]
	}
	return res
}

func (p *storeProcess) start() {
	p.startedAt = p.m.clock.Now()

	if len(p.contacts) == 0 {
		p.cancel()
		p.res.Set(types.StoreResult{Key: p.key}, ErrNoContacts)
		return
	}

	p.res.AddListener(func(_ types.StoreResult, _ error) {
		if p.res.IsCancelled() {
			p.abort()
		}
	})

	go p.feed()
}

func (p *storeProcess) feed() {
	for i, c := range p.contacts {
		err := p.sem.Acquire(p.ctx, 1)
		if err == nil && p.ctx.Err() != nil {
			p.sem.Release(1)
			err = p.ctx.Err()
		}
		if err != nil {
			p.cancelFrom(i)
			return
		}

		if !p.send(i, c) {
			p.cancelFrom(i)
			return
		}
	}
}

// cancelFrom gives a cancelled outcome to the contacts from index i on,
// which were never sent a request.
func (p *storeProcess) cancelFrom(i int) {
	for j := i; j < len(p.contacts); j++ {
		p.finish(j, types.StoreOutcome{
			Contact: p.contacts[j],
			State:   types.StoreCancelled,
			Err:     future.ErrCancelled,
		})
	}
}

// send sends the STORE to the i-th contact. It returns false without
// sending if the process was halted, in which case the semaphore slot is
// released.
func (p *storeProcess) send(i int, dest types.Contact) bool {
	msg := p.m.factory.CreateStoreRequest(dest, p.key, p.value)
	id := msg.GetHeader().MessageID

	if p.halted != nil && p.halted() {
		p.sem.Release(1)
		return false
	}

	p.Lock()
	p.inflight[i] = id
	p.Unlock()

	err := p.m.requester.SendRequest(dest, msg, p.conf.StoreTimeout, func(o dispatcher.Outcome) {
		p.sem.Release(1)
		p.finish(i, toStoreOutcome(dest, o))
	})

	var ioErr *dispatcher.IOError
	switch {
	case err == nil:
		// cancelled while the request was being registered
		if p.ctx.Err() != nil {
			p.m.requester.Cancel(id)
		}
	case xerrors.As(err, &ioErr):
		// the callback already got the failure
	default:
		p.sem.Release(1)
		p.finish(i, types.StoreOutcome{Contact: dest, State: types.StoreFailed, Err: err})
	}
	return true
}

func toStoreOutcome(dest types.Contact, o dispatcher.Outcome) types.StoreOutcome {
	res := types.StoreOutcome{
		Contact: dest,
		RTT:     o.RTT,
		Err:     o.Err,
	}

	switch o.Kind {
	case dispatcher.OutcomeResponse:
		resp, ok := o.Response.(*types.StoreResponse)
		if !ok {
			res.State = types.StoreFailed
			res.Err = xerrors.Errorf("wrong type: %T", o.Response)
			break
		}

		res.Status = resp.Status
		res.State = types.StoreStored
		if resp.Status != types.StoreOK {
			res.State = types.StoreRejected
		}
		if !resp.Header.Contact.ID.IsZero() {
			res.Contact = resp.Header.Contact
		}
	case dispatcher.OutcomeTimeout:
		res.State = types.StoreTimedOut
	case dispatcher.OutcomeCancelled:
		res.State = types.StoreCancelled
	default:
		res.State = types.StoreFailed
	}

	return res
}

func (p *storeProcess) finish(i int, outcome types.StoreOutcome) {
	p.Lock()
	p.outcomes[i] = outcome
	delete(p.inflight, i)
	p.remaining--
	done := p.remaining == 0
	p.Unlock()

	if done {
		p.complete()
	}
}

func (p *storeProcess) complete() {
	p.cancel()

	p.Lock()
	outcomes := append([]types.StoreOutcome{}, p.outcomes...)
	p.Unlock()

	result := types.StoreResult{
		Key:      p.key,
		Outcomes: outcomes,
		Elapsed:  p.m.clock.Since(p.startedAt),
	}

	if result.Count(types.StoreStored) == 0 {
		p.res.Set(result, ErrStoreFailed)
		return
	}

	p.res.SetValue(result)
}

// abort stops sending and cancels the requests in flight.
func (p *storeProcess) abort() {
	p.cancel()

	p.Lock()
	ids := make([]types.MessageID, 0, len(p.inflight))
	for _, id := range p.inflight {
		ids = append(ids, id)
	}
	p.Unlock()

	for _, id := range ids {
		p.m.requester.Cancel(id)
	}

	p.m.logger.Debug().Str("key", p.key.Short()).Int("inflight", len(ids)).Msg("store cancelled")
}
