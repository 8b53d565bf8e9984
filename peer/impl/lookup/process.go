package lookup

import (
	"errors"
	"sort"
	"time"

	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer/impl/dispatcher"
	"go.dedis.ch/kdht/types"
)

type candidateState uint8

const (
	fresh candidateState = iota
	inflight
	responded
	failed
)

type candidate struct {
	contact types.Contact
	state   candidateState
	hop     int
}

type result struct {
	id      types.MessageID
	cand    *candidate
	outcome dispatcher.Outcome
}

// process is one iterative lookup. It is driven by a single goroutine; the
// dispatcher callbacks only hand outcomes over through the results channel.
type process struct {
	m         *Manager
	key       types.KUID
	findValue bool
	timeout   time.Duration

	candidates []*candidate
	seen       map[types.KUID]*candidate
	pending    map[types.MessageID]*candidate
	queried    int

	// at most alpha outcomes can be waiting, one per request in flight
	results chan result
	done    chan struct{}
}

func (m *Manager) newProcess(key types.KUID, findValue bool, timeout time.Duration) *process {
	p := &process{
		m:         m,
		key:       key,
		findValue: findValue,
		timeout:   timeout,
		seen:      map[types.KUID]*candidate{},
		pending:   map[types.MessageID]*candidate{},
		results:   make(chan result, m.alpha),
		done:      make(chan struct{}),
	}

	p.learn(m.table.SelectClosest(key, m.k), 1)
	return p
}

// run iterates until the k closest candidates answered, the timeout expires,
// stop is closed, or, for a value lookup, a value is found.
func (p *process) run(stop <-chan struct{}) (*types.ValueResponse, error) {
	defer p.cleanup()

	if len(p.candidates) == 0 {
		return nil, ErrNoContacts
	}

	timer := p.m.clock.Timer(p.timeout)
	defer timer.Stop()

	for {
		p.fill()
		if len(p.pending) == 0 {
			break
		}

		select {
		case r := <-p.results:
			delete(p.pending, r.id)
			found := p.handle(r)
			if found != nil {
				return found, nil
			}
		case <-timer.C:
			return nil, ErrLookupTimeout
		case <-stop:
			return nil, future.ErrCancelled
		}
	}

	if len(p.closestResponded()) == 0 {
		return nil, ErrNoResponse
	}
	return nil, nil
}

// fill sends requests until alpha are in flight or no candidate is left
// among the k closest.
func (p *process) fill() {
	for len(p.pending) < p.m.alpha {
		c := p.next()
		if c == nil {
			return
		}
		p.query(c)
	}
}

func (p *process) next() *candidate {
	alive := 0
	for _, c := range p.candidates {
		if c.state == failed {
			continue
		}
		if alive >= p.m.k {
			return nil
		}
		alive++
		if c.state == fresh {
			return c
		}
	}
	return nil
}

func (p *process) query(c *candidate) {
	var msg types.RPCMessage
	if p.findValue {
		msg = p.m.factory.CreateValueRequest(c.contact, p.key)
	} else {
		msg = p.m.factory.CreateNodeRequest(c.contact, p.key)
	}

	id := msg.GetHeader().MessageID
	c.state = inflight
	p.pending[id] = c
	p.queried++

	err := p.m.requester.SendRequest(c.contact, msg, p.m.conf.RequestTimeout, func(o dispatcher.Outcome) {
		select {
		case p.results <- result{id: id, cand: c, outcome: o}:
		case <-p.done:
		}
	})
	if err == nil {
		return
	}

	var ioErr *dispatcher.IOError
	if errors.As(err, &ioErr) {
		// the failure is also delivered to the callback
		return
	}

	p.m.logger.Warn().Err(err).Str("to", c.contact.Address).Msg("failed to send lookup request")
	delete(p.pending, id)
	c.state = failed
}

func (p *process) handle(r result) *types.ValueResponse {
	c := r.cand

	if r.outcome.Kind != dispatcher.OutcomeResponse {
		c.state = failed
		if r.outcome.Kind == dispatcher.OutcomeTimeout {
			p.m.table.Remove(c.contact.ID)
		}
		return nil
	}

	c.state = responded
	p.m.table.Add(r.outcome.Response.GetHeader().Contact)

	switch resp := r.outcome.Response.(type) {
	case *types.NodeResponse:
		p.learn(resp.Contacts, c.hop+1)
	case *types.ValueResponse:
		if resp.Found {
			return resp
		}
		p.learn(resp.Contacts, c.hop+1)
	}

	return nil
}

// learn adds unknown contacts to the candidates, keeping them sorted by
// distance to the key.
func (p *process) learn(contacts []types.Contact, hop int) {
	self := p.m.table.Self().ID

	added := false
	for _, contact := range contacts {
		if contact.ID.IsZero() || contact.ID == self || contact.Address == "" {
			continue
		}
		_, known := p.seen[contact.ID]
		if known {
			continue
		}

		c := &candidate{contact: contact, hop: hop}
		p.seen[contact.ID] = c
		p.candidates = append(p.candidates, c)
		added = true
	}

	if added {
		sort.SliceStable(p.candidates, func(i, j int) bool {
			return p.key.Closer(p.candidates[i].contact.ID, p.candidates[j].contact.ID)
		})
	}
}

func (p *process) closestResponded() []*candidate {
	res := []*candidate{}
	for _, c := range p.candidates {
		if c.state == responded {
			res = append(res, c)
			if len(res) == p.m.k {
				break
			}
		}
	}
	return res
}

func (p *process) lookupResult(elapsed time.Duration) types.LookupResult {
	closest := p.closestResponded()

	res := types.LookupResult{
		Key:      p.key,
		Contacts: make([]types.Contact, len(closest)),
		Queried:  p.queried,
		Elapsed:  elapsed,
	}
	for i, c := range closest {
		res.Contacts[i] = c.contact
		if c.hop > res.Hops {
			res.Hops = c.hop
		}
	}
	return res
}

// cleanup releases the callbacks and cancels the requests still in flight.
func (p *process) cleanup() {
	close(p.done)
	for id := range p.pending {
		p.m.requester.Cancel(id)
	}
}
