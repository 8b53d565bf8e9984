package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/types"
)

// pendingEntry is an outstanding request. open is flipped exactly once by
// the first terminal event.
type pendingEntry struct {
	request  RequestEntity
	callback Callback
	created  time.Time
	timer    *clock.Timer
	open     atomic.Bool
}

// pendingTable tracks outstanding requests by MessageID. Each entry owns one
// timer that is stopped by whichever terminal event comes first.
type pendingTable struct {
	sync.Mutex
	clock   clock.Clock
	entries map[types.MessageID]*pendingEntry
	// closed is set by cancelAll, no request can be registered afterwards
	closed bool
}

func newPendingTable(clk clock.Clock) *pendingTable {
	return &pendingTable{
		clock:   clk,
		entries: map[types.MessageID]*pendingEntry{},
	}
}

// register adds an entry and arms its timeout.
func (p *pendingTable) register(req RequestEntity, timeout time.Duration, cb Callback) error {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return ErrClosed
	}

	_, exists := p.entries[req.MessageID]
	if exists {
		return ErrDuplicateMessageID
	}

	e := &pendingEntry{
		request:  req,
		callback: cb,
		created:  p.clock.Now(),
	}
	e.open.Store(true)

	id := req.MessageID
	// the timer can't fire its callback before we release the lock
	e.timer = p.clock.AfterFunc(timeout, func() {
		p.timeout(id)
	})
	p.entries[id] = e

	return nil
}

// take removes the entry and closes it. It returns false if there is no such
// entry or if it was already closed.
func (p *pendingTable) take(id types.MessageID) (*pendingEntry, bool) {
	p.Lock()
	e, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.Unlock()

	if !ok {
		return nil, false
	}

	return e, e.close()
}

// complete delivers a response. It returns ErrLateResponse if no request is
// waiting for it, and ErrIllegalResponse if the response comes from another
// node than the one the request was sent to, in which case the request fails.
func (p *pendingTable) complete(resp types.RPCMessage) error {
	e, ok := p.take(resp.GetHeader().MessageID)
	if !ok {
		return ErrLateResponse
	}

	expected := e.request.Contact.ID
	if !expected.IsZero() && expected != resp.GetHeader().Contact.ID {
		e.callback(Outcome{
			Kind:     OutcomeFailure,
			Request:  e.request,
			Response: resp,
			RTT:      p.clock.Since(e.created),
			Err:      ErrIllegalResponse,
		})
		return ErrIllegalResponse
	}

	e.callback(Outcome{
		Kind:     OutcomeResponse,
		Request:  e.request,
		Response: resp,
		RTT:      p.clock.Since(e.created),
	})
	return nil
}

func (p *pendingTable) timeout(id types.MessageID) {
	e, ok := p.take(id)
	if !ok {
		return
	}

	e.callback(Outcome{
		Kind:    OutcomeTimeout,
		Request: e.request,
		RTT:     p.clock.Since(e.created),
		Err:     ErrTimeout,
	})
}

// fail terminates the request with an error. Returns false if the request
// was not outstanding.
func (p *pendingTable) fail(id types.MessageID, err error) bool {
	e, ok := p.take(id)
	if !ok {
		return false
	}

	e.callback(Outcome{
		Kind:    OutcomeFailure,
		Request: e.request,
		RTT:     p.clock.Since(e.created),
		Err:     err,
	})
	return true
}

// cancel terminates the request with a cancellation. Returns false if the
// request was not outstanding.
func (p *pendingTable) cancel(id types.MessageID) bool {
	e, ok := p.take(id)
	if !ok {
		return false
	}

	e.callback(cancelled(e, p.clock))
	return true
}

// cancelAll cancels every outstanding request and closes the table. All
// timers are stopped before it returns.
func (p *pendingTable) cancelAll() int {
	p.Lock()
	p.closed = true
	entries := p.entries
	p.entries = map[types.MessageID]*pendingEntry{}
	p.Unlock()

	closed := make([]*pendingEntry, 0, len(entries))
	for _, e := range entries {
		if e.close() {
			closed = append(closed, e)
		}
	}

	for _, e := range closed {
		e.callback(cancelled(e, p.clock))
	}

	return len(closed)
}

func (p *pendingTable) len() int {
	p.Lock()
	defer p.Unlock()

	return len(p.entries)
}

func (p *pendingTable) has(id types.MessageID) bool {
	p.Lock()
	defer p.Unlock()

	_, ok := p.entries[id]
	return ok
}

// close stops the timer and flips the open flag. Only the first caller gets
// true.
func (e *pendingEntry) close() bool {
	e.timer.Stop()
	return e.open.CompareAndSwap(true, false)
}

func cancelled(e *pendingEntry, clk clock.Clock) Outcome {
	return Outcome{
		Kind:    OutcomeCancelled,
		Request: e.request,
		RTT:     clk.Since(e.created),
		Err:     future.ErrCancelled,
	}
}
