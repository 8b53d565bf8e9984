package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/dispatcher"
	"go.dedis.ch/kdht/peer/impl/message"
	"go.dedis.ch/kdht/registry/standard"
	"go.dedis.ch/kdht/storage/inmemory"
	"go.dedis.ch/kdht/transport/channel"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

type behavior uint8

const (
	store behavior = iota
	reject
	timeout
	silent
	unreachable
)

// fakeRequester answers STORE requests according to the behavior of each
// destination.
type fakeRequester struct {
	sync.Mutex
	behaviors map[string]behavior
	waiting   map[types.MessageID]dispatcher.Callback
	sent      []types.Contact
	inflight  int
	maxFlight int

	// halted, when set, is checked on every send; sends made while it
	// returns true are counted in late
	halted func() bool
	late   int
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{
		behaviors: map[string]behavior{},
		waiting:   map[types.MessageID]dispatcher.Callback{},
	}
}

func (r *fakeRequester) SendRequest(dest types.Contact, msg types.RPCMessage, _ time.Duration,
	cb dispatcher.Callback) error {

	id := msg.GetHeader().MessageID
	req := dispatcher.RequestEntity{MessageID: id, Contact: dest, Request: msg}

	r.Lock()
	r.sent = append(r.sent, dest)
	if r.halted != nil && r.halted() {
		r.late++
	}
	b := r.behaviors[dest.Address]
	r.inflight++
	if r.inflight > r.maxFlight {
		r.maxFlight = r.inflight
	}
	r.Unlock()

	done := func(o dispatcher.Outcome) {
		r.Lock()
		r.inflight--
		r.Unlock()
		cb(o)
	}

	header := types.MessageHeader{MessageID: id, Contact: dest}

	switch b {
	case store:
		resp := &types.StoreResponse{Header: header, Status: types.StoreOK}
		go done(dispatcher.Outcome{Kind: dispatcher.OutcomeResponse, Request: req, Response: resp})
	case reject:
		resp := &types.StoreResponse{Header: header, Status: types.StoreLengthRequired}
		go done(dispatcher.Outcome{Kind: dispatcher.OutcomeResponse, Request: req, Response: resp})
	case timeout:
		go done(dispatcher.Outcome{Kind: dispatcher.OutcomeTimeout, Request: req, Err: dispatcher.ErrTimeout})
	case unreachable:
		ioErr := &dispatcher.IOError{Dest: dest, Err: xerrors.New("unreachable")}
		done(dispatcher.Outcome{Kind: dispatcher.OutcomeFailure, Request: req, Err: ioErr})
		return ioErr
	case silent:
		r.Lock()
		r.waiting[id] = done
		r.Unlock()
	}

	return nil
}

func (r *fakeRequester) Cancel(id types.MessageID) bool {
	r.Lock()
	cb, ok := r.waiting[id]
	delete(r.waiting, id)
	r.Unlock()

	if ok {
		cb(dispatcher.Outcome{Kind: dispatcher.OutcomeCancelled, Err: future.ErrCancelled})
	}
	return ok
}

func (r *fakeRequester) waitingCount() int {
	r.Lock()
	defer r.Unlock()

	return len(r.waiting)
}

func (r *fakeRequester) sentCount() int {
	r.Lock()
	defer r.Unlock()

	return len(r.sent)
}

// fakeLookuper hands out lookup futures the test completes itself.
type fakeLookuper struct {
	sync.Mutex
	futures []*future.Future[types.LookupResult]
}

func (l *fakeLookuper) Lookup(types.KUID, time.Duration) *future.Future[types.LookupResult] {
	l.Lock()
	defer l.Unlock()

	f := future.New[types.LookupResult]()
	l.futures = append(l.futures, f)
	return f
}

func (l *fakeLookuper) last() *future.Future[types.LookupResult] {
	l.Lock()
	defer l.Unlock()

	return l.futures[len(l.futures)-1]
}

func newTestManager(t *testing.T) (*Manager, *fakeRequester, *fakeLookuper) {
	sock, err := channel.NewTransport().CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	conf := peer.Configuration{
		Socket:          sock,
		MessageRegistry: standard.NewRegistry(),
		Storage:         inmemory.NewDatabase(0),
		NodeID:          types.RandomKUID(),
		K:               20,
		RequestTimeout:  time.Second,
		Clock:           clock.New(),
		PutDefaults: peer.PutConfig{
			LookupTimeout: time.Second * 5,
			StoreTimeout:  time.Second,
			Parallelism:   3,
		},
	}

	requester := newFakeRequester()
	lookups := &fakeLookuper{}

	return NewManager(&conf, requester, message.NewFactory(&conf), lookups), requester, lookups
}

func makeContacts(n int) []types.Contact {
	res := make([]types.Contact, n)
	for i := range res {
		res[i] = types.Contact{
			ID:      types.RandomKUID(),
			Address: fmt.Sprintf("10.0.0.2:%d", 4000+i),
		}
	}
	return res
}

func Test_Put_Lookup_Then_Store(t *testing.T) {
	m, requester, lookups := newTestManager(t)

	key := types.RandomKUID()
	contacts := makeContacts(5)

	f := m.Put(key, types.Value{Content: []byte("aa")}, peer.PutConfig{})

	// nothing is stored before the lookup completes
	require.Equal(t, 0, requester.sentCount())
	lookups.last().SetValue(types.LookupResult{Key: key, Contacts: contacts})

	res, err := f.Get(context.Background())
	require.NoError(t, err)

	require.Equal(t, key, res.Key)
	require.NotNil(t, res.Lookup)
	require.Equal(t, contacts, res.Lookup.Contacts)
	require.NotNil(t, res.Store)
	require.Equal(t, 5, res.Store.Count(types.StoreStored))
	require.ElementsMatch(t, contacts, res.Store.StoredOn())
}

func Test_Put_Lookup_Failure(t *testing.T) {
	m, requester, lookups := newTestManager(t)

	f := m.Put(types.RandomKUID(), types.Value{Content: []byte("aa")}, peer.PutConfig{})

	cause := xerrors.New("no luck")
	lookups.last().SetError(cause)

	_, err := f.Get(context.Background())
	require.ErrorIs(t, err, cause)
	require.False(t, f.IsCancelled())

	// no STORE is sent after a failed lookup
	require.Equal(t, 0, requester.sentCount())
}

func Test_Put_Partial_Failure(t *testing.T) {
	m, requester, lookups := newTestManager(t)

	contacts := makeContacts(4)
	requester.behaviors[contacts[1].Address] = reject
	requester.behaviors[contacts[2].Address] = timeout
	requester.behaviors[contacts[3].Address] = unreachable

	f := m.Put(types.RandomKUID(), types.Value{Content: []byte("aa")}, peer.PutConfig{})
	lookups.last().SetValue(types.LookupResult{Contacts: contacts})

	res, err := f.Get(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, res.Store.Count(types.StoreStored))
	require.Equal(t, 1, res.Store.Count(types.StoreRejected))
	require.Equal(t, 1, res.Store.Count(types.StoreTimedOut))
	require.Equal(t, 1, res.Store.Count(types.StoreFailed))

	// outcomes follow the order of the contacts
	require.Equal(t, types.StoreLengthRequired, res.Store.Outcomes[1].Status)
	require.ErrorIs(t, res.Store.Outcomes[2].Err, dispatcher.ErrTimeout)
	var ioErr *dispatcher.IOError
	require.ErrorAs(t, res.Store.Outcomes[3].Err, &ioErr)
}

func Test_Put_Store_Failure_Keeps_Lookup(t *testing.T) {
	m, requester, lookups := newTestManager(t)

	contacts := makeContacts(3)
	for _, c := range contacts {
		requester.behaviors[c.Address] = timeout
	}

	f := m.Put(types.RandomKUID(), types.Value{Content: []byte("aa")}, peer.PutConfig{})
	lookups.last().SetValue(types.LookupResult{Contacts: contacts, Hops: 2})

	res, err := f.Get(context.Background())
	require.ErrorIs(t, err, ErrStoreFailed)

	require.NotNil(t, res.Lookup)
	require.Equal(t, 2, res.Lookup.Hops)
	require.NotNil(t, res.Store)
	require.Equal(t, 3, res.Store.Count(types.StoreTimedOut))
}

func Test_Put_Cancel_During_Lookup(t *testing.T) {
	m, requester, lookups := newTestManager(t)

	f := m.Put(types.RandomKUID(), types.Value{Content: []byte("aa")}, peer.PutConfig{})
	lookup := lookups.last()

	require.True(t, f.Cancel())
	require.True(t, lookup.IsCancelled())

	// a lookup result arriving after the cancellation is ignored
	lookup.SetValue(types.LookupResult{Contacts: makeContacts(3)})
	require.Equal(t, 0, requester.sentCount())

	_, err := f.Get(context.Background())
	require.ErrorIs(t, err, future.ErrCancelled)
}

func Test_Put_Cancel_During_Store(t *testing.T) {
	m, requester, lookups := newTestManager(t)

	contacts := makeContacts(6)
	for _, c := range contacts {
		requester.behaviors[c.Address] = silent
	}

	f := m.Put(types.RandomKUID(), types.Value{Content: []byte("aa")}, peer.PutConfig{})
	lookups.last().SetValue(types.LookupResult{Contacts: contacts})

	require.Eventually(t, func() bool {
		return requester.waitingCount() == 3
	}, time.Second, time.Millisecond*5)

	require.True(t, f.Cancel())

	// in-flight STOREs are cancelled and the remaining ones never sent
	require.Eventually(t, func() bool {
		return requester.waitingCount() == 0
	}, time.Second, time.Millisecond*5)
	require.Equal(t, 3, requester.sentCount())

	_, err := f.Get(context.Background())
	require.ErrorIs(t, err, future.ErrCancelled)
}

// Test_Put_Cancel_Races_Lookup cancels the put while the lookup completes
// concurrently. Once the put is cancelled, no STORE may be sent.
func Test_Put_Cancel_Races_Lookup(t *testing.T) {
	const n = 500

	for i := 0; i < n; i++ {
		m, requester, lookups := newTestManager(t)

		f := m.Put(types.RandomKUID(), types.Value{Content: []byte("aa")}, peer.PutConfig{})
		lookup := lookups.last()

		requester.Lock()
		requester.halted = f.IsCancelled
		requester.Unlock()

		start := make(chan struct{})
		wait := sync.WaitGroup{}
		wait.Add(2)

		go func() {
			defer wait.Done()
			<-start
			f.Cancel()
		}()
		go func() {
			defer wait.Done()
			<-start
			lookup.SetValue(types.LookupResult{Contacts: makeContacts(3)})
		}()

		close(start)
		wait.Wait()

		_, err := f.Get(context.Background())

		requester.Lock()
		late := requester.late
		requester.Unlock()

		require.Equal(t, 0, late, "iteration %d", i)

		if f.IsCancelled() {
			require.ErrorIs(t, err, future.ErrCancelled)
		}
	}
}

func Test_Put_Lookup_Cancelled(t *testing.T) {
	m, _, lookups := newTestManager(t)

	f := m.Put(types.RandomKUID(), types.Value{Content: []byte("aa")}, peer.PutConfig{})
	lookups.last().Cancel()

	require.True(t, f.IsCancelled())
}

func Test_PutTo_Skips_Lookup(t *testing.T) {
	m, requester, lookups := newTestManager(t)

	contacts := makeContacts(2)
	res, err := m.PutTo(contacts, types.RandomKUID(), types.Value{Content: []byte("aa")},
		peer.PutConfig{}).Get(context.Background())
	require.NoError(t, err)

	require.Nil(t, res.Lookup)
	require.Equal(t, 2, res.Store.Count(types.StoreStored))
	require.Empty(t, lookups.futures)
	require.Equal(t, 2, requester.sentCount())
}

func Test_PutTo_No_Contacts(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.PutTo(nil, types.RandomKUID(), types.Value{Content: []byte("aa")},
		peer.PutConfig{}).Get(context.Background())
	require.ErrorIs(t, err, ErrNoContacts)
}

func Test_Store_Parallelism(t *testing.T) {
	m, requester, _ := newTestManager(t)

	contacts := makeContacts(10)
	for _, c := range contacts {
		requester.behaviors[c.Address] = timeout
	}
	requester.behaviors[contacts[9].Address] = store

	res, err := m.PutTo(contacts, types.RandomKUID(), types.Value{Content: []byte("aa")},
		peer.PutConfig{Parallelism: 2}).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Store.Outcomes, 10)

	requester.Lock()
	defer requester.Unlock()
	require.LessOrEqual(t, requester.maxFlight, 2)
}

func Test_Store_Targets(t *testing.T) {
	m, requester, _ := newTestManager(t)

	contacts := makeContacts(3)
	contacts = append(contacts, contacts[0], m.factory.Self())

	res, err := m.PutTo(contacts, types.RandomKUID(), types.Value{Content: []byte("aa")},
		peer.PutConfig{}).Get(context.Background())
	require.NoError(t, err)

	// duplicates and the local node are skipped
	require.Len(t, res.Store.Outcomes, 3)
	require.Equal(t, 3, requester.sentCount())
}
