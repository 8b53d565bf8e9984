package dispatcher

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/message"
	"go.dedis.ch/kdht/registry"
	"go.dedis.ch/kdht/registry/standard"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/transport/channel"
	"go.dedis.ch/kdht/transport/udp"
	"go.dedis.ch/kdht/types"
)

const testTimeout = time.Second

// fakeSocket records sent packets and lets tests inject failures.
type fakeSocket struct {
	sync.Mutex
	addr    string
	sent    []transport.Packet
	sendErr error
	closed  bool
	inbox   chan transport.Packet
}

func newFakeSocket(addr string) *fakeSocket {
	return &fakeSocket{addr: addr, inbox: make(chan transport.Packet, 16)}
}

func (s *fakeSocket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	s.Lock()
	defer s.Unlock()

	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, pkt.Copy())
	return nil
}

func (s *fakeSocket) Recv(timeout time.Duration) (transport.Packet, error) {
	select {
	case pkt := <-s.inbox:
		return pkt, nil
	case <-time.After(timeout):
		return transport.Packet{}, transport.TimeoutError(timeout)
	}
}

func (s *fakeSocket) GetAddress() string { return s.addr }

func (s *fakeSocket) GetIns() []transport.Packet { return nil }

func (s *fakeSocket) GetOuts() []transport.Packet {
	s.Lock()
	defer s.Unlock()

	return append([]transport.Packet{}, s.sent...)
}

func (s *fakeSocket) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return errors.New("already closed")
	}
	s.closed = true
	return nil
}

type fixture struct {
	d       *Dispatcher
	factory *message.Factory
	sock    *fakeSocket
	clock   *clock.Mock
	remote  types.Contact
}

func newFixture(t *testing.T) fixture {
	sock := newFakeSocket("127.0.0.1:1000")
	clk := clock.NewMock()

	conf := peer.Configuration{
		Socket:              sock,
		MessageRegistry:     standard.NewRegistry(),
		NodeID:              types.RandomKUID(),
		Clock:               clk,
		RequestTimeout:      testTimeout,
		ResponseHistorySize: 16,
	}

	factory := message.NewFactory(&conf)
	d := NewDispatcher(&conf, factory)
	require.NoError(t, d.Bind(sock))

	t.Cleanup(func() {
		d.Close()
	})

	return fixture{
		d:       d,
		factory: factory,
		sock:    sock,
		clock:   clk,
		remote:  types.Contact{ID: types.RandomKUID(), Address: "127.0.0.1:2000"},
	}
}

// response builds the packet carrying the answer of the remote node to req.
func (f fixture) response(t *testing.T, req types.RPCMessage, from types.Contact, source string) transport.Packet {
	resp := types.PingResponse{
		Header: types.MessageHeader{MessageID: req.GetHeader().MessageID, Contact: from},
	}

	msg, err := f.d.registry.MarshalMessage(resp)
	require.NoError(t, err)

	header := transport.NewHeader(source, f.sock.addr)
	return transport.Packet{Header: &header, Msg: &msg}
}

// recorder collects outcomes delivered to a callback.
type recorder struct {
	sync.Mutex
	outcomes []Outcome
}

func (r *recorder) callback(o Outcome) {
	r.Lock()
	defer r.Unlock()

	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) get() []Outcome {
	r.Lock()
	defer r.Unlock()

	return append([]Outcome{}, r.outcomes...)
}

func Test_Dispatcher_Bind(t *testing.T) {
	conf := peer.Configuration{
		MessageRegistry: standard.NewRegistry(),
		NodeID:          types.RandomKUID(),
	}
	sock := newFakeSocket("127.0.0.1:1")
	conf.Socket = sock

	d := NewDispatcher(&conf, message.NewFactory(&conf))

	require.ErrorIs(t, d.Bind(nil), ErrInvalidArgument)
	require.False(t, d.IsBound())

	require.NoError(t, d.Bind(sock))
	require.True(t, d.IsBound())
	require.ErrorIs(t, d.Bind(sock), ErrAlreadyBound)

	d.Unbind()
	require.False(t, d.IsBound())
	require.NoError(t, d.Bind(sock))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	require.True(t, sock.closed)
	require.ErrorIs(t, d.Bind(sock), ErrClosed)
}

func Test_Dispatcher_Send_Not_Bound(t *testing.T) {
	f := newFixture(t)
	f.d.Unbind()

	rec := &recorder{}
	req := f.factory.CreatePingRequest(f.remote)
	err := f.d.SendRequest(f.remote, req, testTimeout, rec.callback)
	require.ErrorIs(t, err, ErrNotBound)
	require.Empty(t, rec.get())
	require.Equal(t, 0, f.d.Pending())
}

func Test_Dispatcher_Send_Invalid(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	req := f.factory.CreatePingRequest(f.remote)

	require.ErrorIs(t, f.d.SendRequest(f.remote, req, 0, rec.callback), ErrInvalidArgument)
	require.ErrorIs(t, f.d.SendRequest(f.remote, req, testTimeout, nil), ErrInvalidArgument)

	resp := f.factory.CreatePingResponse(req)
	require.ErrorIs(t, f.d.SendRequest(f.remote, resp, testTimeout, rec.callback), ErrInvalidArgument)
	require.ErrorIs(t, f.d.SendResponse(f.remote.Address, req), ErrInvalidArgument)
}

func Test_Dispatcher_Response(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))
	require.Equal(t, 1, f.d.Pending())
	require.Len(t, f.sock.GetOuts(), 1)
	require.Equal(t, f.remote.Address, f.sock.GetOuts()[0].Header.Destination)

	f.clock.Add(time.Millisecond * 100)
	f.d.HandlePacket(f.response(t, req, f.remote, f.remote.Address))

	outcomes := rec.get()
	require.Len(t, outcomes, 1)
	require.Equal(t, OutcomeResponse, outcomes[0].Kind)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, req.Header.MessageID, outcomes[0].Response.GetHeader().MessageID)
	require.Equal(t, time.Millisecond*100, outcomes[0].RTT)
	require.Equal(t, 0, f.d.Pending())

	// the timer was stopped
	f.clock.Add(testTimeout * 2)
	time.Sleep(time.Millisecond * 10)
	require.Len(t, rec.get(), 1)
}

func Test_Dispatcher_Duplicate_Message_ID(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))
	require.ErrorIs(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback), ErrDuplicateMessageID)
	require.Equal(t, 1, f.d.Pending())
}

func Test_Dispatcher_Replay_Rejected(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	var late int32
	f.d.SetLateResponseHook(func(types.RPCMessage, transport.Packet) {
		atomic.AddInt32(&late, 1)
	})

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))

	pkt := f.response(t, req, f.remote, f.remote.Address)
	f.d.HandlePacket(pkt)
	f.d.HandlePacket(pkt)
	f.d.HandlePacket(pkt)

	require.Len(t, rec.get(), 1)
	// duplicates are rejected before reaching the late hook
	require.Equal(t, int32(0), atomic.LoadInt32(&late))
}

func Test_Dispatcher_Spoof_Rejected(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))

	// same id, but claims to come from another address
	f.d.HandlePacket(f.response(t, req, f.remote, "127.0.0.1:6666"))
	require.Empty(t, rec.get())
	require.True(t, f.d.IsPending(req.Header.MessageID))

	// the request ends up timing out
	f.clock.Add(testTimeout)
	require.Eventually(t, func() bool {
		return len(rec.get()) == 1
	}, time.Second, time.Millisecond*5)
	require.Equal(t, OutcomeTimeout, rec.get()[0].Kind)
}

func Test_Dispatcher_Illegal_Response(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))

	impostor := types.Contact{ID: types.RandomKUID(), Address: f.remote.Address}
	f.d.HandlePacket(f.response(t, req, impostor, f.remote.Address))

	outcomes := rec.get()
	require.Len(t, outcomes, 1)
	require.Equal(t, OutcomeFailure, outcomes[0].Kind)
	require.ErrorIs(t, outcomes[0].Err, ErrIllegalResponse)
	require.Equal(t, 0, f.d.Pending())
}

func Test_Dispatcher_Timeout(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))

	// never before the deadline
	f.clock.Add(testTimeout - time.Millisecond)
	time.Sleep(time.Millisecond * 10)
	require.Empty(t, rec.get())
	require.True(t, f.d.IsPending(req.Header.MessageID))

	f.clock.Add(time.Millisecond)
	require.Eventually(t, func() bool {
		return len(rec.get()) == 1
	}, time.Second, time.Millisecond*5)

	outcome := rec.get()[0]
	require.Equal(t, OutcomeTimeout, outcome.Kind)
	require.ErrorIs(t, outcome.Err, ErrTimeout)
	require.GreaterOrEqual(t, outcome.RTT, testTimeout)
	require.Equal(t, 0, f.d.Pending())
}

func Test_Dispatcher_Late_Response(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	lateCh := make(chan types.RPCMessage, 1)
	f.d.SetLateResponseHook(func(msg types.RPCMessage, pkt transport.Packet) {
		lateCh <- msg
	})

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))

	f.clock.Add(testTimeout)
	require.Eventually(t, func() bool {
		return len(rec.get()) == 1
	}, time.Second, time.Millisecond*5)

	f.d.HandlePacket(f.response(t, req, f.remote, f.remote.Address))

	select {
	case msg := <-lateCh:
		require.Equal(t, req.Header.MessageID, msg.GetHeader().MessageID)
	case <-time.After(time.Second):
		t.Fatal("late hook not called")
	}
	require.Len(t, rec.get(), 1)
}

func Test_Dispatcher_IO_Error(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	cause := errors.New("network unreachable")
	f.sock.sendErr = cause

	req := f.factory.CreatePingRequest(f.remote)
	err := f.d.SendRequest(f.remote, req, testTimeout, rec.callback)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	require.ErrorIs(t, err, cause)
	require.Equal(t, f.remote, ioErr.Dest)

	outcomes := rec.get()
	require.Len(t, outcomes, 1)
	require.Equal(t, OutcomeFailure, outcomes[0].Kind)
	require.Equal(t, 0, f.d.Pending())
}

func Test_Dispatcher_Cancel(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))

	require.True(t, f.d.Cancel(req.Header.MessageID))
	require.False(t, f.d.Cancel(req.Header.MessageID))

	outcomes := rec.get()
	require.Len(t, outcomes, 1)
	require.Equal(t, OutcomeCancelled, outcomes[0].Kind)
	require.ErrorIs(t, outcomes[0].Err, future.ErrCancelled)

	// nothing happens afterwards
	f.d.HandlePacket(f.response(t, req, f.remote, f.remote.Address))
	f.clock.Add(testTimeout)
	time.Sleep(time.Millisecond * 10)
	require.Len(t, rec.get(), 1)
}

func Test_Dispatcher_Close_Cancels_Outstanding(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	for i := 0; i < 5; i++ {
		req := f.factory.CreatePingRequest(f.remote)
		require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))
	}
	require.Equal(t, 5, f.d.Pending())

	require.NoError(t, f.d.Close())
	require.NoError(t, f.d.Close())

	outcomes := rec.get()
	require.Len(t, outcomes, 5)
	for _, o := range outcomes {
		require.Equal(t, OutcomeCancelled, o.Kind)
	}
	require.Equal(t, 0, f.d.Pending())
	require.True(t, f.sock.closed)

	// no timeout fires after close
	f.clock.Add(testTimeout * 2)
	time.Sleep(time.Millisecond * 10)
	require.Len(t, rec.get(), 5)

	req := f.factory.CreatePingRequest(f.remote)
	require.ErrorIs(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback), ErrClosed)
}

// Test_Dispatcher_Register_After_Close covers a SendRequest that passed the
// closed check right before Close: its registration must be refused instead
// of waiting for a timeout nobody cancels.
func Test_Dispatcher_Register_After_Close(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	require.Equal(t, 0, f.d.pending.cancelAll())

	req := f.factory.CreatePingRequest(f.remote)
	entity := RequestEntity{MessageID: req.Header.MessageID, Contact: f.remote, Request: req}

	err := f.d.pending.register(entity, testTimeout, rec.callback)
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, 0, f.d.Pending())

	f.clock.Add(testTimeout * 2)
	time.Sleep(time.Millisecond * 10)
	require.Empty(t, rec.get())
}

// Test_Dispatcher_At_Most_Once races a response, a cancellation and a timeout
// on many requests and checks each callback runs exactly once.
func Test_Dispatcher_At_Most_Once(t *testing.T) {
	f := newFixture(t)

	const n = 100

	counts := make([]int32, n)
	pkts := make([]transport.Packet, n)
	ids := make([]types.MessageID, n)

	for i := 0; i < n; i++ {
		i := i
		req := f.factory.CreatePingRequest(f.remote)
		ids[i] = req.Header.MessageID
		pkts[i] = f.response(t, req, f.remote, f.remote.Address)

		err := f.d.SendRequest(f.remote, req, testTimeout, func(Outcome) {
			atomic.AddInt32(&counts[i], 1)
		})
		require.NoError(t, err)
	}

	wg := sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f.d.HandlePacket(pkts[i])
		}
	}()
	go func() {
		defer wg.Done()
		for i := n - 1; i >= 0; i-- {
			f.d.Cancel(ids[i])
		}
	}()
	go func() {
		defer wg.Done()
		f.clock.Add(testTimeout)
	}()
	wg.Wait()

	require.Eventually(t, func() bool {
		for i := range counts {
			if atomic.LoadInt32(&counts[i]) != 1 {
				return false
			}
		}
		return true
	}, time.Second*2, time.Millisecond*10)

	time.Sleep(time.Millisecond * 20)
	for i := range counts {
		require.Equal(t, int32(1), atomic.LoadInt32(&counts[i]))
	}
	require.Equal(t, 0, f.d.Pending())
}

type testListener struct {
	sent     chan types.RPCMessage
	received chan types.RPCMessage
}

func (l *testListener) MessageSent(_ types.Contact, msg types.RPCMessage) {
	l.sent <- msg
}

func (l *testListener) MessageReceived(msg types.RPCMessage, _ transport.Packet) {
	l.received <- msg
}

func Test_Dispatcher_Listeners(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	l := &testListener{
		sent:     make(chan types.RPCMessage, 10),
		received: make(chan types.RPCMessage, 10),
	}
	f.d.AddMessageListener(l)

	req := f.factory.CreatePingRequest(f.remote)
	require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))
	f.d.HandlePacket(f.response(t, req, f.remote, f.remote.Address))

	select {
	case msg := <-l.sent:
		require.Equal(t, req.Header.MessageID, msg.GetHeader().MessageID)
	case <-time.After(time.Second):
		t.Fatal("no sent event")
	}

	select {
	case msg := <-l.received:
		require.False(t, msg.IsRequest())
	case <-time.After(time.Second):
		t.Fatal("no received event")
	}

	require.True(t, f.d.RemoveMessageListener(l))
	require.False(t, f.d.RemoveMessageListener(l))
}

// Test_Dispatcher_Slow_Listener checks that a blocked listener never blocks
// the dispatch of responses.
func Test_Dispatcher_Slow_Listener(t *testing.T) {
	f := newFixture(t)

	block := make(chan struct{})
	defer close(block)

	l := &blockingListener{block: block}
	f.d.AddMessageListener(l)

	rec := &recorder{}
	for i := 0; i < DefaultListenerQueueSize*2; i++ {
		req := f.factory.CreatePingRequest(f.remote)
		require.NoError(t, f.d.SendRequest(f.remote, req, testTimeout, rec.callback))
		f.d.HandlePacket(f.response(t, req, f.remote, f.remote.Address))
	}

	require.Len(t, rec.get(), DefaultListenerQueueSize*2)
}

type blockingListener struct {
	block chan struct{}
}

func (l *blockingListener) MessageSent(types.Contact, types.RPCMessage) {
	<-l.block
}

func (l *blockingListener) MessageReceived(types.RPCMessage, transport.Packet) {
	<-l.block
}

func Test_Dispatcher_Request_Handler(t *testing.T) {
	f := newFixture(t)

	handled := make(chan types.RPCMessage, 1)
	f.d.SetRequestHandler(func(msg types.RPCMessage, pkt transport.Packet) error {
		handled <- msg
		return nil
	})

	remoteReq := types.PingRequest{
		Header: types.MessageHeader{MessageID: types.MessageID{9}, Contact: f.remote},
	}
	msg, err := f.d.registry.MarshalMessage(remoteReq)
	require.NoError(t, err)
	header := transport.NewHeader(f.remote.Address, f.sock.addr)
	f.d.HandlePacket(transport.Packet{Header: &header, Msg: &msg})

	select {
	case got := <-handled:
		require.True(t, got.IsRequest())
	case <-time.After(time.Second):
		t.Fatal("request not handled")
	}
}

// countingRegistry counts how many times inbound messages are decoded.
type countingRegistry struct {
	registry.Registry
	decoded atomic.Int32
}

func (r *countingRegistry) DecodeMessage(msg transport.Message) (types.Message, error) {
	r.decoded.Add(1)
	return r.Registry.DecodeMessage(msg)
}

func (r *countingRegistry) ProcessPacket(pkt transport.Packet) error {
	r.decoded.Add(1)
	return r.Registry.ProcessPacket(pkt)
}

func Test_Dispatcher_Request_Decoded_Once(t *testing.T) {
	reg := &countingRegistry{Registry: standard.NewRegistry()}
	sock := newFakeSocket("127.0.0.1:1000")

	conf := peer.Configuration{
		Socket:          sock,
		MessageRegistry: reg,
		NodeID:          types.RandomKUID(),
		RequestTimeout:  testTimeout,
	}
	d := NewDispatcher(&conf, message.NewFactory(&conf))
	t.Cleanup(func() { d.Close() })

	handled := make(chan types.Message, 1)
	reg.RegisterMessageCallback(types.PingRequest{}, func(msg types.Message, _ transport.Packet) error {
		handled <- msg
		return nil
	})

	remoteReq := types.PingRequest{Header: types.MessageHeader{MessageID: types.MessageID{7}}}
	msg, err := reg.MarshalMessage(remoteReq)
	require.NoError(t, err)
	header := transport.NewHeader("127.0.0.1:2000", sock.addr)
	d.HandlePacket(transport.Packet{Header: &header, Msg: &msg})

	select {
	case got := <-handled:
		ping, ok := got.(*types.PingRequest)
		require.True(t, ok)
		require.Equal(t, remoteReq.Header.MessageID, ping.Header.MessageID)
	case <-time.After(time.Second):
		t.Fatal("request not handled")
	}

	require.Equal(t, int32(1), reg.decoded.Load())
}

// Test_Dispatcher_Spoof_Over_UDP sends a forged response from a third
// socket that claims, in its header, to be the node the request was sent to.
// The socket reports the real source, so the response is rejected.
func Test_Dispatcher_Spoof_Over_UDP(t *testing.T) {
	udpTransport := udp.NewUDP()

	sock, err := udpTransport.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	conf := peer.Configuration{
		Socket:          sock,
		MessageRegistry: standard.NewRegistry(),
		NodeID:          types.RandomKUID(),
		RequestTimeout:  time.Second,
	}
	factory := message.NewFactory(&conf)
	d := NewDispatcher(&conf, factory)
	require.NoError(t, d.Bind(sock))
	t.Cleanup(func() { d.Close() })

	target, err := udpTransport.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer target.Close()

	attacker, err := udpTransport.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer attacker.Close()

	dest := types.Contact{ID: types.RandomKUID(), Address: target.GetAddress()}

	done := make(chan Outcome, 1)
	req := factory.CreatePingRequest(dest)
	require.NoError(t, d.SendRequest(dest, req, time.Millisecond*300, func(o Outcome) {
		done <- o
	}))

	resp := types.PingResponse{
		Header: types.MessageHeader{MessageID: req.Header.MessageID, Contact: dest},
	}
	msg, err := conf.MessageRegistry.MarshalMessage(resp)
	require.NoError(t, err)

	header := transport.NewHeader(target.GetAddress(), sock.GetAddress())
	err = attacker.Send(sock.GetAddress(), transport.Packet{Header: &header, Msg: &msg}, time.Second)
	require.NoError(t, err)

	select {
	case o := <-done:
		require.Equal(t, OutcomeTimeout, o.Kind)
	case <-time.After(time.Second * 2):
		t.Fatal("no outcome")
	}

	ins := sock.GetIns()
	require.Len(t, ins, 1)
	require.Equal(t, attacker.GetAddress(), ins[0].Header.Source)
}

// Test_Dispatcher_Over_Channel runs two dispatchers over the in-memory
// transport: the second answers the PINGs of the first.
func Test_Dispatcher_Over_Channel(t *testing.T) {
	transp := channel.NewTransport()

	newNode := func() (*Dispatcher, *message.Factory) {
		sock, err := transp.CreateSocket("127.0.0.1:0")
		require.NoError(t, err)

		conf := peer.Configuration{
			Socket:          sock,
			MessageRegistry: standard.NewRegistry(),
			NodeID:          types.RandomKUID(),
			RequestTimeout:  time.Second,
		}
		factory := message.NewFactory(&conf)
		d := NewDispatcher(&conf, factory)
		require.NoError(t, d.Bind(sock))
		t.Cleanup(func() { d.Close() })

		return d, factory
	}

	d1, f1 := newNode()
	d2, f2 := newNode()

	d2.SetRequestHandler(func(msg types.RPCMessage, pkt transport.Packet) error {
		ping, ok := msg.(*types.PingRequest)
		require.True(t, ok)
		return d2.SendResponse(pkt.Header.Source, f2.CreatePingResponse(ping))
	})

	done := make(chan Outcome, 1)
	req := f1.CreatePingRequest(f2.Self())
	require.NoError(t, d1.SendRequest(f2.Self(), req, time.Second, func(o Outcome) {
		done <- o
	}))

	select {
	case o := <-done:
		require.Equal(t, OutcomeResponse, o.Kind)
		require.Equal(t, f2.Self(), o.Response.GetHeader().Contact)
	case <-time.After(time.Second * 2):
		t.Fatal("no response")
	}
}
