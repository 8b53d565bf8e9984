package dispatcher

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/registry"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
)

// RequestHandler processes an inbound request.
type RequestHandler func(msg types.RPCMessage, pkt transport.Packet) error

// LateResponseHook is called with responses that passed the checks but match
// no outstanding request, typically because the request already timed out.
type LateResponseHook func(msg types.RPCMessage, pkt transport.Packet)

// NewDispatcher returns a new dispatcher. The dispatcher is not bound to any
// socket yet.
func NewDispatcher(conf *peer.Configuration, factory MessageFactory) *Dispatcher {
	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}

	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().
		Str("node", conf.NodeID.Short()).Str("module", "dispatcher").Logger()

	d := &Dispatcher{
		conf:     conf,
		registry: conf.MessageRegistry,
		clock:    clk,
		logger:   logger,
		pending:  newPendingTable(clk),
		checker:  newResponseChecker(factory, int(conf.ResponseHistorySize)),
		events:   newEventLoop(int(conf.ListenerQueueSize), logger),
	}

	d.requestHandler = func(msg types.RPCMessage, pkt transport.Packet) error {
		return d.registry.ProcessMessage(msg, pkt)
	}
	d.lateHook = func(msg types.RPCMessage, pkt transport.Packet) {
		d.logger.Debug().Err(ErrLateResponse).Str("from", pkt.Header.Source).
			Str("msg", msg.String()).Msg("dropping response")
	}

	return d
}

// Dispatcher sends requests and responses over a socket, and correlates
// inbound responses with the requests waiting for them.
type Dispatcher struct {
	conf     *peer.Configuration
	registry registry.Registry
	clock    clock.Clock
	logger   zerolog.Logger

	sync.RWMutex
	sock       transport.Socket
	stopListen chan struct{}
	listenWG   sync.WaitGroup
	closed     bool

	pending *pendingTable
	checker *responseChecker
	events  *eventLoop

	hooksLock      sync.RWMutex
	requestHandler RequestHandler
	lateHook       LateResponseHook
}

// Bind attaches the dispatcher to a socket and starts receiving from it.
func (d *Dispatcher) Bind(sock transport.Socket) error {
	if sock == nil {
		return ErrInvalidArgument
	}

	d.Lock()
	defer d.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.sock != nil {
		return ErrAlreadyBound
	}

	d.sock = sock
	d.stopListen = make(chan struct{})

	d.listenWG.Add(1)
	go d.listen(sock, d.stopListen)

	d.logger.Debug().Str("addr", sock.GetAddress()).Msg("bound")
	return nil
}

// Unbind detaches the dispatcher from its socket. Outstanding requests are
// left untouched and will time out unless a socket is bound again.
func (d *Dispatcher) Unbind() {
	d.unbind(false)
}

// IsBound tells whether a socket is bound.
func (d *Dispatcher) IsBound() bool {
	d.RLock()
	defer d.RUnlock()

	return d.sock != nil
}

// Close unbinds the dispatcher, closes the socket if it is closable, and
// cancels every outstanding request. Calling Close again is a no-op.
func (d *Dispatcher) Close() error {
	d.Lock()
	if d.closed {
		d.Unlock()
		return nil
	}
	d.closed = true
	d.Unlock()

	err := d.unbind(true)

	n := d.pending.cancelAll()
	d.events.close()

	d.logger.Debug().Int("cancelled", n).Msg("closed")
	return err
}

func (d *Dispatcher) unbind(closeSocket bool) error {
	d.Lock()
	sock := d.sock
	if sock == nil {
		d.Unlock()
		return nil
	}
	close(d.stopListen)
	d.sock = nil
	d.Unlock()

	var err error
	if closeSocket {
		closable, ok := sock.(transport.ClosableSocket)
		if ok {
			err = closable.Close()
		}
	}

	d.listenWG.Wait()
	return err
}

// SendRequest registers the request and sends it to dest. The callback is
// called exactly once with the outcome of the request. If sending fails, the
// callback receives a failure and the IOError is also returned.
func (d *Dispatcher) SendRequest(dest types.Contact, msg types.RPCMessage, timeout time.Duration,
	cb Callback) error {

	if msg == nil || cb == nil || timeout <= 0 || !msg.IsRequest() {
		return ErrInvalidArgument
	}

	d.RLock()
	sock, closed := d.sock, d.closed
	d.RUnlock()

	if closed {
		return ErrClosed
	}
	if sock == nil {
		return ErrNotBound
	}

	id := msg.GetHeader().MessageID
	entity := RequestEntity{
		MessageID: id,
		Contact:   dest,
		Request:   msg,
	}

	err := d.pending.register(entity, timeout, cb)
	if err != nil {
		return err
	}

	err = d.send(sock, dest.Address, msg, timeout)
	if err != nil {
		ioErr := &IOError{Dest: dest, Err: err}
		d.pending.fail(id, ioErr)
		return ioErr
	}

	d.events.publish(event{sent: true, dest: dest, msg: msg})
	return nil
}

// SendResponse sends a response without tracking it.
func (d *Dispatcher) SendResponse(dest string, msg types.RPCMessage) error {
	if msg == nil || msg.IsRequest() {
		return ErrInvalidArgument
	}

	d.RLock()
	sock := d.sock
	d.RUnlock()

	if sock == nil {
		return ErrNotBound
	}

	err := d.send(sock, dest, msg, d.conf.RequestTimeout)
	if err != nil {
		return &IOError{Dest: types.Contact{Address: dest}, Err: err}
	}

	d.events.publish(event{sent: true, dest: types.Contact{Address: dest}, msg: msg})
	return nil
}

// Cancel cancels an outstanding request. Its callback receives a cancelled
// outcome. Returns false if the request is not outstanding anymore.
func (d *Dispatcher) Cancel(id types.MessageID) bool {
	return d.pending.cancel(id)
}

// IsPending tells whether the request is still outstanding.
func (d *Dispatcher) IsPending(id types.MessageID) bool {
	return d.pending.has(id)
}

// Pending returns the number of outstanding requests.
func (d *Dispatcher) Pending() int {
	return d.pending.len()
}

// AddMessageListener registers a listener.
func (d *Dispatcher) AddMessageListener(l MessageListener) {
	d.events.add(l)
}

// RemoveMessageListener unregisters a listener.
func (d *Dispatcher) RemoveMessageListener(l MessageListener) bool {
	return d.events.remove(l)
}

// SetRequestHandler replaces the handler of inbound requests. By default
// requests are processed by the message registry callbacks.
func (d *Dispatcher) SetRequestHandler(h RequestHandler) {
	d.hooksLock.Lock()
	defer d.hooksLock.Unlock()

	d.requestHandler = h
}

// SetLateResponseHook replaces the hook called with late responses.
func (d *Dispatcher) SetLateResponseHook(h LateResponseHook) {
	d.hooksLock.Lock()
	defer d.hooksLock.Unlock()

	d.lateHook = h
}

// HandlePacket processes an inbound packet: requests go to the request
// handler, responses are checked and matched with outstanding requests.
func (d *Dispatcher) HandlePacket(pkt transport.Packet) {
	if pkt.Header == nil || pkt.Msg == nil {
		d.logger.Warn().Msg("incomplete packet")
		return
	}

	decoded, err := d.registry.DecodeMessage(*pkt.Msg)
	if err != nil {
		d.logger.Warn().Err(err).Str("from", pkt.Header.Source).Msg("failed to decode")
		return
	}

	msg, ok := decoded.(types.RPCMessage)
	if !ok {
		d.logger.Warn().Str("type", pkt.Msg.Type).Msg("not an rpc message")
		return
	}

	d.events.publish(event{msg: msg, pkt: pkt})

	if msg.IsRequest() {
		d.handleRequest(msg, pkt)
	} else {
		d.handleResponse(msg, pkt)
	}
}

func (d *Dispatcher) handleRequest(msg types.RPCMessage, pkt transport.Packet) {
	d.hooksLock.RLock()
	handler := d.requestHandler
	d.hooksLock.RUnlock()

	err := handler(msg, pkt)
	if err != nil {
		d.logger.Error().Err(err).Str("from", pkt.Header.Source).Msg("failed to handle request")
	}
}

func (d *Dispatcher) handleResponse(msg types.RPCMessage, pkt transport.Packet) {
	id := msg.GetHeader().MessageID

	err := d.checker.check(id, pkt.Header.Source)
	if err != nil {
		d.logger.Warn().Err(err).Str("id", id.String()).Str("from", pkt.Header.Source).
			Msg("response rejected")
		return
	}

	err = d.pending.complete(msg)
	switch {
	case errors.Is(err, ErrLateResponse):
		d.hooksLock.RLock()
		hook := d.lateHook
		d.hooksLock.RUnlock()

		hook(msg, pkt)
	case errors.Is(err, ErrIllegalResponse):
		d.logger.Error().Err(err).Str("id", id.String()).
			Str("contact", msg.GetHeader().Contact.String()).Msg("response from unexpected node")
	}
}

func (d *Dispatcher) send(sock transport.Socket, dest string, msg types.RPCMessage,
	timeout time.Duration) error {

	transpMsg, err := d.registry.MarshalMessage(msg)
	if err != nil {
		return err
	}

	header := transport.NewHeader(sock.GetAddress(), dest)
	pkt := transport.Packet{Header: &header, Msg: &transpMsg}

	return sock.Send(dest, pkt, timeout)
}
