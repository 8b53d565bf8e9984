package channel

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.dedis.ch/kdht/transport"
	"golang.org/x/xerrors"
)

// inboxSize is the number of packets a socket buffers before Send blocks.
const inboxSize = 256

// NewTransport returns a transport that delivers packets through Go channels.
// It is used to run many nodes in a single process.
func NewTransport() transport.Transport {
	return &Transport{
		sockets:  map[string]*Socket{},
		nextPort: 1,
	}
}

// Transport implements an in-memory transport
//
// - implements transport.Transport
type Transport struct {
	sync.RWMutex
	sockets  map[string]*Socket
	nextPort int
}

// CreateSocket implements transport.Transport. An address ending with ":0" is
// given a free port.
func (t *Transport) CreateSocket(address string) (transport.ClosableSocket, error) {
	t.Lock()
	defer t.Unlock()

	if strings.HasSuffix(address, ":0") {
		host := strings.TrimSuffix(address, ":0")
		for {
			candidate := fmt.Sprintf("%s:%d", host, t.nextPort)
			t.nextPort++
			_, taken := t.sockets[candidate]
			if !taken {
				address = candidate
				break
			}
		}
	}

	_, taken := t.sockets[address]
	if taken {
		return nil, xerrors.Errorf("address %s already in use", address)
	}

	sock := &Socket{
		transport: t,
		address:   address,
		inbox:     make(chan transport.Packet, inboxSize),
		done:      make(chan struct{}),
	}
	t.sockets[address] = sock

	return sock, nil
}

func (t *Transport) lookup(address string) (*Socket, bool) {
	t.RLock()
	defer t.RUnlock()

	sock, ok := t.sockets[address]
	return sock, ok
}

func (t *Transport) remove(address string) {
	t.Lock()
	defer t.Unlock()

	delete(t.sockets, address)
}

// Socket is an in-memory socket.
//
// - implements transport.ClosableSocket
type Socket struct {
	transport *Transport
	address   string
	inbox     chan transport.Packet

	closeOnce sync.Once
	done      chan struct{}

	sync.Mutex
	ins  []transport.Packet
	outs []transport.Packet
}

// Close implements transport.ClosableSocket
func (s *Socket) Close() error {
	closed := false
	s.closeOnce.Do(func() {
		closed = true
		s.transport.remove(s.address)
		close(s.done)
	})
	if !closed {
		return xerrors.Errorf("socket %s already closed", s.address)
	}
	return nil
}

// Send implements transport.Socket
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	select {
	case <-s.done:
		return xerrors.Errorf("socket %s is closed", s.address)
	default:
	}

	peer, ok := s.transport.lookup(dest)
	if !ok {
		return xerrors.Errorf("%s is not a valid address", dest)
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	// the receiver sees the real sender, whatever the header claims
	delivered := pkt.Copy()
	if delivered.Header != nil {
		delivered.Header.Source = s.address
	}

	select {
	case peer.inbox <- delivered:
	case <-peer.done:
		return xerrors.Errorf("%s is closed", dest)
	case <-expire:
		return transport.TimeoutError(timeout)
	}

	s.Lock()
	s.outs = append(s.outs, pkt.Copy())
	s.Unlock()

	return nil
}

// Recv implements transport.Socket
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	select {
	case pkt := <-s.inbox:
		s.Lock()
		s.ins = append(s.ins, pkt.Copy())
		s.Unlock()
		return pkt, nil
	case <-s.done:
		return transport.Packet{}, xerrors.Errorf("socket %s is closed", s.address)
	case <-expire:
		return transport.Packet{}, transport.TimeoutError(timeout)
	}
}

// GetAddress implements transport.Socket
func (s *Socket) GetAddress() string {
	return s.address
}

// GetIns implements transport.Socket
func (s *Socket) GetIns() []transport.Packet {
	s.Lock()
	defer s.Unlock()

	res := make([]transport.Packet, len(s.ins))
	for i, pkt := range s.ins {
		res[i] = pkt.Copy()
	}
	return res
}

// GetOuts implements transport.Socket
func (s *Socket) GetOuts() []transport.Packet {
	s.Lock()
	defer s.Unlock()

	res := make([]transport.Packet, len(s.outs))
	for i, pkt := range s.outs {
		res[i] = pkt.Copy()
	}
	return res
}
