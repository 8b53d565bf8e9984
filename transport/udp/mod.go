package udp

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.dedis.ch/kdht/transport"
	"golang.org/x/xerrors"
)

// maxDatagram bounds the size of a single encoded packet.
const maxDatagram = 65000

// farFuture is used as deadline when no timeout is requested.
var farFuture = time.Unix(1<<40, 0)

// NewUDP returns a new udp transport implementation.
func NewUDP() transport.Transport {
	return &UDP{}
}

// UDP implements a transport layer using UDP
//
// - implements transport.Transport
type UDP struct{}

// CreateSocket implements transport.Transport
func (n *UDP) CreateSocket(address string) (transport.ClosableSocket, error) {
	laddr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve %s: %v", address, err)
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen on %s: %v", address, err)
	}

	return &Socket{
		conn:  conn,
		addrs: map[string]*net.UDPAddr{},
	}, nil
}

// Socket implements a network socket using UDP.
//
// - implements transport.Socket
// - implements transport.ClosableSocket
type Socket struct {
	conn   *net.UDPConn
	closed atomic.Bool

	// resolved destination addresses, a DHT node talks to the same contacts
	// over and over
	addrsLock sync.Mutex
	addrs     map[string]*net.UDPAddr

	ins  traffic
	outs traffic
}

// Close implements transport.ClosableSocket. It returns an error if already
// closed.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return xerrors.Errorf("socket %s already closed", s.GetAddress())
	}
	return s.conn.Close()
}

// Send implements transport.Socket
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	buf, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if len(buf) > maxDatagram {
		return xerrors.Errorf("packet too large: %d bytes", len(buf))
	}

	raddr, err := s.resolve(dest)
	if err != nil {
		return err
	}

	err = s.conn.SetWriteDeadline(deadline(timeout))
	if err != nil {
		return xerrors.Errorf("failed to set write deadline: %v", err)
	}

	_, err = s.conn.WriteToUDP(buf, raddr)
	if err != nil {
		if isTimeout(err) {
			return transport.TimeoutError(timeout)
		}
		return xerrors.Errorf("failed to write to %s: %w", dest, err)
	}

	s.outs.add(pkt)
	return nil
}

// Recv implements transport.Socket. It blocks until a packet is received, or
// the timeout is reached. In the case the timeout is reached, return a
// TimeoutError.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	err := s.conn.SetReadDeadline(deadline(timeout))
	if err != nil {
		return transport.Packet{}, xerrors.Errorf("failed to set read deadline: %v", err)
	}

	buf := make([]byte, maxDatagram)
	n, raddr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return transport.Packet{}, transport.TimeoutError(timeout)
		}
		return transport.Packet{}, xerrors.Errorf("failed to read: %w", err)
	}

	var pkt transport.Packet
	err = pkt.Unmarshal(buf[:n])
	if err != nil {
		return transport.Packet{}, err
	}

	// the claimed source is replaced by the observed one
	pkt.Header.Source = raddr.String()

	s.ins.add(pkt)
	return pkt, nil
}

// GetAddress implements transport.Socket. It returns the address assigned. Can
// be useful in the case one provided a :0 address, which makes the system use a
// random free port.
func (s *Socket) GetAddress() string {
	return s.conn.LocalAddr().String()
}

// GetIns implements transport.Socket
func (s *Socket) GetIns() []transport.Packet {
	return s.ins.all()
}

// GetOuts implements transport.Socket
func (s *Socket) GetOuts() []transport.Packet {
	return s.outs.all()
}

func (s *Socket) resolve(dest string) (*net.UDPAddr, error) {
	s.addrsLock.Lock()
	defer s.addrsLock.Unlock()

	raddr, ok := s.addrs[dest]
	if ok {
		return raddr, nil
	}

	raddr, err := net.ResolveUDPAddr("udp4", dest)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve %s: %v", dest, err)
	}
	s.addrs[dest] = raddr
	return raddr, nil
}

func deadline(timeout time.Duration) time.Time {
	if timeout == 0 {
		return farFuture
	}
	return time.Now().Add(timeout)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// traffic records copies of the packets that went through a socket.
type traffic struct {
	sync.Mutex
	pkts []transport.Packet
}

func (t *traffic) add(pkt transport.Packet) {
	t.Lock()
	defer t.Unlock()

	t.pkts = append(t.pkts, pkt.Copy())
}

func (t *traffic) all() []transport.Packet {
	t.Lock()
	defer t.Unlock()

	res := make([]transport.Packet, len(t.pkts))
	for i, pkt := range t.pkts {
		res[i] = pkt.Copy()
	}
	return res
}
