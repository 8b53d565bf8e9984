package transport

import (
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/xerrors"
)

// Factory defines the general function to create a transport.
type Factory func() Transport

// Transport defines the primitives to create sockets.
type Transport interface {
	CreateSocket(address string) (ClosableSocket, error)
}

// Socket describes the primitives a message-oriented socket must provide.
// Packets may be dropped, duplicated or reordered by the underlying network.
type Socket interface {
	// Send sends a packet to the destination. A zero timeout means no
	// timeout. Returns a TimeoutError if the timeout is reached.
	Send(dest string, pkt Packet, timeout time.Duration) error

	// Recv blocks until a packet is received or the timeout is reached. A
	// zero timeout means no timeout. Returns a TimeoutError in the latter
	// case.
	Recv(timeout time.Duration) (Packet, error)

	// GetAddress returns the address assigned to the socket.
	GetAddress() string

	// GetIns returns a copy of all the packets received so far.
	GetIns() []Packet

	// GetOuts returns a copy of all the packets successfully sent so far.
	GetOuts() []Packet
}

// ClosableSocket augments the Socket interface with a close function.
type ClosableSocket interface {
	Socket

	// Close closes the socket. Returns an error if already closed.
	Close() error
}

// TimeoutError is returned when a socket operation reaches its deadline.
type TimeoutError time.Duration

// Error implements error.
func (err TimeoutError) Error() string {
	return fmt.Sprintf("timeout reached after %d", err)
}

// Is implements the errors.Is interface. Any TimeoutError matches.
func (TimeoutError) Is(err error) bool {
	_, ok := err.(TimeoutError)
	return ok
}

// Packet is the unit exchanged by sockets.
type Packet struct {
	Header *Header
	Msg    *Message
}

// Marshal encodes the packet for the wire.
func (p Packet) Marshal() ([]byte, error) {
	buf, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal packet: %v", err)
	}
	return buf, nil
}

// Unmarshal decodes a packet previously encoded with Marshal.
func (p *Packet) Unmarshal(buf []byte) error {
	err := msgpack.Unmarshal(buf, p)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal packet: %v", err)
	}
	if p.Header == nil || p.Msg == nil {
		return xerrors.Errorf("incomplete packet")
	}
	return nil
}

// Copy returns a deep copy of the packet.
func (p Packet) Copy() Packet {
	res := Packet{}
	if p.Header != nil {
		h := p.Header.Copy()
		res.Header = &h
	}
	if p.Msg != nil {
		m := p.Msg.Copy()
		res.Msg = &m
	}
	return res
}

// String implements fmt.Stringer.
func (p Packet) String() string {
	if p.Header == nil || p.Msg == nil {
		return "{empty packet}"
	}
	return fmt.Sprintf("{%s %s -> %s, %s}", p.Header.PacketID, p.Header.Source,
		p.Header.Destination, p.Msg.Type)
}

// Header carries the routing information of a packet.
type Header struct {
	// PacketID is a unique packet identifier, mostly used for debugging.
	PacketID string

	// Timestamp is the creation time in nanoseconds.
	Timestamp int64

	// Source is the address of the sender. Sockets overwrite it on reception
	// with the address the packet was actually received from, so it can't be
	// forged by the sender.
	Source string

	// Destination is the address the packet is sent to.
	Destination string
}

// NewHeader returns a new header with a fresh packet ID.
func NewHeader(source, dest string) Header {
	return Header{
		PacketID:    xid.New().String(),
		Timestamp:   time.Now().UnixNano(),
		Source:      source,
		Destination: dest,
	}
}

// Copy returns a copy of the header.
func (h Header) Copy() Header {
	return h
}

// Message is the serialized payload of a packet.
type Message struct {
	Type    string
	Payload []byte
}

// Copy returns a deep copy of the message.
func (m Message) Copy() Message {
	payload := make([]byte, len(m.Payload))
	copy(payload, m.Payload)
	return Message{Type: m.Type, Payload: payload}
}
