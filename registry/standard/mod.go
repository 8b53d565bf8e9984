package standard

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.dedis.ch/kdht/registry"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

// NewRegistry returns a new registry encoding messages with msgpack.
func NewRegistry() registry.Registry {
	return &Registry{
		entries: map[string]entry{},
	}
}

type entry struct {
	proto types.Message
	exec  registry.Exec
}

// Registry implements a standard message registry.
//
// - implements registry.Registry
type Registry struct {
	sync.RWMutex
	entries map[string]entry
}

// RegisterMessage implements registry.Registry
func (r *Registry) RegisterMessage(msg types.Message) {
	r.Lock()
	defer r.Unlock()

	e := r.entries[msg.Name()]
	e.proto = msg
	r.entries[msg.Name()] = e
}

// RegisterMessageCallback implements registry.Registry
func (r *Registry) RegisterMessageCallback(msg types.Message, exec registry.Exec) {
	r.Lock()
	defer r.Unlock()

	r.entries[msg.Name()] = entry{proto: msg, exec: exec}
}

// ProcessPacket implements registry.Registry
func (r *Registry) ProcessPacket(pkt transport.Packet) error {
	if pkt.Msg == nil {
		return xerrors.Errorf("packet without message")
	}

	msg, err := r.DecodeMessage(*pkt.Msg)
	if err != nil {
		return err
	}

	return r.ProcessMessage(msg, pkt)
}

// ProcessMessage implements registry.Registry
func (r *Registry) ProcessMessage(msg types.Message, pkt transport.Packet) error {
	r.RLock()
	e, ok := r.entries[msg.Name()]
	r.RUnlock()

	if !ok {
		return xerrors.Errorf("unknown message type: %s", msg.Name())
	}
	if e.exec == nil {
		return xerrors.Errorf("no callback for message type: %s", msg.Name())
	}

	err := e.exec(msg, pkt)
	if err != nil {
		return xerrors.Errorf("failed to process %s: %w", msg.Name(), err)
	}

	return nil
}

// MarshalMessage implements registry.Registry
func (r *Registry) MarshalMessage(msg types.Message) (transport.Message, error) {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return transport.Message{}, xerrors.Errorf("failed to encode %s: %v", msg.Name(), err)
	}

	return transport.Message{
		Type:    msg.Name(),
		Payload: payload,
	}, nil
}

// DecodeMessage implements registry.Registry
func (r *Registry) DecodeMessage(msg transport.Message) (types.Message, error) {
	r.RLock()
	e, ok := r.entries[msg.Type]
	r.RUnlock()

	if !ok {
		return nil, xerrors.Errorf("unknown message type: %s", msg.Type)
	}

	res := e.proto.NewEmpty()
	err := msgpack.Unmarshal(msg.Payload, res)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode %s: %v", msg.Type, err)
	}

	return res, nil
}

// GetMessages implements registry.Registry
func (r *Registry) GetMessages() []types.Message {
	r.RLock()
	defer r.RUnlock()

	res := make([]types.Message, 0, len(r.entries))
	for _, e := range r.entries {
		res = append(res, e.proto)
	}
	return res
}
