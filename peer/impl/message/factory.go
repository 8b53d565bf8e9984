package message

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/rs/xid"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/types"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/xerrors"
)

const (
	// uniquePart is the length of the xid prefix of a MessageID
	uniquePart = 12
	// macPart is the length of the keyed MAC suffix of a MessageID
	macPart = types.MessageIDLength - uniquePart
)

// NewFactory returns a new message factory and registers every RPC message
// type into the configuration's registry.
func NewFactory(conf *peer.Configuration) *Factory {
	f := Factory{
		conf: conf,
	}

	_, err := rand.Read(f.secret[:])
	if err != nil {
		panic(xerrors.Errorf("failed to generate message secret: %v", err))
	}

	for _, msg := range []types.Message{
		types.PingRequest{}, types.PingResponse{},
		types.NodeRequest{}, types.NodeResponse{},
		types.ValueRequest{}, types.ValueResponse{},
		types.StoreRequest{}, types.StoreResponse{},
	} {
		conf.MessageRegistry.RegisterMessage(msg)
	}

	return &f
}

// Factory creates the RPC messages of the node. MessageIDs embed a MAC over
// the destination address, computed with a secret only this node knows, so
// that a response can be checked to come from the node the request was sent
// to.
//
// - implements dispatcher.MessageFactory
type Factory struct {
	conf   *peer.Configuration
	secret [32]byte
}

// Self returns the contact of the local node.
func (f *Factory) Self() types.Contact {
	return types.Contact{
		ID:         f.conf.NodeID,
		Address:    f.conf.Socket.GetAddress(),
		InstanceID: f.conf.InstanceID,
	}
}

// NewMessageID returns a fresh MessageID for a request sent to addr.
func (f *Factory) NewMessageID(addr string) types.MessageID {
	var id types.MessageID

	unique := xid.New()
	copy(id[:uniquePart], unique.Bytes())
	copy(id[uniquePart:], f.mac(id[:uniquePart], addr))

	return id
}

// IsFor implements dispatcher.MessageFactory. It tells whether id was
// created by this factory for a request sent to addr.
func (f *Factory) IsFor(id types.MessageID, addr string) bool {
	expected := f.mac(id[:uniquePart], addr)
	return subtle.ConstantTimeCompare(expected, id[uniquePart:]) == 1
}

func (f *Factory) mac(unique []byte, addr string) []byte {
	h, err := blake2b.New(macPart, f.secret[:])
	if err != nil {
		// only happens with an invalid size or key length
		panic(err)
	}

	h.Write(unique)
	h.Write([]byte(addr))

	return h.Sum(nil)
}

func (f *Factory) requestHeader(dest types.Contact) types.MessageHeader {
	return types.MessageHeader{
		MessageID: f.NewMessageID(dest.Address),
		Contact:   f.Self(),
	}
}

func (f *Factory) responseHeader(req types.RPCMessage) types.MessageHeader {
	return types.MessageHeader{
		MessageID: req.GetHeader().MessageID,
		Contact:   f.Self(),
	}
}

// CreatePingRequest returns a PING for dest.
func (f *Factory) CreatePingRequest(dest types.Contact) *types.PingRequest {
	return &types.PingRequest{Header: f.requestHeader(dest)}
}

// CreatePingResponse returns the answer to a PING.
func (f *Factory) CreatePingResponse(req *types.PingRequest) *types.PingResponse {
	return &types.PingResponse{Header: f.responseHeader(req)}
}

// CreateNodeRequest returns a FIND_NODE for key.
func (f *Factory) CreateNodeRequest(dest types.Contact, key types.KUID) *types.NodeRequest {
	return &types.NodeRequest{Header: f.requestHeader(dest), Key: key}
}

// CreateNodeResponse returns the answer to a FIND_NODE.
func (f *Factory) CreateNodeResponse(req *types.NodeRequest, contacts []types.Contact) *types.NodeResponse {
	return &types.NodeResponse{Header: f.responseHeader(req), Contacts: contacts}
}

// CreateValueRequest returns a FIND_VALUE for key.
func (f *Factory) CreateValueRequest(dest types.Contact, key types.KUID) *types.ValueRequest {
	return &types.ValueRequest{Header: f.requestHeader(dest), Key: key}
}

// CreateValueResponse returns the answer to a FIND_VALUE holding the value.
func (f *Factory) CreateValueResponse(req *types.ValueRequest, tuple types.ValueTuple) *types.ValueResponse {
	return &types.ValueResponse{Header: f.responseHeader(req), Found: true, Value: tuple}
}

// CreateValueMissResponse returns the answer to a FIND_VALUE for a value
// this node does not store.
func (f *Factory) CreateValueMissResponse(req *types.ValueRequest, contacts []types.Contact) *types.ValueResponse {
	return &types.ValueResponse{Header: f.responseHeader(req), Contacts: contacts}
}

// CreateStoreRequest returns a STORE of value under key.
func (f *Factory) CreateStoreRequest(dest types.Contact, key types.KUID, value types.Value) *types.StoreRequest {
	return &types.StoreRequest{Header: f.requestHeader(dest), Key: key, Value: value}
}

// CreateStoreResponse returns the answer to a STORE.
func (f *Factory) CreateStoreResponse(req *types.StoreRequest, status types.StoreStatus) *types.StoreResponse {
	return &types.StoreResponse{Header: f.responseHeader(req), Status: status}
}
