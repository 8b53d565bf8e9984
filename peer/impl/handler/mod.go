package handler

import (
	"os"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kdht/future"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl/message"
	"go.dedis.ch/kdht/peer/impl/routing"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
)

// Responder sends responses.
type Responder interface {
	SendResponse(dest string, msg types.RPCMessage) error
}

// Forwarder stores values on given contacts.
type Forwarder interface {
	PutTo(contacts []types.Contact, key types.KUID, value types.Value,
		conf peer.PutConfig) *future.Future[types.PutResult]
}

// NewHandler returns the handler of inbound requests. Register must be
// called to hook it into the message registry.
func NewHandler(conf *peer.Configuration, responder Responder, factory *message.Factory,
	table *routing.Table, forwarder Forwarder) *Handler {

	clk := conf.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Handler{
		conf:      conf,
		responder: responder,
		factory:   factory,
		table:     table,
		forwarder: forwarder,
		clock:     clk,
		logger: log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().
			Str("node", conf.NodeID.Short()).Str("module", "handler").Logger(),
	}
}

// Handler answers PING, FIND_NODE, FIND_VALUE and STORE requests.
type Handler struct {
	conf      *peer.Configuration
	responder Responder
	factory   *message.Factory
	table     *routing.Table
	forwarder Forwarder
	clock     clock.Clock
	logger    zerolog.Logger
}

// Register registers the request callbacks.
func (h *Handler) Register() {
	h.conf.MessageRegistry.RegisterMessageCallback(types.PingRequest{}, h.ExecPing)
	h.conf.MessageRegistry.RegisterMessageCallback(types.NodeRequest{}, h.ExecFindNode)
	h.conf.MessageRegistry.RegisterMessageCallback(types.ValueRequest{}, h.ExecFindValue)
	h.conf.MessageRegistry.RegisterMessageCallback(types.StoreRequest{}, h.ExecStore)
}

// learn adds the sender of a request to the routing table, with the source
// address observed by the socket rather than the one the sender advertises.
func (h *Handler) learn(header types.MessageHeader, pkt transport.Packet) {
	sender := header.Contact
	sender.Address = pkt.Header.Source

	if sender.ID.IsZero() {
		return
	}

	if h.table.Add(sender) && h.conf.StoreForward {
		go h.forward(sender)
	}
}

// closest returns the contacts closest to key, leaving out the requester.
func (h *Handler) closest(key types.KUID, requester types.KUID) []types.Contact {
	contacts := h.table.SelectClosest(key, int(h.conf.K)+1)

	res := make([]types.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.ID == requester {
			continue
		}
		res = append(res, c)
	}

	if len(res) > int(h.conf.K) {
		res = res[:h.conf.K]
	}
	return res
}
