package handler

import (
	"go.dedis.ch/kdht/storage"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

// ExecPing implements registry.Exec
func (h *Handler) ExecPing(msg types.Message, pkt transport.Packet) error {
	req, ok := msg.(*types.PingRequest)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}

	h.learn(req.Header, pkt)

	return h.responder.SendResponse(pkt.Header.Source, h.factory.CreatePingResponse(req))
}

// ExecFindNode implements registry.Exec
func (h *Handler) ExecFindNode(msg types.Message, pkt transport.Packet) error {
	req, ok := msg.(*types.NodeRequest)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}

	h.learn(req.Header, pkt)

	contacts := h.closest(req.Key, req.Header.Contact.ID)
	return h.responder.SendResponse(pkt.Header.Source, h.factory.CreateNodeResponse(req, contacts))
}

// ExecFindValue implements registry.Exec
func (h *Handler) ExecFindValue(msg types.Message, pkt transport.Packet) error {
	req, ok := msg.(*types.ValueRequest)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}

	h.learn(req.Header, pkt)

	tuple, found := h.conf.Storage.Get(req.Key)
	if found {
		return h.responder.SendResponse(pkt.Header.Source, h.factory.CreateValueResponse(req, tuple))
	}

	contacts := h.closest(req.Key, req.Header.Contact.ID)
	return h.responder.SendResponse(pkt.Header.Source, h.factory.CreateValueMissResponse(req, contacts))
}

// ExecStore implements registry.Exec
func (h *Handler) ExecStore(msg types.Message, pkt transport.Packet) error {
	req, ok := msg.(*types.StoreRequest)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}

	h.learn(req.Header, pkt)

	sender := req.Header.Contact
	sender.Address = pkt.Header.Source

	status := types.StoreOK
	_, replaced, err := h.conf.Storage.Put(types.ValueTuple{
		Sender:   sender,
		Key:      req.Key,
		Value:    req.Value,
		StoredAt: h.clock.Now(),
	})

	switch {
	case xerrors.Is(err, storage.ErrEmptyValue):
		status = types.StoreLengthRequired
	case err != nil:
		h.logger.Warn().Err(err).Str("key", req.Key.Short()).Msg("failed to store")
		status = types.StoreInternalError
	default:
		h.logger.Debug().Str("key", req.Key.Short()).Str("from", sender.String()).
			Bool("replaced", replaced).Msg("stored")
	}

	return h.responder.SendResponse(pkt.Header.Source, h.factory.CreateStoreResponse(req, status))
}
