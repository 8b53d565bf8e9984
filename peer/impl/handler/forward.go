package handler

import (
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/types"
)

// forward stores on a newly learned contact the local values it should hold:
// the ones for which it is among the K closest known nodes while this node
// is the closest of the others.
func (h *Handler) forward(c types.Contact) {
	if h.forwarder == nil {
		return
	}

	self := h.table.Self()

	for _, tuple := range h.conf.Storage.Values() {
		if !h.shouldForward(self, c, tuple.Key) {
			continue
		}

		h.logger.Debug().Str("key", tuple.Key.Short()).Str("to", c.String()).Msg("store forward")

		f := h.forwarder.PutTo([]types.Contact{c}, tuple.Key, tuple.Value, peer.PutConfig{})
		f.AddListener(func(_ types.PutResult, err error) {
			if err != nil {
				h.logger.Debug().Err(err).Str("to", c.String()).Msg("store forward failed")
			}
		})
	}
}

func (h *Handler) shouldForward(self, c types.Contact, key types.KUID) bool {
	closest := h.table.SelectClosest(key, int(h.conf.K))

	among := false
	var nearest *types.Contact
	for i := range closest {
		if closest[i].ID == c.ID {
			among = true
			continue
		}
		if nearest == nil {
			nearest = &closest[i]
		}
	}

	if !among {
		return false
	}
	return nearest == nil || key.Closer(self.ID, nearest.ID)
}
