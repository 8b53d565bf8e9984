package dispatcher

import "go.dedis.ch/kdht/types"

// MessageFactory is the oracle telling whether a MessageID was issued by this
// node for a given destination address.
type MessageFactory interface {
	IsFor(id types.MessageID, addr string) bool
}

// responseChecker filters inbound responses before they reach the pending
// table: replayed ids first, then ids not issued for the address the
// response was received from.
type responseChecker struct {
	factory MessageFactory
	history *responseHistory
}

func newResponseChecker(factory MessageFactory, historySize int) *responseChecker {
	return &responseChecker{
		factory: factory,
		history: newResponseHistory(historySize),
	}
}

// check returns nil if the response may be matched with a request. source
// must be the address observed by the socket.
func (c *responseChecker) check(id types.MessageID, source string) error {
	if !c.history.add(id) {
		return ErrReplayRejected
	}

	if !c.factory.IsFor(id, source) {
		return ErrSpoofRejected
	}

	return nil
}
